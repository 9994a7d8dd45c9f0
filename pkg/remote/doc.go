// Package remote is a thin client for objects in a blob store.
//
// It wraps gocloud.dev/blob so the rest of partfetch sees a small
// filesystem-like surface: Stat, Open (a seekable Handle), Create, Upload,
// Download, Mkdir, Delete, Rename, and List. Any bucket URL gocloud
// understands works as an endpoint (mem://, file:///path, s3://bucket,
// gs://bucket).
//
// # Directories
//
// Blob stores are flat. A directory exists when at least one key lives
// under its prefix; Mkdir writes a zero-length ".dir" marker so empty
// directories survive. Markers never show up in listings.
//
// # Listing
//
//	it := client.List("/data", false)
//	for {
//	    entry, err := it.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    if entry.IsDir {
//	        ...
//	    }
//	}
//
// # Errors
//
// Failures are returned as *Error whose Kind is one of ErrNotFound,
// ErrPermissionDenied, ErrIO, ErrExist or ErrNotEmpty:
//
//	if errors.Is(err, remote.ErrNotFound) { ... }
package remote
