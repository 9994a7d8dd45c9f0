// Package http fetches objects from plain HTTP servers for partfetch.
//
// This package handles:
//   - HEAD requests for object metadata
//   - Range requests and a seekable [RangeReader]
//   - Retry with exponential backoff and jitter
//   - Mapping status codes onto the remote error kinds
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	r, err := client.Open(ctx, url)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	// r reads lazily from its current offset and can be handed to
//	// chunked.Downloader.Download together with r.Metadata().
//
// A 404 matches remote.ErrNotFound, 401 and 403 match
// remote.ErrPermissionDenied, and server or transport failures match
// remote.ErrIO.
package http
