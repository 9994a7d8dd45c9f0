// Package chunked downloads a remote object as a series of fixed-size local
// part files.
//
// A [Plan] splits an object of length L into blocks of size B. Block i
// (1-based) covers [(i-1)*B, i*B); the last block covers whatever remains.
// [Downloader.Download] walks the plan strictly in order, writing block i to
// the file named by a [NameFunc] (see [PartNames]: "<base>.part<i>") and
// closing it before block i+1 is opened.
//
// # Reading
//
// Full blocks are read with repeated bounded reads into one buffer that is
// reused for the whole download, and the remote cursor is then seeked to
// i*B. The final partial block is copied with io.Copy until EOF.
//
// # Block count
//
// By default the plan has ceil(L/B) blocks. [WithLegacyBlockCount] switches
// to floor(L/B)+1, which produces a trailing empty part when L is a
// multiple of B:
//
//	L = 300 MiB, B = 128 MiB -> 128 MiB, 128 MiB, 44 MiB
//	L = 256 MiB, B = 128 MiB -> 128 MiB, 128 MiB            (default)
//	L = 256 MiB, B = 128 MiB -> 128 MiB, 128 MiB, 0 B       (legacy)
//
// # Failure
//
// The first read, seek, or write failure aborts the download with a
// *[BlockError] naming the block and byte range. The remote handle is
// closed exactly once on every path, and the part file being written is
// closed. Partial part files are left behind; nothing is retried.
//
// # Parts
//
// [Verify] checks part files against a plan, [OpenParts] streams them back
// in order, and [Join] concatenates them into a single file.
package chunked
