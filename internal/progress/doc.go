// Package progress prints download progress for partfetch.
//
// The reporter counts blocks and bytes with atomics and redraws two status
// lines from its own ticker goroutine, so the downloader can update it
// without coordinating with the display.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalSize:   plan.Length,
//	    TotalBlocks: plan.Count,
//	    BlockSize:   plan.BlockSize,
//	    Source:      "/data/archive.zip",
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	d, _ := chunked.New(fsys, chunked.WithProgress(reporter))
//
// # Output Format
//
//	[partfetch] Downloading: /data/archive.zip
//	[partfetch] Total size: 300 MiB | Blocks: 3 x 128 MiB
//	[partfetch] Progress: 45.2% | 136 MiB / 300 MiB | Speed: 112 MiB/s | ETA: 1s
//	[partfetch] Blocks: 1 completed | 1 in-progress | 1 pending
package progress
