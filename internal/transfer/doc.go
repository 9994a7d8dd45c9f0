// Package transfer runs partfetch downloads and uploads end to end.
//
// [Fetch] and [FetchURL] resolve a source (a bucket object or an HTTP URL),
// open it, and hand it to a chunked.Downloader together with a progress
// reporter and a logger tagged with a per-run id. [Get] and [Put] move a
// whole object through a buffered stream without splitting it.
//
// # Usage
//
//	client, _ := remote.Open(ctx, "s3://archive")
//	defer client.Close()
//
//	res, err := transfer.Fetch(ctx, client, "/uer/hadoop/hadoop-2.7.2.zip",
//	    osfs.New("/"), "/tmp/hadoop-2.7.2", transfer.Options{
//	        BlockSize: 128 * 1024 * 1024,
//	        Progress:  true,
//	        Logger:    logger,
//	    })
//
// Every call closes the remote handle it opened, whether or not it fails.
package transfer
