package chunked_test

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-git/go-billy/v5/memfs"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	"github.com/ligustah/partfetch/pkg/chunked"
	"github.com/ligustah/partfetch/pkg/remote"
)

func Example() {
	ctx := context.Background()
	bucket, _ := blob.OpenBucket(ctx, "mem://")
	defer bucket.Close()

	// A 300 KiB object split into 128 KiB parts
	bucket.WriteAll(ctx, "data/archive.zip", bytes.Repeat([]byte("x"), 300*1024), nil)

	client := remote.NewClient(bucket)
	meta, _ := client.Stat(ctx, "/data/archive.zip")
	h, _ := client.Open(ctx, "/data/archive.zip")

	d, _ := chunked.New(memfs.New(), chunked.WithBlockSize(128*1024))
	res, err := d.Download(ctx, h, meta, chunked.PartNames("/tmp/archive.zip"))
	if err != nil {
		panic(err)
	}

	for _, p := range res.Parts {
		fmt.Printf("%s [%d, %d) %d bytes\n", p.Path, p.Start, p.End, p.Size)
	}
	// Output:
	// /tmp/archive.zip.part1 [0, 131072) 131072 bytes
	// /tmp/archive.zip.part2 [131072, 262144) 131072 bytes
	// /tmp/archive.zip.part3 [262144, 307200) 45056 bytes
}

func ExampleNewPlan() {
	for _, legacy := range []bool{false, true} {
		plan, _ := chunked.NewPlan(256, 128, legacy)
		fmt.Printf("legacy=%v:", legacy)
		for _, b := range plan.Blocks() {
			fmt.Printf(" %d", b.Length())
		}
		fmt.Println()
	}
	// Output:
	// legacy=false: 128 128
	// legacy=true: 128 128 0
}
