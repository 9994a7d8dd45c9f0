package transfer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"

	pfhttp "github.com/ligustah/partfetch/internal/http"
	"github.com/ligustah/partfetch/internal/progress"
	"github.com/ligustah/partfetch/pkg/chunked"
	"github.com/ligustah/partfetch/pkg/remote"
)

// StreamBufferSize is the buffer used by Get and Put.
const StreamBufferSize = 4096

// ErrIsDirectory is returned when a transfer source is a directory.
var ErrIsDirectory = errors.New("transfer: source is a directory")

// Options configures a chunked fetch.
type Options struct {
	// BlockSize is the size of each part file.
	// Default: chunked.DefaultBlockSize
	BlockSize int64

	// BufferSize is the read buffer for full blocks.
	// Default: chunked.DefaultBufferSize
	BufferSize int

	// LegacyBlockCount selects the floor(L/B)+1 block count.
	LegacyBlockCount bool

	// Progress enables the progress display.
	Progress bool

	// ProgressOutput receives the progress display. Default: os.Stdout
	ProgressOutput io.Writer

	// Logger receives run records. Default: discard.
	Logger *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.BlockSize <= 0 {
		o.BlockSize = chunked.DefaultBlockSize
	}
	if o.BufferSize <= 0 {
		o.BufferSize = chunked.DefaultBufferSize
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// Fetch downloads the bucket object at remotePath into part files named
// "<base>.part<i>" in fsys.
func Fetch(ctx context.Context, client *remote.Client, remotePath string, fsys billy.Filesystem, base string, opts Options) (*chunked.Result, error) {
	meta, err := client.Stat(ctx, remotePath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", remotePath, err)
	}
	if meta.IsDir {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, remotePath)
	}

	h, err := client.Open(ctx, remotePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", remotePath, err)
	}
	return run(ctx, h, meta, fsys, base, opts)
}

// FetchURL downloads an HTTP object into part files named "<base>.part<i>"
// in fsys. The server must support range requests.
func FetchURL(ctx context.Context, client *pfhttp.Client, url string, fsys billy.Filesystem, base string, opts Options) (*chunked.Result, error) {
	r, err := client.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	return run(ctx, r, r.Metadata(), fsys, base, opts)
}

// run drives one chunked download and always closes h.
func run(ctx context.Context, h chunked.Handle, meta remote.Metadata, fsys billy.Filesystem, base string, opts Options) (*chunked.Result, error) {
	opts.applyDefaults()

	runID := uuid.NewString()
	logger := opts.Logger.With("run_id", runID, "source", meta.Path)

	dopts := []chunked.Option{
		chunked.WithBlockSize(opts.BlockSize),
		chunked.WithBufferSize(opts.BufferSize),
		chunked.WithLegacyBlockCount(opts.LegacyBlockCount),
		chunked.WithLogger(logger),
	}

	if opts.Progress {
		plan, err := chunked.NewPlan(meta.Size, opts.BlockSize, opts.LegacyBlockCount)
		if err != nil {
			h.Close()
			return nil, err
		}
		reporter := progress.NewReporter(progress.Options{
			TotalSize:   plan.Length,
			TotalBlocks: plan.Count,
			BlockSize:   plan.BlockSize,
			Source:      meta.Path,
			Output:      opts.ProgressOutput,
		})
		reporter.Start()
		defer reporter.Stop()
		dopts = append(dopts, chunked.WithProgress(reporter))
	}

	d, err := chunked.New(fsys, dopts...)
	if err != nil {
		h.Close()
		return nil, err
	}

	logger.Info("starting download", "size", meta.Size, "base", base, "block_size", opts.BlockSize)
	res, err := d.Download(ctx, h, meta, chunked.PartNames(base))
	if err != nil {
		return nil, err
	}
	logger.Info("download finished", "parts", len(res.Parts), "bytes", res.Bytes())
	return res, nil
}

// Get streams the object at remotePath into localPath in fsys through a
// buffered writer. It returns the number of bytes copied.
func Get(ctx context.Context, client *remote.Client, remotePath string, fsys billy.Filesystem, localPath string) (n int64, err error) {
	h, err := client.Open(ctx, remotePath)
	if err != nil {
		return 0, err
	}
	defer h.Close()

	if dir := path.Dir(localPath); dir != "." && dir != "/" {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("%w: %v", chunked.ErrLocalWrite, err)
		}
	}
	f, err := fsys.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", chunked.ErrLocalWrite, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close %s: %v", chunked.ErrLocalWrite, localPath, cerr)
		}
	}()

	lw := &localWriter{w: f}
	bw := bufio.NewWriterSize(lw, StreamBufferSize)
	n, err = io.Copy(bw, h)
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		if lw.err != nil {
			return n, fmt.Errorf("%w: write %s: %v", chunked.ErrLocalWrite, localPath, lw.err)
		}
		return n, err
	}
	return n, nil
}

// Put streams localPath from fsys to remotePath through a buffered reader.
// The object is only committed if the whole file was read.
func Put(ctx context.Context, client *remote.Client, fsys billy.Filesystem, localPath, remotePath string, overwrite bool) (int64, error) {
	f, err := fsys.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("open local %s: %w", localPath, err)
	}
	defer f.Close()

	// Cancelling the writer's context before Close discards the upload.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := client.Create(wctx, remotePath, overwrite)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(w, bufio.NewReaderSize(f, StreamBufferSize))
	if err != nil {
		cancel()
		w.Close()
		return n, fmt.Errorf("put %s: %w", remotePath, err)
	}
	if err := w.Close(); err != nil {
		return n, err
	}
	return n, nil
}

// localWriter remembers write errors so copy failures can be attributed to
// the local side.
type localWriter struct {
	w   io.Writer
	err error
}

func (l *localWriter) Write(p []byte) (int, error) {
	n, err := l.w.Write(p)
	if err != nil {
		l.err = err
	}
	return n, err
}
