package chunked

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sync"

	"github.com/go-git/go-billy/v5"

	"github.com/ligustah/partfetch/pkg/remote"
)

// Handle is an open remote object positioned at offset 0.
type Handle interface {
	io.Reader
	io.Seeker
	io.Closer
}

// ProgressReporter receives block-level progress. *progress.Reporter
// implements it.
type ProgressReporter interface {
	BlockStarted()
	BytesWritten(n int64)
	BlockCompleted()
	BlockFailed()
}

// State is a step of the download state machine.
type State int

const (
	StateIdle State = iota
	StateComputingPlan
	StateDownloadingBlock
	StateClosing
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComputingPlan:
		return "computing_plan"
	case StateDownloadingBlock:
		return "downloading_block"
	case StateClosing:
		return "closing"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Downloader.
type Options struct {
	// BlockSize is the size of each part file. Default: 128 MiB.
	BlockSize int64

	// BufferSize is the size of the read buffer reused for every full block.
	// Default: 1 MiB.
	BufferSize int

	// LegacyBlockCount computes the block count as floor(L/B)+1.
	LegacyBlockCount bool

	// Progress is an optional progress reporter.
	Progress ProgressReporter

	// Logger receives one record per block. Default: discard.
	Logger *slog.Logger
}

// Option is a functional option for configuring a Downloader.
type Option func(*Options)

// WithBlockSize sets the block size.
func WithBlockSize(size int64) Option {
	return func(o *Options) {
		o.BlockSize = size
	}
}

// WithBufferSize sets the size of the reusable read buffer.
func WithBufferSize(size int) Option {
	return func(o *Options) {
		o.BufferSize = size
	}
}

// WithLegacyBlockCount selects the floor(L/B)+1 block count, which adds a
// trailing empty part when the length is a multiple of the block size.
func WithLegacyBlockCount(legacy bool) Option {
	return func(o *Options) {
		o.LegacyBlockCount = legacy
	}
}

// WithProgress sets the progress reporter.
func WithProgress(p ProgressReporter) Option {
	return func(o *Options) {
		o.Progress = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Part describes one written part file.
type Part struct {
	Index int
	Path  string
	Start int64
	End   int64
	Size  int64
}

// Result is returned by a successful Download.
type Result struct {
	Plan  Plan
	Parts []Part
}

// Bytes returns the total number of bytes written across all parts.
func (r *Result) Bytes() int64 {
	var n int64
	for _, p := range r.Parts {
		n += p.Size
	}
	return n
}

// Downloader splits one remote object into sequential local part files.
// A Downloader performs a single Download.
type Downloader struct {
	fs   billy.Filesystem
	opts Options
	log  *slog.Logger
	buf  []byte

	mu    sync.Mutex
	state State
	block int
	err   error
}

// New creates a Downloader writing part files to fsys.
func New(fsys billy.Filesystem, options ...Option) (*Downloader, error) {
	opts := Options{
		BlockSize:  DefaultBlockSize,
		BufferSize: DefaultBufferSize,
	}
	for _, opt := range options {
		opt(&opts)
	}

	if opts.BlockSize <= 0 {
		return nil, fmt.Errorf("%w: block size %d must be positive", ErrInvalidPlan, opts.BlockSize)
	}
	if opts.BufferSize <= 0 {
		return nil, errors.New("chunked: buffer size must be positive")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Downloader{
		fs:   fsys,
		opts: opts,
		log:  logger,
		buf:  make([]byte, opts.BufferSize),
	}, nil
}

// State returns the current state and, while downloading, the 1-based
// index of the block in progress.
func (d *Downloader) State() (State, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state, d.block
}

// Err returns the fault that moved the downloader to StateError.
func (d *Downloader) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *Downloader) transition(s State, block int) {
	d.mu.Lock()
	d.state = s
	d.block = block
	d.mu.Unlock()
}

func (d *Downloader) fail(err error) error {
	d.mu.Lock()
	d.state = StateError
	d.err = err
	d.mu.Unlock()
	d.log.Error("download failed", "error", err)
	return err
}

// Download reads h block by block into part files named by name and closes
// h before returning, on success and failure alike. meta must describe the
// object h reads.
//
// Full blocks are read through the reused buffer with bounded reads, after
// which h is seeked to the block's end offset. The final partial block is
// copied until EOF. The first failure aborts the download; part files
// already written are left in place.
func (d *Downloader) Download(ctx context.Context, h Handle, meta remote.Metadata, name NameFunc) (res *Result, err error) {
	d.mu.Lock()
	if d.state != StateIdle {
		d.mu.Unlock()
		h.Close()
		return nil, ErrDownloaderUsed
	}
	d.state = StateComputingPlan
	d.mu.Unlock()

	closed := false
	defer func() {
		if !closed {
			h.Close()
		}
	}()

	plan, err := NewPlan(meta.Size, d.opts.BlockSize, d.opts.LegacyBlockCount)
	if err != nil {
		return nil, d.fail(err)
	}
	d.log.Debug("computed plan",
		"path", meta.Path,
		"length", plan.Length,
		"block_size", plan.BlockSize,
		"blocks", plan.Count,
		"legacy", plan.Legacy,
	)

	res = &Result{Plan: plan, Parts: make([]Part, 0, plan.Count)}
	for i := 1; i <= plan.Count; i++ {
		block := plan.Block(i)
		d.transition(StateDownloadingBlock, i)

		part, err := d.downloadBlock(ctx, h, block, name(i))
		if err != nil {
			return nil, d.fail(err)
		}
		res.Parts = append(res.Parts, part)
	}

	d.transition(StateClosing, 0)
	closed = true
	if err := h.Close(); err != nil {
		return nil, d.fail(fmt.Errorf("chunked: close remote: %w", err))
	}

	d.transition(StateDone, 0)
	d.log.Info("download complete", "path", meta.Path, "parts", len(res.Parts), "bytes", res.Bytes())
	return res, nil
}

// downloadBlock writes one block to a fresh part file.
func (d *Downloader) downloadBlock(ctx context.Context, h Handle, b Block, name string) (part Part, err error) {
	if err := ctx.Err(); err != nil {
		return Part{}, newBlockError(b, name, err, err)
	}

	if d.opts.Progress != nil {
		d.opts.Progress.BlockStarted()
		defer func() {
			if err != nil {
				d.opts.Progress.BlockFailed()
			} else {
				d.opts.Progress.BlockCompleted()
			}
		}()
	}

	if dir := path.Dir(name); dir != "." && dir != "/" {
		if err := d.fs.MkdirAll(dir, 0o755); err != nil {
			return Part{}, newBlockError(b, name, ErrLocalWrite, err)
		}
	}
	f, err := d.fs.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return Part{}, newBlockError(b, name, ErrLocalWrite, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = newBlockError(b, name, ErrLocalWrite, cerr)
		}
	}()

	var n int64
	if b.Full {
		n, err = d.copyFull(ctx, h, f, b, name)
	} else {
		n, err = d.copyTail(h, f, b, name)
	}
	if err != nil {
		return Part{}, err
	}

	d.log.Debug("block written", "block", b.Index, "start", b.Start, "end", b.End, "file", name, "bytes", n)
	return Part{Index: b.Index, Path: name, Start: b.Start, End: b.End, Size: n}, nil
}

// copyFull reads exactly b.Length() bytes through the shared buffer, then
// re-syncs the remote cursor to b.End.
func (d *Downloader) copyFull(ctx context.Context, h Handle, w io.Writer, b Block, name string) (int64, error) {
	var written int64
	want := b.Length()

	for written < want {
		if err := ctx.Err(); err != nil {
			return written, newBlockError(b, name, err, err)
		}

		chunk := d.buf
		if rem := want - written; int64(len(chunk)) > rem {
			chunk = chunk[:rem]
		}

		n, rerr := h.Read(chunk)
		if n > 0 {
			if _, werr := w.Write(chunk[:n]); werr != nil {
				return written, newBlockError(b, name, ErrLocalWrite, werr)
			}
			written += int64(n)
			if d.opts.Progress != nil {
				d.opts.Progress.BytesWritten(int64(n))
			}
		}

		if rerr == io.EOF {
			if written < want {
				return written, newBlockError(b, name, remote.ErrIO,
					fmt.Errorf("%w: stream ended at %d of %d bytes", ErrShortBlock, written, want))
			}
			break
		}
		if rerr != nil {
			return written, newBlockError(b, name, remoteKind(rerr), rerr)
		}
	}

	if _, err := h.Seek(b.End, io.SeekStart); err != nil {
		return written, newBlockError(b, name, remoteKind(err), fmt.Errorf("seek to %d: %w", b.End, err))
	}
	return written, nil
}

// copyTail copies everything left in the stream.
func (d *Downloader) copyTail(h Handle, w io.Writer, b Block, name string) (int64, error) {
	cw := &countingWriter{w: w, progress: d.opts.Progress}
	n, err := io.Copy(cw, h)
	if err != nil {
		if cw.err != nil {
			return n, newBlockError(b, name, ErrLocalWrite, cw.err)
		}
		return n, newBlockError(b, name, remoteKind(err), err)
	}
	if n != b.Length() {
		return n, newBlockError(b, name, remote.ErrIO,
			fmt.Errorf("%w: copied %d bytes, want %d", ErrShortBlock, n, b.Length()))
	}
	return n, nil
}

// countingWriter reports bytes to the progress reporter and remembers its
// own write error so copy failures can be attributed to the local side.
type countingWriter struct {
	w        io.Writer
	progress ProgressReporter
	err      error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 && c.progress != nil {
		c.progress.BytesWritten(int64(n))
	}
	if err != nil {
		c.err = err
	}
	return n, err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
