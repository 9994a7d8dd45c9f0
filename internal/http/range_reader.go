package http

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ligustah/partfetch/pkg/remote"
)

// RangeReader is a seekable, read-only view of an HTTP object. It holds at
// most one response body open; the body is requested lazily from the current
// offset to the end of the object and dropped on Seek.
type RangeReader struct {
	c    *Client
	ctx  context.Context // bounds every request issued by the reader
	url  string
	info *FileInfo

	pos    int64
	body   io.ReadCloser
	closed bool
}

// Open issues a HEAD request for url and returns a reader positioned at
// offset 0. The server must advertise byte ranges and a content length.
func (c *Client) Open(ctx context.Context, url string) (*RangeReader, error) {
	info, err := c.Head(ctx, url)
	if err != nil {
		return nil, err
	}
	if !info.AcceptsRanges {
		return nil, ErrRangeNotSupported
	}
	if info.Size < 0 {
		return nil, fmt.Errorf("%w: %s: unknown content length", remote.ErrIO, url)
	}
	return &RangeReader{c: c, ctx: ctx, url: url, info: info}, nil
}

// Size returns the object length.
func (r *RangeReader) Size() int64 { return r.info.Size }

// Metadata describes the object in the form the downloader expects.
func (r *RangeReader) Metadata() remote.Metadata {
	return remote.Metadata{
		Path:        r.url,
		Size:        r.info.Size,
		ModTime:     r.info.LastModified,
		ETag:        r.info.ETag,
		ContentType: r.info.ContentType,
	}
}

// Read reads from the current offset, opening a range request if needed.
func (r *RangeReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, fmt.Errorf("%w: read %s: reader closed", remote.ErrIO, r.url)
	}
	if r.pos >= r.info.Size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if r.body == nil {
		resp, err := r.c.GetRange(r.ctx, r.url, r.pos, r.info.Size-1)
		if err != nil {
			return 0, r.wrap(err)
		}
		r.body = resp.Body
	}

	if rem := r.info.Size - r.pos; int64(len(p)) > rem {
		p = p[:rem]
	}
	n, err := r.body.Read(p)
	r.pos += int64(n)

	switch {
	case err == io.EOF:
		r.drop()
		if r.pos < r.info.Size && n == 0 {
			return 0, fmt.Errorf("%w: %s: body ended at %d of %d bytes: %w",
				remote.ErrIO, r.url, r.pos, r.info.Size, io.ErrUnexpectedEOF)
		}
		return n, nil
	case err != nil:
		r.drop()
		return n, r.wrap(err)
	}
	return n, nil
}

// Seek sets the offset for the next Read. Offsets outside [0, Size] fail
// with remote.ErrIO and leave the offset unchanged.
func (r *RangeReader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, fmt.Errorf("%w: seek %s: reader closed", remote.ErrIO, r.url)
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.pos + offset
	case io.SeekEnd:
		abs = r.info.Size + offset
	default:
		return r.pos, fmt.Errorf("%w: seek %s: invalid whence %d", remote.ErrIO, r.url, whence)
	}
	if abs < 0 || abs > r.info.Size {
		return r.pos, fmt.Errorf("%w: seek %s: offset %d outside [0, %d]", remote.ErrIO, r.url, abs, r.info.Size)
	}

	if abs != r.pos {
		r.drop()
		r.pos = abs
	}
	return abs, nil
}

// Close releases the open response body. It is safe to call more than once.
func (r *RangeReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.body != nil {
		err := r.body.Close()
		r.body = nil
		return err
	}
	return nil
}

func (r *RangeReader) drop() {
	if r.body != nil {
		r.body.Close()
		r.body = nil
	}
}

// wrap tags err as a remote I/O failure unless it already carries a kind.
func (r *RangeReader) wrap(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, remote.ErrIO) || errors.Is(err, remote.ErrNotFound) ||
		errors.Is(err, remote.ErrPermissionDenied) {
		return err
	}
	return fmt.Errorf("%w: %s at %d: %w", remote.ErrIO, r.url, r.pos, err)
}
