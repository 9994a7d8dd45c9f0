package remote

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"gocloud.dev/blob"
)

var errHandleClosed = errors.New("handle is closed")

// Handle is an open remote object. It reads sequentially from its cursor
// and supports absolute repositioning within [0, Size].
//
// A Handle is not safe for concurrent use.
type Handle struct {
	path string
	size int64

	r      *blob.Reader
	pos    int64
	once   sync.Once
	closed bool
	cerr   error
}

// Path returns the object path the handle was opened for.
func (h *Handle) Path() string {
	return h.path
}

// Size returns the object size observed when the handle was opened.
func (h *Handle) Size() int64 {
	return h.size
}

// Offset returns the current cursor position.
func (h *Handle) Offset() int64 {
	return h.pos
}

// Read reads up to len(p) bytes from the cursor. It returns 0, io.EOF once
// the cursor reaches Size.
func (h *Handle) Read(p []byte) (int, error) {
	if h.closed {
		return 0, &Error{Op: "read", Path: h.path, Kind: ErrIO, Err: errHandleClosed}
	}
	if h.pos >= h.size {
		return 0, io.EOF
	}
	if remaining := h.size - h.pos; int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := h.r.Read(p)
	h.pos += int64(n)
	if err == io.EOF {
		if h.pos < h.size {
			return n, &Error{Op: "read", Path: h.path, Kind: ErrIO, Err: io.ErrUnexpectedEOF}
		}
		return n, io.EOF
	}
	if err != nil {
		return n, translate("read", h.path, err)
	}
	return n, nil
}

// Seek moves the cursor. Offsets outside [0, Size] fail with ErrIO.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	if h.closed {
		return h.pos, &Error{Op: "seek", Path: h.path, Kind: ErrIO, Err: errHandleClosed}
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = h.pos + offset
	case io.SeekEnd:
		abs = h.size + offset
	default:
		return h.pos, &Error{Op: "seek", Path: h.path, Kind: ErrIO, Err: fmt.Errorf("invalid whence %d", whence)}
	}
	if abs < 0 || abs > h.size {
		return h.pos, &Error{
			Op:   "seek",
			Path: h.path,
			Kind: ErrIO,
			Err:  fmt.Errorf("offset %d outside [0, %d]", abs, h.size),
		}
	}

	if _, err := h.r.Seek(abs, io.SeekStart); err != nil {
		return h.pos, translate("seek", h.path, err)
	}
	h.pos = abs
	return abs, nil
}

// Close releases the underlying reader. Subsequent calls return the result
// of the first.
func (h *Handle) Close() error {
	h.once.Do(func() {
		h.closed = true
		if err := h.r.Close(); err != nil {
			h.cerr = translate("close", h.path, err)
		}
	})
	return h.cerr
}
