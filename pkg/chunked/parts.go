package chunked

import (
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
)

// VerifyResult contains the results of checking part files against a plan.
type VerifyResult struct {
	Valid          bool     // true if all parts exist and sizes match
	TotalSize      int64    // sum of the sizes found on disk
	PartCount      int      // number of parts in the plan
	MissingParts   int      // number of parts that don't exist
	SizeMismatches int      // number of parts with wrong size
	Errors         []string // detailed error messages
}

// Verify checks that every part in plan exists in fsys with the size of its
// block. Missing parts and size mismatches are reported in the result, not
// as errors; an error is returned only if a part cannot be stat'ed for
// another reason.
func Verify(fsys billy.Filesystem, plan Plan, name NameFunc) (*VerifyResult, error) {
	result := &VerifyResult{
		Valid:     true,
		PartCount: plan.Count,
		Errors:    make([]string, 0),
	}

	for _, b := range plan.Blocks() {
		p := name(b.Index)
		info, err := fsys.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				result.Valid = false
				result.MissingParts++
				result.Errors = append(result.Errors,
					fmt.Sprintf("part %d missing: %s", b.Index, p))
				continue
			}
			return nil, fmt.Errorf("chunked: stat part %d: %w", b.Index, err)
		}

		result.TotalSize += info.Size()
		if info.Size() != b.Length() {
			result.Valid = false
			result.SizeMismatches++
			result.Errors = append(result.Errors,
				fmt.Sprintf("part %d size mismatch: expected %d, got %d",
					b.Index, b.Length(), info.Size()))
		}
	}

	return result, nil
}

// PartReader streams the part files of a plan in index order.
type PartReader struct {
	fs   billy.Filesystem
	plan Plan
	name NameFunc

	next    int
	current billy.File
	closed  bool
}

// OpenParts returns a reader over all parts of plan. Parts are opened
// lazily, one at a time. The caller must Close the reader.
func OpenParts(fsys billy.Filesystem, plan Plan, name NameFunc) *PartReader {
	return &PartReader{
		fs:   fsys,
		plan: plan,
		name: name,
		next: 1,
	}
}

// Read reads data from the current part, moving to the next one at EOF.
func (r *PartReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, io.ErrClosedPipe
	}

	for {
		if r.current == nil {
			if r.next > r.plan.Count {
				return 0, io.EOF
			}
			f, err := r.fs.Open(r.name(r.next))
			if err != nil {
				return 0, fmt.Errorf("chunked: open part %d: %w", r.next, err)
			}
			r.current = f
			r.next++
		}

		n, err := r.current.Read(p)
		if err == io.EOF {
			cerr := r.current.Close()
			r.current = nil
			if cerr != nil {
				return n, fmt.Errorf("chunked: close part %d: %w", r.next-1, cerr)
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Close closes the part currently open, if any.
func (r *PartReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.current != nil {
		err := r.current.Close()
		r.current = nil
		return err
	}
	return nil
}

// Join concatenates the parts of plan into dst, which is created or
// truncated. It returns the number of bytes written.
func Join(fsys billy.Filesystem, plan Plan, name NameFunc, dst string) (n int64, err error) {
	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %v", ErrLocalWrite, dst, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close %s: %v", ErrLocalWrite, dst, cerr)
		}
	}()

	r := OpenParts(fsys, plan, name)
	defer r.Close()

	n, err = io.Copy(out, r)
	if err != nil {
		return n, fmt.Errorf("chunked: join: %w", err)
	}
	if n != plan.Length {
		return n, fmt.Errorf("%w: joined %d bytes, want %d", ErrShortBlock, n, plan.Length)
	}
	return n, nil
}
