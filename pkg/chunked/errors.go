package chunked

import (
	"errors"
	"fmt"

	"github.com/ligustah/partfetch/pkg/remote"
)

var (
	// ErrLocalWrite marks a failure creating, writing, or closing a part file.
	ErrLocalWrite = errors.New("chunked: local write failure")

	// ErrInvalidPlan is returned for a non-positive block size or negative length.
	ErrInvalidPlan = errors.New("chunked: invalid plan")

	// ErrDownloaderUsed is returned when Download is called more than once.
	ErrDownloaderUsed = errors.New("chunked: downloader already used")

	// ErrShortBlock is returned when the remote stream ends before a block
	// is complete, or carries more data than the plan expects.
	ErrShortBlock = errors.New("chunked: block size mismatch")
)

// BlockError reports the block whose download failed.
//
// Kind is remote.ErrIO for read and seek faults, ErrLocalWrite for part
// file faults, or a context error. errors.Is matches both Kind and Err.
type BlockError struct {
	Index int
	Start int64
	End   int64
	Path  string
	Kind  error
	Err   error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("chunked: block %d [%d, %d) -> %s: %v", e.Index, e.Start, e.End, e.Path, e.Err)
}

func (e *BlockError) Unwrap() []error {
	if e.Kind == nil || e.Kind == e.Err {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

func newBlockError(b Block, path string, kind, err error) *BlockError {
	return &BlockError{
		Index: b.Index,
		Start: b.Start,
		End:   b.End,
		Path:  path,
		Kind:  kind,
		Err:   err,
	}
}

// remoteKind returns remote.ErrIO unless err already carries a remote kind
// or is a context error.
func remoteKind(err error) error {
	for _, kind := range []error{remote.ErrNotFound, remote.ErrPermissionDenied, remote.ErrIO} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	if isContextErr(err) {
		return err
	}
	return remote.ErrIO
}
