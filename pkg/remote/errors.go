package remote

import (
	"context"
	"errors"
	"fmt"

	"gocloud.dev/gcerrors"
)

// Error kinds. Use errors.Is to test for them.
var (
	ErrNotFound         = errors.New("remote: not found")
	ErrPermissionDenied = errors.New("remote: permission denied")
	ErrIO               = errors.New("remote: i/o failure")
	ErrExist            = errors.New("remote: already exists")
	ErrNotEmpty         = errors.New("remote: directory not empty")
)

// Error records a failed remote operation along with its kind.
//
// errors.Is matches both the kind (ErrNotFound, ErrIO, ...) and the
// underlying driver error.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("remote: %s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("remote: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// translate classifies a driver error. Context errors pass through
// untouched so callers can tell cancellation from a transport fault.
func translate(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Op: op, Path: path, Kind: kindOf(err), Err: err}
}

func kindOf(err error) error {
	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return ErrNotFound
	case gcerrors.PermissionDenied:
		return ErrPermissionDenied
	case gcerrors.AlreadyExists, gcerrors.FailedPrecondition:
		return ErrExist
	default:
		return ErrIO
	}
}

// isNotExist returns true if the error indicates the object doesn't exist.
func isNotExist(err error) bool {
	return errors.Is(err, ErrNotFound) || gcerrors.Code(err) == gcerrors.NotFound
}
