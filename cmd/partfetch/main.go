package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	pfhttp "github.com/ligustah/partfetch/internal/http"
	"github.com/ligustah/partfetch/pkg/chunked"
	"github.com/ligustah/partfetch/pkg/remote"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitNotFound         = 3
	ExitPermissionDenied = 4
	ExitStorageError     = 5
	ExitLocalWriteError  = 6
	ExitValidationFailed = 7
)

// ErrValidationFailed is returned by verify when parts are missing or the
// wrong size.
var ErrValidationFailed = errors.New("parts failed verification")

// usageError marks bad invocations; it maps to ExitInvalidArgs.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(msg string) error { return &usageError{msg: msg} }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	e := newEnv(stdout, stderr)
	err := newApp(e).RunContext(ctx, args)
	if err != nil {
		e.errorf("%v", err)
	}
	return exitCode(err)
}

func newApp(e *env) *cli.App {
	return &cli.App{
		Name:      "partfetch",
		Usage:     "split remote objects into fixed-size local part files",
		Writer:    e.out,
		ErrWriter: e.errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "endpoint",
				Aliases: []string{"e"},
				Usage:   "bucket URL, e.g. s3://archive or file:///srv/data",
			},
			&cli.StringFlag{
				Name:  "principal",
				Usage: "owner recorded on uploaded objects",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before:         e.setup,
		Commands:       e.commands(),
		OnUsageError:   onUsageError,
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func onUsageError(_ *cli.Context, err error, _ bool) error {
	return usagef(err.Error())
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	var uerr *usageError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &uerr):
		return ExitInvalidArgs
	case errors.Is(err, ErrValidationFailed):
		return ExitValidationFailed
	case errors.Is(err, chunked.ErrLocalWrite):
		return ExitLocalWriteError
	case errors.Is(err, remote.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, remote.ErrPermissionDenied):
		return ExitPermissionDenied
	case errors.Is(err, remote.ErrIO),
		errors.Is(err, remote.ErrExist),
		errors.Is(err, remote.ErrNotEmpty),
		errors.Is(err, pfhttp.ErrRangeNotSupported):
		return ExitStorageError
	default:
		return ExitGeneralError
	}
}
