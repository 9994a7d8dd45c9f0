package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/urfave/cli/v2"

	"github.com/ligustah/partfetch/internal/config"
	"github.com/ligustah/partfetch/pkg/remote"
)

var (
	tag     = color.New(color.FgCyan).SprintFunc()
	errTag  = color.New(color.FgRed, color.Bold).SprintFunc()
	okColor = color.New(color.FgGreen).SprintFunc()
)

// env carries everything a command needs; it is built once per run.
type env struct {
	out    io.Writer
	errOut io.Writer

	cfg    config.Config
	logger *slog.Logger
	local  billy.Filesystem
}

func newEnv(stdout, stderr io.Writer) *env {
	return &env{
		out:    stdout,
		errOut: stderr,
		cfg:    config.Default(),
		logger: slog.New(slog.DiscardHandler),
		local:  osfs.New("/"),
	}
}

// setup loads configuration: file (or defaults), then environment, then
// global flags.
func (e *env) setup(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return usagef(err.Error())
		}
		cfg = loaded
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return usagef(err.Error())
	}
	cfg = cfg.Merge(config.Config{
		Endpoint:  c.String("endpoint"),
		Principal: c.String("principal"),
		Debug:     c.Bool("debug"),
	})
	e.cfg = cfg

	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	e.logger = slog.New(slog.NewTextHandler(e.errOut, &slog.HandlerOptions{Level: level}))
	return nil
}

// openClient connects to the configured endpoint. The caller closes it.
func (e *env) openClient(c *cli.Context) (*remote.Client, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, usagef(err.Error())
	}
	client, err := remote.Open(c.Context, e.cfg.Endpoint,
		remote.WithLocalFS(e.local),
		remote.WithPrincipal(e.cfg.Principal),
		remote.WithReplication(e.cfg.Replication),
		remote.WithLogger(e.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", e.cfg.Endpoint, err)
	}
	return client, nil
}

// localPath resolves p against the working directory; local files are
// accessed through a filesystem rooted at "/".
func (e *env) localPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	return filepath.ToSlash(abs), nil
}

func (e *env) statusf(format string, args ...any) {
	fmt.Fprintf(e.errOut, "%s %s\n", tag("[partfetch]"), fmt.Sprintf(format, args...))
}

func (e *env) errorf(format string, args ...any) {
	fmt.Fprintf(e.errOut, "%s %s\n", errTag("Error:"), fmt.Sprintf(format, args...))
}
