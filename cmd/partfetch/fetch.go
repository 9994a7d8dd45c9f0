package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	pfhttp "github.com/ligustah/partfetch/internal/http"
	"github.com/ligustah/partfetch/internal/progress"
	"github.com/ligustah/partfetch/internal/transfer"
	"github.com/ligustah/partfetch/pkg/chunked"
)

// blockFlags configure how an object is split into parts.
func blockFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "block-size",
			Aliases: []string{"b"},
			Usage:   "part size, e.g. 128MiB",
		},
		&cli.StringFlag{
			Name:  "buffer-size",
			Usage: "read buffer for full blocks, e.g. 1MiB",
		},
		&cli.BoolFlag{
			Name:  "legacy-block-count",
			Usage: "use floor(size/block)+1 parts, adding an empty last part for exact multiples",
		},
	}
}

// blockOptions merges the block flags of c over the configuration.
func (e *env) blockOptions(c *cli.Context) (transfer.Options, error) {
	opts := transfer.Options{
		BlockSize:        e.cfg.BlockSize,
		BufferSize:       int(e.cfg.BufferSize),
		LegacyBlockCount: e.cfg.LegacyBlockCount || c.Bool("legacy-block-count"),
		Progress:         e.cfg.Progress || c.Bool("progress"),
		ProgressOutput:   e.errOut,
		Logger:           e.logger,
	}
	if v := c.String("block-size"); v != "" {
		n, err := progress.ParseBytes(v)
		if err != nil || n <= 0 {
			return opts, usagef(fmt.Sprintf("invalid --block-size %q", v))
		}
		opts.BlockSize = n
	}
	if v := c.String("buffer-size"); v != "" {
		n, err := progress.ParseBytes(v)
		if err != nil || n <= 0 {
			return opts, usagef(fmt.Sprintf("invalid --buffer-size %q", v))
		}
		opts.BufferSize = int(n)
	}
	return opts, nil
}

func progressFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "progress",
		Aliases: []string{"p"},
		Usage:   "show progress",
	}
}

func (e *env) fetchCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "fetch",
			Usage:     "download a bucket object into part files",
			ArgsUsage: "<remote-path> <local-base>",
			Flags:     append(blockFlags(), progressFlag()),
			Action:    e.fetch,
		},
		{
			Name:      "fetch-url",
			Usage:     "download an HTTP object into part files",
			ArgsUsage: "<url> <local-base>",
			Flags:     append(blockFlags(), progressFlag()),
			Action:    e.fetchURL,
		},
		{
			Name:      "verify",
			Usage:     "check that part files match an object's plan",
			ArgsUsage: "<local-base>",
			Flags:     append(blockFlags(), planSourceFlags()...),
			Action:    e.verify,
		},
		{
			Name:      "join",
			Usage:     "concatenate part files into one file",
			ArgsUsage: "<local-base> <output>",
			Flags:     append(blockFlags(), planSourceFlags()...),
			Action:    e.join,
		},
	}
}

func (e *env) fetch(c *cli.Context) error {
	if c.NArg() != 2 {
		return usagef("fetch requires <remote-path> <local-base>")
	}
	opts, err := e.blockOptions(c)
	if err != nil {
		return err
	}
	base, err := e.localPath(c.Args().Get(1))
	if err != nil {
		return err
	}

	client, err := e.openClient(c)
	if err != nil {
		return err
	}
	defer client.Close()

	res, err := transfer.Fetch(c.Context, client, c.Args().Get(0), e.local, base, opts)
	if err != nil {
		return err
	}
	e.printParts(res)
	return nil
}

func (e *env) fetchURL(c *cli.Context) error {
	if c.NArg() != 2 {
		return usagef("fetch-url requires <url> <local-base>")
	}
	opts, err := e.blockOptions(c)
	if err != nil {
		return err
	}
	base, err := e.localPath(c.Args().Get(1))
	if err != nil {
		return err
	}

	httpOpts := pfhttp.DefaultOptions()
	httpOpts.RetryAttempts = e.cfg.Retry.Attempts
	httpOpts.RetryBackoff = e.cfg.Retry.Backoff
	httpOpts.RetryMaxBackoff = e.cfg.Retry.MaxBackoff
	httpOpts.Logger = e.logger

	res, err := transfer.FetchURL(c.Context, pfhttp.NewClient(httpOpts), c.Args().Get(0), e.local, base, opts)
	if err != nil {
		return err
	}
	e.printParts(res)
	return nil
}

func (e *env) printParts(res *chunked.Result) {
	for _, p := range res.Parts {
		fmt.Fprintf(e.out, "%s\t%d\t%d-%d\n", p.Path, p.Size, p.Start, p.End)
	}
	e.statusf("Wrote %d parts, %s", len(res.Parts), progress.FormatBytes(res.Bytes()))
}

// planSourceFlags say where verify and join learn the object length.
func planSourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "size",
			Usage: "object length, e.g. 300MiB",
		},
		&cli.StringFlag{
			Name:  "remote",
			Usage: "bucket object whose length defines the plan",
		},
	}
}

func (e *env) plan(c *cli.Context) (chunked.Plan, error) {
	opts, err := e.blockOptions(c)
	if err != nil {
		return chunked.Plan{}, err
	}

	var length int64
	switch size, src := c.String("size"), c.String("remote"); {
	case size != "" && src != "":
		return chunked.Plan{}, usagef("--size and --remote are mutually exclusive")
	case size != "":
		if length, err = progress.ParseBytes(size); err != nil {
			return chunked.Plan{}, usagef(err.Error())
		}
	case src != "":
		client, err := e.openClient(c)
		if err != nil {
			return chunked.Plan{}, err
		}
		defer client.Close()
		meta, err := client.Stat(c.Context, src)
		if err != nil {
			return chunked.Plan{}, err
		}
		length = meta.Size
	default:
		return chunked.Plan{}, usagef("one of --size or --remote is required")
	}

	plan, err := chunked.NewPlan(length, opts.BlockSize, opts.LegacyBlockCount)
	if err != nil {
		return chunked.Plan{}, usagef(err.Error())
	}
	return plan, nil
}

func (e *env) verify(c *cli.Context) error {
	if c.NArg() != 1 {
		return usagef("verify requires <local-base>")
	}
	plan, err := e.plan(c)
	if err != nil {
		return err
	}
	base, err := e.localPath(c.Args().First())
	if err != nil {
		return err
	}

	result, err := chunked.Verify(e.local, plan, chunked.PartNames(base))
	if err != nil {
		return err
	}

	fmt.Fprintf(e.out, "Base: %s\n", base)
	fmt.Fprintf(e.out, "Expected size: %d bytes\n", plan.Length)
	fmt.Fprintf(e.out, "Size on disk: %d bytes\n", result.TotalSize)
	fmt.Fprintf(e.out, "Parts: %d\n", result.PartCount)

	if result.Valid {
		fmt.Fprintf(e.out, "Status: %s\n", okColor("VALID"))
		return nil
	}

	fmt.Fprintf(e.out, "Status: %s\n", errTag("INVALID"))
	fmt.Fprintf(e.out, "Missing parts: %d\n", result.MissingParts)
	fmt.Fprintf(e.out, "Size mismatches: %d\n", result.SizeMismatches)
	if len(result.Errors) > 0 {
		fmt.Fprintln(e.out, "\nErrors:")
		for _, msg := range result.Errors {
			fmt.Fprintf(e.out, "  - %s\n", msg)
		}
	}
	return ErrValidationFailed
}

func (e *env) join(c *cli.Context) error {
	if c.NArg() != 2 {
		return usagef("join requires <local-base> <output>")
	}
	plan, err := e.plan(c)
	if err != nil {
		return err
	}
	base, err := e.localPath(c.Args().Get(0))
	if err != nil {
		return err
	}
	dst, err := e.localPath(c.Args().Get(1))
	if err != nil {
		return err
	}

	n, err := chunked.Join(e.local, plan, chunked.PartNames(base), dst)
	if err != nil {
		return err
	}
	e.statusf("Joined %d parts into %s (%s)", plan.Count, dst, progress.FormatBytes(n))
	return nil
}
