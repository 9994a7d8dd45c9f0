package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ligustah/partfetch/internal/progress"
	"github.com/ligustah/partfetch/internal/transfer"
	"github.com/ligustah/partfetch/pkg/remote"
)

// commands returns every subcommand with usage errors mapped to
// ExitInvalidArgs.
func (e *env) commands() []*cli.Command {
	all := append(e.fetchCommands(), e.storageCommands()...)
	for _, cmd := range all {
		cmd.OnUsageError = onUsageError
	}
	return all
}

func (e *env) storageCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "get",
			Usage:     "stream a bucket object to a local file",
			ArgsUsage: "<remote-path> <local-path>",
			Action:    e.get,
		},
		{
			Name:      "put",
			Usage:     "stream a local file to a bucket object",
			ArgsUsage: "<local-path> <remote-path>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "overwrite", Aliases: []string{"f"}, Usage: "replace an existing object"},
			},
			Action: e.put,
		},
		{
			Name:      "upload",
			Usage:     "copy a local file to a bucket object, detecting its content type",
			ArgsUsage: "<local-path> <remote-path>",
			Action:    e.upload,
		},
		{
			Name:      "download",
			Usage:     "copy a bucket object to a local file",
			ArgsUsage: "<remote-path> <local-path>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "delete-source", Usage: "remove the object after copying"},
			},
			Action: e.download,
		},
		{
			Name:      "ls",
			Usage:     "list a directory",
			ArgsUsage: "[path]",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "list all objects below path"},
			},
			Action: e.ls,
		},
		{
			Name:      "stat",
			Usage:     "show object metadata",
			ArgsUsage: "<path>",
			Action:    e.stat,
		},
		{
			Name:      "mkdir",
			Usage:     "create directories",
			ArgsUsage: "<path>...",
			Action:    e.mkdir,
		},
		{
			Name:      "rm",
			Usage:     "delete an object or directory",
			ArgsUsage: "<path>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "delete a non-empty directory"},
			},
			Action: e.rm,
		},
		{
			Name:      "mv",
			Usage:     "rename an object or directory",
			ArgsUsage: "<src> <dst>",
			Action:    e.mv,
		},
	}
}

// withClient checks the argument count, opens a client, and runs fn.
// A negative most allows any number of arguments.
func (e *env) withClient(c *cli.Context, least, most int, usage string, fn func(*remote.Client) error) error {
	if c.NArg() < least || (most >= 0 && c.NArg() > most) {
		return usagef(fmt.Sprintf("%s requires %s", c.Command.Name, usage))
	}
	client, err := e.openClient(c)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func (e *env) get(c *cli.Context) error {
	return e.withClient(c, 2, 2, "<remote-path> <local-path>", func(client *remote.Client) error {
		dst, err := e.localPath(c.Args().Get(1))
		if err != nil {
			return err
		}
		n, err := transfer.Get(c.Context, client, c.Args().Get(0), e.local, dst)
		if err != nil {
			return err
		}
		e.statusf("Copied %s to %s", progress.FormatBytes(n), dst)
		return nil
	})
}

func (e *env) put(c *cli.Context) error {
	return e.withClient(c, 2, 2, "<local-path> <remote-path>", func(client *remote.Client) error {
		src, err := e.localPath(c.Args().Get(0))
		if err != nil {
			return err
		}
		n, err := transfer.Put(c.Context, client, e.local, src, c.Args().Get(1), c.Bool("overwrite"))
		if err != nil {
			return err
		}
		e.statusf("Copied %s to %s", progress.FormatBytes(n), c.Args().Get(1))
		return nil
	})
}

func (e *env) upload(c *cli.Context) error {
	return e.withClient(c, 2, 2, "<local-path> <remote-path>", func(client *remote.Client) error {
		src, err := e.localPath(c.Args().Get(0))
		if err != nil {
			return err
		}
		if err := client.Upload(c.Context, src, c.Args().Get(1)); err != nil {
			return err
		}
		e.statusf("Uploaded %s to %s", src, c.Args().Get(1))
		return nil
	})
}

func (e *env) download(c *cli.Context) error {
	return e.withClient(c, 2, 2, "<remote-path> <local-path>", func(client *remote.Client) error {
		dst, err := e.localPath(c.Args().Get(1))
		if err != nil {
			return err
		}
		if err := client.Download(c.Context, c.Args().Get(0), dst, c.Bool("delete-source")); err != nil {
			return err
		}
		e.statusf("Downloaded %s to %s", c.Args().Get(0), dst)
		return nil
	})
}

func (e *env) ls(c *cli.Context) error {
	return e.withClient(c, 0, 1, "[path]", func(client *remote.Client) error {
		p := c.Args().First()
		if p == "" {
			p = "/"
		}

		tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
		it := client.List(p, c.Bool("recursive"))
		for {
			entry, err := it.Next(c.Context)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			kind := "-"
			if entry.IsDir {
				kind = "d"
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", kind, entry.Size, formatTime(entry.ModTime), entry.Path)
		}
		return tw.Flush()
	})
}

func (e *env) stat(c *cli.Context) error {
	return e.withClient(c, 1, 1, "<path>", func(client *remote.Client) error {
		meta, err := client.Stat(c.Context, c.Args().First())
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "Path: %s\n", meta.Path)
		fmt.Fprintf(e.out, "Directory: %v\n", meta.IsDir)
		if !meta.IsDir {
			fmt.Fprintf(e.out, "Size: %d bytes (%s)\n", meta.Size, progress.FormatBytes(meta.Size))
			fmt.Fprintf(e.out, "Content-Type: %s\n", meta.ContentType)
			fmt.Fprintf(e.out, "ETag: %s\n", meta.ETag)
		}
		fmt.Fprintf(e.out, "Modified: %s\n", formatTime(meta.ModTime))
		return nil
	})
}

func (e *env) mkdir(c *cli.Context) error {
	return e.withClient(c, 1, -1, "<path>...", func(client *remote.Client) error {
		for _, p := range c.Args().Slice() {
			if err := client.Mkdir(c.Context, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *env) rm(c *cli.Context) error {
	return e.withClient(c, 1, 1, "<path>", func(client *remote.Client) error {
		return client.Delete(c.Context, c.Args().First(), c.Bool("recursive"))
	})
}

func (e *env) mv(c *cli.Context) error {
	return e.withClient(c, 2, 2, "<src> <dst>", func(client *remote.Client) error {
		return client.Rename(c.Context, c.Args().Get(0), c.Args().Get(1))
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
