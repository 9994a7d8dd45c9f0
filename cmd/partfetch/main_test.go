package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"

	pfhttp "github.com/ligustah/partfetch/internal/http"
	"github.com/ligustah/partfetch/pkg/chunked"
	"github.com/ligustah/partfetch/pkg/remote"
)

type cliEnv struct {
	t        *testing.T
	endpoint string
	local    string
	bucket   *blob.Bucket
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	root := t.TempDir()
	endpoint := "file://" + filepath.ToSlash(root)
	bucket, err := blob.OpenBucket(context.Background(), endpoint)
	require.NoError(t, err)
	t.Cleanup(func() { bucket.Close() })

	return &cliEnv{
		t:        t,
		endpoint: endpoint,
		local:    t.TempDir(),
		bucket:   bucket,
	}
}

// run invokes the CLI against the test bucket and returns the exit code,
// stdout and stderr.
func (e *cliEnv) run(args ...string) (int, string, string) {
	e.t.Helper()
	var out, errOut bytes.Buffer
	argv := append([]string{"partfetch", "--endpoint", e.endpoint}, args...)
	code := run(context.Background(), argv, &out, &errOut)
	return code, out.String(), errOut.String()
}

func (e *cliEnv) path(name string) string {
	return filepath.Join(e.local, name)
}

func (e *cliEnv) putObject(key string, data []byte) {
	e.t.Helper()
	require.NoError(e.t, e.bucket.WriteAll(context.Background(), key, data, nil))
}

func data(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

func TestFetchVerifyJoin(t *testing.T) {
	e := newCLIEnv(t)
	payload := data(2500)
	e.putObject("src/archive.bin", payload)
	base := e.path("archive.bin")

	code, out, errOut := e.run("fetch", "--block-size", "1KiB", "/src/archive.bin", base)
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, out, base+".part1\t1024\t0-1024")
	assert.Contains(t, out, base+".part3\t452\t2048-2500")
	assert.Contains(t, errOut, "Wrote 3 parts")

	for i, want := range [][]byte{payload[:1024], payload[1024:2048], payload[2048:]} {
		got, err := os.ReadFile(chunked.PartName(base, i+1))
		require.NoError(t, err)
		assert.Equal(t, want, got, "part %d", i+1)
	}

	code, out, errOut = e.run("verify", "--block-size", "1KiB", "--size", "2500B", base)
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, out, "Parts: 3")
	assert.Contains(t, out, "VALID")

	code, out, errOut = e.run("verify", "--block-size", "1KiB", "--remote", "/src/archive.bin", base)
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, out, "Expected size: 2500 bytes")

	joined := e.path("joined.bin")
	code, _, errOut = e.run("join", "--block-size", "1KiB", "--size", "2500B", base, joined)
	require.Equal(t, ExitSuccess, code, errOut)
	got, err := os.ReadFile(joined)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, os.Remove(chunked.PartName(base, 2)))
	code, out, _ = e.run("verify", "--block-size", "1KiB", "--size", "2500B", base)
	assert.Equal(t, ExitValidationFailed, code)
	assert.Contains(t, out, "INVALID")
	assert.Contains(t, out, "Missing parts: 1")
}

func TestFetchLegacyBlockCount(t *testing.T) {
	e := newCLIEnv(t)
	e.putObject("exact.bin", data(2048))
	base := e.path("exact")

	code, _, errOut := e.run("fetch", "-b", "1KiB", "--legacy-block-count", "/exact.bin", base)
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, errOut, "Wrote 3 parts")

	info, err := os.Stat(chunked.PartName(base, 3))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestFetchProgress(t *testing.T) {
	e := newCLIEnv(t)
	e.putObject("p.bin", data(3000))

	code, _, errOut := e.run("fetch", "-b", "1KiB", "--progress", "/p.bin", e.path("p"))
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, errOut, "Downloading: /p.bin")
	assert.Contains(t, errOut, "Complete!")
}

func TestFetchErrors(t *testing.T) {
	e := newCLIEnv(t)
	code, _, errOut := e.run("mkdir", "/dir")
	require.Equal(t, ExitSuccess, code, errOut)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"missing object", []string{"fetch", "/nope.bin", e.path("nope")}, ExitNotFound},
		{"directory", []string{"fetch", "/dir", e.path("dir")}, ExitGeneralError},
		{"missing args", []string{"fetch", "/only-one"}, ExitInvalidArgs},
		{"bad block size", []string{"fetch", "-b", "lots", "/x", e.path("x")}, ExitInvalidArgs},
		{"zero block size", []string{"fetch", "-b", "0B", "/x", e.path("x")}, ExitInvalidArgs},
		{"unknown flag", []string{"fetch", "--bogus", "/x", e.path("x")}, ExitInvalidArgs},
		{"verify without size", []string{"verify", e.path("x")}, ExitInvalidArgs},
		{"verify with both sources", []string{"verify", "--size", "1KiB", "--remote", "/x", e.path("x")}, ExitInvalidArgs},
		{"verify negative size", []string{"verify", "--size=-1", e.path("x")}, ExitInvalidArgs},
		{"join negative size", []string{"join", "--size=-1KiB", e.path("x"), e.path("joined")}, ExitInvalidArgs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := e.run(tt.args...)
			assert.Equal(t, tt.want, code, errOut)
			assert.Contains(t, errOut, "Error:")
		})
	}
}

func TestMissingEndpoint(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"partfetch", "stat", "/x"}, &out, &errOut)
	assert.Equal(t, ExitInvalidArgs, code)
	assert.Contains(t, errOut.String(), "endpoint")
}

func TestGetPut(t *testing.T) {
	e := newCLIEnv(t)
	src := e.path("in.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello partfetch"), 0o644))

	code, _, errOut := e.run("put", src, "/docs/in.txt")
	require.Equal(t, ExitSuccess, code, errOut)

	code, _, _ = e.run("put", src, "/docs/in.txt")
	assert.Equal(t, ExitStorageError, code)

	code, _, errOut = e.run("put", "-f", src, "/docs/in.txt")
	require.Equal(t, ExitSuccess, code, errOut)

	dst := e.path("nested/out.txt")
	code, _, errOut = e.run("get", "/docs/in.txt", dst)
	require.Equal(t, ExitSuccess, code, errOut)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello partfetch", string(got))

	code, _, _ = e.run("get", "/docs/missing.txt", dst)
	assert.Equal(t, ExitNotFound, code)

	code, _, _ = e.run("put", e.path("absent.txt"), "/docs/absent.txt")
	assert.Equal(t, ExitGeneralError, code)
}

func TestUploadDownload(t *testing.T) {
	e := newCLIEnv(t)
	src := e.path("page.html")
	require.NoError(t, os.WriteFile(src, []byte("<html><body>hi</body></html>"), 0o644))

	code, _, errOut := e.run("upload", src, "/site/page.html")
	require.Equal(t, ExitSuccess, code, errOut)

	code, out, errOut := e.run("stat", "/site/page.html")
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, out, "Path: /site/page.html")
	assert.Contains(t, out, "Directory: false")
	assert.Contains(t, out, "text/html")

	dst := e.path("copy.html")
	code, _, errOut = e.run("download", "--delete-source", "/site/page.html", dst)
	require.Equal(t, ExitSuccess, code, errOut)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "<html><body>hi</body></html>", string(got))

	code, _, _ = e.run("stat", "/site/page.html")
	assert.Equal(t, ExitNotFound, code)
}

func TestDirectoryCommands(t *testing.T) {
	e := newCLIEnv(t)
	e.putObject("logs/a.log", []byte("aaa"))
	e.putObject("logs/2024/b.log", []byte("bb"))

	code, _, errOut := e.run("mkdir", "/empty", "/other")
	require.Equal(t, ExitSuccess, code, errOut)

	code, out, errOut := e.run("ls", "/")
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, out, "/logs")
	assert.Contains(t, out, "/empty")
	assert.NotContains(t, out, ".dir")

	code, out, errOut = e.run("ls", "-r", "/logs")
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, out, "/logs/a.log")
	assert.Contains(t, out, "/logs/2024/b.log")

	code, out, errOut = e.run("stat", "/logs")
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, out, "Directory: true")

	code, _, _ = e.run("rm", "/logs")
	assert.Equal(t, ExitStorageError, code)

	code, _, errOut = e.run("mv", "/logs", "/archive")
	require.Equal(t, ExitSuccess, code, errOut)
	code, out, _ = e.run("ls", "-r", "/archive")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "/archive/2024/b.log")

	code, _, errOut = e.run("rm", "-r", "/archive")
	require.Equal(t, ExitSuccess, code, errOut)
	code, _, errOut = e.run("rm", "/empty")
	require.Equal(t, ExitSuccess, code, errOut)

	code, _, _ = e.run("rm", "/archive")
	assert.Equal(t, ExitNotFound, code)

	code, _, _ = e.run("mv", "/missing", "/elsewhere")
	assert.Equal(t, ExitNotFound, code)

	code, _, _ = e.run("mkdir")
	assert.Equal(t, ExitInvalidArgs, code)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", usagef("bad"), ExitInvalidArgs},
		{"validation", fmt.Errorf("verify: %w", ErrValidationFailed), ExitValidationFailed},
		{"local write", &chunked.BlockError{Index: 1, Kind: chunked.ErrLocalWrite, Err: errors.New("disk full")}, ExitLocalWriteError},
		{"not found", &remote.Error{Op: "stat", Path: "/x", Kind: remote.ErrNotFound}, ExitNotFound},
		{"http not found", pfhttp.ErrNotFound, ExitNotFound},
		{"permission", &remote.Error{Op: "open", Path: "/x", Kind: remote.ErrPermissionDenied}, ExitPermissionDenied},
		{"http forbidden", pfhttp.ErrForbidden, ExitPermissionDenied},
		{"io", &remote.Error{Op: "read", Path: "/x", Kind: remote.ErrIO}, ExitStorageError},
		{"exists", &remote.Error{Op: "create", Path: "/x", Kind: remote.ErrExist}, ExitStorageError},
		{"no ranges", pfhttp.ErrRangeNotSupported, ExitStorageError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
