//go:build integration

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ligustah/partfetch/internal/testutils"
	"github.com/ligustah/partfetch/pkg/chunked"
)

func TestCLIIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	testFile := testutils.TestFile{
		Name: "test-file.bin",
		Size: 3*1024*1024 + 17,
	}
	testFile.Data = testutils.GenerateTestData(t, testFile.Size)

	t.Log("Starting HTTP test server...")
	server := testutils.StartTestHTTPServer(t, []testutils.TestFile{testFile})

	t.Log("Starting Minio container...")
	minio := testutils.StartMinioContainer(t, ctx, "cli-test-bucket")
	defer func() {
		require.NoError(t, minio.Close(ctx), "terminate minio container")
	}()

	dir := t.TempDir()
	cli := func(args ...string) int {
		var out, errOut bytes.Buffer
		argv := append([]string{"partfetch", "--endpoint", minio.BucketURL}, args...)
		code := run(ctx, argv, &out, &errOut)
		if code != ExitSuccess {
			t.Logf("stdout:\n%s\nstderr:\n%s", out.String(), errOut.String())
		}
		return code
	}

	src := filepath.Join(dir, "source.bin")
	require.NoError(t, os.WriteFile(src, testFile.Data, 0o644))

	t.Run("put", func(t *testing.T) {
		require.Equal(t, ExitSuccess, cli("put", src, "/data/test-file.bin"), "put")
	})

	t.Run("fetch", func(t *testing.T) {
		base := filepath.Join(dir, "fetched")
		require.Equal(t, ExitSuccess, cli("fetch", "-b", "1MiB", "/data/test-file.bin", base), "fetch")
		require.Equal(t, ExitSuccess, cli("verify", "-b", "1MiB", "--remote", "/data/test-file.bin", base), "verify")

		joined := filepath.Join(dir, "joined.bin")
		require.Equal(t, ExitSuccess, cli("join", "-b", "1MiB", "--remote", "/data/test-file.bin", base, joined), "join")
		f, err := os.Open(joined)
		require.NoError(t, err)
		defer f.Close()
		testutils.CompareReaderToData(t, f, testFile.Data)
	})

	t.Run("fetch_url", func(t *testing.T) {
		base := filepath.Join(dir, "from-http")
		require.Equal(t, ExitSuccess, cli("fetch-url", "-b", "1MiB", server.URL+"/"+testFile.Name, base), "fetch-url")
		for i := 1; i <= 4; i++ {
			_, err := os.Stat(chunked.PartName(base, i))
			require.NoError(t, err, "part %d", i)
		}
	})

	t.Run("mv_and_rm", func(t *testing.T) {
		require.Equal(t, ExitSuccess, cli("mv", "/data", "/archive"), "mv")
		require.Equal(t, ExitSuccess, cli("stat", "/archive/test-file.bin"), "stat after mv")
		require.Equal(t, ExitSuccess, cli("rm", "-r", "/archive"), "rm")
		require.Equal(t, ExitNotFound, cli("stat", "/archive/test-file.bin"), "stat after rm")
	})
}
