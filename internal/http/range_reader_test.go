package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/partfetch/pkg/remote"
)

func rangeServer(t *testing.T, data []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var gets atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		http.ServeContent(w, r, "object.bin", time.Unix(1700000000, 0), bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server, &gets
}

func payload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestRangeReaderReadAll(t *testing.T) {
	data := payload(10000)
	server, gets := rangeServer(t, data)

	r, err := NewClient(DefaultOptions()).Open(context.Background(), server.URL)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, int64(10000), r.Size())
	assert.Equal(t, int32(0), gets.Load(), "no body requested before the first read")

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int32(1), gets.Load())

	meta := r.Metadata()
	assert.Equal(t, server.URL, meta.Path)
	assert.Equal(t, int64(10000), meta.Size)
	assert.False(t, meta.ModTime.IsZero())
}

func TestRangeReaderSeek(t *testing.T) {
	data := payload(10000)
	server, gets := rangeServer(t, data)

	r, err := NewClient(DefaultOptions()).Open(context.Background(), server.URL)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 100)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, data[:100], buf)

	// Seeking to the current offset keeps the open body.
	pos, err := r.Seek(100, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, data[100:200], buf)
	assert.Equal(t, int32(1), gets.Load())

	pos, err = r.Seek(5000, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), pos)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, data[5000:5100], buf)
	assert.Equal(t, int32(2), gets.Load())

	pos, err = r.Seek(-10, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(9990), pos)
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data[9990:], rest)

	// Seeking to the end is allowed and reads nothing.
	_, err = r.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	n, err := r.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestRangeReaderSeekOutOfBounds(t *testing.T) {
	server, _ := rangeServer(t, payload(100))

	r, err := NewClient(DefaultOptions()).Open(context.Background(), server.URL)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Seek(101, io.SeekStart)
	assert.ErrorIs(t, err, remote.ErrIO)
	_, err = r.Seek(-1, io.SeekStart)
	assert.ErrorIs(t, err, remote.ErrIO)

	pos, err := r.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos, "failed seeks leave the offset unchanged")
}

func TestRangeReaderClosed(t *testing.T) {
	server, _ := rangeServer(t, payload(100))

	r, err := NewClient(DefaultOptions()).Open(context.Background(), server.URL)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, remote.ErrIO)
}

func TestOpenWithoutRanges(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
	}))
	defer server.Close()

	_, err := NewClient(DefaultOptions()).Open(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrRangeNotSupported)
}

func TestOpenNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := NewClient(DefaultOptions()).Open(context.Background(), server.URL)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}
