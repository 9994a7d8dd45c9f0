//go:build integration

// Package testutils provides shared infrastructure for integration tests.
package testutils

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob"
)

// TestFile defines a test object with name and data.
type TestFile struct {
	Name string
	Size int64
	Data []byte
}

// GenerateTestData generates test data of the given size.
// Up to 10MiB the data follows a fixed pattern; larger sizes are random.
func GenerateTestData(t *testing.T, size int64) []byte {
	t.Helper()
	data := make([]byte, size)
	if size <= 10*1024*1024 {
		for i := range data {
			data[i] = byte(i % 251)
		}
	} else {
		_, err := rand.Read(data)
		require.NoError(t, err, "generate random data")
	}
	return data
}

// StartTestHTTPServer serves files by name with range support. The server
// is closed when the test ends.
func StartTestHTTPServer(t *testing.T, files []TestFile) *httptest.Server {
	t.Helper()

	byPath := make(map[string][]byte)
	for _, f := range files {
		byPath["/"+f.Name] = f.Data
	}
	modTime := time.Now()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := byPath[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("ETag", fmt.Sprintf(`"%s"`, r.URL.Path))
		http.ServeContent(w, r, r.URL.Path, modTime, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

// MinioEnv contains connection information for a MinIO test environment.
type MinioEnv struct {
	Container testcontainers.Container
	Client    *minio.Client
	Bucket    string
	BucketURL string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Close terminates the MinIO container.
func (e *MinioEnv) Close(ctx context.Context) error {
	if e.Container != nil {
		return e.Container.Terminate(ctx)
	}
	return nil
}

// OpenBucket opens a gocloud bucket on the MinIO environment.
func (e *MinioEnv) OpenBucket(ctx context.Context) (*blob.Bucket, error) {
	return blob.OpenBucket(ctx, e.BucketURL)
}

// PutObject writes data straight through the MinIO API, bypassing the code
// under test.
func (e *MinioEnv) PutObject(ctx context.Context, key string, data []byte) error {
	_, err := e.Client.PutObject(ctx, e.Bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	return err
}

// StartMinioContainer starts MinIO, creates bucketName, and points the AWS
// credential variables at it for the rest of the test.
func StartMinioContainer(t *testing.T, ctx context.Context, bucketName string) *MinioEnv {
	t.Helper()

	const (
		accessKey = "minioadmin"
		secretKey = "minioadmin"
		region    = "us-east-1"
	)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     accessKey,
				"MINIO_ROOT_PASSWORD": secretKey,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000"),
		},
		Started: true,
	})
	require.NoError(t, err, "start minio container")

	host, err := container.Host(ctx)
	require.NoError(t, err, "get container host")
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err, "get container port")
	endpoint := fmt.Sprintf("%s:%s", host, port.Port())

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
		Region: region,
	})
	require.NoError(t, err, "create minio client")
	err = client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: region})
	require.NoError(t, err, "create bucket %s", bucketName)

	bucketURL := fmt.Sprintf("s3://%s?endpoint=http://%s&use_path_style=true&disable_https=true&region=%s",
		bucketName, endpoint, region)

	// gocloud's s3blob reads credentials from the environment.
	t.Setenv("AWS_ACCESS_KEY_ID", accessKey)
	t.Setenv("AWS_SECRET_ACCESS_KEY", secretKey)

	return &MinioEnv{
		Container: container,
		Client:    client,
		Bucket:    bucketName,
		BucketURL: bucketURL,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
	}
}

// CompareReaderToData compares reader output with expected data one MiB at
// a time.
func CompareReaderToData(t *testing.T, reader io.Reader, expected []byte) {
	t.Helper()

	buf := make([]byte, 1024*1024)
	offset := 0

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			require.LessOrEqual(t, offset+n, len(expected), "read past the expected data at offset %d", offset)
			require.True(t, bytes.Equal(buf[:n], expected[offset:offset+n]), "data mismatch at offset %d", offset)
			offset += n
		}
		if err == io.EOF {
			break
		}
		require.NoError(t, err, "read at offset %d", offset)
	}

	require.Equal(t, len(expected), offset, "incomplete read")
}
