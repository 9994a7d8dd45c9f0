package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

const (
	dirContentType = "application/x-directory"

	// dirMarker is the object that materializes an empty directory.
	dirMarker = ".dir"
)

// Metadata is a snapshot of a remote object's attributes.
type Metadata struct {
	Path        string
	Size        int64
	ModTime     time.Time
	ETag        string
	ContentType string
	IsDir       bool
}

// Options configures a Client.
type Options struct {
	// LocalFS is the local side of Upload and Download.
	// Default: the OS filesystem rooted at "/".
	LocalFS billy.Filesystem

	// Principal is recorded as "principal" metadata on objects this client writes.
	Principal string

	// Replication is recorded as "replication" metadata when positive.
	Replication int

	// Logger receives debug records for each operation.
	Logger *slog.Logger
}

// Option is a functional option for configuring a Client.
type Option func(*Options)

// WithLocalFS sets the local filesystem used by Upload and Download.
func WithLocalFS(fs billy.Filesystem) Option {
	return func(o *Options) {
		o.LocalFS = fs
	}
}

// WithPrincipal sets the identity recorded on written objects.
func WithPrincipal(principal string) Option {
	return func(o *Options) {
		o.Principal = principal
	}
}

// WithReplication sets the replication hint recorded on written objects.
func WithReplication(n int) Option {
	return func(o *Options) {
		o.Replication = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Client performs operations against a blob bucket.
type Client struct {
	bucket *blob.Bucket
	owned  bool
	opts   Options
	log    *slog.Logger
}

// Open opens the bucket at endpoint (mem://, file:///dir, s3://bucket,
// gs://bucket). The returned client owns the bucket; call Close when done.
func Open(ctx context.Context, endpoint string, options ...Option) (*Client, error) {
	bucket, err := blob.OpenBucket(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("remote: open bucket: %w", translate("open", endpoint, err))
	}
	c := NewClient(bucket, options...)
	c.owned = true
	return c, nil
}

// NewClient wraps an already opened bucket. Close does not close it.
func NewClient(bucket *blob.Bucket, options ...Option) *Client {
	var opts Options
	for _, opt := range options {
		opt(&opts)
	}
	if opts.LocalFS == nil {
		opts.LocalFS = osfs.New("/")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		bucket: bucket,
		opts:   opts,
		log:    logger,
	}
}

// Close closes the bucket if the client opened it.
func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.bucket.Close()
}

// Stat returns metadata for path. A path with no object but with a
// directory marker or children reports IsDir.
func (c *Client) Stat(ctx context.Context, p string) (Metadata, error) {
	key := cleanKey(p)
	if key != "" {
		attrs, err := c.bucket.Attributes(ctx, key)
		if err == nil {
			return Metadata{
				Path:        "/" + key,
				Size:        attrs.Size,
				ModTime:     attrs.ModTime,
				ETag:        attrs.ETag,
				ContentType: attrs.ContentType,
			}, nil
		}
		if !isNotExist(err) {
			return Metadata{}, translate("stat", p, err)
		}
	}

	prefix := dirPrefix(key)
	obj, err := c.bucket.List(&blob.ListOptions{Prefix: prefix}).Next(ctx)
	if err == io.EOF {
		if key == "" {
			return Metadata{Path: "/", IsDir: true}, nil
		}
		return Metadata{}, &Error{Op: "stat", Path: p, Kind: ErrNotFound}
	}
	if err != nil {
		return Metadata{}, translate("stat", p, err)
	}

	meta := Metadata{Path: "/" + key, IsDir: true, ContentType: dirContentType}
	if obj.Key == prefix+dirMarker {
		meta.ModTime = obj.ModTime
	}
	return meta, nil
}

// Open opens path for reading. The returned Handle is positioned at 0.
func (c *Client) Open(ctx context.Context, p string) (*Handle, error) {
	meta, err := c.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	if meta.IsDir {
		return nil, &Error{Op: "open", Path: p, Kind: ErrIO, Err: fmt.Errorf("is a directory")}
	}

	key := cleanKey(p)
	r, err := c.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, translate("open", p, err)
	}
	c.log.Debug("opened remote object", "path", meta.Path, "size", meta.Size)

	return &Handle{
		path: meta.Path,
		size: r.Size(),
		r:    r,
	}, nil
}

// Create opens a writer for path. The object is committed on Close.
// If overwrite is false and the object exists, Create fails with ErrExist.
func (c *Client) Create(ctx context.Context, p string, overwrite bool) (io.WriteCloser, error) {
	key := cleanKey(p)
	if key == "" {
		return nil, &Error{Op: "create", Path: p, Kind: ErrIO, Err: fmt.Errorf("empty object key")}
	}
	if !overwrite {
		exists, err := c.bucket.Exists(ctx, key)
		if err != nil {
			return nil, translate("create", p, err)
		}
		if exists {
			return nil, &Error{Op: "create", Path: p, Kind: ErrExist}
		}
	}

	w, err := c.bucket.NewWriter(ctx, key, c.writerOptions(""))
	if err != nil {
		return nil, translate("create", p, err)
	}
	return &writer{w: w, path: p}, nil
}

// Upload copies a local file to remotePath, replacing any existing object.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string) error {
	f, err := c.opts.LocalFS.Open(localPath)
	if err != nil {
		return fmt.Errorf("remote: open local %s: %w", localPath, err)
	}
	defer f.Close()

	// Sniff the content type from the head of the file, then send the
	// head followed by the rest.
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("remote: read local %s: %w", localPath, err)
	}
	head = head[:n]
	contentType := mimetype.Detect(head).String()

	body := io.MultiReader(bytes.NewReader(head), f)
	if err := c.bucket.Upload(ctx, cleanKey(remotePath), body, c.writerOptions(contentType)); err != nil {
		return translate("upload", remotePath, err)
	}
	c.log.Debug("uploaded", "local", localPath, "remote", remotePath, "content_type", contentType)
	return nil
}

// Download copies remotePath to a local file. If deleteSource is set the
// remote object is removed after a successful copy.
func (c *Client) Download(ctx context.Context, remotePath, localPath string, deleteSource bool) (err error) {
	meta, err := c.Stat(ctx, remotePath)
	if err != nil {
		return err
	}
	if meta.IsDir {
		return &Error{Op: "download", Path: remotePath, Kind: ErrIO, Err: fmt.Errorf("is a directory")}
	}

	if dir := path.Dir(localPath); dir != "." && dir != "/" {
		if err := c.opts.LocalFS.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("remote: create local dir %s: %w", dir, err)
		}
	}
	f, err := c.opts.LocalFS.Create(localPath)
	if err != nil {
		return fmt.Errorf("remote: create local %s: %w", localPath, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("remote: close local %s: %w", localPath, cerr)
		}
	}()

	if err := c.bucket.Download(ctx, cleanKey(remotePath), f, nil); err != nil {
		return translate("download", remotePath, err)
	}
	c.log.Debug("downloaded", "remote", remotePath, "local", localPath)

	if deleteSource {
		return c.Delete(ctx, remotePath, false)
	}
	return nil
}

// Mkdir creates a directory marker for path.
func (c *Client) Mkdir(ctx context.Context, p string) error {
	key := cleanKey(p)
	if key == "" {
		return nil
	}
	opts := c.writerOptions(dirContentType)
	if err := c.bucket.WriteAll(ctx, dirPrefix(key)+dirMarker, nil, opts); err != nil {
		return translate("mkdir", p, err)
	}
	c.log.Debug("created directory", "path", "/"+key)
	return nil
}

// Delete removes the object at path. If path names a directory, recursive
// must be set unless the directory is empty.
func (c *Client) Delete(ctx context.Context, p string, recursive bool) error {
	key := cleanKey(p)
	if key != "" {
		// Some drivers back directories with real ones, so only delete
		// the key directly once it is known to be an object.
		exists, err := c.bucket.Exists(ctx, key)
		if err != nil {
			return translate("delete", p, err)
		}
		if exists {
			if err := c.bucket.Delete(ctx, key); err != nil {
				return translate("delete", p, err)
			}
			c.log.Debug("deleted", "path", "/"+key)
			return nil
		}
	}

	prefix := dirPrefix(key)
	keys, err := c.collect(ctx, prefix)
	if err != nil {
		return translate("delete", p, err)
	}
	if len(keys) == 0 {
		return &Error{Op: "delete", Path: p, Kind: ErrNotFound}
	}
	if !recursive {
		for _, k := range keys {
			if k != prefix+dirMarker {
				return &Error{Op: "delete", Path: p, Kind: ErrNotEmpty}
			}
		}
	}

	for _, k := range keys {
		if err := c.bucket.Delete(ctx, k); err != nil && !isNotExist(err) {
			return translate("delete", "/"+k, err)
		}
	}
	c.log.Debug("deleted directory", "path", "/"+key, "objects", len(keys))
	return nil
}

// Rename moves an object or a whole directory from src to dst. It fails
// with ErrExist if dst is an existing object.
func (c *Client) Rename(ctx context.Context, src, dst string) error {
	sk, dk := cleanKey(src), cleanKey(dst)
	if sk == "" || dk == "" {
		return &Error{Op: "rename", Path: src, Kind: ErrIO, Err: fmt.Errorf("cannot rename the root")}
	}

	exists, err := c.bucket.Exists(ctx, dk)
	if err != nil {
		return translate("rename", dst, err)
	}
	if exists {
		return &Error{Op: "rename", Path: dst, Kind: ErrExist}
	}
	// An existing directory at dst is never merged into.
	taken, err := c.collect(ctx, dirPrefix(dk))
	if err != nil {
		return translate("rename", dst, err)
	}
	if len(taken) > 0 {
		return &Error{Op: "rename", Path: dst, Kind: ErrExist}
	}

	exists, err = c.bucket.Exists(ctx, sk)
	if err != nil {
		return translate("rename", src, err)
	}
	if exists {
		return c.move(ctx, sk, dk)
	}

	sp, dp := dirPrefix(sk), dirPrefix(dk)
	keys, err := c.collect(ctx, sp)
	if err != nil {
		return translate("rename", src, err)
	}
	if len(keys) == 0 {
		return &Error{Op: "rename", Path: src, Kind: ErrNotFound}
	}
	for _, k := range keys {
		if err := c.move(ctx, k, dp+strings.TrimPrefix(k, sp)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) move(ctx context.Context, from, to string) error {
	if err := c.bucket.Copy(ctx, to, from, nil); err != nil {
		return translate("rename", "/"+from, err)
	}
	if err := c.bucket.Delete(ctx, from); err != nil {
		return translate("rename", "/"+from, err)
	}
	c.log.Debug("renamed", "from", "/"+from, "to", "/"+to)
	return nil
}

// List returns an iterator over the entries of the directory at path.
// With recursive set it walks every file below path; otherwise it yields
// the immediate files and subdirectories.
func (c *Client) List(p string, recursive bool) *Iterator {
	prefix := dirPrefix(cleanKey(p))
	opts := &blob.ListOptions{Prefix: prefix}
	if !recursive {
		opts.Delimiter = "/"
	}
	return &Iterator{
		it:  c.bucket.List(opts),
		dir: p,
	}
}

// collect returns every key under prefix, including directory markers.
func (c *Client) collect(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := c.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := it.Next(ctx)
		if err == io.EOF {
			return keys, nil
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, obj.Key)
	}
}

func (c *Client) writerOptions(contentType string) *blob.WriterOptions {
	opts := &blob.WriterOptions{ContentType: contentType}
	md := make(map[string]string)
	if c.opts.Principal != "" {
		md["principal"] = c.opts.Principal
	}
	if c.opts.Replication > 0 {
		md["replication"] = strconv.Itoa(c.opts.Replication)
	}
	if len(md) > 0 {
		opts.Metadata = md
	}
	return opts
}

// writer translates commit failures into the package's error kinds.
type writer struct {
	w    *blob.Writer
	path string
}

func (w *writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	return n, translate("write", w.path, err)
}

func (w *writer) Close() error {
	return translate("close", w.path, w.w.Close())
}

// cleanKey maps a slash path to a bucket key: "/a/b/" -> "a/b", "/" -> "".
func cleanKey(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// dirPrefix returns the listing prefix for a directory key.
func dirPrefix(key string) string {
	if key == "" {
		return ""
	}
	return key + "/"
}
