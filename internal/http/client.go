package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ligustah/partfetch/pkg/remote"
)

// Status errors wrap the remote error kinds, so errors.Is(err,
// remote.ErrNotFound) holds for a 404 as it does for a missing bucket object.
var (
	ErrRangeNotSupported = errors.New("http: server does not support range requests")
	ErrNotFound          = fmt.Errorf("http: resource not found: %w", remote.ErrNotFound)
	ErrForbidden         = fmt.Errorf("http: access forbidden: %w", remote.ErrPermissionDenied)
	ErrUnauthorized      = fmt.Errorf("http: unauthorized: %w", remote.ErrPermissionDenied)
	ErrServerError       = fmt.Errorf("http: server error: %w", remote.ErrIO)
)

// Options configures the HTTP client.
type Options struct {
	// Timeout bounds a single request, including reading its body.
	// Zero means no limit. Default: 0
	Timeout time.Duration

	// RetryAttempts is how many times a failed request is retried.
	// Default: 5
	RetryAttempts int

	// RetryBackoff is the wait before the first retry; it doubles on
	// each further attempt. Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff caps the wait between retries.
	// Default: 30s
	RetryMaxBackoff time.Duration

	// Logger receives a debug record per retry. Default: discard
	Logger *slog.Logger
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		RetryAttempts:   5,
		RetryBackoff:    time.Second,
		RetryMaxBackoff: 30 * time.Second,
	}
}

// FileInfo is what a HEAD request reveals about a remote object.
type FileInfo struct {
	Size          int64
	ETag          string
	AcceptsRanges bool
	ContentType   string
	LastModified  time.Time
}

// RangeResponse is an open body for a byte range.
type RangeResponse struct {
	Body          io.ReadCloser
	Start         int64
	ContentLength int64
	ETag          string
}

// Client fetches objects over HTTP with ranged GETs and retries transient
// failures.
type Client struct {
	client *http.Client
	opts   Options
	log    *slog.Logger
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Ranges are byte offsets into the stored representation.
	transport.DisableCompression = true

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
		log:  logger,
	}
}

// Head fetches the metadata of url.
func (c *Client) Head(ctx context.Context, url string) (*FileInfo, error) {
	resp, err := c.do(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	info := &FileInfo{
		Size:          resp.ContentLength,
		ETag:          cleanETag(resp.Header.Get("ETag")),
		AcceptsRanges: resp.Header.Get("Accept-Ranges") == "bytes",
		ContentType:   resp.Header.Get("Content-Type"),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			info.LastModified = t
		}
	}
	return info, nil
}

// GetRange opens the bytes [start, end] of url; end is inclusive as in the
// Range header. A server that answers with anything other than the
// requested start offset fails with ErrRangeNotSupported.
func (c *Client) GetRange(ctx context.Context, url string, start, end int64) (*RangeResponse, error) {
	header := http.Header{}
	header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := c.do(ctx, http.MethodGet, url, header)
	if err != nil {
		if errors.Is(err, errRangeNotSatisfiable) {
			return nil, ErrRangeNotSupported
		}
		return nil, err
	}

	cr := resp.Header.Get("Content-Range")
	if cr == "" {
		resp.Body.Close()
		return nil, ErrRangeNotSupported
	}
	got, _, _, err := parseContentRange(cr)
	if err != nil || got != start {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: asked for offset %d, got %q", ErrRangeNotSupported, start, cr)
	}

	return &RangeResponse{
		Body:          resp.Body,
		Start:         got,
		ContentLength: resp.ContentLength,
		ETag:          cleanETag(resp.Header.Get("ETag")),
	}, nil
}

var errRangeNotSatisfiable = errors.New("http: range not satisfiable")

// do sends a request, retrying transport failures and 5xx responses with
// backoff. Any other non-2xx status is returned at once. On success the
// caller owns resp.Body.
func (c *Client) do(ctx context.Context, method, url string, header http.Header) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			c.log.Debug("retrying request", "method", method, "url", url, "attempt", attempt, "error", lastErr)
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		for k, v := range header {
			req.Header[k] = v
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %s", ErrServerError, resp.Status)
			continue
		}
		if err := checkStatusCode(resp.StatusCode); err != nil {
			resp.Body.Close()
			return nil, err
		}
		return resp, nil
	}

	return nil, fmt.Errorf("%w: %s %s failed after %d attempts: %w",
		remote.ErrIO, method, url, c.opts.RetryAttempts+1, lastErr)
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	wait := c.opts.RetryBackoff << uint(attempt-1)
	if wait > c.opts.RetryMaxBackoff || wait <= 0 {
		wait = c.opts.RetryMaxBackoff
	}
	// 0.5x to 1.5x
	wait = time.Duration(float64(wait) * (0.5 + rand.Float64()))

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusRequestedRangeNotSatisfiable:
		return errRangeNotSatisfiable
	default:
		return fmt.Errorf("%w: unexpected status code: %d", remote.ErrIO, code)
	}
}

// cleanETag strips the weak prefix and quotes from an ETag value.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}

// parseContentRange parses "bytes start-end/total"; total is -1 for "*".
func parseContentRange(header string) (start, end, total int64, err error) {
	spec, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q", header)
	}
	rng, size, ok := strings.Cut(spec, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q", header)
	}
	first, last, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q", header)
	}

	if start, err = strconv.ParseInt(first, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}
	if end, err = strconv.ParseInt(last, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}
	if size == "*" {
		return start, end, -1, nil
	}
	if total, err = strconv.ParseInt(size, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
	}
	return start, end, total, nil
}
