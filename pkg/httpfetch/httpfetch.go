// Package httpfetch downloads small text objects and zip archives over
// HTTP. It backs version resolution and archive downloads from the public
// build storage.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethpandaops/fuzzsync/pkg/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("remote object not found")

// ErrTooLarge is returned when a body exceeds the configured size cap.
var ErrTooLarge = errors.New("remote object too large")

const (
	// maxTextSize caps the body read by FetchText.
	maxTextSize = 4 << 20

	// defaultMaxObjectSize caps the body read by FetchBytes.
	defaultMaxObjectSize = 1 << 30
)

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// Options configures a Fetcher.
type Options struct {
	// Timeout bounds a single request including the body transfer.
	// Zero disables the timeout.
	Timeout time.Duration
	// RateLimit throttles downloads to this many bytes per second.
	// Zero means unlimited.
	RateLimit int64
	// ExtractConcurrency is the number of zip entries written in parallel.
	ExtractConcurrency int
	// MaxObjectSize caps bodies read into memory by FetchBytes.
	// Zero selects 1 GiB.
	MaxObjectSize int64
	UserAgent     string
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Fetcher performs HTTP downloads.
type Fetcher struct {
	log         logrus.FieldLogger
	client      *http.Client
	limiter     *rate.Limiter
	concurrency int
	maxObject   int64
	userAgent   string
}

// New creates a Fetcher.
func New(log logrus.FieldLogger, opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	concurrency := opts.ExtractConcurrency
	if concurrency <= 0 {
		concurrency = config.DefaultExtractConcurrency
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), int(opts.RateLimit))
	}

	maxObject := opts.MaxObjectSize
	if maxObject <= 0 {
		maxObject = defaultMaxObjectSize
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "fuzzsync"
	}

	return &Fetcher{
		log:         log.WithField("component", "httpfetch"),
		client:      client,
		limiter:     limiter,
		concurrency: concurrency,
		maxObject:   maxObject,
		userAgent:   userAgent,
	}
}

// NewFromConfig creates a Fetcher from the HTTP section of cfg.
func NewFromConfig(log logrus.FieldLogger, cfg *config.Config) (*Fetcher, error) {
	timeout, err := cfg.HTTPTimeout()
	if err != nil {
		return nil, fmt.Errorf("parsing http timeout: %w", err)
	}

	limit, err := cfg.DownloadRateLimit()
	if err != nil {
		return nil, fmt.Errorf("parsing download rate limit: %w", err)
	}

	maxObject, err := cfg.MaxObjectSize()
	if err != nil {
		return nil, fmt.Errorf("parsing max object size: %w", err)
	}

	return New(log, Options{
		Timeout:            timeout,
		RateLimit:          limit,
		ExtractConcurrency: cfg.HTTP.ExtractConcurrency,
		MaxObjectSize:      maxObject,
		UserAgent:          cfg.HTTP.UserAgent,
	}), nil
}

// get issues a GET request and returns the response for a 200 answer.
func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusNotFound:
		_ = resp.Body.Close()

		return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
	default:
		_ = resp.Body.Close()

		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
}

// FetchBytes downloads an object into memory. Bodies larger than the
// configured maximum fail with ErrTooLarge.
func (f *Fetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	return f.fetchCapped(ctx, url, f.maxObject)
}

// FetchText downloads a small object and decodes it as UTF-8 text.
func (f *Fetcher) FetchText(ctx context.Context, url string) (string, error) {
	data, err := f.fetchCapped(ctx, url, maxTextSize)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// fetchCapped reads at most limit bytes and reports a longer body as an
// error instead of truncating it.
func (f *Fetcher) fetchCapped(ctx context.Context, url string, limit int64) ([]byte, error) {
	resp, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.ContentLength > limit {
		return nil, fmt.Errorf("%s: %w: %d bytes exceeds %d", url, ErrTooLarge, resp.ContentLength, limit)
	}

	data, err := io.ReadAll(io.LimitReader(f.throttle(ctx, resp.Body), limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s: %w: body exceeds %d bytes", url, ErrTooLarge, limit)
	}

	return data, nil
}

// throttle wraps r with the download rate limit, if any.
func (f *Fetcher) throttle(ctx context.Context, r io.Reader) io.Reader {
	if f.limiter == nil {
		return r
	}

	return &rateLimitedReader{ctx: ctx, r: r, limiter: f.limiter}
}

type rateLimitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	if burst := r.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}

	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.limiter.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}

	return n, err
}
