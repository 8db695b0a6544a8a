package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"vmgd-scraper/pkg/logging"
	"vmgd-scraper/pkg/metrics"
)

const (
	defaultUserAgent    = "vmgd-api/dev"
	defaultTimeout      = 15 * time.Second
	defaultRateBurst    = 1
	defaultMaxBodyBytes = 10 << 20
)

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// RateLimit is requests per second to the upstream host; zero disables it.
	RateLimit float64
	RateBurst int
	UseCache  bool
	CacheDir  string
	// MaxBodyBytes caps a response body; larger pages fail instead of
	// being extracted truncated.
	MaxBodyBytes int64
}

// WithDefaults returns a copy with zero-value fields defaulted.
func (c FetcherConfig) WithDefaults() FetcherConfig {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.RateBurst <= 0 {
		c.RateBurst = defaultRateBurst
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	return c
}

// Fetcher performs page GETs against the bureau site. Safe for concurrent use.
type Fetcher struct {
	cfg     FetcherConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewFetcher builds a Fetcher. The default http.Client redirect policy
// follows up to ten redirects.
func NewFetcher(cfg FetcherConfig, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Fetcher {
	cfg = cfg.WithDefaults()

	limiter := rate.NewLimiter(rate.Inf, cfg.RateBurst)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	return &Fetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Fetch returns the HTML for spec, consulting the debug cache first when
// it is enabled for this spec.
func (f *Fetcher) Fetch(ctx context.Context, spec PageSpec) (string, error) {
	url := spec.URL(f.cfg.BaseURL)
	useCache := f.cfg.UseCache && spec.Cache == CacheDebug

	if useCache {
		if html, ok := f.readCache(ctx, spec); ok {
			f.metrics.RecordPageFetch(spec.Slug(), "cache")
			return html, nil
		}
	}

	f.logger.Info(ctx, "[FETCH_START] Fetching page", logging.Fields{
		"url":  url,
		"page": spec.Slug(),
	})

	timer := f.metrics.NewTimer(f.metrics.PageFetchDuration.WithLabelValues(spec.Slug()))
	html, err := f.get(ctx, url)
	duration := timer.ObserveDuration()
	if err != nil {
		f.logger.Warn(ctx, "[FETCH_ERROR] Page fetch failed", logging.Fields{
			"url":         url,
			"duration_ms": duration.Milliseconds(),
			"error":       err.Error(),
		})
		return "", err
	}
	f.metrics.RecordPageFetch(spec.Slug(), "network")

	f.logger.Debug(ctx, "[FETCH_DONE] Page fetched", logging.Fields{
		"url":         url,
		"bytes":       len(html),
		"duration_ms": duration.Milliseconds(),
	})

	if useCache {
		f.writeCache(ctx, spec, html)
	}
	return html, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", classifyTransportError(url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", &FetchError{Kind: FetchInternal, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", classifyTransportError(url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return "", classifyTransportError(url, err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return "", &FetchError{
			Kind: FetchInternal,
			URL:  url,
			Err:  fmt.Errorf("response body exceeds %d bytes", f.cfg.MaxBodyBytes),
		}
	}
	html := string(body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &FetchError{Kind: FetchUnauthorized, URL: url, StatusCode: resp.StatusCode, HTML: html}
	case resp.StatusCode == http.StatusNotFound:
		return "", &FetchError{Kind: FetchNotFound, URL: url, StatusCode: resp.StatusCode, HTML: html}
	case resp.StatusCode < 200 || resp.StatusCode >= 400:
		return "", &FetchError{Kind: FetchInternal, URL: url, StatusCode: resp.StatusCode, HTML: html}
	}

	return html, nil
}

func classifyTransportError(url string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Kind: FetchTimeout, URL: url, Err: err}
	}
	return &FetchError{Kind: FetchInternal, URL: url, Err: err}
}

func (f *Fetcher) cachePath(spec PageSpec) string {
	return filepath.Join(f.cfg.CacheDir, spec.Slug())
}

func (f *Fetcher) readCache(ctx context.Context, spec PageSpec) (string, bool) {
	data, err := os.ReadFile(f.cachePath(spec))
	if err != nil {
		return "", false
	}
	f.logger.Info(ctx, "[FETCH_CACHE_HIT] Serving page from cache", logging.Fields{
		"page": spec.Slug(),
	})
	return string(data), true
}

func (f *Fetcher) writeCache(ctx context.Context, spec PageSpec, html string) {
	if err := os.MkdirAll(f.cfg.CacheDir, 0o755); err != nil {
		f.logger.Warn(ctx, "[FETCH_CACHE_ERROR] Cannot create cache dir", logging.Fields{"error": err.Error()})
		return
	}
	if err := os.WriteFile(f.cachePath(spec), []byte(html), 0o644); err != nil {
		f.logger.Warn(ctx, "[FETCH_CACHE_ERROR] Cannot write cache file", logging.Fields{
			"page":  spec.Slug(),
			"error": fmt.Sprint(err),
		})
	}
}
