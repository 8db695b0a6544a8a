package scraper_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmgd-scraper/internal/scraper"
	"vmgd-scraper/pkg/logging"
	"vmgd-scraper/pkg/metrics"
)

func newTestFetcher(cfg scraper.FetcherConfig) *scraper.Fetcher {
	return scraper.NewFetcher(cfg, logging.NewNopLogger(), metrics.NewTestCollector())
}

func weekSpec(t *testing.T) scraper.PageSpec {
	t.Helper()
	spec, ok := scraper.SpecForKind(scraper.PageForecastWeek)
	require.True(t, ok)
	return spec
}

func TestFetcher_Success(t *testing.T) {
	var gotAgent, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer server.Close()

	f := newTestFetcher(scraper.FetcherConfig{BaseURL: server.URL, UserAgent: "vmgd-test/1"})
	html, err := f.Fetch(context.Background(), weekSpec(t))

	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", html)
	assert.Equal(t, "vmgd-test/1", gotAgent)
	assert.Equal(t, scraper.PathForecastWeek, gotPath)
}

func TestFetcher_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   scraper.FetchErrorKind
	}{
		{http.StatusUnauthorized, scraper.FetchUnauthorized},
		{http.StatusForbidden, scraper.FetchUnauthorized},
		{http.StatusNotFound, scraper.FetchNotFound},
		{http.StatusInternalServerError, scraper.FetchInternal},
		{http.StatusBadGateway, scraper.FetchInternal},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("<html>denied</html>"))
			}))
			defer server.Close()

			_, err := newTestFetcher(scraper.FetcherConfig{BaseURL: server.URL}).Fetch(context.Background(), weekSpec(t))

			var fe *scraper.FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.kind, fe.Kind)
			assert.Equal(t, tt.status, fe.StatusCode)
			assert.Equal(t, "<html>denied</html>", fe.HTML)
		})
	}
}

func TestFetcher_BodySizeLimit(t *testing.T) {
	const limit = 64

	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{name: "under limit", size: limit - 1},
		{name: "at limit", size: limit},
		{name: "one byte over", size: limit + 1, wantErr: true},
		{name: "far over", size: limit * 100, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := strings.Repeat("x", tt.size)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			f := newTestFetcher(scraper.FetcherConfig{BaseURL: server.URL, MaxBodyBytes: limit})
			html, err := f.Fetch(context.Background(), weekSpec(t))

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, body, html)
				return
			}
			assert.Empty(t, html)
			var fe *scraper.FetchError
			require.True(t, errors.As(err, &fe), "expected fetch error, got %v", err)
			assert.Equal(t, scraper.FetchInternal, fe.Kind)
			assert.Contains(t, fe.Error(), "exceeds 64 bytes")
		})
	}
}

func TestFetcherConfig_DefaultBodyLimit(t *testing.T) {
	assert.Equal(t, int64(10<<20), scraper.FetcherConfig{}.WithDefaults().MaxBodyBytes)
	assert.Equal(t, int64(1024), scraper.FetcherConfig{MaxBodyBytes: 1024}.WithDefaults().MaxBodyBytes)
}

func TestFetcher_FollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(scraper.PathForecastWeek, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/moved", http.StatusFound)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	html, err := newTestFetcher(scraper.FetcherConfig{BaseURL: server.URL}).Fetch(context.Background(), weekSpec(t))
	require.NoError(t, err)
	assert.Equal(t, "moved", html)
}

func TestFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	f := newTestFetcher(scraper.FetcherConfig{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := f.Fetch(context.Background(), weekSpec(t))

	var fe *scraper.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, scraper.FetchTimeout, fe.Kind)
	assert.True(t, fe.IsTransient())
}

func TestFetcher_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(scraper.FetcherConfig{BaseURL: server.URL}).Fetch(ctx, weekSpec(t))
	var fe *scraper.FetchError
	require.True(t, errors.As(err, &fe))
}

func TestFetcher_DebugCache(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("fresh"))
	}))
	defer server.Close()

	dir := t.TempDir()
	f := newTestFetcher(scraper.FetcherConfig{BaseURL: server.URL, UseCache: true, CacheDir: dir})
	spec := weekSpec(t)

	first, err := f.Fetch(context.Background(), spec)
	require.NoError(t, err)
	second, err := f.Fetch(context.Background(), spec)
	require.NoError(t, err)

	assert.Equal(t, "fresh", first)
	assert.Equal(t, "fresh", second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	cached, err := os.ReadFile(filepath.Join(dir, spec.Slug()))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(cached))

	spec.Cache = scraper.CacheNever
	_, err = f.Fetch(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}
