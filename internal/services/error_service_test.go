package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmgd-scraper/internal/aggregate"
	"vmgd-scraper/internal/models"
	"vmgd-scraper/internal/repository"
	"vmgd-scraper/internal/scraper"
	"vmgd-scraper/pkg/logging"
	"vmgd-scraper/pkg/metrics"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		stage Stage
		err   error
		want  models.ErrorCode
	}{
		{"timeout", StageFetch, &scraper.FetchError{Kind: scraper.FetchTimeout}, models.ErrorTimeout},
		{"unauthorized", StageFetch, &scraper.FetchError{Kind: scraper.FetchUnauthorized, StatusCode: 403}, models.ErrorUnauthorized},
		{"not found", StageFetch, &scraper.FetchError{Kind: scraper.FetchNotFound, StatusCode: 404}, models.ErrorNotFound},
		{"internal", StageFetch, &scraper.FetchError{Kind: scraper.FetchInternal, StatusCode: 500}, models.ErrorInternal},
		{"wrapped fetch error", StageFetch, fmt.Errorf("page: %w", &scraper.FetchError{Kind: scraper.FetchTimeout}), models.ErrorTimeout},
		{"data not found", StageExtract, &scraper.ScrapingError{Kind: scraper.ScrapeNotFound}, models.ErrorDataNotFound},
		{"data not valid", StageExtract, &scraper.ScrapingError{Kind: scraper.ScrapeValidationFailed}, models.ErrorDataNotValid},
		{"issued not found", StageExtract, &scraper.ScrapingError{Kind: scraper.ScrapeIssuedAtNotFound}, models.ErrorIssuedNotFound},
		{"aggregation", StageAggregate, &aggregate.Error{Reason: "dates differ"}, models.ErrorAggregationFailed},
		{"unknown aggregate error", StageAggregate, errors.New("boom"), models.ErrorAggregationFailed},
		{"deadline", StageExtract, context.DeadlineExceeded, models.ErrorTimeout},
		{"unknown", StageExtract, errors.New("boom"), models.ErrorInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.stage, tt.err))
		})
	}
}

func TestFailureFromError_CarriesDiagnostics(t *testing.T) {
	err := &scraper.ScrapingError{
		Kind:    scraper.ScrapeValidationFailed,
		HTML:    "<html/>",
		RawData: map[string]int{"min": 99},
		Errors:  []scraper.ValidationIssue{{Field: "min", Rule: "lte"}},
	}

	failure := FailureFromError(StageExtract, "https://vmgd.test/x", err)
	assert.Equal(t, models.ErrorDataNotValid, failure.Code)
	assert.Equal(t, "<html/>", failure.HTML)
	assert.NotNil(t, failure.RawData)
	assert.NotNil(t, failure.Errors)
	assert.Equal(t, err.Error(), failure.Exception)
}

func TestErrorService_RecordDedupsIdenticalFailures(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	repo := repository.NewMemoryRepository(clock)
	collector := metrics.NewTestCollector()
	dir := filepath.Join(t.TempDir(), "errors")
	svc := NewErrorService(repo, dir, clock, logging.NewNopLogger(), collector)

	failure := PageFailure{
		URL:       "https://vmgd.test/forecast-division",
		Code:      models.ErrorDataNotFound,
		Exception: "data not found: forecast script missing",
		HTML:      "<html>maintenance</html>",
	}

	first, err := svc.Record(ctx, failure)
	require.NoError(t, err)
	second, err := svc.Record(ctx, failure)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Count)
	assert.Len(t, repo.PageErrors(), 1)
	assert.InDelta(t, 2, testutil.ToFloat64(collector.PageErrorsTotal.WithLabelValues("DATA_NOT_FOUND")), 0)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, HTMLHash(failure.HTML), entries[0].Name())

	failure.HTML = "<html>other</html>"
	third, err := svc.Record(ctx, failure)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, 1, third.Count)
}

func TestErrorService_RecordWithoutHTML(t *testing.T) {
	repo := repository.NewMemoryRepository(clockwork.NewFakeClock())
	svc := NewErrorService(repo, t.TempDir(), nil, logging.NewNopLogger(), metrics.NewTestCollector())

	stored, err := svc.Record(context.Background(), PageFailure{
		URL:       "https://vmgd.test/x",
		Code:      models.ErrorTimeout,
		Exception: "fetch: timeout",
		RawData:   func() {},
	})
	require.NoError(t, err)
	assert.Nil(t, stored.HTMLHash)
	assert.False(t, stored.RawPayload.Valid)
	assert.False(t, stored.Errors.Valid)
}
