package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx/types"
	"github.com/jonboulle/clockwork"

	"vmgd-scraper/internal/aggregate"
	"vmgd-scraper/internal/models"
	"vmgd-scraper/internal/repository"
	"vmgd-scraper/internal/scraper"
	"vmgd-scraper/pkg/logging"
	"vmgd-scraper/pkg/metrics"
)

// Stage is the pipeline step an error came from.
type Stage int

const (
	StageFetch Stage = iota
	StageExtract
	StageAggregate
)

func (s Stage) String() string {
	switch s {
	case StageFetch:
		return "fetch"
	case StageExtract:
		return "extract"
	default:
		return "aggregate"
	}
}

// Classify maps a pipeline error onto the failure taxonomy.
func Classify(stage Stage, err error) models.ErrorCode {
	var fetchErr *scraper.FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Kind {
		case scraper.FetchTimeout:
			return models.ErrorTimeout
		case scraper.FetchUnauthorized:
			return models.ErrorUnauthorized
		case scraper.FetchNotFound:
			return models.ErrorNotFound
		default:
			return models.ErrorInternal
		}
	}

	var scrapeErr *scraper.ScrapingError
	if errors.As(err, &scrapeErr) {
		switch scrapeErr.Kind {
		case scraper.ScrapeValidationFailed:
			return models.ErrorDataNotValid
		case scraper.ScrapeIssuedAtNotFound:
			return models.ErrorIssuedNotFound
		default:
			return models.ErrorDataNotFound
		}
	}

	var aggErr *aggregate.Error
	if errors.As(err, &aggErr) || stage == StageAggregate {
		return models.ErrorAggregationFailed
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorTimeout
	}
	return models.ErrorInternal
}

// PageFailure is one failed page with whatever diagnostics were available.
type PageFailure struct {
	URL       string
	Code      models.ErrorCode
	Exception string
	HTML      string
	RawData   interface{}
	Errors    interface{}
}

// FailureFromError classifies err and copies the diagnostics it carries.
func FailureFromError(stage Stage, url string, err error) PageFailure {
	failure := PageFailure{
		URL:       url,
		Code:      Classify(stage, err),
		Exception: err.Error(),
	}

	var fetchErr *scraper.FetchError
	var scrapeErr *scraper.ScrapingError
	switch {
	case errors.As(err, &fetchErr):
		failure.HTML = fetchErr.HTML
	case errors.As(err, &scrapeErr):
		failure.HTML = scrapeErr.HTML
		failure.RawData = scrapeErr.RawData
		failure.Errors = scrapeErr.Errors
	}
	return failure
}

// ErrorService records page failures, keeping one row per distinct failure
// and one HTML file per distinct response body.
type ErrorService struct {
	repo      repository.ScraperRepository
	errorsDir string
	clock     clockwork.Clock
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewErrorService creates a new error service. HTML of failed pages is
// saved under errorsDir, named by its sha256.
func NewErrorService(repo repository.ScraperRepository, errorsDir string, clock clockwork.Clock, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ErrorService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ErrorService{
		repo:      repo,
		errorsDir: errorsDir,
		clock:     clock,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// HTMLHash returns the content address of html.
func HTMLHash(html string) string {
	sum := sha256.Sum256([]byte(html))
	return hex.EncodeToString(sum[:])
}

// Record stores failure. A repeat of an identical failure bumps the count
// of the existing row.
func (s *ErrorService) Record(ctx context.Context, failure PageFailure) (*models.PageError, error) {
	pageError := &models.PageError{
		URL:         failure.URL,
		Description: failure.Code,
		Exception:   failure.Exception,
		RawPayload:  s.toJSON(ctx, "raw_payload", failure.RawData),
		Errors:      s.toJSON(ctx, "errors", failure.Errors),
		UpdatedAt:   s.clock.Now().UTC(),
	}

	if failure.HTML != "" {
		hash := HTMLHash(failure.HTML)
		pageError.HTMLHash = &hash
		if err := s.saveHTML(hash, failure.HTML); err != nil {
			s.logger.Warn(ctx, "[ERROR_HTML_SAVE_FAILED] Could not save error HTML", logging.Fields{
				"url":   failure.URL,
				"hash":  hash,
				"error": err.Error(),
			})
		}
	}
	pageError.ComputeFingerprint()

	stored, err := s.repo.RecordPageError(ctx, pageError)
	if err != nil {
		return nil, fmt.Errorf("failed to record page error: %w", err)
	}
	s.metrics.RecordPageError(string(failure.Code))

	s.logger.Warn(ctx, "[PAGE_ERROR] Page failure recorded", logging.Fields{
		"url":           failure.URL,
		"code":          failure.Code,
		"page_error_id": stored.ID,
		"count":         stored.Count,
	})

	return stored, nil
}

func (s *ErrorService) toJSON(ctx context.Context, field string, v interface{}) types.NullJSONText {
	if v == nil {
		return types.NullJSONText{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn(ctx, "[PAGE_ERROR_ENCODE] Diagnostic payload is not JSON encodable", logging.Fields{
			"field": field,
			"error": err.Error(),
		})
		return types.NullJSONText{}
	}
	return types.NullJSONText{JSONText: types.JSONText(data), Valid: true}
}

// saveHTML writes html to <errorsDir>/<hash> unless it already exists. The
// rename makes concurrent writers of the same content safe.
func (s *ErrorService) saveHTML(hash, html string) error {
	if s.errorsDir == "" {
		return nil
	}
	path := filepath.Join(s.errorsDir, hash)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(s.errorsDir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.errorsDir, hash+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(html); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
