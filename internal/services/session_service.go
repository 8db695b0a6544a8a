package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"vmgd-scraper/internal/aggregate"
	"vmgd-scraper/internal/models"
	"vmgd-scraper/internal/repository"
	"vmgd-scraper/internal/scraper"
	"vmgd-scraper/pkg/logging"
	"vmgd-scraper/pkg/metrics"
)

// SessionState is a step of a session run.
type SessionState string

const (
	StateCreated         SessionState = "CREATED"
	StatePagesInProgress SessionState = "PAGES_IN_PROGRESS"
	StateAggregating     SessionState = "AGGREGATING"
	StateCompleted       SessionState = "COMPLETED"
	StateFailed          SessionState = "FAILED"
)

// Outcome is how a RunSession call ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// ErrUnknownSessionKind is returned for kinds without a page set.
var ErrUnknownSessionKind = errors.New("unknown session kind")

// PageFetcher fetches the HTML of one page.
type PageFetcher interface {
	Fetch(ctx context.Context, spec scraper.PageSpec) (string, error)
}

// Result describes one session run.
type Result struct {
	SessionID int64              `json:"session_id"`
	Kind      models.SessionKind `json:"kind"`
	Outcome   Outcome            `json:"outcome"`
	State     SessionState       `json:"state"`
	// FailedDuring is the state the run was in when it failed.
	FailedDuring SessionState     `json:"failed_during,omitempty"`
	Code         models.ErrorCode `json:"code,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Pages        int              `json:"pages"`
	Records      int              `json:"records"`
	Duration     time.Duration    `json:"duration_ns"`
}

// Failed reports whether the run ended without completing.
func (r *Result) Failed() bool {
	return r.Outcome == OutcomeFailed
}

// SessionConfig configures a SessionService.
type SessionConfig struct {
	BaseURL string
	// MaxConcurrentFetches bounds page fetches within one session; zero
	// fetches every page of the set at once.
	MaxConcurrentFetches int
	// MinSessionInterval skips a run when the latest completed session of
	// the same kind started less than this long ago. Zero disables it.
	MinSessionInterval time.Duration
	Extractors         *scraper.Registry
	Definitions        map[models.SessionKind]SessionDefinition
}

// SessionService runs scraping sessions: fetch the page set, extract each
// page, aggregate, and commit pages and records together.
type SessionService struct {
	repo    repository.ScraperRepository
	fetcher PageFetcher
	errors  *ErrorService
	cfg     SessionConfig
	clock   clockwork.Clock
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSessionService creates a new session service
func NewSessionService(repo repository.ScraperRepository, fetcher PageFetcher, errorService *ErrorService, cfg SessionConfig, clock clockwork.Clock, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SessionService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Extractors == nil {
		cfg.Extractors = scraper.DefaultRegistry()
	}
	if cfg.Definitions == nil {
		cfg.Definitions = DefaultSessionSets(clock)
	}
	return &SessionService{
		repo:    repo,
		fetcher: fetcher,
		errors:  errorService,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Kinds returns the runnable session kinds in their canonical order.
func (s *SessionService) Kinds() []models.SessionKind {
	var kinds []models.SessionKind
	for _, k := range models.AllSessionKinds {
		if _, ok := s.cfg.Definitions[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// sessionError aborts a run with a taxonomy code.
type sessionError struct {
	code models.ErrorCode
	err  error
}

func (e *sessionError) Error() string { return e.err.Error() }
func (e *sessionError) Unwrap() error { return e.err }

func abort(code models.ErrorCode, err error) error {
	return &sessionError{code: code, err: err}
}

// RunSession runs one session of kind now. A failed run is reported in the
// Result; the returned error is reserved for unknown kinds and for failures
// to record the session at all.
func (s *SessionService) RunSession(ctx context.Context, kind models.SessionKind) (*Result, error) {
	def, ok := s.cfg.Definitions[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSessionKind, kind)
	}

	start := s.clock.Now().UTC()
	result := &Result{Kind: kind}

	if skipped, err := s.skipRecent(ctx, kind, start, result); err != nil || skipped {
		return result, err
	}

	session, err := s.repo.CreateSession(ctx, kind, start)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s session: %w", kind, err)
	}
	result.SessionID = session.ID
	result.State = StateCreated
	ctx = logging.WithSessionID(ctx, session.ID)

	s.metrics.SessionsActive.Inc()
	defer s.metrics.SessionsActive.Dec()

	s.logger.Info(ctx, "[SESSION_START] Session started", logging.Fields{
		"kind":  kind,
		"pages": len(def.Pages),
		"stage": string(StateCreated),
	})

	err = s.run(ctx, session, def, result)
	result.Duration = s.clock.Since(start)

	if err != nil {
		result.FailedDuring = result.State
		result.State = StateFailed
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
		var sessErr *sessionError
		if errors.As(err, &sessErr) {
			result.Code = sessErr.code
		} else {
			result.Code = Classify(StageAggregate, err)
		}

		if markErr := s.repo.MarkSessionFailed(context.WithoutCancel(ctx), session.ID, result.Code, result.Reason); markErr != nil {
			s.logger.Error(ctx, "[SESSION_MARK_FAILED] Could not store failure reason", logging.Fields{
				"kind": kind,
			}, markErr)
		}

		s.logger.Error(ctx, "[SESSION_FAILED] Session failed", logging.Fields{
			"kind":          kind,
			"code":          result.Code,
			"failed_during": string(result.FailedDuring),
			"pages":         result.Pages,
			"duration_ms":   result.Duration.Milliseconds(),
		}, err)
	} else {
		result.Outcome = OutcomeCompleted
		s.logger.Info(ctx, "[SESSION_COMPLETE] Session completed", logging.Fields{
			"kind":        kind,
			"pages":       result.Pages,
			"records":     result.Records,
			"duration_ms": result.Duration.Milliseconds(),
			"stage":       string(StateCompleted),
		})
	}

	s.metrics.RecordSession(string(kind), string(result.Outcome), result.Duration)
	return result, nil
}

func (s *SessionService) skipRecent(ctx context.Context, kind models.SessionKind, now time.Time, result *Result) (bool, error) {
	if s.cfg.MinSessionInterval <= 0 {
		return false, nil
	}

	latest, err := s.repo.GetLatestCompletedSession(ctx, kind)
	var notFound *repository.NotFoundError
	if errors.As(err, &notFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check latest %s session: %w", kind, err)
	}

	age := now.Sub(latest.StartedAt)
	if age >= s.cfg.MinSessionInterval {
		return false, nil
	}

	result.SessionID = latest.ID
	result.Outcome = OutcomeSkipped
	result.State = StateCompleted
	result.Reason = fmt.Sprintf("latest completed session started %s ago", age.Round(time.Second))

	s.logger.Info(ctx, "[SESSION_SKIPPED] Recent session is still fresh", logging.Fields{
		"kind":              kind,
		"latest_session_id": latest.ID,
		"age_seconds":       age.Seconds(),
	})
	s.metrics.RecordSession(string(kind), string(OutcomeSkipped), 0)
	return true, nil
}

func (s *SessionService) run(ctx context.Context, session *models.Session, def SessionDefinition, result *Result) error {
	result.State = StatePagesInProgress
	fetched := s.fetchAll(ctx, def.Pages)

	tx, err := s.repo.BeginSession(ctx, session)
	if err != nil {
		return abort(models.ErrorInternal, fmt.Errorf("failed to begin session: %w", err))
	}
	defer tx.Rollback()

	pages := make([]*models.Page, 0, len(def.Pages))
	for i, spec := range def.Pages {
		page, err := s.processPage(ctx, session, spec, fetched[i])
		if err != nil {
			return err
		}
		if err := tx.InsertPage(ctx, page); err != nil {
			return abort(models.ErrorInternal, err)
		}
		pages = append(pages, page)
		result.Pages++
	}

	result.State = StateAggregating
	s.logger.Debug(ctx, "[SESSION_AGGREGATE] Aggregating pages", logging.Fields{
		"kind":  session.Kind,
		"pages": len(pages),
		"stage": string(StateAggregating),
	})

	records, err := def.Aggregator.Aggregate(pages)
	if err != nil {
		return abort(models.ErrorAggregationFailed, err)
	}
	if err := s.persist(ctx, tx, records); err != nil {
		return abort(models.ErrorInternal, err)
	}
	if err := tx.CompleteSession(ctx, s.clock.Now()); err != nil {
		return abort(models.ErrorInternal, err)
	}
	if err := tx.Commit(); err != nil {
		return abort(models.ErrorInternal, err)
	}

	result.State = StateCompleted
	result.Records = records.Count()
	s.metrics.RecordPersisted("page", len(pages))
	s.metrics.RecordPersisted("forecast", len(records.Forecasts))
	s.metrics.RecordPersisted("warning", len(records.Warnings))
	s.metrics.RecordPersisted("media", len(records.Media))
	return nil
}

type fetchResult struct {
	html string
	err  error
}

// fetchAll fetches every page concurrently. A failed page does not cancel
// the others; results keep the page-set order.
func (s *SessionService) fetchAll(ctx context.Context, specs []scraper.PageSpec) []fetchResult {
	results := make([]fetchResult, len(specs))

	var g errgroup.Group
	if s.cfg.MaxConcurrentFetches > 0 {
		g.SetLimit(s.cfg.MaxConcurrentFetches)
	}
	for i, spec := range specs {
		g.Go(func() error {
			html, err := s.fetcher.Fetch(ctx, spec)
			results[i] = fetchResult{html: html, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *SessionService) processPage(ctx context.Context, session *models.Session, spec scraper.PageSpec, fetched fetchResult) (*models.Page, error) {
	url := spec.URL(s.cfg.BaseURL)
	if fetched.err != nil {
		return nil, s.recordFailure(ctx, StageFetch, url, fetched.err)
	}

	extraction, err := s.cfg.Extractors.Extract(spec.Kind, fetched.html)
	if err != nil {
		if !s.canFallBack(spec, extraction, err) {
			return nil, s.recordFailure(ctx, StageExtract, url, err)
		}
		extraction.IssuedAt = session.StartedAt
		s.logger.Debug(ctx, "[SESSION_ISSUED_FALLBACK] Using session start as issued time", logging.Fields{
			"page": spec.Slug(),
		})
	}

	raw, err := json.Marshal(extraction.Payload)
	if err != nil {
		return nil, s.recordFailure(ctx, StageExtract, url, fmt.Errorf("encode %s payload: %w", spec.Slug(), err))
	}

	return &models.Page{
		SessionID:  session.ID,
		Path:       spec.Path,
		IssuedAt:   extraction.IssuedAt.UTC(),
		RawPayload: raw,
		CreatedAt:  s.clock.Now().UTC(),
		Payload:    extraction.Payload,
	}, nil
}

func (s *SessionService) canFallBack(spec scraper.PageSpec, extraction scraper.Extraction, err error) bool {
	var scrapeErr *scraper.ScrapingError
	return spec.IssuedAtFallback &&
		extraction.Payload != nil &&
		errors.As(err, &scrapeErr) &&
		scrapeErr.Kind == scraper.ScrapeIssuedAtNotFound
}

// recordFailure stores the page error and returns the error that aborts
// the session.
func (s *SessionService) recordFailure(ctx context.Context, stage Stage, url string, err error) error {
	failure := FailureFromError(stage, url, err)
	if _, recErr := s.errors.Record(ctx, failure); recErr != nil {
		s.logger.Error(ctx, "[PAGE_ERROR_RECORD_FAILED] Could not record page error", logging.Fields{
			"url":  url,
			"code": failure.Code,
		}, recErr)
	}
	return abort(failure.Code, fmt.Errorf("%s %s: %w", stage, url, err))
}

// persist resolves locations and writes the derived records. Locations are
// shared across sessions and are saved outside the session transaction.
func (s *SessionService) persist(ctx context.Context, tx repository.SessionTx, records *aggregate.Result) error {
	locationIDs := make(map[string]int64, len(records.Locations))
	for _, input := range records.Locations {
		loc, err := s.repo.SaveLocation(ctx, input.Name, input.Latitude, input.Longitude)
		if err != nil {
			return fmt.Errorf("failed to save location %q: %w", input.Name, err)
		}
		locationIDs[strings.ToLower(strings.TrimSpace(input.Name))] = loc.ID
	}

	for _, f := range records.Forecasts {
		id, ok := locationIDs[strings.ToLower(strings.TrimSpace(f.LocationName))]
		if !ok {
			return fmt.Errorf("forecast references unknown location %q", f.LocationName)
		}
		f.LocationID = id
	}

	if err := tx.InsertForecasts(ctx, records.Forecasts); err != nil {
		return err
	}
	if err := tx.InsertWarnings(ctx, records.Warnings); err != nil {
		return err
	}
	return tx.InsertMedia(ctx, records.Media)
}

// RunAll runs the given kinds in parallel. One kind failing never stops the
// others. Results follow the order of kinds; kinds that could not be run at
// all appear only in the joined error.
func (s *SessionService) RunAll(ctx context.Context, kinds []models.SessionKind) ([]*Result, error) {
	if len(kinds) == 0 {
		kinds = s.Kinds()
	}

	results := make([]*Result, len(kinds))
	errs := make([]error, len(kinds))

	var g errgroup.Group
	for i, kind := range kinds {
		g.Go(func() error {
			results[i], errs[i] = s.RunSession(ctx, kind)
			return nil
		})
	}
	_ = g.Wait()

	// A kind whose session could not be created has no result, only an error.
	ran := results[:0]
	for _, r := range results {
		if r != nil {
			ran = append(ran, r)
		}
	}
	return ran, errors.Join(errs...)
}

// Snapshot is the latest completed session of a kind with its records.
type Snapshot struct {
	Session   *models.Session          `json:"session"`
	Forecasts []*models.ForecastDaily  `json:"forecasts,omitempty"`
	Warnings  []*models.WeatherWarning `json:"warnings,omitempty"`
	Media     []*models.ForecastMedia  `json:"media,omitempty"`
}

// Latest returns the data of the latest completed session of kind. A
// repository.NotFoundError means no session of kind has completed yet.
func (s *SessionService) Latest(ctx context.Context, kind models.SessionKind) (*Snapshot, error) {
	if _, ok := s.cfg.Definitions[kind]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSessionKind, kind)
	}

	session, err := s.repo.GetLatestCompletedSession(ctx, kind)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{Session: session}
	if snapshot.Forecasts, err = s.repo.ListForecasts(ctx, session.ID); err != nil {
		return nil, err
	}
	if snapshot.Warnings, err = s.repo.ListWarnings(ctx, session.ID); err != nil {
		return nil, err
	}
	if snapshot.Media, err = s.repo.ListMedia(ctx, session.ID); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// PageErrors returns the most recently seen page errors.
func (s *SessionService) PageErrors(ctx context.Context, limit int) ([]*models.PageError, error) {
	return s.repo.ListPageErrors(ctx, limit)
}

// HealthCheck reports whether the repository is reachable.
func (s *SessionService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
