package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"vmgd-scraper/internal/models"
	"vmgd-scraper/pkg/database"
	"vmgd-scraper/pkg/logging"
	"vmgd-scraper/pkg/metrics"
)

// ScraperRepository provides data access for scraping sessions
type ScraperRepository interface {
	// Session operations
	CreateSession(ctx context.Context, kind models.SessionKind, startedAt time.Time) (*models.Session, error)
	BeginSession(ctx context.Context, session *models.Session) (SessionTx, error)
	MarkSessionFailed(ctx context.Context, sessionID int64, code models.ErrorCode, reason string) error
	GetLatestCompletedSession(ctx context.Context, kind models.SessionKind) (*models.Session, error)

	// Derived record reads
	ListForecasts(ctx context.Context, sessionID int64) ([]*models.ForecastDaily, error)
	ListWarnings(ctx context.Context, sessionID int64) ([]*models.WeatherWarning, error)
	ListMedia(ctx context.Context, sessionID int64) ([]*models.ForecastMedia, error)

	// Shared rows
	SaveLocation(ctx context.Context, name string, latitude, longitude float64) (*models.Location, error)
	RecordPageError(ctx context.Context, pageError *models.PageError) (*models.PageError, error)
	ListPageErrors(ctx context.Context, limit int) ([]*models.PageError, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// SessionTx is the write scope of one session. Pages, derived records and
// the completion flag become visible together on Commit.
type SessionTx interface {
	InsertPage(ctx context.Context, page *models.Page) error
	InsertForecasts(ctx context.Context, forecasts []*models.ForecastDaily) error
	InsertWarnings(ctx context.Context, warnings []*models.WeatherWarning) error
	InsertMedia(ctx context.Context, media []*models.ForecastMedia) error
	CompleteSession(ctx context.Context, completedAt time.Time) error
	Commit() error
	// Rollback is a no-op after Commit.
	Rollback() error
}

// scraperRepository implements ScraperRepository on PostgreSQL
type scraperRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewScraperRepository creates a new scraper repository
func NewScraperRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) ScraperRepository {
	return &scraperRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// CreateSession inserts and commits a new session row
func (r *scraperRepository) CreateSession(ctx context.Context, kind models.SessionKind, startedAt time.Time) (*models.Session, error) {
	query := `
		INSERT INTO scraper_session (kind, started_at)
		VALUES ($1, $2)
		RETURNING id
	`

	session := &models.Session{Kind: kind, StartedAt: startedAt.UTC()}
	if err := r.db.GetContext(ctx, "insert_session", &session.ID, query, kind, session.StartedAt); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_CREATE_SESSION] Session created", logging.Fields{
		"session_id": session.ID,
		"kind":       kind,
	})

	return session, nil
}

// BeginSession opens the transaction a session writes its results through
func (r *scraperRepository) BeginSession(ctx context.Context, session *models.Session) (SessionTx, error) {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &postgresSessionTx{tx: tx, session: session, repo: r}, nil
}

// MarkSessionFailed stores why a session stopped. completed_at stays null.
func (r *scraperRepository) MarkSessionFailed(ctx context.Context, sessionID int64, code models.ErrorCode, reason string) error {
	query := `
		UPDATE scraper_session
		SET failure_code = $2, failure_reason = $3
		WHERE id = $1 AND completed_at IS NULL
	`

	if _, err := r.db.ExecContext(ctx, "mark_session_failed", query, sessionID, string(code), reason); err != nil {
		return fmt.Errorf("failed to mark session failed: %w", err)
	}
	return nil
}

// GetLatestCompletedSession returns the newest completed session of kind
func (r *scraperRepository) GetLatestCompletedSession(ctx context.Context, kind models.SessionKind) (*models.Session, error) {
	query := `
		SELECT id, kind, started_at, completed_at, failure_code, failure_reason
		FROM scraper_session
		WHERE kind = $1 AND completed_at IS NOT NULL
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`

	var session models.Session
	err := r.db.GetContext(ctx, "get_latest_session", &session, query, kind)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{
			Resource: "completed_session",
			ID:       string(kind),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get latest session: %w", err)
	}

	return &session, nil
}

// ListForecasts returns a session's forecast records with location names
func (r *scraperRepository) ListForecasts(ctx context.Context, sessionID int64) ([]*models.ForecastDaily, error) {
	query := `
		SELECT f.id, f.session_id, f.location_id, l.name AS location_name,
		       f.date, f.summary, f.min_temp, f.max_temp,
		       f.min_humidity, f.max_humidity, f.issued_at
		FROM forecast_daily f
		JOIN location l ON l.id = f.location_id
		WHERE f.session_id = $1
		ORDER BY l.name, f.date
	`

	var forecasts []*models.ForecastDaily
	if err := r.db.SelectContext(ctx, "list_forecasts", &forecasts, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to list forecasts: %w", err)
	}
	return forecasts, nil
}

// ListWarnings returns a session's warning records
func (r *scraperRepository) ListWarnings(ctx context.Context, sessionID int64) ([]*models.WeatherWarning, error) {
	query := `
		SELECT id, session_id, date, issued_at, no_current_warning, body
		FROM weather_warning
		WHERE session_id = $1
		ORDER BY date, id
	`

	var warnings []*models.WeatherWarning
	if err := r.db.SelectContext(ctx, "list_warnings", &warnings, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to list warnings: %w", err)
	}
	return warnings, nil
}

// ListMedia returns a session's forecast media records
func (r *scraperRepository) ListMedia(ctx context.Context, sessionID int64) ([]*models.ForecastMedia, error) {
	query := `
		SELECT id, session_id, issued_at, summary, image_urls
		FROM forecast_media
		WHERE session_id = $1
		ORDER BY id
	`

	var media []*models.ForecastMedia
	if err := r.db.SelectContext(ctx, "list_media", &media, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}
	return media, nil
}

const selectLocationByName = `
	SELECT id, name, slug, latitude, longitude, created_at, updated_at
	FROM location
	WHERE lower(name) = lower($1)
`

// SaveLocation returns the location named name, creating it on first
// sight. A concurrent creator winning the insert is picked up by the
// second lookup.
func (r *scraperRepository) SaveLocation(ctx context.Context, name string, latitude, longitude float64) (*models.Location, error) {
	location, err := models.NewLocation(name, latitude, longitude)
	if err != nil {
		return nil, err
	}

	existing, err := r.findLocation(ctx, location.Name)
	if err != nil || existing != nil {
		return existing, err
	}

	query := `
		INSERT INTO location (name, slug, latitude, longitude, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
		RETURNING id
	`

	err = r.db.GetContext(ctx, "insert_location", &location.ID, query,
		location.Name,
		location.Slug,
		location.Latitude,
		location.Longitude,
		location.CreatedAt,
		location.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Debug(ctx, "[REPO_SAVE_LOCATION] Lost insert race, re-reading", logging.Fields{
			"name": location.Name,
		})
		existing, err = r.findLocation(ctx, location.Name)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("failed to save location %q: slug %q taken by another name", location.Name, location.Slug)
		}
		return existing, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to save location: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_SAVE_LOCATION] Location created", logging.Fields{
		"location_id": location.ID,
		"name":        location.Name,
		"slug":        location.Slug,
	})

	return location, nil
}

func (r *scraperRepository) findLocation(ctx context.Context, name string) (*models.Location, error) {
	var location models.Location
	err := r.db.GetContext(ctx, "get_location", &location, selectLocationByName, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return &location, nil
}

// RecordPageError inserts pageError or bumps the count of the identical
// row. The unique fingerprint makes concurrent duplicates collapse.
func (r *scraperRepository) RecordPageError(ctx context.Context, pageError *models.PageError) (*models.PageError, error) {
	if pageError.Fingerprint == "" {
		pageError.ComputeFingerprint()
	}
	now := pageError.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	query := `
		INSERT INTO page_error (
			fingerprint, url, description, exception, html_hash,
			raw_payload, errors, count, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $8)
		ON CONFLICT (fingerprint) DO UPDATE SET
			count = page_error.count + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING id, count, created_at, updated_at
	`

	err := r.db.GetContext(ctx, "upsert_page_error", pageError, query,
		pageError.Fingerprint,
		pageError.URL,
		string(pageError.Description),
		pageError.Exception,
		pageError.HTMLHash,
		pageError.RawPayload,
		pageError.Errors,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record page error: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_PAGE_ERROR] Page error recorded", logging.Fields{
		"page_error_id": pageError.ID,
		"url":           pageError.URL,
		"description":   pageError.Description,
		"count":         pageError.Count,
	})

	return pageError, nil
}

// ListPageErrors returns the most recently seen page errors
func (r *scraperRepository) ListPageErrors(ctx context.Context, limit int) ([]*models.PageError, error) {
	query := `
		SELECT id, fingerprint, url, description, exception, html_hash,
		       raw_payload, errors, count, created_at, updated_at
		FROM page_error
		ORDER BY updated_at DESC, id DESC
		LIMIT $1
	`

	var pageErrors []*models.PageError
	if err := r.db.SelectContext(ctx, "list_page_errors", &pageErrors, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list page errors: %w", err)
	}
	return pageErrors, nil
}

// HealthCheck performs a repository health check
func (r *scraperRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// postgresSessionTx implements SessionTx on one sqlx transaction
type postgresSessionTx struct {
	tx      *sqlx.Tx
	session *models.Session
	repo    *scraperRepository
}

func (t *postgresSessionTx) observe(queryType string, start time.Time) {
	t.repo.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(start).Seconds())
}

// InsertPage stores one extracted page
func (t *postgresSessionTx) InsertPage(ctx context.Context, page *models.Page) error {
	defer t.observe("insert_page", time.Now())

	if page.CreatedAt.IsZero() {
		page.CreatedAt = time.Now().UTC()
	}
	page.SessionID = t.session.ID

	query := `
		INSERT INTO page (session_id, path, issued_at, raw_payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := t.tx.GetContext(ctx, &page.ID, query,
		page.SessionID,
		page.Path,
		page.IssuedAt,
		page.RawPayload,
		page.CreatedAt,
	)
	if err != nil {
		t.repo.metrics.RecordDBError("exec_error")
		return fmt.Errorf("failed to insert page %s: %w", page.Path, err)
	}
	return nil
}

// InsertForecasts stores forecast records with a prepared statement
func (t *postgresSessionTx) InsertForecasts(ctx context.Context, forecasts []*models.ForecastDaily) error {
	if len(forecasts) == 0 {
		return nil
	}
	defer t.observe("insert_forecasts", time.Now())

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO forecast_daily (
			session_id, location_id, date, summary,
			min_temp, max_temp, min_humidity, max_humidity, issued_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range forecasts {
		f.SessionID = t.session.ID
		_, err := stmt.ExecContext(ctx,
			f.SessionID,
			f.LocationID,
			f.Date.Format("2006-01-02"),
			f.Summary,
			f.MinTemp,
			f.MaxTemp,
			f.MinHumidity,
			f.MaxHumidity,
			f.IssuedAt,
		)
		if err != nil {
			t.repo.metrics.RecordDBError("exec_error")
			return fmt.Errorf("failed to insert forecast for location %d on %s: %w",
				f.LocationID, f.Date.Format("2006-01-02"), err)
		}
	}
	return nil
}

// InsertWarnings stores warning records
func (t *postgresSessionTx) InsertWarnings(ctx context.Context, warnings []*models.WeatherWarning) error {
	if len(warnings) == 0 {
		return nil
	}
	defer t.observe("insert_warnings", time.Now())

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO weather_warning (session_id, date, issued_at, no_current_warning, body)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, w := range warnings {
		w.SessionID = t.session.ID
		if _, err := stmt.ExecContext(ctx, w.SessionID, w.Date, w.IssuedAt, w.NoCurrentWarning, w.Body); err != nil {
			t.repo.metrics.RecordDBError("exec_error")
			return fmt.Errorf("failed to insert warning %d: %w", i, err)
		}
	}
	return nil
}

// InsertMedia stores forecast media records
func (t *postgresSessionTx) InsertMedia(ctx context.Context, media []*models.ForecastMedia) error {
	defer t.observe("insert_media", time.Now())

	query := `
		INSERT INTO forecast_media (session_id, issued_at, summary, image_urls)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	for _, m := range media {
		m.SessionID = t.session.ID
		if err := t.tx.GetContext(ctx, &m.ID, query, m.SessionID, m.IssuedAt, m.Summary, m.ImageURLs); err != nil {
			t.repo.metrics.RecordDBError("exec_error")
			return fmt.Errorf("failed to insert media: %w", err)
		}
	}
	return nil
}

// CompleteSession sets completed_at inside the transaction
func (t *postgresSessionTx) CompleteSession(ctx context.Context, completedAt time.Time) error {
	defer t.observe("complete_session", time.Now())

	completedAt = completedAt.UTC()
	query := `UPDATE scraper_session SET completed_at = $2 WHERE id = $1 AND completed_at IS NULL`

	result, err := t.tx.ExecContext(ctx, query, t.session.ID, completedAt)
	if err != nil {
		t.repo.metrics.RecordDBError("exec_error")
		return fmt.Errorf("failed to complete session: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{Resource: "open_session", ID: strconv.FormatInt(t.session.ID, 10)}
	}

	t.session.CompletedAt = &completedAt
	return nil
}

// Commit commits the session transaction
func (t *postgresSessionTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		t.session.CompletedAt = nil
		t.repo.metrics.RecordDBError("transaction_commit_error")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the session transaction
func (t *postgresSessionTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	if err == nil {
		t.session.CompletedAt = nil
	}
	return err
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
