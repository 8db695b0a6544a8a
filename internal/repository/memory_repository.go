package repository

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"vmgd-scraper/internal/models"
)

// MemoryRepository is an in-process ScraperRepository. Rows live in an
// arena keyed by session id; session transactions buffer their writes and
// apply them on Commit. Backs tests and scraper dry runs.
type MemoryRepository struct {
	mu    sync.RWMutex
	clock clockwork.Clock

	nextID     int64
	sessions   map[int64]*models.Session
	pages      map[int64][]*models.Page
	forecasts  map[int64][]*models.ForecastDaily
	warnings   map[int64][]*models.WeatherWarning
	media      map[int64][]*models.ForecastMedia
	locations  map[string]*models.Location
	pageErrors map[string]*models.PageError
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository(clock clockwork.Clock) *MemoryRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryRepository{
		clock:      clock,
		sessions:   make(map[int64]*models.Session),
		pages:      make(map[int64][]*models.Page),
		forecasts:  make(map[int64][]*models.ForecastDaily),
		warnings:   make(map[int64][]*models.WeatherWarning),
		media:      make(map[int64][]*models.ForecastMedia),
		locations:  make(map[string]*models.Location),
		pageErrors: make(map[string]*models.PageError),
	}
}

var _ ScraperRepository = (*MemoryRepository)(nil)

func (m *MemoryRepository) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryRepository) CreateSession(_ context.Context, kind models.SessionKind, startedAt time.Time) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := &models.Session{ID: m.id(), Kind: kind, StartedAt: startedAt.UTC()}
	m.sessions[session.ID] = session
	out := *session
	return &out, nil
}

func (m *MemoryRepository) BeginSession(_ context.Context, session *models.Session) (SessionTx, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[session.ID]; !ok {
		return nil, &NotFoundError{Resource: "session", ID: strconv.FormatInt(session.ID, 10)}
	}
	return &memorySessionTx{repo: m, session: session}, nil
}

func (m *MemoryRepository) MarkSessionFailed(_ context.Context, sessionID int64, code models.ErrorCode, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return &NotFoundError{Resource: "session", ID: strconv.FormatInt(sessionID, 10)}
	}
	if session.CompletedAt == nil {
		c := string(code)
		session.FailureCode = &c
		session.FailureReason = &reason
	}
	return nil
}

func (m *MemoryRepository) GetLatestCompletedSession(_ context.Context, kind models.SessionKind) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *models.Session
	for _, s := range m.sessions {
		if s.Kind != kind || s.CompletedAt == nil {
			continue
		}
		if latest == nil || s.StartedAt.After(latest.StartedAt) ||
			(s.StartedAt.Equal(latest.StartedAt) && s.ID > latest.ID) {
			latest = s
		}
	}
	if latest == nil {
		return nil, &NotFoundError{Resource: "completed_session", ID: string(kind)}
	}
	out := *latest
	return &out, nil
}

func (m *MemoryRepository) ListForecasts(_ context.Context, sessionID int64) ([]*models.ForecastDaily, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyRows(m.forecasts[sessionID]), nil
}

func (m *MemoryRepository) ListWarnings(_ context.Context, sessionID int64) ([]*models.WeatherWarning, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyRows(m.warnings[sessionID]), nil
}

func (m *MemoryRepository) ListMedia(_ context.Context, sessionID int64) ([]*models.ForecastMedia, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyRows(m.media[sessionID]), nil
}

func (m *MemoryRepository) SaveLocation(_ context.Context, name string, latitude, longitude float64) (*models.Location, error) {
	location, err := models.NewLocation(name, latitude, longitude)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(location.Name)
	if existing, ok := m.locations[key]; ok {
		out := *existing
		return &out, nil
	}
	location.ID = m.id()
	m.locations[key] = location
	out := *location
	return &out, nil
}

func (m *MemoryRepository) RecordPageError(_ context.Context, pageError *models.PageError) (*models.PageError, error) {
	if pageError.Fingerprint == "" {
		pageError.ComputeFingerprint()
	}
	now := pageError.UpdatedAt
	if now.IsZero() {
		now = m.clock.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.pageErrors[pageError.Fingerprint]; ok {
		existing.Count++
		existing.UpdatedAt = now
		out := *existing
		return &out, nil
	}

	stored := *pageError
	stored.ID = m.id()
	stored.Count = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.pageErrors[stored.Fingerprint] = &stored
	out := stored
	return &out, nil
}

func (m *MemoryRepository) ListPageErrors(_ context.Context, limit int) ([]*models.PageError, error) {
	out := m.PageErrors()
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) HealthCheck(context.Context) error {
	return nil
}

// Sessions returns every session ordered by id.
func (m *MemoryRepository) Sessions() []*models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Pages returns the committed pages of a session.
func (m *MemoryRepository) Pages(sessionID int64) []*models.Page {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyRows(m.pages[sessionID])
}

// Locations returns every location ordered by id.
func (m *MemoryRepository) Locations() []*models.Location {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Location, 0, len(m.locations))
	for _, l := range m.locations {
		c := *l
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PageErrors returns every page error ordered by id.
func (m *MemoryRepository) PageErrors() []*models.PageError {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.PageError, 0, len(m.pageErrors))
	for _, e := range m.pageErrors {
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copyRows[T any](rows []*T) []*T {
	out := make([]*T, len(rows))
	for i, r := range rows {
		c := *r
		out[i] = &c
	}
	return out
}

// memorySessionTx buffers a session's writes until Commit.
type memorySessionTx struct {
	repo    *MemoryRepository
	session *models.Session

	pages       []*models.Page
	forecasts   []*models.ForecastDaily
	warnings    []*models.WeatherWarning
	media       []*models.ForecastMedia
	completedAt *time.Time
	done        bool
}

func (t *memorySessionTx) InsertPage(_ context.Context, page *models.Page) error {
	if t.done {
		return errTxDone
	}
	page.SessionID = t.session.ID
	if page.CreatedAt.IsZero() {
		page.CreatedAt = t.repo.clock.Now().UTC()
	}
	t.pages = append(t.pages, page)
	return nil
}

func (t *memorySessionTx) InsertForecasts(_ context.Context, forecasts []*models.ForecastDaily) error {
	if t.done {
		return errTxDone
	}
	seen := make(map[string]bool, len(forecasts))
	for _, f := range append(t.forecasts, forecasts...) {
		key := strconv.FormatInt(f.LocationID, 10) + "/" + f.Date.Format("2006-01-02")
		if seen[key] {
			return &duplicateError{key: key}
		}
		seen[key] = true
	}
	for _, f := range forecasts {
		f.SessionID = t.session.ID
	}
	t.forecasts = append(t.forecasts, forecasts...)
	return nil
}

func (t *memorySessionTx) InsertWarnings(_ context.Context, warnings []*models.WeatherWarning) error {
	if t.done {
		return errTxDone
	}
	for _, w := range warnings {
		w.SessionID = t.session.ID
	}
	t.warnings = append(t.warnings, warnings...)
	return nil
}

func (t *memorySessionTx) InsertMedia(_ context.Context, media []*models.ForecastMedia) error {
	if t.done {
		return errTxDone
	}
	for _, m := range media {
		m.SessionID = t.session.ID
	}
	t.media = append(t.media, media...)
	return nil
}

func (t *memorySessionTx) CompleteSession(_ context.Context, completedAt time.Time) error {
	if t.done {
		return errTxDone
	}
	c := completedAt.UTC()
	t.completedAt = &c
	return nil
}

func (t *memorySessionTx) Commit() error {
	if t.done {
		return errTxDone
	}
	t.done = true

	m := t.repo
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[t.session.ID]
	if !ok {
		return &NotFoundError{Resource: "session", ID: strconv.FormatInt(t.session.ID, 10)}
	}
	for _, p := range t.pages {
		p.ID = m.id()
	}
	for _, f := range t.forecasts {
		f.ID = m.id()
	}
	for _, w := range t.warnings {
		w.ID = m.id()
	}
	for _, md := range t.media {
		md.ID = m.id()
	}

	id := t.session.ID
	m.pages[id] = append(m.pages[id], copyRows(t.pages)...)
	m.forecasts[id] = append(m.forecasts[id], copyRows(t.forecasts)...)
	m.warnings[id] = append(m.warnings[id], copyRows(t.warnings)...)
	m.media[id] = append(m.media[id], copyRows(t.media)...)
	if t.completedAt != nil && session.CompletedAt == nil {
		session.CompletedAt = t.completedAt
		t.session.CompletedAt = t.completedAt
	}
	return nil
}

func (t *memorySessionTx) Rollback() error {
	t.done = true
	t.pages, t.forecasts, t.warnings, t.media, t.completedAt = nil, nil, nil, nil, nil
	return nil
}

var errTxDone = errors.New("session transaction already finished")

type duplicateError struct {
	key string
}

func (e *duplicateError) Error() string {
	return "duplicate forecast for location/date " + e.key
}
