package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmgd-scraper/internal/models"
)

func TestMemoryRepository_CommitMakesRecordsVisible(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2023, 5, 5, 0, 0, 0, 0, time.UTC))
	repo := NewMemoryRepository(clock)

	session, err := repo.CreateSession(ctx, models.SessionWarningMarine, clock.Now())
	require.NoError(t, err)

	tx, err := repo.BeginSession(ctx, session)
	require.NoError(t, err)
	require.NoError(t, tx.InsertPage(ctx, &models.Page{Path: "/warnings/marine-warning"}))
	require.NoError(t, tx.InsertWarnings(ctx, []*models.WeatherWarning{{NoCurrentWarning: true}}))
	require.NoError(t, tx.CompleteSession(ctx, clock.Now()))

	_, err = repo.GetLatestCompletedSession(ctx, models.SessionWarningMarine)
	assert.Error(t, err, "completion must not be visible before commit")
	assert.Empty(t, repo.Pages(session.ID))

	require.NoError(t, tx.Commit())

	latest, err := repo.GetLatestCompletedSession(ctx, models.SessionWarningMarine)
	require.NoError(t, err)
	assert.Equal(t, session.ID, latest.ID)
	assert.Len(t, repo.Pages(session.ID), 1)

	warnings, err := repo.ListWarnings(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, session.ID, warnings[0].SessionID)
}

func TestMemoryRepository_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(clockwork.NewFakeClock())

	session, err := repo.CreateSession(ctx, models.SessionForecastMedia, time.Now())
	require.NoError(t, err)

	tx, err := repo.BeginSession(ctx, session)
	require.NoError(t, err)
	require.NoError(t, tx.InsertMedia(ctx, []*models.ForecastMedia{{Summary: "x"}}))
	require.NoError(t, tx.CompleteSession(ctx, time.Now()))
	require.NoError(t, tx.Rollback())

	assert.Error(t, tx.Commit())
	media, err := repo.ListMedia(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, media)

	require.NoError(t, repo.MarkSessionFailed(ctx, session.ID, models.ErrorAggregationFailed, "boom"))
	stored := repo.Sessions()[0]
	assert.Nil(t, stored.CompletedAt)
	require.NotNil(t, stored.FailureCode)
	assert.Equal(t, "AGGREGATION_FAILED", *stored.FailureCode)
}

func TestMemoryRepository_LatestCompletedSession(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(clockwork.NewFakeClock())
	base := time.Date(2023, 5, 5, 0, 0, 0, 0, time.UTC)

	complete := func(started time.Time) *models.Session {
		s, err := repo.CreateSession(ctx, models.SessionForecastGeneral, started)
		require.NoError(t, err)
		tx, err := repo.BeginSession(ctx, s)
		require.NoError(t, err)
		require.NoError(t, tx.CompleteSession(ctx, started.Add(time.Minute)))
		require.NoError(t, tx.Commit())
		return s
	}

	older := complete(base)
	newer := complete(base.Add(time.Hour))
	_, err := repo.CreateSession(ctx, models.SessionForecastGeneral, base.Add(2*time.Hour))
	require.NoError(t, err)

	latest, err := repo.GetLatestCompletedSession(ctx, models.SessionForecastGeneral)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
	assert.NotEqual(t, older.ID, latest.ID)

	var notFound *NotFoundError
	_, err = repo.GetLatestCompletedSession(ctx, models.SessionWarningBulletin)
	assert.True(t, errors.As(err, &notFound))
}

func TestMemoryRepository_SaveLocationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(clockwork.NewFakeClock())

	var wg sync.WaitGroup
	ids := make([]int64, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "Port Vila"
			if i%2 == 1 {
				name = "PORT VILA"
			}
			loc, err := repo.SaveLocation(ctx, name, -17.7, 168.3)
			require.NoError(t, err)
			ids[i] = loc.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, repo.Locations(), 1)
}

func TestMemoryRepository_RecordPageErrorDedup(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	repo := NewMemoryRepository(clock)

	newErr := func(exception string) *models.PageError {
		return &models.PageError{URL: "https://vmgd.test/x", Description: models.ErrorNotFound, Exception: exception}
	}

	first, err := repo.RecordPageError(ctx, newErr("404"))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count)

	clock.Advance(time.Minute)
	second, err := repo.RecordPageError(ctx, newErr("404"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Count)
	assert.True(t, second.UpdatedAt.After(second.CreatedAt))

	_, err = repo.RecordPageError(ctx, newErr("410"))
	require.NoError(t, err)

	all, err := repo.ListPageErrors(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryRepository_DuplicateForecastRejected(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(clockwork.NewFakeClock())
	session, err := repo.CreateSession(ctx, models.SessionForecastGeneral, time.Now())
	require.NoError(t, err)
	tx, err := repo.BeginSession(ctx, session)
	require.NoError(t, err)

	day := time.Date(2023, 5, 5, 0, 0, 0, 0, time.UTC)
	err = tx.InsertForecasts(ctx, []*models.ForecastDaily{
		{LocationID: 1, Date: day},
		{LocationID: 1, Date: day},
	})
	assert.Error(t, err)
}
