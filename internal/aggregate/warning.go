package aggregate

import (
	"github.com/jonboulle/clockwork"

	"vmgd-scraper/internal/dates"
	"vmgd-scraper/internal/models"
	"vmgd-scraper/internal/scraper"
)

// WarningAggregator turns one warning page into warning records.
type WarningAggregator struct {
	clock clockwork.Clock
}

// NewWarningAggregator returns a WarningAggregator. The clock dates the
// no-current-warning marker.
func NewWarningAggregator(clock clockwork.Clock) *WarningAggregator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WarningAggregator{clock: clock}
}

// Aggregate implements Aggregator.
func (a *WarningAggregator) Aggregate(pages []*models.Page) (*Result, error) {
	if err := expectPages(pages, 1); err != nil {
		return nil, err
	}
	page := pages[0]

	payload, ok := page.Payload.(*scraper.WarningPayload)
	if !ok {
		return nil, fail(nil, "page %s: unexpected payload %T", page.Path, page.Payload)
	}
	issuedAt := page.IssuedAt.UTC()

	if payload.NoCurrentWarning {
		return &Result{Warnings: []*models.WeatherWarning{{
			Date:             a.clock.Now().UTC(),
			IssuedAt:         issuedAt,
			NoCurrentWarning: true,
		}}}, nil
	}
	if len(payload.Items) == 0 {
		return nil, fail(nil, "page %s: no warning items", page.Path)
	}

	result := &Result{Warnings: make([]*models.WeatherWarning, 0, len(payload.Items))}
	for i, item := range payload.Items {
		date, err := dates.ParseWarningDate(item.Date)
		if err != nil {
			return nil, fail(err, "warning %d date", i)
		}
		body := item.Body
		result.Warnings = append(result.Warnings, &models.WeatherWarning{
			Date:     date,
			IssuedAt: issuedAt,
			Body:     &body,
		})
	}
	return result, nil
}
