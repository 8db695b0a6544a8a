// Package aggregate merges the extracted pages of one session into domain
// records. Aggregators are pure: they never touch storage, and location
// rows are returned as inputs for the caller to upsert.
package aggregate

import (
	"fmt"
	"strings"

	"vmgd-scraper/internal/models"
)

// Aggregator turns a session's pages, in page-set order, into records.
type Aggregator interface {
	Aggregate(pages []*models.Page) (*Result, error)
}

// LocationInput is a location discovered by an aggregator.
type LocationInput struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Result holds everything an aggregation pass produced. Forecast records
// reference their location by LocationName until it is resolved to an id.
type Result struct {
	Locations []LocationInput
	Forecasts []*models.ForecastDaily
	Warnings  []*models.WeatherWarning
	Media     []*models.ForecastMedia
}

// Count returns the number of derived records.
func (r *Result) Count() int {
	return len(r.Forecasts) + len(r.Warnings) + len(r.Media)
}

// Error is a fatal aggregation failure. The whole session is discarded.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("aggregation failed: %s: %v", e.Reason, e.Err)
	}
	return "aggregation failed: " + e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient is false: the same pages always aggregate the same way.
func (e *Error) IsTransient() bool {
	return false
}

func fail(err error, format string, args ...interface{}) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...), Err: err}
}

func expectPages(pages []*models.Page, n int) error {
	if len(pages) != n {
		return fail(nil, "expected %d page(s), got %d", n, len(pages))
	}
	for i, p := range pages {
		if p == nil || p.Payload == nil {
			return fail(nil, "page %d has no payload", i)
		}
	}
	return nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
