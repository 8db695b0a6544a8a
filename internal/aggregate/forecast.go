package aggregate

import (
	"sort"
	"strings"
	"time"

	"vmgd-scraper/internal/dates"
	"vmgd-scraper/internal/models"
	"vmgd-scraper/internal/scraper"
)

// ForecastAggregator merges the forecast map feed (page 0) with the 7-day
// feed (page 1) into one record per location and day.
type ForecastAggregator struct{}

// NewForecastAggregator returns a ForecastAggregator.
func NewForecastAggregator() *ForecastAggregator {
	return &ForecastAggregator{}
}

// Aggregate implements Aggregator. Both feeds must be issued on the same
// Vanuatu calendar day and list the same locations; every location's days
// must resolve to the same sequential dates in both feeds.
func (a *ForecastAggregator) Aggregate(pages []*models.Page) (*Result, error) {
	if err := expectPages(pages, 2); err != nil {
		return nil, err
	}
	mapPage, weekPage := pages[0], pages[1]

	mapFeed, ok := mapPage.Payload.(*scraper.ForecastMapPayload)
	if !ok {
		return nil, fail(nil, "page %s: unexpected payload %T", mapPage.Path, mapPage.Payload)
	}
	weekFeed, ok := weekPage.Payload.(*scraper.ForecastWeekPayload)
	if !ok {
		return nil, fail(nil, "page %s: unexpected payload %T", weekPage.Path, weekPage.Payload)
	}

	mapIssued := mapPage.IssuedAt.In(dates.Vanuatu)
	weekIssued := weekPage.IssuedAt.In(dates.Vanuatu)
	if !dates.SameDay(mapIssued, weekIssued) {
		return nil, fail(nil, "issue days differ: %s vs %s",
			mapIssued.Format("2006-01-02"), weekIssued.Format("2006-01-02"))
	}

	weekByName := make(map[string]scraper.WeekLocation, len(weekFeed.Locations))
	for _, loc := range weekFeed.Locations {
		key := nameKey(loc.Location)
		if _, dup := weekByName[key]; dup {
			return nil, fail(nil, "7-day forecast lists %s twice", loc.Location)
		}
		weekByName[key] = loc
	}
	if err := sameLocations(mapFeed, weekByName); err != nil {
		return nil, err
	}

	result := &Result{}
	for _, mapLoc := range mapFeed.Locations {
		weekLoc := weekByName[nameKey(mapLoc.Location)]

		records, err := mergeLocation(mapLoc, weekLoc, mapIssued, weekIssued)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			r.IssuedAt = mapPage.IssuedAt.UTC()
		}

		result.Locations = append(result.Locations, LocationInput{
			Name:      mapLoc.Location,
			Latitude:  mapLoc.Latitude,
			Longitude: mapLoc.Longitude,
		})
		result.Forecasts = append(result.Forecasts, records...)
	}
	return result, nil
}

func sameLocations(mapFeed *scraper.ForecastMapPayload, week map[string]scraper.WeekLocation) error {
	mapNames := make(map[string]bool, len(mapFeed.Locations))
	var missing []string
	for _, loc := range mapFeed.Locations {
		key := nameKey(loc.Location)
		mapNames[key] = true
		if _, ok := week[key]; !ok {
			missing = append(missing, loc.Location)
		}
	}
	for key, loc := range week {
		if !mapNames[key] {
			missing = append(missing, loc.Location)
		}
	}
	if len(mapNames) != len(mapFeed.Locations) {
		return fail(nil, "forecast map lists a location twice")
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fail(nil, "location sets differ: %s", strings.Join(missing, ", "))
	}
	return nil
}

func mergeLocation(m scraper.LocationForecast, w scraper.WeekLocation, mapIssued, weekIssued time.Time) ([]*models.ForecastDaily, error) {
	n := m.Days()
	if len(m.MaxTemp) != n || len(m.MinHumidity) != n || len(m.MaxHumidity) != n {
		return nil, fail(nil, "%s: series lengths differ (min temp %d, max temp %d, min humidity %d, max humidity %d)",
			m.Location, n, len(m.MaxTemp), len(m.MinHumidity), len(m.MaxHumidity))
	}
	if len(m.Dates) < n {
		return nil, fail(nil, "%s: %d dates for %d days", m.Location, len(m.Dates), n)
	}
	mapDates, err := resolveSeries(m.Dates[:n], mapIssued)
	if err != nil {
		return nil, fail(err, "%s: forecast map dates", m.Location)
	}

	weekStrings := make([]string, len(w.Days))
	for i, d := range w.Days {
		weekStrings[i] = d.Date
	}
	weekDates, err := resolveSeries(weekStrings, weekIssued)
	if err != nil {
		return nil, fail(err, "%s: 7-day dates", m.Location)
	}

	if len(mapDates) != len(weekDates) {
		return nil, fail(nil, "%s: %d map days vs %d 7-day days", m.Location, len(mapDates), len(weekDates))
	}

	records := make([]*models.ForecastDaily, 0, n)
	for i := range mapDates {
		if !dates.SameDay(mapDates[i], weekDates[i]) {
			return nil, fail(nil, "%s: day %d is %s in the map feed and %s in the 7-day feed", m.Location, i,
				mapDates[i].Format("2006-01-02"), weekDates[i].Format("2006-01-02"))
		}
		day := w.Days[i]
		y, mo, d := mapDates[i].Date()
		records = append(records, &models.ForecastDaily{
			LocationName: m.Location,
			Date:         time.Date(y, mo, d, 0, 0, 0, 0, time.UTC),
			Summary:      day.Summary,
			MinTemp:      min(m.MinTemp[i], day.MinTemp),
			MaxTemp:      max(m.MaxTemp[i], day.MaxTemp),
			MinHumidity:  m.MinHumidity[i],
			MaxHumidity:  m.MaxHumidity[i],
		})
	}
	return records, nil
}

func resolveSeries(dayStrings []string, issued time.Time) ([]time.Time, error) {
	resolved, err := dates.ResolveAll(dayStrings, issued)
	if err != nil {
		return nil, err
	}
	return dates.VerifySequential(resolved)
}
