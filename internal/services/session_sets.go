package services

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"vmgd-scraper/internal/aggregate"
	"vmgd-scraper/internal/models"
	"vmgd-scraper/internal/scraper"
)

// SessionDefinition is the page set of one session kind and the aggregator
// that merges it. Pages are processed in the listed order.
type SessionDefinition struct {
	Kind       models.SessionKind
	Pages      []scraper.PageSpec
	Aggregator aggregate.Aggregator
}

// DefaultSessionSets returns the page sets for every session kind.
func DefaultSessionSets(clock clockwork.Clock) map[models.SessionKind]SessionDefinition {
	warnings := aggregate.NewWarningAggregator(clock)

	defs := []SessionDefinition{
		{
			Kind:       models.SessionForecastGeneral,
			Pages:      pageSet(scraper.PageForecastMap, scraper.PageForecastWeek),
			Aggregator: aggregate.NewForecastAggregator(),
		},
		{
			Kind:       models.SessionForecastMedia,
			Pages:      pageSet(scraper.PageForecastMedia),
			Aggregator: aggregate.NewMediaAggregator(),
		},
		{
			Kind:       models.SessionWarningBulletin,
			Pages:      pageSet(scraper.PageWarningBulletin),
			Aggregator: warnings,
		},
		{
			Kind:       models.SessionWarningSevereWeather,
			Pages:      pageSet(scraper.PageWarningSevereWeather),
			Aggregator: warnings,
		},
		{
			Kind:       models.SessionWarningMarine,
			Pages:      pageSet(scraper.PageWarningMarine),
			Aggregator: warnings,
		},
		{
			Kind:       models.SessionWarningHighSeas,
			Pages:      pageSet(scraper.PageWarningHighSeas),
			Aggregator: warnings,
		},
	}

	out := make(map[models.SessionKind]SessionDefinition, len(defs))
	for _, d := range defs {
		out[d.Kind] = d
	}
	return out
}

func pageSet(kinds ...scraper.PageKind) []scraper.PageSpec {
	specs := make([]scraper.PageSpec, len(kinds))
	for i, kind := range kinds {
		spec, ok := scraper.SpecForKind(kind)
		if !ok {
			panic(fmt.Sprintf("no page spec for %s", kind))
		}
		specs[i] = spec
	}
	return specs
}
