package aggregate

import (
	"vmgd-scraper/internal/models"
	"vmgd-scraper/internal/scraper"
)

// MediaAggregator stores the public forecast summary and its images.
type MediaAggregator struct{}

// NewMediaAggregator returns a MediaAggregator.
func NewMediaAggregator() *MediaAggregator {
	return &MediaAggregator{}
}

// Aggregate implements Aggregator.
func (a *MediaAggregator) Aggregate(pages []*models.Page) (*Result, error) {
	if err := expectPages(pages, 1); err != nil {
		return nil, err
	}
	page := pages[0]

	payload, ok := page.Payload.(*scraper.ForecastMediaPayload)
	if !ok {
		return nil, fail(nil, "page %s: unexpected payload %T", page.Path, page.Payload)
	}

	images := make([]string, len(payload.Images))
	copy(images, payload.Images)
	return &Result{Media: []*models.ForecastMedia{{
		IssuedAt:  page.IssuedAt.UTC(),
		Summary:   payload.Summary,
		ImageURLs: images,
	}}}, nil
}
