package scraper

import (
	"path"
	"strings"
)

// PageKind selects the extractor for a page.
type PageKind string

const (
	PageForecastMap          PageKind = "forecast_map"
	PageForecastWeek         PageKind = "forecast_week"
	PageForecastMedia        PageKind = "forecast_media"
	PageWarningBulletin      PageKind = "warning_bulletin"
	PageWarningSevereWeather PageKind = "warning_severe_weather"
	PageWarningMarine        PageKind = "warning_marine"
	PageWarningHighSeas      PageKind = "warning_high_seas"
)

// CacheStrategy controls the debug page cache for one page.
type CacheStrategy int

const (
	// CacheDebug reads and writes the on-disk cache when it is enabled.
	CacheDebug CacheStrategy = iota
	// CacheNever always goes to the network.
	CacheNever
)

// PageSpec is a static description of one page in a session.
type PageSpec struct {
	Kind  PageKind
	Path  string
	Cache CacheStrategy
	// IssuedAtFallback lets the session start time stand in when the page
	// carries no issued-at timestamp.
	IssuedAtFallback bool
}

// URL joins the page path onto the site base URL.
func (p PageSpec) URL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(p.Path, "/")
}

// Slug is the last path segment, used as the cache file name.
func (p PageSpec) Slug() string {
	slug := path.Base(strings.TrimRight(p.Path, "/"))
	if slug == "." || slug == "/" {
		return "index"
	}
	return slug
}

// Page paths on the bureau site.
const (
	PathForecastMap          = "/forecast-division"
	PathForecastWeek         = "/forecast-division/public-forecast/7-day"
	PathForecastMedia        = "/forecast-division/public-forecast/media"
	PathWarningBulletin      = "/forecast-division/warnings/current-bulletin"
	PathWarningSevereWeather = "/forecast-division/warnings/severe-weather-warning"
	PathWarningMarine        = "/forecast-division/warnings/marine-warning"
	PathWarningHighSeas      = "/forecast-division/warnings/hight-seas-warning"
)

// KnownPages lists every page the scraper understands.
var KnownPages = []PageSpec{
	{Kind: PageForecastMap, Path: PathForecastMap},
	{Kind: PageForecastWeek, Path: PathForecastWeek},
	{Kind: PageForecastMedia, Path: PathForecastMedia},
	{Kind: PageWarningBulletin, Path: PathWarningBulletin, IssuedAtFallback: true},
	{Kind: PageWarningSevereWeather, Path: PathWarningSevereWeather, IssuedAtFallback: true},
	{Kind: PageWarningMarine, Path: PathWarningMarine, IssuedAtFallback: true},
	{Kind: PageWarningHighSeas, Path: PathWarningHighSeas, IssuedAtFallback: true},
}

// SpecForKind returns the known spec for kind.
func SpecForKind(kind PageKind) (PageSpec, bool) {
	for _, spec := range KnownPages {
		if spec.Kind == kind {
			return spec, true
		}
	}
	return PageSpec{}, false
}

// SpecForSlug returns the known spec whose path ends in slug.
func SpecForSlug(slug string) (PageSpec, bool) {
	for _, spec := range KnownPages {
		if spec.Slug() == slug {
			return spec, true
		}
	}
	return PageSpec{}, false
}
