package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"vmgd-scraper/internal/dates"
)

// DailyForecast is one day row of the 7-day public forecast.
type DailyForecast struct {
	Date    string `json:"date" validate:"required"`
	Summary string `json:"summary" validate:"required"`
	MinTemp int    `json:"min_temp" validate:"gte=0,lte=50"`
	MaxTemp int    `json:"max_temp" validate:"gte=0,lte=50"`
}

// WeekLocation is one location table of the 7-day public forecast.
type WeekLocation struct {
	Location string          `json:"location" validate:"required"`
	Days     []DailyForecast `json:"days" validate:"min=1,dive"`
}

// ForecastWeekPayload is the extracted 7-day public forecast page.
type ForecastWeekPayload struct {
	Locations []WeekLocation `json:"locations" validate:"min=1,dive"`
}

const weekIssuedMarker = "Port Vila at"

var (
	minTempPattern = regexp.MustCompile(`(?i)\bmin(?:imum)?\s*:?\s*(-?\d+)`)
	maxTempPattern = regexp.MustCompile(`(?i)\bmax(?:imum)?\s*:?\s*(-?\d+)`)
)

// ExtractForecastWeek parses one table per location from the 7-day page.
func ExtractForecastWeek(html string) (Extraction, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return Extraction{}, err
	}

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Selection
	}

	tables := root.Find("table")
	if tables.Length() == 0 {
		return Extraction{}, notFound(html, "no forecast tables")
	}

	payload := &ForecastWeekPayload{}
	var rowErrors []ValidationIssue
	tables.Each(func(ti int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() == 0 {
			return
		}
		loc := WeekLocation{Location: cleanText(rows.First().Text())}
		rows.Slice(1, goquery.ToEnd).Each(func(ri int, row *goquery.Selection) {
			text := cleanText(row.Text())
			if text == "" {
				return
			}
			day, err := parseDayRow(text)
			if err != nil {
				rowErrors = append(rowErrors, ValidationIssue{
					Field: fmt.Sprintf("tables[%d].rows[%d]", ti, ri+1),
					Rule:  "row",
					Value: err.Error(),
				})
				return
			}
			loc.Days = append(loc.Days, day)
		})
		payload.Locations = append(payload.Locations, loc)
	})

	if len(rowErrors) > 0 {
		return Extraction{}, &ScrapingError{
			Kind:    ScrapeValidationFailed,
			Message: fmt.Sprintf("%d unparseable forecast row(s)", len(rowErrors)),
			HTML:    html,
			RawData: payload,
			Errors:  rowErrors,
		}
	}
	if len(payload.Locations) == 0 {
		return Extraction{}, notFound(html, "forecast tables have no rows")
	}
	if err := validatePayload(html, payload); err != nil {
		return Extraction{}, err
	}

	var issuedText string
	root.Find("strong").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(strings.ToLower(text), strings.ToLower(weekIssuedMarker)) {
			issuedText = text
			return false
		}
		return true
	})
	issuedAt, err := dates.ParseIssuedAt(issuedText, weekIssuedMarker)
	if err != nil {
		return Extraction{Payload: payload}, &ScrapingError{
			Kind:    ScrapeIssuedAtNotFound,
			HTML:    html,
			RawData: payload,
			Err:     err,
		}
	}

	return Extraction{IssuedAt: issuedAt, Payload: payload}, nil
}

// parseDayRow reads "Friday 05 : Partly cloudy. Min: 22 °C Max: 29 °C".
func parseDayRow(text string) (DailyForecast, error) {
	date, rest, ok := strings.Cut(text, ":")
	if !ok {
		return DailyForecast{}, fmt.Errorf("no date separator in %q", text)
	}

	summary := rest
	if i := strings.Index(rest, "."); i >= 0 {
		summary = rest[:i]
	} else if loc := minTempPattern.FindStringIndex(rest); loc != nil {
		summary = rest[:loc[0]]
	}

	minTemp, err := matchInt(minTempPattern, rest)
	if err != nil {
		return DailyForecast{}, fmt.Errorf("min temperature: %w", err)
	}
	maxTemp, err := matchInt(maxTempPattern, rest)
	if err != nil {
		return DailyForecast{}, fmt.Errorf("max temperature: %w", err)
	}

	return DailyForecast{
		Date:    strings.TrimSpace(date),
		Summary: strings.TrimSpace(summary),
		MinTemp: minTemp,
		MaxTemp: maxTemp,
	}, nil
}

func matchInt(re *regexp.Regexp, s string) (int, error) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("not found in %q", s)
	}
	return strconv.Atoi(m[1])
}
