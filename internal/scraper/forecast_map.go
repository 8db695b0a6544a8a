package scraper

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"vmgd-scraper/internal/dates"
)

// LocationForecast is one location of the forecast map feed. The source
// ships it as a positional array; see decodeLocationTuple.
type LocationForecast struct {
	Location         string    `json:"location" validate:"required"`
	Latitude         float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude        float64   `json:"longitude" validate:"gte=-180,lte=180"`
	Dates            []string  `json:"dates" validate:"len=8,dive,required"`
	MinTemp          []int     `json:"min_temp" validate:"len=7"`
	MaxTemp          []int     `json:"max_temp" validate:"len=7"`
	MinHumidity      []int     `json:"min_humidity" validate:"len=7,dive,gte=0,lte=100"`
	MaxHumidity      []int     `json:"max_humidity" validate:"len=7,dive,gte=0,lte=100"`
	WeatherCondition []int     `json:"weather_condition" validate:"len=16"`
	WindDirection    []float64 `json:"wind_direction" validate:"len=16"`
	WindSpeed        []int     `json:"wind_speed" validate:"len=16"`
	DTFlag           int       `json:"dt_flag"`
	CurrentDate      string    `json:"current_date"`
	DateHour         []string  `json:"date_hour" validate:"len=16"`
}

// Days returns the number of days carrying temperature data.
func (l LocationForecast) Days() int {
	return len(l.MinTemp)
}

// ForecastMapPayload is the extracted forecast map page.
type ForecastMapPayload struct {
	Locations []LocationForecast `json:"locations" validate:"min=1,dive"`
}

const (
	weathersVar       = "var weathers"
	issueDateMarker   = "Forecast Issue Date:"
	locationTupleSize = 14
)

// ExtractForecastMap parses the `var weathers = [...]` script on the
// forecast division page.
func ExtractForecastMap(html string) (Extraction, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return Extraction{}, err
	}

	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := s.Text(); strings.Contains(text, weathersVar) {
			script = text
			return false
		}
		return true
	})
	if script == "" {
		return Extraction{}, notFound(html, "forecast script %q missing", weathersVar)
	}

	rest := script[strings.Index(script, weathersVar)+len(weathersVar):]
	eq := strings.Index(rest, "=")
	if eq < 0 {
		return Extraction{}, notFound(html, "forecast script has no assignment")
	}

	var tuples []json.RawMessage
	if err := json.NewDecoder(strings.NewReader(rest[eq+1:])).Decode(&tuples); err != nil {
		return Extraction{}, &ScrapingError{Kind: ScrapeNotFound, HTML: html, Message: "forecast array is not valid JSON", Err: err}
	}
	if len(tuples) == 0 {
		return Extraction{}, notFound(html, "forecast array is empty")
	}

	payload := &ForecastMapPayload{Locations: make([]LocationForecast, 0, len(tuples))}
	for i, raw := range tuples {
		loc, err := decodeLocationTuple(raw)
		if err != nil {
			return Extraction{}, &ScrapingError{
				Kind:    ScrapeValidationFailed,
				Message: fmt.Sprintf("location %d", i),
				HTML:    html,
				RawData: raw,
				Errors:  []ValidationIssue{{Field: fmt.Sprintf("weathers[%d]", i), Rule: "tuple", Value: err.Error()}},
			}
		}
		payload.Locations = append(payload.Locations, loc)
	}

	if err := validatePayload(html, payload); err != nil {
		return Extraction{}, err
	}

	issuedText := doc.Find("div#issueDate").First().Text()
	issuedAt, err := dates.ParseIssuedAt(issuedText, issueDateMarker)
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

func decodeLocationTuple(raw json.RawMessage) (LocationForecast, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return LocationForecast{}, fmt.Errorf("not an array: %w", err)
	}
	if len(parts) < locationTupleSize {
		return LocationForecast{}, fmt.Errorf("expected %d fields, got %d", locationTupleSize, len(parts))
	}

	var loc LocationForecast
	targets := []interface{}{
		&loc.Location,
		&loc.Latitude,
		&loc.Longitude,
		&loc.Dates,
		&loc.MinTemp,
		&loc.MaxTemp,
		&loc.MinHumidity,
		&loc.MaxHumidity,
		&loc.WeatherCondition,
		&loc.WindDirection,
		&loc.WindSpeed,
		&loc.DTFlag,
		&loc.CurrentDate,
		&loc.DateHour,
	}
	for i, target := range targets {
		if err := json.Unmarshal(parts[i], target); err != nil {
			return LocationForecast{}, fmt.Errorf("field %d: %w", i, err)
		}
	}
	loc.Location = strings.TrimSpace(loc.Location)
	return loc, nil
}
