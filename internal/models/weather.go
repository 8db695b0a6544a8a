package models

import (
	"strings"
	"time"
	"unicode"

	"github.com/lib/pq"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Location is a named forecast location. Unique by name, case-insensitive.
type Location struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewLocation builds a Location with its slug derived from name.
func NewLocation(name string, latitude, longitude float64) (*Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{
			Field:   "name",
			Value:   name,
			Message: "location name must not be empty",
		}
	}
	slug := Slugify(name)
	if slug == "" {
		return nil, &ValidationError{
			Field:   "name",
			Value:   name,
			Message: "location name has no sluggable characters",
		}
	}

	now := time.Now().UTC()
	return &Location{
		Name:      name,
		Slug:      slug,
		Latitude:  latitude,
		Longitude: longitude,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Slugify lowercases name, strips diacritics and joins alphanumeric runs with dashes.
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ForecastDaily is one merged day of the weekly forecast for a location.
// LocationName carries the identity until the location row is resolved.
type ForecastDaily struct {
	ID           int64     `json:"id" db:"id"`
	SessionID    int64     `json:"session_id" db:"session_id"`
	LocationID   int64     `json:"location_id" db:"location_id"`
	LocationName string    `json:"location" db:"location_name"`
	Date         time.Time `json:"date" db:"date"`
	Summary      string    `json:"summary" db:"summary"`
	MinTemp      int       `json:"min_temp" db:"min_temp"`
	MaxTemp      int       `json:"max_temp" db:"max_temp"`
	MinHumidity  int       `json:"min_humidity" db:"min_humidity"`
	MaxHumidity  int       `json:"max_humidity" db:"max_humidity"`
	IssuedAt     time.Time `json:"issued_at" db:"issued_at"`
}

// WeatherWarning is one warning item, or the single "no current warning"
// marker for a session when the source reports nothing active.
type WeatherWarning struct {
	ID               int64     `json:"id" db:"id"`
	SessionID        int64     `json:"session_id" db:"session_id"`
	Date             time.Time `json:"date" db:"date"`
	IssuedAt         time.Time `json:"issued_at" db:"issued_at"`
	NoCurrentWarning bool      `json:"no_current_warning" db:"no_current_warning"`
	Body             *string   `json:"body" db:"body"`
}

// ForecastMedia is the public forecast summary with its chart images.
type ForecastMedia struct {
	ID        int64          `json:"id" db:"id"`
	SessionID int64          `json:"session_id" db:"session_id"`
	IssuedAt  time.Time      `json:"issued_at" db:"issued_at"`
	Summary   string         `json:"summary" db:"summary"`
	ImageURLs pq.StringArray `json:"image_urls" db:"image_urls"`
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
