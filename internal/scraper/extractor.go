package scraper

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-playground/validator/v10"
)

// Extraction is the result of a successful extraction. IssuedAt is UTC.
type Extraction struct {
	IssuedAt time.Time
	Payload  interface{}
}

// Extractor turns page HTML into a typed payload. Implementations are pure.
type Extractor interface {
	Extract(html string) (Extraction, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(html string) (Extraction, error)

// Extract calls f.
func (f ExtractorFunc) Extract(html string) (Extraction, error) {
	return f(html)
}

// Registry maps page kinds to extractors.
type Registry struct {
	extractors map[PageKind]Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[PageKind]Extractor)}
}

// DefaultRegistry wires every known page kind to its extractor.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(PageForecastMap, ExtractorFunc(ExtractForecastMap))
	r.Register(PageForecastWeek, ExtractorFunc(ExtractForecastWeek))
	r.Register(PageForecastMedia, ExtractorFunc(ExtractForecastMedia))
	for _, kind := range []PageKind{
		PageWarningBulletin,
		PageWarningSevereWeather,
		PageWarningMarine,
		PageWarningHighSeas,
	} {
		r.Register(kind, ExtractorFunc(ExtractWarning))
	}
	return r
}

// Register adds or replaces the extractor for kind.
func (r *Registry) Register(kind PageKind, e Extractor) {
	r.extractors[kind] = e
}

// ErrUnknownPageKind is returned for kinds with no registered extractor.
var ErrUnknownPageKind = errors.New("no extractor registered for page kind")

// Extract runs the extractor registered for kind.
func (r *Registry) Extract(kind PageKind, html string) (Extraction, error) {
	e, ok := r.extractors[kind]
	if !ok {
		return Extraction{}, fmt.Errorf("%w: %s", ErrUnknownPageKind, kind)
	}
	return e.Extract(html)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationIssue is one failed validation rule, kept JSON friendly for the
// page error store.
type ValidationIssue struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
	Value string `json:"value,omitempty"`
}

// validatePayload returns a ScrapeValidationFailed error carrying payload
// and the failed rules, or nil.
func validatePayload(html string, payload interface{}) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ScrapingError{Kind: ScrapeValidationFailed, HTML: html, RawData: payload, Err: err}
	}

	issues := make([]ValidationIssue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, ValidationIssue{
			Field: fe.Namespace(),
			Rule:  fe.Tag(),
			Param: fe.Param(),
			Value: fmt.Sprint(fe.Value()),
		})
	}
	return &ScrapingError{
		Kind:    ScrapeValidationFailed,
		Message: fmt.Sprintf("%d field(s) failed validation", len(issues)),
		HTML:    html,
		RawData: payload,
		Errors:  issues,
	}
}

func parseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ScrapingError{Kind: ScrapeNotFound, HTML: html, Message: "unparseable html", Err: err}
	}
	return doc, nil
}

// cleanText collapses whitespace. strings.Fields also splits on
// non-breaking spaces, which the bureau uses between date parts.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
