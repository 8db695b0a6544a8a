package scraper

import (
	"fmt"
)

// FetchErrorKind classifies a failed GET.
type FetchErrorKind int

const (
	FetchInternal FetchErrorKind = iota
	FetchTimeout
	FetchUnauthorized
	FetchNotFound
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchTimeout:
		return "timeout"
	case FetchUnauthorized:
		return "unauthorized"
	case FetchNotFound:
		return "not found"
	default:
		return "internal"
	}
}

// FetchError is returned by the fetcher. HTML holds the response body when
// the server answered.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	HTML       string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether a later run may succeed.
func (e *FetchError) IsTransient() bool {
	return e.Kind == FetchTimeout || e.Kind == FetchInternal
}

// ScrapingErrorKind classifies an extraction failure.
type ScrapingErrorKind int

const (
	ScrapeNotFound ScrapingErrorKind = iota
	ScrapeValidationFailed
	ScrapeIssuedAtNotFound
)

func (k ScrapingErrorKind) String() string {
	switch k {
	case ScrapeValidationFailed:
		return "validation failed"
	case ScrapeIssuedAtNotFound:
		return "issued at not found"
	default:
		return "data not found"
	}
}

// ScrapingError is returned by extractors. RawData is the offending
// structure (or, for ScrapeIssuedAtNotFound, the extracted payload) and
// Errors carries validator details.
type ScrapingError struct {
	Kind    ScrapingErrorKind
	Message string
	HTML    string
	RawData interface{}
	Errors  interface{}
	Err     error
}

func (e *ScrapingError) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ScrapingError) Unwrap() error {
	return e.Err
}

// IsTransient is false: the same HTML always fails the same way.
func (e *ScrapingError) IsTransient() bool {
	return false
}

func notFound(html, format string, args ...interface{}) *ScrapingError {
	return &ScrapingError{Kind: ScrapeNotFound, HTML: html, Message: fmt.Sprintf(format, args...)}
}
