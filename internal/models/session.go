package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// SessionKind names a group of pages scraped together.
type SessionKind string

const (
	SessionForecastGeneral      SessionKind = "forecast_general"
	SessionForecastMedia        SessionKind = "forecast_media"
	SessionWarningBulletin      SessionKind = "warning_bulletin"
	SessionWarningSevereWeather SessionKind = "warning_severe_weather"
	SessionWarningMarine        SessionKind = "warning_marine"
	SessionWarningHighSeas      SessionKind = "warning_high_seas"
)

// AllSessionKinds lists every kind in run order.
var AllSessionKinds = []SessionKind{
	SessionForecastGeneral,
	SessionForecastMedia,
	SessionWarningBulletin,
	SessionWarningSevereWeather,
	SessionWarningMarine,
	SessionWarningHighSeas,
}

// ParseSessionKind validates a kind name.
func ParseSessionKind(s string) (SessionKind, bool) {
	for _, k := range AllSessionKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// ErrorCode is the closed failure taxonomy.
type ErrorCode string

const (
	ErrorTimeout           ErrorCode = "TIMEOUT"
	ErrorUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrorNotFound          ErrorCode = "NOT_FOUND"
	ErrorDataNotFound      ErrorCode = "DATA_NOT_FOUND"
	ErrorDataNotValid      ErrorCode = "DATA_NOT_VALID"
	ErrorIssuedNotFound    ErrorCode = "ISSUED_NOT_FOUND"
	ErrorInternal          ErrorCode = "INTERNAL_ERROR"
	ErrorAggregationFailed ErrorCode = "AGGREGATION_FAILED"
)

// Session is one coordinated run of a page set. CompletedAt stays nil for
// runs in progress and for runs that failed.
type Session struct {
	ID            int64       `json:"id" db:"id"`
	Kind          SessionKind `json:"kind" db:"kind"`
	StartedAt     time.Time   `json:"started_at" db:"started_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	FailureCode   *string     `json:"failure_code,omitempty" db:"failure_code"`
	FailureReason *string     `json:"failure_reason,omitempty" db:"failure_reason"`
}

// Completed reports whether the session reached completion.
func (s *Session) Completed() bool {
	return s.CompletedAt != nil
}

// Page is one fetched and extracted page of a session.
// Payload holds the typed extraction result for aggregation and is not stored.
type Page struct {
	ID         int64          `json:"id" db:"id"`
	SessionID  int64          `json:"session_id" db:"session_id"`
	Path       string         `json:"path" db:"path"`
	IssuedAt   time.Time      `json:"issued_at" db:"issued_at"`
	RawPayload types.JSONText `json:"raw_payload" db:"raw_payload"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	Payload    interface{}    `json:"-" db:"-"`
}

// PageError is one distinct failure for one URL. Repeats bump Count.
type PageError struct {
	ID          int64              `json:"id" db:"id"`
	Fingerprint string             `json:"fingerprint" db:"fingerprint"`
	URL         string             `json:"url" db:"url"`
	Description ErrorCode          `json:"description" db:"description"`
	Exception   string             `json:"exception" db:"exception"`
	HTMLHash    *string            `json:"html_hash,omitempty" db:"html_hash"`
	RawPayload  types.NullJSONText `json:"raw_payload" db:"raw_payload"`
	Errors      types.NullJSONText `json:"errors" db:"errors"`
	Count       int                `json:"count" db:"count"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
}

// ComputeFingerprint hashes the dedup key. Two errors share a row exactly
// when url, description, exception, html hash, payload and errors all match.
func (e *PageError) ComputeFingerprint() string {
	h := sha256.New()
	write := func(s string, present bool) {
		if present {
			h.Write([]byte{1})
			h.Write([]byte(s))
		} else {
			h.Write([]byte{0})
		}
		h.Write([]byte{0x1f})
	}

	write(e.URL, true)
	write(string(e.Description), true)
	write(e.Exception, true)
	if e.HTMLHash != nil {
		write(*e.HTMLHash, true)
	} else {
		write("", false)
	}
	write(string(e.RawPayload.JSONText), e.RawPayload.Valid)
	write(string(e.Errors.JSONText), e.Errors.Valid)

	e.Fingerprint = hex.EncodeToString(h.Sum(nil))
	return e.Fingerprint
}
