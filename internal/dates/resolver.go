// Package dates turns the bureau's partial and free-form date strings into
// absolute times.
//
// Forecast pages list future days as "<Weekday> <day>" with no month or
// year. Resolve anchors such a day to the page's issue time and assumes a
// month rollover when the day number is smaller than the issue day. The
// guess can land a month late for series that start before the issue day,
// which VerifySequential detects and repairs by shifting a single element.
package dates

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Vanuatu observes UTC+11 all year.
var Vanuatu = time.FixedZone("VUT", 11*60*60)

// ErrNotSequential is returned when a date series cannot be repaired.
var ErrNotSequential = errors.New("dates are not sequential")

// Resolve converts "Sat 06" into an absolute date using issuedAt's calendar
// in issuedAt's location. The result is midnight of the resolved day.
func Resolve(dayString string, issuedAt time.Time) (time.Time, error) {
	fields := strings.Fields(dayString)
	if len(fields) < 2 {
		return time.Time{}, fmt.Errorf("day string %q: expected \"<weekday> <day>\"", dayString)
	}

	day, err := strconv.Atoi(fields[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("day string %q: %w", dayString, err)
	}
	if day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("day string %q: day %d out of range", dayString, day)
	}

	year, month, issuedDay := issuedAt.Date()
	if day < issuedDay {
		next := time.Date(year, month+1, 1, 0, 0, 0, 0, issuedAt.Location())
		year, month = next.Year(), next.Month()
	}

	resolved := time.Date(year, month, day, 0, 0, 0, 0, issuedAt.Location())
	if resolved.Day() != day {
		return time.Time{}, fmt.Errorf("day string %q: %s %d has no day %d", dayString, month, year, day)
	}
	return resolved, nil
}

// ResolveAll resolves a series of day strings against one anchor.
func ResolveAll(dayStrings []string, issuedAt time.Time) ([]time.Time, error) {
	out := make([]time.Time, len(dayStrings))
	for i, s := range dayStrings {
		d, err := Resolve(s, issuedAt)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// VerifySequential returns dates unchanged when consecutive entries are one
// day apart. Otherwise it tries moving element i back one month, for each i
// from the first to the second-to-last, and returns the first series that
// becomes sequential. The input slice is never modified.
func VerifySequential(dates []time.Time) ([]time.Time, error) {
	if isSequential(dates) {
		return dates, nil
	}

	for i := 0; i < len(dates)-1; i++ {
		shifted, ok := previousMonth(dates[i])
		if !ok {
			continue
		}
		candidate := make([]time.Time, len(dates))
		copy(candidate, dates)
		candidate[i] = shifted
		if isSequential(candidate) {
			return candidate, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotSequential, formatSeries(dates))
}

func isSequential(dates []time.Time) bool {
	for i := 1; i < len(dates); i++ {
		if !sameDay(dates[i-1].AddDate(0, 0, 1), dates[i]) {
			return false
		}
	}
	return true
}

// SameDay compares calendar days in a's location.
func SameDay(a, b time.Time) bool {
	return sameDay(a, b.In(a.Location()))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// previousMonth keeps the day of month; ok is false when that day does not
// exist in the previous month.
func previousMonth(t time.Time) (time.Time, bool) {
	y, m, d := t.Date()
	shifted := time.Date(y, m-1, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	return shifted, shifted.Day() == d
}

func formatSeries(dates []time.Time) string {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = d.Format("2006-01-02")
	}
	return "[" + strings.Join(parts, " ") + "]"
}

var ordinalSuffix = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)

// normalize strips ordinals, non-breaking spaces and repeated whitespace and
// upper-cases the text. time.Parse matches month and weekday names without
// regard to case but needs AM/PM in capitals, so literal words in the
// layouts below are written upper-case too.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

var warningLayouts = []string{
	"Monday 2 January, 2006",
	"Monday 2 January 2006",
	"Monday, 2 January, 2006",
	"2 January 2006",
}

// ParseWarningDate parses "Friday 24th March, 2023" as midnight Vanuatu time
// and returns it in UTC.
func ParseWarningDate(s string) (time.Time, error) {
	text := normalize(s)
	for _, layout := range warningLayouts {
		if t, err := time.ParseInLocation(layout, text, Vanuatu); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised warning date %q", s)
}

var issuedLayouts = []string{
	"Monday 2 January, 2006 AT 15:04",
	"Monday 2 January 2006 AT 15:04",
	"Monday 2 January, 2006 15:04",
	"Monday 2 January 2006 15:04",
	"3:04 PM, Monday January 2 2006",
	"3:04PM, Monday January 2 2006",
	"15:04, Monday January 2 2006",
	"3:04 PM Monday January 2 2006",
	"Monday 2 January, 2006",
	"Monday 2 January 2006",
}

// ParseIssuedAt finds marker in text (case-insensitive) and parses the
// remainder as a Vanuatu local timestamp, returned in UTC. An empty marker
// parses the whole text.
func ParseIssuedAt(text, marker string) (time.Time, error) {
	rest := normalize(text)
	if marker != "" {
		m := normalize(marker)
		idx := indexWord(rest, m)
		if idx < 0 {
			return time.Time{}, fmt.Errorf("issued marker %q not found", marker)
		}
		rest = strings.TrimSpace(rest[idx+len(m):])
	}
	rest = strings.Trim(rest, " .:")

	for _, layout := range issuedLayouts {
		if t, err := time.ParseInLocation(layout, rest, Vanuatu); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised issued date %q", rest)
}

// indexWord finds needle in s where it is not part of a longer word, so a
// marker like "AT" does not match inside "DATE".
func indexWord(s, needle string) int {
	for offset := 0; offset <= len(s)-len(needle); {
		i := strings.Index(s[offset:], needle)
		if i < 0 {
			return -1
		}
		start, end := offset+i, offset+i+len(needle)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end]) || !isWordByte(s[end-1])) {
			return start
		}
		offset = start + 1
	}
	return -1
}

func isWordByte(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
