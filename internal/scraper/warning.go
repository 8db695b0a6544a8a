package scraper

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NoCurrentWarning is stored as the whole payload when a warning page
// reports nothing active.
const NoCurrentWarning = "NO CURRENT WARNING"

var noWarningPhrases = []string{
	"no current warning",
	"no latest warning",
}

// WarningItem is one warning row: a date string like
// "Friday 24th March, 2023" and the warning text.
type WarningItem struct {
	Date string `json:"date" validate:"required"`
	Body string `json:"body" validate:"required"`
}

// WarningPayload is either the no-warning sentinel or a list of items.
// It marshals to the JSON string NoCurrentWarning or to the item array.
type WarningPayload struct {
	NoCurrentWarning bool
	Items            []WarningItem `validate:"dive"`
}

// MarshalJSON implements json.Marshaler.
func (p WarningPayload) MarshalJSON() ([]byte, error) {
	if p.NoCurrentWarning {
		return json.Marshal(NoCurrentWarning)
	}
	if p.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.Items)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *WarningPayload) UnmarshalJSON(b []byte) error {
	var sentinel string
	if err := json.Unmarshal(b, &sentinel); err == nil {
		if sentinel != NoCurrentWarning {
			return errors.New("unexpected warning payload string: " + sentinel)
		}
		*p = WarningPayload{NoCurrentWarning: true}
		return nil
	}
	var items []WarningItem
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	*p = WarningPayload{Items: items}
	return nil
}

// ErrNoIssuedAt marks pages that never publish an issue time.
var ErrNoIssuedAt = errors.New("page has no issue time")

// ExtractWarning handles every warning page. Warning pages have no issue
// time, so a successful extraction always reports ScrapeIssuedAtNotFound
// together with the payload.
func ExtractWarning(html string) (Extraction, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return Extraction{}, err
	}

	root := doc.Find("article.item-page").First()
	if root.Length() == 0 {
		root = doc.Find("div.foreWarning").First()
	}
	if root.Length() == 0 {
		return Extraction{}, notFound(html, "warning content missing")
	}

	payload := &WarningPayload{}
	if isNoWarning(root) || isNoWarning(doc.Find("div.foreWarning")) {
		payload.NoCurrentWarning = true
	} else {
		root.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 2 {
				return
			}
			date := cleanText(cells.First().Text())
			body := cleanText(cells.Slice(1, goquery.ToEnd).Text())
			if date == "" && body == "" {
				return
			}
			payload.Items = append(payload.Items, WarningItem{Date: date, Body: body})
		})
		if len(payload.Items) == 0 {
			return Extraction{}, notFound(html, "no warning items and no no-warning notice")
		}
	}

	if err := validatePayload(html, payload); err != nil {
		return Extraction{}, err
	}

	return Extraction{Payload: payload}, &ScrapingError{
		Kind:    ScrapeIssuedAtNotFound,
		HTML:    html,
		RawData: payload,
		Err:     ErrNoIssuedAt,
	}
}

func isNoWarning(s *goquery.Selection) bool {
	if s.Length() == 0 {
		return false
	}
	text := strings.ToLower(cleanText(s.Text()))
	for _, phrase := range noWarningPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
