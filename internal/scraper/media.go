package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"vmgd-scraper/internal/dates"
)

// ForecastMediaPayload is the public forecast summary page.
type ForecastMediaPayload struct {
	Summary string   `json:"summary" validate:"required"`
	Images  []string `json:"images" validate:"min=1,dive,required"`
}

// ExtractForecastMedia reads the summary text, chart images and issue time
// from table.forecastPublic.
func ExtractForecastMedia(html string) (Extraction, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return Extraction{}, err
	}

	table := doc.Find("table.forecastPublic").First()
	if table.Length() == 0 {
		return Extraction{}, notFound(html, "public forecast table missing")
	}
	container := table.Find("div").First()
	if container.Length() == 0 {
		return Extraction{}, notFound(html, "public forecast container missing")
	}

	textNodes := container.Contents().FilterFunction(func(_ int, s *goquery.Selection) bool {
		return goquery.NodeName(s) == "#text"
	})
	payload := &ForecastMediaPayload{Summary: cleanText(textNodes.Text())}

	table.Find("img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok && strings.TrimSpace(src) != "" {
			payload.Images = append(payload.Images, strings.TrimSpace(src))
		}
	})
	if len(payload.Images) == 0 {
		return Extraction{}, notFound(html, "public forecast images missing")
	}

	if err := validatePayload(html, payload); err != nil {
		return Extraction{}, err
	}

	issuedText := container.ChildrenFiltered("div").Eq(1).Text()
	issuedAt, err := dates.ParseIssuedAt(issuedText, "at")
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
