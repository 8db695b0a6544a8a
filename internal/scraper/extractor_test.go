package scraper_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmgd-scraper/internal/scraper"
	"vmgd-scraper/internal/scraper/scrapertest"
)

var may5 = time.Date(2023, time.May, 5, 0, 0, 0, 0, time.UTC)

func scrapingErr(t *testing.T, err error) *scraper.ScrapingError {
	t.Helper()
	var se *scraper.ScrapingError
	require.True(t, errors.As(err, &se), "expected ScrapingError, got %v", err)
	return se
}

func TestExtractForecastMap(t *testing.T) {
	html := scrapertest.ForecastMapHTML("Friday 05 May, 2023 at 09:00",
		scrapertest.NewMapLocation("Port Vila", may5, 22, 29),
		scrapertest.NewMapLocation("Luganville", may5, 21, 30),
	)

	got, err := scraper.ExtractForecastMap(html)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2023, time.May, 4, 22, 0, 0, 0, time.UTC), got.IssuedAt)

	payload, ok := got.Payload.(*scraper.ForecastMapPayload)
	require.True(t, ok)
	require.Len(t, payload.Locations, 2)
	assert.Equal(t, "Port Vila", payload.Locations[0].Location)
	assert.Equal(t, "Fri 05", payload.Locations[0].Dates[0])
	assert.Equal(t, 7, payload.Locations[1].Days())
	assert.Equal(t, 30, payload.Locations[1].MaxTemp[3])
}

func TestExtractForecastMap_Failures(t *testing.T) {
	t.Run("script missing", func(t *testing.T) {
		_, err := scraper.ExtractForecastMap(`<html><body><div id="issueDate">x</div></body></html>`)
		assert.Equal(t, scraper.ScrapeNotFound, scrapingErr(t, err).Kind)
	})

	t.Run("array is not json", func(t *testing.T) {
		_, err := scraper.ExtractForecastMap(`<html><script>var weathers = [oops;</script></html>`)
		assert.Equal(t, scraper.ScrapeNotFound, scrapingErr(t, err).Kind)
	})

	t.Run("short temperature series", func(t *testing.T) {
		loc := scrapertest.NewMapLocation("Port Vila", may5, 22, 29)
		loc.MinTemp = loc.MinTemp[:5]
		html := scrapertest.ForecastMapHTML("Friday 05 May, 2023 at 09:00", loc)

		_, err := scraper.ExtractForecastMap(html)
		se := scrapingErr(t, err)
		assert.Equal(t, scraper.ScrapeValidationFailed, se.Kind)
		assert.NotNil(t, se.RawData)

		issues, ok := se.Errors.([]scraper.ValidationIssue)
		require.True(t, ok)
		require.NotEmpty(t, issues)
		assert.Contains(t, issues[0].Field, "MinTemp")
		assert.Equal(t, "len", issues[0].Rule)
	})

	t.Run("humidity out of range", func(t *testing.T) {
		loc := scrapertest.NewMapLocation("Port Vila", may5, 22, 29)
		loc.MaxHumidity[2] = 140
		_, err := scraper.ExtractForecastMap(scrapertest.ForecastMapHTML("Friday 05 May, 2023 at 09:00", loc))
		assert.Equal(t, scraper.ScrapeValidationFailed, scrapingErr(t, err).Kind)
	})

	t.Run("short tuple", func(t *testing.T) {
		_, err := scraper.ExtractForecastMap(`<html><script>var weathers = [["Port Vila", "north"]];</script></html>`)
		assert.Equal(t, scraper.ScrapeValidationFailed, scrapingErr(t, err).Kind)
	})

	t.Run("issued at missing keeps payload", func(t *testing.T) {
		html := scrapertest.ForecastMapHTML("sometime soon", scrapertest.NewMapLocation("Port Vila", may5, 22, 29))
		got, err := scraper.ExtractForecastMap(html)
		se := scrapingErr(t, err)
		assert.Equal(t, scraper.ScrapeIssuedAtNotFound, se.Kind)
		assert.IsType(t, &scraper.ForecastMapPayload{}, got.Payload)
		assert.True(t, got.IssuedAt.IsZero())
	})
}

func TestExtractForecastWeek(t *testing.T) {
	html := scrapertest.ForecastWeekHTML("4:00 pm, Friday May 05 2023",
		scrapertest.NewWeekLocation("Port Vila", may5, 21, 30),
		scrapertest.NewWeekLocation("Luganville", may5, 20, 31),
	)

	got, err := scraper.ExtractForecastWeek(html)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, time.May, 5, 5, 0, 0, 0, time.UTC), got.IssuedAt)

	payload := got.Payload.(*scraper.ForecastWeekPayload)
	require.Len(t, payload.Locations, 2)

	first := payload.Locations[0]
	assert.Equal(t, "Port Vila", first.Location)
	require.Len(t, first.Days, 7)
	assert.Equal(t, scraper.DailyForecast{
		Date:    "Friday 05",
		Summary: "Partly cloudy with isolated showers",
		MinTemp: 21,
		MaxTemp: 30,
	}, first.Days[0])
	assert.Equal(t, "Thursday 11", first.Days[6].Date)
}

func TestExtractForecastWeek_Failures(t *testing.T) {
	t.Run("no tables", func(t *testing.T) {
		_, err := scraper.ExtractForecastWeek(`<html><article class="item-page"><p>maintenance</p></article></html>`)
		assert.Equal(t, scraper.ScrapeNotFound, scrapingErr(t, err).Kind)
	})

	t.Run("row without temperatures", func(t *testing.T) {
		html := `<html><article><p><strong>Port Vila at 4:00 pm, Friday May 05 2023</strong></p>
<table><tr><td>Port Vila</td></tr><tr><td>Friday 05 : Sunny</td></tr></table></article></html>`
		_, err := scraper.ExtractForecastWeek(html)
		se := scrapingErr(t, err)
		assert.Equal(t, scraper.ScrapeValidationFailed, se.Kind)
		assert.Len(t, se.Errors, 1)
	})

	t.Run("temperature out of range", func(t *testing.T) {
		html := scrapertest.ForecastWeekHTML("4:00 pm, Friday May 05 2023",
			scrapertest.NewWeekLocation("Port Vila", may5, 21, 55))
		_, err := scraper.ExtractForecastWeek(html)
		assert.Equal(t, scraper.ScrapeValidationFailed, scrapingErr(t, err).Kind)
	})

	t.Run("issued strong missing", func(t *testing.T) {
		html := strings.Replace(
			scrapertest.ForecastWeekHTML("4:00 pm, Friday May 05 2023", scrapertest.NewWeekLocation("Port Vila", may5, 21, 30)),
			"Port Vila at", "Updated", 1)
		_, err := scraper.ExtractForecastWeek(html)
		assert.Equal(t, scraper.ScrapeIssuedAtNotFound, scrapingErr(t, err).Kind)
	})
}

func TestExtractForecastMedia(t *testing.T) {
	html := scrapertest.ForecastMediaHTML(
		"A high pressure system south of the group\n extends a ridge over Vanuatu.",
		"10:25 AM, Tuesday April 04 2023",
		"/images/forecast/chart-1.png", "/images/forecast/chart-2.png",
	)

	got, err := scraper.ExtractForecastMedia(html)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, time.April, 3, 23, 25, 0, 0, time.UTC), got.IssuedAt)

	payload := got.Payload.(*scraper.ForecastMediaPayload)
	assert.Equal(t, "A high pressure system south of the group extends a ridge over Vanuatu.", payload.Summary)
	assert.Equal(t, []string{"/images/forecast/chart-1.png", "/images/forecast/chart-2.png"}, payload.Images)
}

func TestExtractForecastMedia_NoImages(t *testing.T) {
	html := scrapertest.ForecastMediaHTML("Fine weather.", "10:25 AM, Tuesday April 04 2023")
	_, err := scraper.ExtractForecastMedia(html)
	assert.Equal(t, scraper.ScrapeNotFound, scrapingErr(t, err).Kind)
}

func TestExtractWarning(t *testing.T) {
	t.Run("items", func(t *testing.T) {
		html := scrapertest.WarningHTML(
			[2]string{"Friday 24th March, 2023", "Strong wind warning for all southern waters."},
			[2]string{"Saturday 25th March, 2023", "Gale warning for Torba province."},
		)
		got, err := scraper.ExtractWarning(html)

		se := scrapingErr(t, err)
		assert.Equal(t, scraper.ScrapeIssuedAtNotFound, se.Kind)
		assert.ErrorIs(t, err, scraper.ErrNoIssuedAt)

		payload := got.Payload.(*scraper.WarningPayload)
		assert.False(t, payload.NoCurrentWarning)
		require.Len(t, payload.Items, 2)
		assert.Equal(t, "Friday 24th March, 2023", payload.Items[0].Date)
		assert.Equal(t, "Gale warning for Torba province.", payload.Items[1].Body)
	})

	t.Run("no current warning", func(t *testing.T) {
		got, _ := scraper.ExtractWarning(scrapertest.NoWarningHTML())
		payload := got.Payload.(*scraper.WarningPayload)
		assert.True(t, payload.NoCurrentWarning)
		assert.Empty(t, payload.Items)
	})

	t.Run("bulletin without warning", func(t *testing.T) {
		got, _ := scraper.ExtractWarning(scrapertest.BulletinNoWarningHTML())
		payload := got.Payload.(*scraper.WarningPayload)
		assert.True(t, payload.NoCurrentWarning)
	})

	t.Run("empty article", func(t *testing.T) {
		_, err := scraper.ExtractWarning(`<html><article class="item-page"><p>Loading</p></article></html>`)
		assert.Equal(t, scraper.ScrapeNotFound, scrapingErr(t, err).Kind)
	})

	t.Run("missing body", func(t *testing.T) {
		_, err := scraper.ExtractWarning(scrapertest.WarningHTML([2]string{"Friday 24th March, 2023", ""}))
		assert.Equal(t, scraper.ScrapeValidationFailed, scrapingErr(t, err).Kind)
	})
}

func TestWarningPayload_JSON(t *testing.T) {
	data, err := json.Marshal(&scraper.WarningPayload{NoCurrentWarning: true})
	require.NoError(t, err)
	assert.JSONEq(t, `"NO CURRENT WARNING"`, string(data))

	var decoded scraper.WarningPayload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.NoCurrentWarning)

	data, err = json.Marshal(scraper.WarningPayload{Items: []scraper.WarningItem{{Date: "d", Body: "b"}}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"date":"d","body":"b"}]`, string(data))

	assert.Error(t, json.Unmarshal([]byte(`"SOMETHING ELSE"`), &decoded))
}

func TestRegistry(t *testing.T) {
	reg := scraper.DefaultRegistry()

	for _, spec := range scraper.KnownPages {
		_, err := reg.Extract(spec.Kind, "<html></html>")
		assert.False(t, errors.Is(err, scraper.ErrUnknownPageKind), spec.Kind)
	}

	_, err := reg.Extract("radar", "<html></html>")
	assert.ErrorIs(t, err, scraper.ErrUnknownPageKind)

	reg.Register("radar", scraper.ExtractorFunc(func(string) (scraper.Extraction, error) {
		return scraper.Extraction{Payload: "ok"}, nil
	}))
	got, err := reg.Extract("radar", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Payload)
}

func TestPageSpec(t *testing.T) {
	spec, ok := scraper.SpecForKind(scraper.PageForecastWeek)
	require.True(t, ok)
	assert.Equal(t, "7-day", spec.Slug())
	assert.Equal(t, "https://example.test/index.php/forecast-division/public-forecast/7-day", spec.URL("https://example.test/index.php/"))

	bySlug, ok := scraper.SpecForSlug("hight-seas-warning")
	require.True(t, ok)
	assert.Equal(t, scraper.PageWarningHighSeas, bySlug.Kind)
	assert.True(t, bySlug.IssuedAtFallback)
}
