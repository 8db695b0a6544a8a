// Package scrapertest builds bureau-style HTML pages for tests.
package scrapertest

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"
)

// MapLocation is one entry of the forecast map `var weathers` array.
type MapLocation struct {
	Name        string
	Lat, Lon    float64
	Dates       []string
	MinTemp     []int
	MaxTemp     []int
	MinHumidity []int
	MaxHumidity []int
}

// DayStrings returns n "Mon 02" style labels starting at first.
func DayStrings(first time.Time, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = first.AddDate(0, 0, i).Format("Mon 02")
	}
	return out
}

// Repeat returns n copies of v.
func Repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// NewMapLocation fills a location with eight day labels from first and
// seven days of constant readings.
func NewMapLocation(name string, first time.Time, minTemp, maxTemp int) MapLocation {
	return MapLocation{
		Name:        name,
		Lat:         -17.7,
		Lon:         168.3,
		Dates:       DayStrings(first, 8),
		MinTemp:     Repeat(minTemp, 7),
		MaxTemp:     Repeat(maxTemp, 7),
		MinHumidity: Repeat(60, 7),
		MaxHumidity: Repeat(90, 7),
	}
}

func (l MapLocation) tuple() []interface{} {
	dateHour := make([]string, 16)
	for i := range dateHour {
		dateHour[i] = fmt.Sprintf("%02d:00", (i*6)%24)
	}
	windDir := make([]float64, 16)
	return []interface{}{
		l.Name, l.Lat, l.Lon, l.Dates,
		l.MinTemp, l.MaxTemp, l.MinHumidity, l.MaxHumidity,
		Repeat(1, 16), windDir, Repeat(10, 16),
		0, "", dateHour,
	}
}

// ForecastMapHTML renders the forecast division page. issued is the text
// after "Forecast Issue Date:", e.g. "Friday 05 May, 2023 at 09:00".
func ForecastMapHTML(issued string, locations ...MapLocation) string {
	tuples := make([]interface{}, len(locations))
	for i, l := range locations {
		tuples[i] = l.tuple()
	}
	data, err := json.Marshal(tuples)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf(`<!DOCTYPE html><html><head><title>Forecast</title></head><body>
<div id="issueDate">Forecast Issue Date: %s</div>
<div id="map"></div>
<script type="text/javascript">var weathers = %s;
var map = null;
</script>
</body></html>`, html.EscapeString(issued), data)
}

// WeekRow is one day row in a 7-day table.
type WeekRow struct {
	Day      string
	Summary  string
	Min, Max int
}

// WeekLocation is one table of the 7-day page.
type WeekLocation struct {
	Name string
	Rows []WeekRow
}

// NewWeekLocation builds seven rows from first with constant readings.
func NewWeekLocation(name string, first time.Time, minTemp, maxTemp int) WeekLocation {
	loc := WeekLocation{Name: name}
	for i, d := range DayStrings(first, 7) {
		weekday := first.AddDate(0, 0, i).Format("Monday")
		loc.Rows = append(loc.Rows, WeekRow{
			Day:     weekday + " " + d[len(d)-2:],
			Summary: "Partly cloudy with isolated showers",
			Min:     minTemp,
			Max:     maxTemp,
		})
	}
	return loc
}

// ForecastWeekHTML renders the 7-day public forecast page. issued is the
// text after "Port Vila at", e.g. "4:00 pm, Friday May 05 2023".
func ForecastWeekHTML(issued string, locations ...WeekLocation) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><body><article class="item-page">`)
	fmt.Fprintf(&b, `<p><strong>Port Vila at %s</strong></p>`, html.EscapeString(issued))
	for _, loc := range locations {
		fmt.Fprintf(&b, `<table><tr><td><b>%s</b></td></tr>`, html.EscapeString(loc.Name))
		for _, r := range loc.Rows {
			fmt.Fprintf(&b, `<tr><td>%s : %s. Winds light. Min: %d&nbsp;&deg;C Max: %d&nbsp;&deg;C</td></tr>`,
				html.EscapeString(r.Day), html.EscapeString(r.Summary), r.Min, r.Max)
		}
		b.WriteString(`</table>`)
	}
	b.WriteString(`</article></body></html>`)
	return b.String()
}

// ForecastMediaHTML renders the public forecast media page. issued is the
// text after "at", e.g. "10:25 AM, Tuesday April 04 2023".
func ForecastMediaHTML(summary, issued string, images ...string) string {
	var imgs strings.Builder
	for _, src := range images {
		fmt.Fprintf(&imgs, `<img src="%s" alt="chart"/>`, html.EscapeString(src))
	}
	return fmt.Sprintf(`<!DOCTYPE html><html><body><table class="forecastPublic"><tr><td>
<div>%s<div><h3>Public Forecast</h3></div><div>Issued at %s</div>%s</div>
</td></tr></table></body></html>`, html.EscapeString(summary), html.EscapeString(issued), imgs.String())
}

// WarningHTML renders a warning page listing (date, body) rows.
func WarningHTML(items ...[2]string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><body><article class="item-page"><table class="marineFrontTabOne">`)
	b.WriteString(`<tr><th>Date</th><th>Warning</th></tr>`)
	for _, item := range items {
		fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td></tr>`, html.EscapeString(item[0]), html.EscapeString(item[1]))
	}
	b.WriteString(`</table></article></body></html>`)
	return b.String()
}

// NoWarningHTML renders a warning page without active warnings.
func NoWarningHTML() string {
	return `<!DOCTYPE html><html><body><article class="item-page"><p>NO CURRENT WARNING</p></article></body></html>`
}

// BulletinNoWarningHTML renders the current bulletin page without warnings.
func BulletinNoWarningHTML() string {
	return `<!DOCTYPE html><html><body><div class="foreWarning">There is no latest warning</div></body></html>`
}
