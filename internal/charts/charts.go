// Package charts renders aggregate reports as SVG bar, pie and line charts.
package charts

import (
	"bytes"
	"fmt"
	"html"
	"math"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kjstillabower/sensor-dashboard/internal/aggregate"
	"github.com/kjstillabower/sensor-dashboard/internal/models"
)

// Chart kinds.
const (
	KindBar  = "bar"
	KindPie  = "pie"
	KindLine = "line"
)

const (
	defaultWidth  = 640
	defaultHeight = 400
	barWidth      = 28
	barSpacing    = 12
)

// seaborn-like palette.
var (
	barColor  = drawing.ColorFromHex("4c72b0")
	lineColor = drawing.ColorFromHex("dd8452")
)

var printer = message.NewPrinter(language.English)

// Label is the text attached to one bar, slice or point.
type Label struct {
	Name  string
	Text  string
	Hover string
}

// Chart is a rendered chart plus the per-item text the page lists with it.
type Chart struct {
	Kind   string
	Title  string
	SVG    string
	Labels []Label
	Empty  bool
}

// Distribution renders the Probability-per-value bar chart.
func Distribution(r aggregate.Report) (Chart, error) {
	return bars(KindBar, "Weibull "+r.Variable.Column(), r.Variable, r.Distribution)
}

// Frequency renders the Time-per-value bar chart.
func Frequency(r aggregate.Report) (Chart, error) {
	return bars(KindBar, r.Variable.ShortName()+" Frequency", r.Variable, r.Frequency)
}

// ValueText formats a bar total with thousands separators and five decimals.
func ValueText(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return printer.Sprintf("%.5f", v)
}

// KeyText formats a variable value used as a bar label.
func KeyText(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// HoverText is the per-district hover line of the pie chart.
func HoverText(v models.Variable, district string, mean float64) string {
	return fmt.Sprintf("District: %s\nAverage %s: %.2f %s", district, v.HoverName(), mean, v.Unit())
}

func bars(kind, title string, v models.Variable, buckets []aggregate.Bucket) (Chart, error) {
	c := Chart{Kind: kind, Title: title}
	if len(buckets) == 0 {
		c.Empty = true
		c.SVG = placeholder(title)
		return c, nil
	}

	values := make([]chart.Value, 0, len(buckets))
	totals := make([]float64, 0, len(buckets))
	for _, b := range buckets {
		name := KeyText(b.Value)
		values = append(values, chart.Value{Label: svgText(name), Value: b.Total})
		totals = append(totals, b.Total)
		c.Labels = append(c.Labels, Label{Name: name, Text: ValueText(b.Total)})
	}

	width := defaultWidth
	if need := 120 + len(buckets)*(barWidth+barSpacing); need > width {
		width = need
	}
	bc := chart.BarChart{
		Title:      svgText(title),
		Width:      width,
		Height:     defaultHeight,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10}},
		YAxis: chart.YAxis{
			Range:          valueRange(totals),
			ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.2f", v.(float64)) },
		},
		Bars: values,
	}
	for i := range bc.Bars {
		bc.Bars[i].Style = chart.Style{FillColor: barColor, StrokeColor: barColor}
	}

	var buf bytes.Buffer
	if err := bc.Render(chart.SVG, &buf); err != nil {
		return Chart{}, fmt.Errorf("render %s chart for %s: %w", kind, v, err)
	}
	c.SVG = buf.String()
	return c, nil
}

// ByDistrict renders the per-district mean pie chart. Slices with a missing
// or non-positive mean are listed but not drawn.
func ByDistrict(r aggregate.Report) (Chart, error) {
	v := r.Variable
	title := v.Column() + " by District"
	c := Chart{Kind: KindPie, Title: title}

	var slices []chart.Value
	for _, d := range r.ByDistrict {
		c.Labels = append(c.Labels, Label{
			Name:  d.District,
			Text:  meanText(d.Mean),
			Hover: HoverText(v, d.District, d.Mean),
		})
		if math.IsNaN(d.Mean) || d.Mean <= 0 {
			continue
		}
		slices = append(slices, chart.Value{Label: svgText(d.District), Value: d.Mean})
	}
	if len(slices) == 0 {
		c.Empty = true
		c.SVG = placeholder(title)
		return c, nil
	}

	pc := chart.PieChart{
		Title:      svgText(title),
		Width:      defaultHeight,
		Height:     defaultHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		Values:     slices,
	}
	var buf bytes.Buffer
	if err := pc.Render(chart.SVG, &buf); err != nil {
		return Chart{}, fmt.Errorf("render pie chart for %s: %w", v, err)
	}
	c.SVG = buf.String()
	return c, nil
}

// Monthly renders the monthly sum line chart.
func Monthly(r aggregate.Report) (Chart, error) {
	v := r.Variable
	title := v.ShortName() + " Time Series Analysis"
	c := Chart{Kind: KindLine, Title: title}
	if len(r.Monthly) == 0 {
		c.Empty = true
		c.SVG = placeholder(title)
		return c, nil
	}

	xs := make([]time.Time, 0, len(r.Monthly))
	ys := make([]float64, 0, len(r.Monthly))
	for _, m := range r.Monthly {
		t, err := time.Parse(aggregate.MonthLayout, m.Month)
		if err != nil {
			return Chart{}, fmt.Errorf("month key %q: %w", m.Month, err)
		}
		xs = append(xs, t)
		ys = append(ys, m.Total)
		c.Labels = append(c.Labels, Label{Name: m.Month, Text: meanText(m.Total)})
	}

	// Explicit ranges keep single-month series renderable.
	xRange := &chart.ContinuousRange{
		Min: chart.TimeToFloat64(xs[0].AddDate(0, 0, -15)),
		Max: chart.TimeToFloat64(xs[len(xs)-1].AddDate(0, 0, 15)),
	}
	ch := chart.Chart{
		Title:      svgText(title),
		Width:      defaultWidth,
		Height:     defaultHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10}},
		XAxis: chart.XAxis{
			Name:           "month_year",
			Range:          xRange,
			ValueFormatter: chart.TimeValueFormatterWithFormat(aggregate.MonthLayout),
		},
		YAxis: chart.YAxis{
			Name:  svgText(v.Column()),
			Range: valueRange(ys),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name: svgText(v.Column()),
				Style: chart.Style{
					StrokeColor: lineColor,
					StrokeWidth: 2,
					DotColor:    lineColor,
					DotWidth:    3,
				},
				XValues: xs,
				YValues: ys,
			},
		},
	}
	var buf bytes.Buffer
	if err := ch.Render(chart.SVG, &buf); err != nil {
		return Chart{}, fmt.Errorf("render line chart for %s: %w", v, err)
	}
	c.SVG = buf.String()
	return c, nil
}

// valueRange spans zero and every value, padded so the axis never collapses.
func valueRange(values []float64) *chart.ContinuousRange {
	lo, hi := 0.0, 0.0
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	pad := span * 0.1
	if lo < 0 {
		lo -= pad
	}
	return &chart.ContinuousRange{Min: lo, Max: hi + pad}
}

// svgText escapes text handed to go-chart, whose SVG renderer writes text
// bodies verbatim.
func svgText(s string) string {
	return html.EscapeString(s)
}

func meanText(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

func placeholder(title string) string {
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" class="chart-empty">`+
		`<text x="50%%" y="30" text-anchor="middle" font-size="16">%s</text>`+
		`<text x="50%%" y="50%%" text-anchor="middle" fill="#888">No data</text></svg>`,
		defaultWidth, defaultHeight/2, html.EscapeString(title))
}
