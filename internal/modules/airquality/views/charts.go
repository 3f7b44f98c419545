package views

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"math"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"airdash/internal/modules/airquality/types"
)

const (
	chartWidth  = 560
	chartHeight = 340
)

var fieldColors = map[types.Field]string{
	types.Temperature:    "d62728",
	types.Humidity:       "1f77b4",
	types.Pressure:       "9467bd",
	types.LightIntensity: "ff7f0e",
	types.CO2:            "7f7f7f",
	types.PM25:           "2ca02c",
}

// ChartSpec is everything that determines how one chart looks.
type ChartSpec struct {
	Field  types.Field
	Title  string
	XLabel string
	YLabel string
	Times  []time.Time
	Values []float64
}

// ChartRenderer turns a chart spec into inline SVG markup.
type ChartRenderer interface {
	Render(spec ChartSpec) (template.HTML, error)
}

type svgChartRendererImpl struct {
	cache *lru.Cache
}

// NewChartRenderer returns a renderer that memoises up to size charts.
func NewChartRenderer(size int) (ChartRenderer, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("chart cache: %w", err)
	}
	return &svgChartRendererImpl{cache: cache}, nil
}

func (r *svgChartRendererImpl) Render(spec ChartSpec) (template.HTML, error) {
	if len(spec.Times) != len(spec.Values) {
		return "", fmt.Errorf("chart %s: %d times for %d values", spec.Field, len(spec.Times), len(spec.Values))
	}
	if len(spec.Values) == 0 {
		return "", errors.New("chart " + spec.Field.String() + ": no points")
	}

	key := spec.cacheKey()
	if cached, ok := r.cache.Get(key); ok {
		return cached.(template.HTML), nil
	}

	svg, err := renderSVG(spec)
	if err != nil {
		return "", err
	}
	r.cache.Add(key, svg)
	return svg, nil
}

func (s ChartSpec) cacheKey() string {
	var b strings.Builder
	b.WriteString(s.Field.Key())
	b.WriteByte('|')
	b.WriteString(s.Title)
	b.WriteByte('|')
	b.WriteString(s.YLabel)
	for i := range s.Times {
		b.WriteByte('|')
		b.WriteString(strconv.FormatInt(s.Times[i].UnixNano(), 36))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(s.Values[i], 'g', -1, 64))
	}
	return b.String()
}

func renderSVG(spec ChartSpec) (template.HTML, error) {
	color := drawing.ColorFromHex(fieldColors[spec.Field])
	style := chart.Style{
		StrokeColor: color,
		StrokeWidth: 2,
		DotColor:    color,
		DotWidth:    3,
	}
	if len(spec.Times) == 1 {
		style.DotWidth = 5
	}

	ch := chart.Chart{
		Title:      spec.Title,
		TitleStyle: chart.Style{FontSize: 11},
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 12}},
		XAxis: chart.XAxis{
			Name:           spec.XLabel,
			ValueFormatter: chart.TimeValueFormatterWithFormat("01-02 15:04"),
			Range:          xRange(spec.Times),
		},
		YAxis: chart.YAxis{
			Name:  spec.YLabel,
			Range: yRange(spec.Values),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    spec.YLabel,
				XValues: spec.Times,
				YValues: spec.Values,
				Style:   style,
			},
		},
	}

	var buf bytes.Buffer
	if err := ch.Render(chart.SVG, &buf); err != nil {
		return "", fmt.Errorf("render chart %s: %w", spec.Field, err)
	}
	return template.HTML(scalable(buf.String())), nil
}

// xPad is the margin put around a time axis that has a single instant.
const xPad = time.Minute

// xRange pads the time axis when every sample shares one timestamp;
// otherwise go-chart picks the range itself.
func xRange(times []time.Time) chart.Range {
	if len(times) == 0 {
		return nil
	}
	lo, hi := times[0], times[0]
	for _, t := range times[1:] {
		if t.Before(lo) {
			lo = t
		}
		if t.After(hi) {
			hi = t
		}
	}
	if !lo.Equal(hi) {
		return nil
	}
	return &chart.ContinuousRange{
		Min: chart.TimeToFloat64(lo.Add(-xPad)),
		Max: chart.TimeToFloat64(hi.Add(xPad)),
	}
}

// yRange widens a flat series so the axis has a non-zero span; otherwise
// go-chart picks the range itself.
func yRange(values []float64) chart.Range {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo != hi {
		return nil
	}
	return &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
}

// scalable adds a viewBox so the SVG fills its container width.
func scalable(svg string) string {
	end := strings.Index(svg, ">")
	if end < 0 || !strings.HasPrefix(strings.TrimSpace(svg), "<svg") || strings.Contains(svg[:end], "viewBox") {
		return svg
	}
	attrs := fmt.Sprintf(`<svg viewBox="0 0 %d %d" preserveAspectRatio="xMidYMid meet" `, chartWidth, chartHeight)
	return strings.Replace(svg, "<svg ", attrs, 1)
}
