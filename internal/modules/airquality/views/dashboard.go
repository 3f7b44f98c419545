package views

import (
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"airdash/internal/modules/airquality/aqi"
	"airdash/internal/modules/airquality/feed"
	"airdash/internal/modules/airquality/types"
)

const (
	PageTitle       = "Enhanced Dashboard with AQI and Auto Refresh"
	PageDescription = "This dashboard provides labeled graphs, real-time AQI calculation, and automatic refresh every hour."
	GridHeading     = "Interactive Graphs with Labels and Insights"
	NoDataWarning   = "No data available to display."

	// GridColumns is the number of chart columns on the page.
	GridColumns = 3
)

// ChartView is the view model for one chart cell.
type ChartView struct {
	Field   types.Field
	ID      string
	Label   string
	Title   string
	Column  int
	Zoomed  bool
	Heading string

	// SVG is empty when the field has no points or the chart failed.
	SVG         template.HTML
	EmptyNote   string
	Unavailable bool

	LatestAQI   string
	AQICategory string

	ToggleAction string
	ToggleLabel  string
}

// DashboardData is the view model for the dashboard page and grid partial.
type DashboardData struct {
	Title              string
	Description        string
	Heading            string
	ChannelName        string
	ChannelDescription string
	FetchedAt          string

	Errors   []string
	Warnings []string

	Charts []ChartView
	// Columns holds Charts split by grid column, top to bottom.
	Columns [][]ChartView
}

// BuildDashboard assembles the view model for the latest snapshot and the
// viewer's zoom toggles. A nil zoom map means every chart is compact.
func BuildDashboard(charts ChartRenderer, snapshot types.Snapshot, zoom map[types.Field]bool) *DashboardData {
	data := &DashboardData{
		Title:              PageTitle,
		Description:        PageDescription,
		Heading:            GridHeading,
		ChannelName:        snapshot.Table.Channel.Name,
		ChannelDescription: snapshot.Table.Channel.Description,
	}
	if !snapshot.FetchedAt.IsZero() {
		data.FetchedAt = snapshot.FetchedAt.UTC().Format(time.RFC1123)
	}
	if snapshot.Err != "" {
		data.Errors = append(data.Errors, snapshot.Err)
	}
	if snapshot.Table.Empty() {
		data.Warnings = append(data.Warnings, NoDataWarning)
		return data
	}

	series := snapshot.Series
	if len(series) == 0 {
		series = feed.WindowAll(snapshot.Table)
		snapshot.Series = series
	}

	data.Columns = make([][]ChartView, GridColumns)
	for i, f := range types.Fields {
		view := buildChartView(charts, f, i+1, snapshot.SeriesFor(f), zoom[f])
		if f == types.PM25 {
			if score, ok := snapshot.LatestAQI(); ok {
				view.LatestAQI = fmt.Sprintf("%.2f", score)
				view.AQICategory = string(aqi.CategoryOf(score))
			}
		}
		data.Charts = append(data.Charts, view)
		data.Columns[view.Column] = append(data.Columns[view.Column], view)
	}
	return data
}

func buildChartView(charts ChartRenderer, f types.Field, position int, series types.Series, zoomed bool) ChartView {
	view := ChartView{
		Field:        f,
		ID:           "chart-" + f.Key(),
		Label:        f.Label(),
		Title:        f.Label() + " - Latest 10 Values",
		Column:       (position - 1) % GridColumns,
		Zoomed:       zoomed,
		ToggleAction: "/charts/" + f.Key() + "/zoom",
		ToggleLabel:  "Zoom " + f.Label(),
	}
	if zoomed {
		view.Heading = "Detailed View for " + f.Label()
	}
	if len(series.Points) == 0 {
		view.EmptyNote = "No recent values for " + f.Label() + "."
		return view
	}

	spec := ChartSpec{
		Field:  f,
		Title:  view.Title,
		XLabel: "Time",
		YLabel: f.Label(),
		Times:  make([]time.Time, len(series.Points)),
		Values: make([]float64, len(series.Points)),
	}
	for i, p := range series.Points {
		spec.Times[i] = p.Time
		spec.Values[i] = p.Value
	}
	if f == types.PM25 && len(series.AQI) == len(series.Points) {
		spec.YLabel = "AQI"
		copy(spec.Values, series.AQI)
	}

	svg, err := charts.Render(spec)
	if err != nil {
		slog.Error("chart render failed", "field", f.Key(), "error", err)
		view.Unavailable = true
		return view
	}
	view.SVG = svg
	return view
}
