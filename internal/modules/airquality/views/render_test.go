package views

import (
	"bytes"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"airdash/internal/modules/airquality/types"
)

func TestLoadTemplates_success(t *testing.T) {
	if err := LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates() = %v; want nil", err)
	}
	if dashboardTmpl == nil {
		t.Fatal("LoadTemplates() left dashboardTmpl nil")
	}
	for _, name := range []string{"dashboard.html", "partials/grid.html", "partials/chart.html"} {
		if dashboardTmpl.Lookup(name) == nil {
			t.Errorf("template %q not defined", name)
		}
	}
}

func TestLoadTemplates_failure_sub(t *testing.T) {
	// Empty FS has no "templates" directory; ParseFS finds nothing.
	if err := loadTemplatesFromFS(fstest.MapFS{}, "templates"); err == nil {
		t.Fatal("loadTemplatesFromFS(emptyFS, \"templates\") = nil; want error")
	}
}

func TestLoadTemplates_failure_parse(t *testing.T) {
	badFS := fstest.MapFS{
		"templates/dashboard.html":     {Data: []byte("{{ .")},
		"templates/partials/grid.html": {Data: []byte("")},
	}
	if err := loadTemplatesFromFS(badFS, "templates"); err == nil {
		t.Fatal("loadTemplatesFromFS(badFS, \"templates\") = nil; want error")
	}
}

func renderPage(t *testing.T, data *DashboardData) string {
	t.Helper()
	if err := LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	var buf bytes.Buffer
	if err := RenderDashboard(&buf, data); err != nil {
		t.Fatalf("RenderDashboard: %v", err)
	}
	return buf.String()
}

func TestRenderDashboard_chartsAndToggles(t *testing.T) {
	snapshot := types.Snapshot{
		FetchedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Table:     tableWith(map[types.Field][]float64{types.Temperature: {20, 21}, types.PM25: {10, 40}}),
	}
	data := BuildDashboard(&fakeRenderer{}, snapshot, map[types.Field]bool{types.Humidity: true})
	out := renderPage(t, data)

	for _, want := range []string{
		"<title>" + PageTitle + "</title>",
		PageDescription,
		GridHeading,
		`id="chart-field1"`,
		`id="chart-field6"`,
		`action="/charts/field2/zoom"`,
		"Detailed View for Humidity (%)",
		"Latest AQI Value:</strong> 111.50",
		"new WebSocket",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(out, "Detailed View for Temperature") {
		t.Error("compact chart rendered the detailed heading")
	}
	if strings.Contains(out, NoDataWarning) {
		t.Error("page with data shows the no-data warning")
	}
}

func TestRenderGridPartial_emptyTable(t *testing.T) {
	if err := LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	data := BuildDashboard(&fakeRenderer{}, types.Snapshot{Err: "Failed to fetch data: 404"}, nil)

	var buf bytes.Buffer
	if err := RenderGridPartial(&buf, data); err != nil {
		t.Fatalf("RenderGridPartial: %v", err)
	}
	out := buf.String()
	if strings.Count(out, NoDataWarning) != 1 {
		t.Errorf("want exactly one %q in %q", NoDataWarning, out)
	}
	if !strings.Contains(out, "Failed to fetch data: 404") {
		t.Errorf("grid missing fetch error: %q", out)
	}
	if strings.Contains(out, `class="chart`) {
		t.Error("empty table rendered a chart")
	}
	if strings.Contains(out, "<html") {
		t.Error("partial rendered the full page")
	}
}

func TestRender_notLoaded(t *testing.T) {
	saved := dashboardTmpl
	dashboardTmpl = nil
	t.Cleanup(func() { dashboardTmpl = saved })

	if err := RenderDashboard(&bytes.Buffer{}, &DashboardData{}); err == nil {
		t.Error("RenderDashboard with no templates = nil; want error")
	}
	if err := RenderGridPartial(&bytes.Buffer{}, &DashboardData{}); err == nil {
		t.Error("RenderGridPartial with no templates = nil; want error")
	}
}
