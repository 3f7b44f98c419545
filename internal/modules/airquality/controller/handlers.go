package controller

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"airdash/internal/modules/airquality/aqi"
	"airdash/internal/modules/airquality/session"
	"airdash/internal/modules/airquality/types"
	"airdash/internal/modules/airquality/views"
	"airdash/internal/utils"
)

func (c *airQualityControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := c.buildDashboard(w, r)

	var buf bytes.Buffer
	if err := views.RenderDashboard(&buf, data); err != nil {
		slog.Error("dashboard template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *airQualityControllerImpl) handleGridPartial(w http.ResponseWriter, r *http.Request) {
	data := c.buildDashboard(w, r)

	var buf bytes.Buffer
	if err := views.RenderGridPartial(&buf, data); err != nil {
		slog.Error("grid partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

// buildDashboard reads the viewer's zoom state and the latest snapshot. A
// zoom lookup failure degrades to compact charts.
func (c *airQualityControllerImpl) buildDashboard(w http.ResponseWriter, r *http.Request) *views.DashboardData {
	sessionID := c.sessionID(w, r)
	zoom, err := c.zoom.Zoom(r.Context(), sessionID)
	if err != nil {
		slog.Error("dashboard: load zoom state failed", "error", err)
		zoom = nil
	}
	return views.BuildDashboard(c.charts, c.source.Snapshot(), zoom)
}

func (c *airQualityControllerImpl) handleToggleZoom(w http.ResponseWriter, r *http.Request) {
	field, ok := types.ParseField(r.PathValue("field"))
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "unknown field")
		return
	}

	sessionID := c.sessionID(w, r)
	zoomed, err := c.zoom.Toggle(r.Context(), sessionID, field)
	if err != nil {
		if errors.Is(err, session.ErrUnknownField) {
			utils.WriteError(w, http.StatusNotFound, "unknown field")
			return
		}
		slog.Error("toggle zoom failed", "field", field.Key(), "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to toggle zoom")
		return
	}
	slog.Debug("zoom toggled", "field", field.Key(), "zoomed", zoomed)

	if wantsJSON(r) {
		utils.WriteJSON(w, http.StatusOK, map[string]any{"field": field.Key(), "zoomed": zoomed})
		return
	}
	http.Redirect(w, r, "/#chart-"+field.Key(), http.StatusSeeOther)
}

func (c *airQualityControllerImpl) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !c.limiter.Allow() {
		w.Header().Set("Retry-After", fmt.Sprintf("%.0f", c.manualMinInterval.Seconds()))
		utils.WriteError(w, http.StatusTooManyRequests,
			fmt.Sprintf("manual refresh is limited to once every %s", c.manualMinInterval))
		return
	}

	queued := c.source.Trigger()
	slog.Info("manual refresh requested", "queued", queued)

	if wantsJSON(r) {
		status := "queued"
		if !queued {
			status = "pending"
		}
		utils.WriteJSON(w, http.StatusAccepted, map[string]string{"status": status})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type aqiResponse struct {
	PM25     *float64 `json:"pm25,omitempty"`
	AQI      float64  `json:"aqi"`
	Category string   `json:"category"`
}

type snapshotResponse struct {
	FetchedAt time.Time      `json:"fetched_at"`
	Error     string         `json:"error,omitempty"`
	Channel   types.Channel  `json:"channel"`
	Records   int            `json:"records"`
	Series    []types.Series `json:"series"`
	LatestAQI *aqiResponse   `json:"latest_aqi,omitempty"`
}

func (c *airQualityControllerImpl) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := c.source.Snapshot()
	if snap.FetchedAt.IsZero() {
		utils.WriteError(w, http.StatusServiceUnavailable, "no refresh has completed yet")
		return
	}

	resp := snapshotResponse{
		FetchedAt: snap.FetchedAt.UTC(),
		Error:     snap.Err,
		Channel:   snap.Table.Channel,
		Records:   len(snap.Table.Records),
		Series:    snap.Series,
	}
	if resp.Series == nil {
		resp.Series = []types.Series{}
	}
	if score, ok := snap.LatestAQI(); ok {
		resp.LatestAQI = &aqiResponse{AQI: score, Category: string(aqi.CategoryOf(score))}
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (c *airQualityControllerImpl) handleAQI(w http.ResponseWriter, r *http.Request) {
	pm25, err := parsePM25Query(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	score := aqi.Convert(pm25)
	utils.WriteJSON(w, http.StatusOK, aqiResponse{
		PM25:     &pm25,
		AQI:      score,
		Category: string(aqi.CategoryOf(score)),
	})
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
