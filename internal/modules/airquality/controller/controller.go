package controller

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"airdash/internal/modules/airquality/session"
	"airdash/internal/modules/airquality/types"
	"airdash/internal/modules/airquality/views"
)

// SnapshotSource is the part of the refresh service the handlers need.
type SnapshotSource interface {
	Snapshot() types.Snapshot
	Trigger() bool
}

type AirQualityController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type airQualityControllerImpl struct {
	source  SnapshotSource
	zoom    session.ZoomStore
	charts  views.ChartRenderer
	live    http.Handler
	limiter *rate.Limiter

	manualMinInterval time.Duration
	sessionTTL        time.Duration
	secureCookies     bool
}

type Options struct {
	// ManualRefreshMinInterval spaces out POST /refresh across all clients.
	ManualRefreshMinInterval time.Duration
	SessionTTL               time.Duration
	SecureCookies            bool
}

// NewAirQualityController wires the dashboard handlers. live serves the
// websocket endpoint and may be nil.
func NewAirQualityController(source SnapshotSource, zoom session.ZoomStore, charts views.ChartRenderer, live http.Handler, opts Options) AirQualityController {
	if opts.ManualRefreshMinInterval <= 0 {
		opts.ManualRefreshMinInterval = time.Minute
	}
	return &airQualityControllerImpl{
		source:            source,
		zoom:              zoom,
		charts:            charts,
		live:              live,
		limiter:           rate.NewLimiter(rate.Every(opts.ManualRefreshMinInterval), 1),
		manualMinInterval: opts.ManualRefreshMinInterval,
		sessionTTL:        opts.SessionTTL,
		secureCookies:     opts.SecureCookies,
	}
}

func (c *airQualityControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleDashboard)
	mux.HandleFunc("GET /partials/grid", c.handleGridPartial)
	mux.HandleFunc("POST /charts/{field}/zoom", c.handleToggleZoom)
	mux.HandleFunc("POST /refresh", c.handleRefresh)
	mux.HandleFunc("GET /api/v1/snapshot", c.handleSnapshot)
	mux.HandleFunc("GET /api/v1/aqi", c.handleAQI)
	if c.live != nil {
		mux.Handle("GET /ws", c.live)
	}
}
