package airquality

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"airdash/internal/config"
	"airdash/internal/modules/airquality/controller"
	"airdash/internal/modules/airquality/feed"
	"airdash/internal/modules/airquality/live"
	"airdash/internal/modules/airquality/service"
	"airdash/internal/modules/airquality/session"
	"airdash/internal/modules/airquality/types"
	"airdash/internal/modules/airquality/views"
)

// Feature is the dashboard module: refresh loop, live hub and routes.
type Feature struct {
	service    *service.Service
	hub        *live.Hub
	controller controller.AirQualityController
	logger     *slog.Logger
}

// NewFeature wires the module against db. Views must already be loaded.
func NewFeature(db *sql.DB, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Feature, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "airquality")

	httpClient := &http.Client{Timeout: cfg.FeedTimeout}
	fetcher, err := feed.NewFetcher(httpClient, cfg.FeedURL, cfg.FeedResults, logger)
	if err != nil {
		return nil, err
	}

	charts, err := views.NewChartRenderer(cfg.ChartCacheSize)
	if err != nil {
		return nil, fmt.Errorf("chart renderer: %w", err)
	}

	zoom := session.NewZoomStore(db)
	svc := service.NewService(fetcher, zoom, logger, service.Options{
		Interval:           cfg.RefreshInterval,
		FetchTimeout:       cfg.FeedTimeout,
		ResetZoomOnRefresh: cfg.ZoomResetOnRefresh,
		SessionTTL:         cfg.SessionTTL,
		Registerer:         reg,
	})

	hub := live.NewHub(logger)
	svc.Notify(func(snap types.Snapshot) {
		hub.Broadcast(live.RefreshedEvent(snap))
	})

	ctrl := controller.NewAirQualityController(svc, zoom, charts, http.HandlerFunc(hub.ServeWS), controller.Options{
		ManualRefreshMinInterval: cfg.ManualRefreshMinInterval,
		SessionTTL:               cfg.SessionTTL,
		SecureCookies:            cfg.AppEnv == "prod",
	})

	return &Feature{service: svc, hub: hub, controller: ctrl, logger: logger}, nil
}

func (f *Feature) RegisterRoutes(mux *http.ServeMux) {
	f.controller.RegisterRoutes(mux)
}

// Run drives the live hub and the refresh loop until ctx is cancelled.
func (f *Feature) Run(ctx context.Context) error {
	go f.hub.Run(ctx)
	return f.service.Run(ctx)
}

// LastRefresh is the start time of the latest refresh pass.
func (f *Feature) LastRefresh() time.Time {
	return f.service.LastRefresh()
}
