package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"airdash/internal/config"
	db "airdash/internal/db"
	httpapi "airdash/internal/httpapi"
	"airdash/internal/migrate"
	"airdash/internal/modules/airquality"
	"airdash/internal/modules/airquality/views"
	"airdash/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"feedURL", cfg.FeedURL,
		"feedResults", cfg.FeedResults,
		"refreshInterval", cfg.RefreshInterval.String(),
		"zoomResetOnRefresh", cfg.ZoomResetOnRefresh,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"sqliteMaxOpenConns", cfg.SQLiteMaxOpenConns,
		"sqliteMaxIdleConns", cfg.SQLiteMaxIdleConns,
		"sqliteConnMaxLifetime", cfg.SQLiteConnMaxLifetime,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
	)

	if err := views.LoadTemplates(); err != nil {
		return err
	}

	dbConn, err := db.Open(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		closeErr := db.Close(dbConn)
		if closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	applied, err := migrate.Run(ctx, dbConn)
	if err != nil {
		return err
	}
	slog.Info("database ready", "migrationsApplied", applied)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	feature, err := airquality.NewFeature(dbConn, cfg, slog.Default(), reg)
	if err != nil {
		return err
	}

	mux := httpapi.NewMux(dbConn, reg, feature)
	feature.RegisterRoutes(mux)

	// The handler is attached before Connect so updates queued by the broker
	// right after CONNACK are not lost.
	var subscriber *mqtt.Subscriber
	if cfg.MQTTEnabled() {
		subscriber, err = mqtt.NewSubscriber(cfg, slog.Default())
		if err != nil {
			return err
		}
		feature.AttachMQTT(subscriber)

		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}

	errCh := make(chan error, 2)

	featureCtx, stopFeature := context.WithCancel(ctx)
	defer stopFeature()
	featureDone := make(chan struct{})
	go func() {
		defer close(featureDone)
		if err := feature.Run(featureCtx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	srv := httpapi.NewServer(cfg, mux, reg)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if subscriber != nil {
		slog.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}

	stopFeature()
	<-featureDone

	if runErr != nil {
		return runErr
	}
	return ctx.Err()
}
