package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"airdash/internal/modules/airquality/feed"
	"airdash/internal/modules/airquality/session"
	"airdash/internal/modules/airquality/types"
)

const purgeSchedule = "@hourly"

type Options struct {
	// Interval between scheduled passes.
	Interval time.Duration
	// FetchTimeout bounds one fetch; zero leaves it to the HTTP client.
	FetchTimeout time.Duration
	// ResetZoomOnRefresh clears every session's zoom state after each pass.
	ResetZoomOnRefresh bool
	// SessionTTL is how long idle zoom state is kept; zero disables purging.
	SessionTTL time.Duration
	Registerer prometheus.Registerer
}

// Service owns the refresh loop and the latest snapshot.
type Service struct {
	fetcher feed.Fetcher
	zoom    session.ZoomStore
	logger  *slog.Logger
	opts    Options
	metrics *metrics
	now     func() time.Time

	trigger chan struct{}

	mu        sync.RWMutex
	snapshot  types.Snapshot
	listeners []func(types.Snapshot)
}

// NewService wires a refresh loop. If logger is nil, slog.Default() is used.
func NewService(fetcher feed.Fetcher, zoom session.ZoomStore, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	return &Service{
		fetcher: fetcher,
		zoom:    zoom,
		logger:  logger,
		opts:    opts,
		metrics: newMetrics(opts.Registerer),
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
}

// Run performs a pass immediately, then one per interval and one per
// Trigger, until ctx is cancelled. Passes never overlap.
func (s *Service) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc("@every "+s.opts.Interval.String(), func() { s.Trigger() }); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	if s.zoom != nil && s.opts.SessionTTL > 0 {
		if _, err := c.AddFunc(purgeSchedule, func() { s.purgeSessions(ctx) }); err != nil {
			return fmt.Errorf("schedule session purge: %w", err)
		}
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	s.logger.Info("refresh loop started", "interval", s.opts.Interval.String())
	s.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh loop stopped")
			return ctx.Err()
		case <-s.trigger:
			s.refresh(ctx)
		}
	}
}

// Trigger requests an extra pass. It reports false when one is already
// pending, in which case the request is merged into it.
func (s *Service) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Snapshot returns the latest published snapshot.
func (s *Service) Snapshot() types.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// LastRefresh is the start time of the latest pass, zero before the first.
func (s *Service) LastRefresh() time.Time {
	return s.Snapshot().FetchedAt
}

// Notify registers fn to be called after every published pass.
func (s *Service) Notify(fn func(types.Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) refresh(ctx context.Context) types.Snapshot {
	start := s.now()

	fetchCtx := ctx
	if s.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
	}

	snap := types.Snapshot{FetchedAt: start}
	table, err := s.fetcher.Fetch(fetchCtx)
	s.metrics.duration.Observe(s.now().Sub(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Debug("refresh abandoned on shutdown", "error", err)
			return s.Snapshot()
		}
		s.metrics.refreshes.WithLabelValues("error").Inc()
		snap.Err = FailureMessage(err)
		s.logger.Error("refresh failed", "error", err)
	} else {
		s.metrics.refreshes.WithLabelValues("ok").Inc()
		s.metrics.lastSuccess.Set(float64(start.Unix()))
		snap.Table = table
		snap.Series = feed.WindowAll(table)
		if table.Empty() {
			s.logger.Warn("feed returned no records")
		}
		s.logger.Info("refresh done", "records", len(table.Records), "duration_ms", s.now().Sub(start).Milliseconds())
	}
	s.metrics.records.Set(float64(len(snap.Table.Records)))
	if score, ok := snap.LatestAQI(); ok {
		s.metrics.latestAQI.Set(score)
	} else {
		s.metrics.latestAQI.Set(math.NaN())
	}

	if s.opts.ResetZoomOnRefresh && s.zoom != nil {
		if err := s.zoom.ResetAll(ctx); err != nil {
			s.logger.Error("reset zoom state failed", "error", err)
		}
	}

	s.publish(snap)
	return snap
}

func (s *Service) publish(snap types.Snapshot) {
	s.mu.Lock()
	s.snapshot = snap
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (s *Service) purgeSessions(ctx context.Context) {
	n, err := s.zoom.PurgeBefore(ctx, s.now().Add(-s.opts.SessionTTL))
	if err != nil {
		s.logger.Error("purge zoom state failed", "error", err)
		return
	}
	s.metrics.purgedSession.Add(float64(n))
	if n > 0 {
		s.logger.Info("purged idle zoom state", "rows", n)
	}
}

// FailureMessage is the user-visible text for a failed fetch.
func FailureMessage(err error) string {
	var statusErr *feed.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("Failed to fetch data: %d", statusErr.StatusCode)
	}
	return "Failed to fetch data: " + err.Error()
}
