package service

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	refreshes     *prometheus.CounterVec
	duration      prometheus.Histogram
	lastSuccess   prometheus.Gauge
	records       prometheus.Gauge
	latestAQI     prometheus.Gauge
	purgedSession prometheus.Counter
}

// newMetrics builds the refresh collectors and registers them with reg when
// reg is not nil.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airdash_refresh_total",
			Help: "Refresh passes by result (ok, error).",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "airdash_refresh_duration_seconds",
			Help:    "Wall time of one refresh pass.",
			Buckets: prometheus.DefBuckets,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airdash_refresh_last_success_timestamp_seconds",
			Help: "Unix time of the last successful fetch.",
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airdash_feed_records",
			Help: "Records in the latest snapshot.",
		}),
		latestAQI: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airdash_latest_aqi",
			Help: "AQI of the newest PM2.5 value.",
		}),
		purgedSession: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airdash_zoom_rows_purged_total",
			Help: "Zoom state rows removed for idle sessions.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.refreshes, m.duration, m.lastSuccess, m.records, m.latestAQI, m.purgedSession)
	}
	return m
}
