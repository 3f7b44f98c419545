package httpapi

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux registers the operational routes. Feature modules add their own.
func NewMux(db *sql.DB, gatherer prometheus.Gatherer, status RefreshStatus) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, status)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}
