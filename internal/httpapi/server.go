package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"airdash/internal/config"
)

func NewServer(cfg config.Config, mux *http.ServeMux, reg prometheus.Registerer) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(mux, newHTTPMetrics(reg)),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
