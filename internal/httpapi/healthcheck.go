package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"airdash/internal/utils"
)

// RefreshStatus reports when the dashboard data was last refreshed.
type RefreshStatus interface {
	LastRefresh() time.Time
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	db     *sql.DB
	status RefreshStatus
}

func NewHealthchecker(db *sql.DB, status RefreshStatus) healthchecker {
	return &healthcheckerImpl{db: db, status: status}
}

type healthResponse struct {
	Status      string     `json:"status"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
}

func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var ok int
	if err := h.db.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		slog.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
		return
	}

	resp := healthResponse{Status: "ok"}
	if h.status != nil {
		if last := h.status.LastRefresh(); !last.IsZero() {
			last = last.UTC()
			resp.LastRefresh = &last
		}
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB, status RefreshStatus) {
	healthchecker := NewHealthchecker(db, status)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
