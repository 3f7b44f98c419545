package session

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"airdash/internal/modules/airquality/types"
)

//go:embed sql/get-zoom.sql
var getZoomSQL string

//go:embed sql/toggle-zoom.sql
var toggleZoomSQL string

//go:embed sql/reset-zoom.sql
var resetZoomSQL string

//go:embed sql/purge-zoom.sql
var purgeZoomSQL string

// Fixed width so stored timestamps compare correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

var ErrUnknownField = errors.New("unknown field")

// ZoomStore keeps the per-session, per-field zoom toggles.
type ZoomStore interface {
	Zoom(ctx context.Context, sessionID string) (map[types.Field]bool, error)
	Toggle(ctx context.Context, sessionID string, field types.Field) (bool, error)
	ResetAll(ctx context.Context) error
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

type storeImpl struct {
	db  *sql.DB
	now func() time.Time
}

func NewZoomStore(db *sql.DB) ZoomStore {
	return &storeImpl{db: db, now: time.Now}
}

func (s *storeImpl) Zoom(ctx context.Context, sessionID string) (map[types.Field]bool, error) {
	out := make(map[types.Field]bool, types.FieldCount)
	if sessionID == "" {
		return out, nil
	}
	// Reading counts as activity for the idle purge.
	ts := s.now().UTC().Format(timestampLayout)
	rows, err := s.db.QueryContext(ctx, getZoomSQL, ts, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close zoom rows", "error", err)
		}
	}()
	for rows.Next() {
		var key string
		var zoomed bool
		if err := rows.Scan(&key, &zoomed); err != nil {
			return nil, err
		}
		f, ok := types.ParseField(key)
		if !ok {
			slog.Warn("ignoring stored zoom state for unknown field", "session_id", sessionID, "field", key)
			continue
		}
		out[f] = zoomed
	}
	return out, rows.Err()
}

// Toggle flips the zoom flag of field for the session and returns the new
// value. A field never toggled before becomes zoomed.
func (s *storeImpl) Toggle(ctx context.Context, sessionID string, field types.Field) (bool, error) {
	if !field.Valid() {
		return false, fmt.Errorf("%w: %d", ErrUnknownField, int(field))
	}
	if sessionID == "" {
		return false, errors.New("session id is required")
	}
	var zoomed bool
	ts := s.now().UTC().Format(timestampLayout)
	if err := s.db.QueryRowContext(ctx, toggleZoomSQL, sessionID, field.Key(), ts).Scan(&zoomed); err != nil {
		return false, fmt.Errorf("toggle zoom: %w", err)
	}
	return zoomed, nil
}

// ResetAll clears every session's zoom state.
func (s *storeImpl) ResetAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, resetZoomSQL); err != nil {
		return fmt.Errorf("reset zoom: %w", err)
	}
	return nil
}

// PurgeBefore removes zoom state last toggled before the given time.
func (s *storeImpl) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, purgeZoomSQL, before.UTC().Format(timestampLayout))
	if err != nil {
		return 0, fmt.Errorf("purge zoom: %w", err)
	}
	return res.RowsAffected()
}
