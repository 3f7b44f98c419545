package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu      sync.Mutex
	level   slog.Level
	records []map[string]slog.Value
}

func (h *captureHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := map[string]slog.Value{"msg": slog.StringValue(r.Message)}
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value
		return true
	})
	h.records = append(h.records, m)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func (h *captureHandler) sqlRecords() []map[string]slog.Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []map[string]slog.Value
	for _, m := range h.records {
		if m["msg"].String() == "sql" {
			out = append(out, m)
		}
	}
	return out
}

func (h *captureHandler) last(t *testing.T) map[string]slog.Value {
	t.Helper()
	recs := h.sqlRecords()
	if len(recs) == 0 {
		t.Fatal("no sql log records")
	}
	return recs[len(recs)-1]
}

func (h *captureHandler) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
}

func openLogged(t *testing.T, handler *captureHandler) *sql.DB {
	t.Helper()
	connector, err := NewLoggingConnector(":memory:", slog.New(handler))
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewLoggingConnector_emptyDSN(t *testing.T) {
	if _, err := NewLoggingConnector("", nil); err == nil {
		t.Fatal("NewLoggingConnector(\"\") error = nil, want non-nil")
	}
}

func TestNewLoggingConnector_nilLoggerUsesDefault(t *testing.T) {
	conn, err := NewLoggingConnector(":memory:", nil)
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	if conn.(*loggingConnector).logger == nil {
		t.Fatal("logger is nil")
	}
	if _, err := conn.Driver().Open(":memory:"); err == nil {
		t.Error("Driver().Open error = nil, want non-nil")
	}
}

func TestLoggingConnector_execAndQueryLogged(t *testing.T) {
	handler := &captureHandler{level: slog.LevelDebug}
	db := openLogged(t, handler)

	if _, err := db.Exec(`CREATE TABLE zoom (session_id TEXT, field INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	got := handler.last(t)
	if got["op"].String() != "exec" {
		t.Errorf("op = %q, want exec", got["op"].String())
	}
	if got["sql"].String() != `CREATE TABLE zoom (session_id TEXT, field INTEGER)` {
		t.Errorf("sql = %q", got["sql"].String())
	}
	if _, ok := got["duration_ms"]; !ok {
		t.Error("missing duration_ms attribute")
	}

	handler.reset()
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM zoom WHERE field = ?`, 6).Scan(&n); err != nil {
		t.Fatalf("query row: %v", err)
	}
	got = handler.last(t)
	if got["op"].String() != "query" {
		t.Errorf("op = %q, want query", got["op"].String())
	}
	args, ok := got["args"].Any().([]string)
	if !ok || len(args) != 1 || args[0] != "6" {
		t.Errorf("args = %v, want [6]", got["args"].Any())
	}
}

func TestLoggingConnector_multiStatementExec(t *testing.T) {
	db := openLogged(t, &captureHandler{level: slog.LevelDebug})

	script := `CREATE TABLE a (id INTEGER); CREATE TABLE b (id INTEGER);`
	if _, err := db.Exec(script); err != nil {
		t.Fatalf("exec script: %v", err)
	}
	for _, table := range []string{"a", "b"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestLoggingConnector_preparedStatementLogged(t *testing.T) {
	handler := &captureHandler{level: slog.LevelDebug}
	db := openLogged(t, handler)

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	stmt, err := db.Prepare(`INSERT INTO t (id, name) VALUES (?, ?)`)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	defer func() { _ = stmt.Close() }()

	handler.reset()
	if _, err := stmt.Exec(1, nil); err != nil {
		t.Fatalf("exec: %v", err)
	}
	got := handler.last(t)
	if got["sql"].String() != `INSERT INTO t (id, name) VALUES (?, ?)` {
		t.Errorf("sql = %q", got["sql"].String())
	}
	args, _ := got["args"].Any().([]string)
	if len(args) != 2 || args[0] != "1" || args[1] != "NULL" {
		t.Errorf("args = %v, want [1 NULL]", args)
	}
}

func TestLoggingConnector_errorLogged(t *testing.T) {
	handler := &captureHandler{level: slog.LevelDebug}
	db := openLogged(t, handler)

	if _, err := db.Exec(`INSERT INTO missing VALUES (1)`); err == nil {
		t.Fatal("exec error = nil, want non-nil")
	}
	var found bool
	for _, rec := range handler.records {
		if _, ok := rec["error"]; ok {
			found = true
		}
	}
	if !found {
		t.Error("no log record carries the error")
	}
}

func TestLoggingConnector_silentAboveDebug(t *testing.T) {
	handler := &captureHandler{level: slog.LevelInfo}
	db := openLogged(t, handler)

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if recs := handler.sqlRecords(); len(recs) != 0 {
		t.Errorf("got %d sql records at info level, want 0", len(recs))
	}
}

func TestLoggingConnector_pingSucceeds(t *testing.T) {
	db := openLogged(t, &captureHandler{})
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestFormatArgs(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	got := formatArgs([]driver.NamedValue{
		{Ordinal: 1, Value: "abc"},
		{Ordinal: 2, Value: []byte("raw")},
		{Ordinal: 3, Value: ts},
		{Ordinal: 4, Name: "field", Value: int64(3)},
		{Ordinal: 5, Value: nil},
	})
	want := []string{"abc", "raw", "2024-05-01T10:00:00Z", "field=3", "NULL"}
	if len(got) != len(want) {
		t.Fatalf("formatArgs len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("formatArgs[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
