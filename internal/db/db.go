package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"airdash/internal/config"
)

const memoryPath = ":memory:"

// Open returns a pooled handle for the zoom-state database. The sqlite3
// driver goes through the logging connector; any other registered driver
// name is opened as-is.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sql.DB, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	if cfg.SQLiteDriver == "" || cfg.SQLiteDriver == "sqlite3" {
		connector, err := NewLoggingConnector(dsn, logger)
		if err != nil {
			return nil, fmt.Errorf("db connector: %w", err)
		}
		db = sql.OpenDB(connector)
	} else {
		db, err = sql.Open(cfg.SQLiteDriver, dsn)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
	}

	// Every connection to an in-memory database is its own database.
	if isMemory(cfg) {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		if cfg.SQLiteMaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.SQLiteMaxOpenConns)
		}
		if cfg.SQLiteMaxIdleConns >= 0 {
			db.SetMaxIdleConns(cfg.SQLiteMaxIdleConns)
		}
		if cfg.SQLiteConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.SQLiteConnMaxLifetime)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return db, nil
}

func Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

func isMemory(cfg config.Config) bool {
	if cfg.SQLiteDSN != "" {
		return strings.Contains(cfg.SQLiteDSN, memoryPath) || strings.Contains(cfg.SQLiteDSN, "mode=memory")
	}
	return cfg.SQLitePath == "" || cfg.SQLitePath == memoryPath
}

func buildDSN(cfg config.Config) (string, error) {
	if cfg.SQLiteDSN != "" {
		return cfg.SQLiteDSN, nil
	}

	params := []string{"_foreign_keys=on", "_busy_timeout=5000"}

	path := cfg.SQLitePath
	if path == "" || path == memoryPath {
		return "file::memory:?" + strings.Join(params, "&"), nil
	}

	dir := filepath.Dir(path)
	if dir != "." && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	params = append(params, "_journal_mode=WAL")

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
