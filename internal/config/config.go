package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultFeedURL   = "https://api.thingspeak.com/channels/1596152/feeds.json"
	defaultMQTTTopic = "channels/1596152/subscribe"
	maxFeedResults   = 8000
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	FeedURL     string
	FeedResults int
	FeedTimeout time.Duration

	RefreshInterval          time.Duration
	ManualRefreshMinInterval time.Duration
	// ZoomResetOnRefresh clears every session's zoom toggles on each refresh pass.
	ZoomResetOnRefresh bool
	SessionTTL         time.Duration
	ChartCacheSize     int

	SQLiteDriver          string
	SQLiteDSN             string
	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration

	// MQTTBroker empty disables the channel update subscriber.
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string
}

// MQTTEnabled reports whether a broker is configured.
func (c Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// LoadFromEnv reads the process environment. A .env file in the working
// directory is loaded first when present; real environment values win.
func LoadFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	feedURL := envOr("FEED_URL", defaultFeedURL)
	u, err := url.Parse(feedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Config{}, fmt.Errorf("invalid FEED_URL %q (expected http(s) URL)", feedURL)
	}

	feedResults, err := parseInt("FEED_RESULTS", "100")
	if err != nil {
		return Config{}, err
	}
	if feedResults < 1 || feedResults > maxFeedResults {
		return Config{}, fmt.Errorf("invalid FEED_RESULTS %d (allowed: 1-%d)", feedResults, maxFeedResults)
	}

	feedTimeout, err := parsePositiveDuration("FEED_TIMEOUT", "30s")
	if err != nil {
		return Config{}, err
	}

	refreshInterval, err := parsePositiveDuration("REFRESH_INTERVAL", "1h")
	if err != nil {
		return Config{}, err
	}
	if refreshInterval < time.Second {
		return Config{}, fmt.Errorf("invalid REFRESH_INTERVAL %s (must be >= 1s)", refreshInterval)
	}

	manualMin, err := parsePositiveDuration("MANUAL_REFRESH_MIN_INTERVAL", "1m")
	if err != nil {
		return Config{}, err
	}

	zoomReset, err := parseBool("ZOOM_RESET_ON_REFRESH", "false")
	if err != nil {
		return Config{}, err
	}

	sessionTTL, err := parsePositiveDuration("SESSION_TTL", "24h")
	if err != nil {
		return Config{}, err
	}

	cacheSize, err := parseInt("CHART_CACHE_SIZE", "64")
	if err != nil {
		return Config{}, err
	}
	if cacheSize < 1 {
		return Config{}, fmt.Errorf("invalid CHART_CACHE_SIZE %d (must be > 0)", cacheSize)
	}

	maxOpenConns, err := parseInt("DB_MAX_OPEN_CONNS", "1")
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := parseInt("DB_MAX_IDLE_CONNS", "1")
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := parseDuration("DB_CONN_MAX_LIFETIME", "0s")
	if err != nil {
		return Config{}, err
	}

	mqttPort, err := parseInt("MQTT_PORT", "1883")
	if err != nil {
		return Config{}, err
	}
	if mqttPort < 1 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %d", mqttPort)
	}

	return Config{
		AppEnv:   appEnv,
		LogLevel: level,
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),

		FeedURL:     feedURL,
		FeedResults: feedResults,
		FeedTimeout: feedTimeout,

		RefreshInterval:          refreshInterval,
		ManualRefreshMinInterval: manualMin,
		ZoomResetOnRefresh:       zoomReset,
		SessionTTL:               sessionTTL,
		ChartCacheSize:           cacheSize,

		SQLiteDriver:          envOr("DB_DRIVER", "sqlite3"),
		SQLiteDSN:             strings.TrimSpace(os.Getenv("DB_DSN")),
		SQLitePath:            envOr("SQLITE_PATH", ":memory:"),
		SQLiteMaxOpenConns:    maxOpenConns,
		SQLiteMaxIdleConns:    maxIdleConns,
		SQLiteConnMaxLifetime: connMaxLifetime,

		MQTTBroker:   strings.TrimSpace(os.Getenv("MQTT_BROKER")),
		MQTTPort:     mqttPort,
		MQTTClientID: envOr("MQTT_CLIENT_ID", "airdash"),
		MQTTUsername: strings.TrimSpace(os.Getenv("MQTT_USERNAME")),
		MQTTPassword: os.Getenv("MQTT_PASSWORD"),
		MQTTTopic:    envOr("MQTT_TOPIC", defaultMQTTTopic),
	}, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func parseInt(key, def string) (int, error) {
	s := envOr(key, def)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	s := envOr(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := parseDuration(key, def)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %s (must be > 0)", key, d)
	}
	return d, nil
}

func parseBool(key, def string) (bool, error) {
	s := envOr(key, def)
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q (expected true or false)", key, s)
	}
	return b, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
