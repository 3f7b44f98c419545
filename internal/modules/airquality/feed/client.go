package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"airdash/internal/modules/airquality/types"
)

const maxBodyBytes = 16 << 20

// StatusError reports a non-200 answer from the feed endpoint.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

type Fetcher interface {
	Fetch(ctx context.Context) (types.Table, error)
}

type clientImpl struct {
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
}

// NewFetcher returns a Fetcher that GETs endpoint with the given results
// count. If logger is nil, slog.Default() is used.
func NewFetcher(httpClient *http.Client, endpoint string, results int, logger *slog.Logger) (Fetcher, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse feed url %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("feed url %q: scheme must be http or https", endpoint)
	}
	if results > 0 {
		q := u.Query()
		q.Set("results", strconv.Itoa(results))
		u.RawQuery = q.Encode()
	}
	return &clientImpl{httpClient: httpClient, endpoint: u.String(), logger: logger}, nil
}

// Fetch performs exactly one GET. A non-200 answer yields an empty table and
// a *StatusError; transport and decode failures are returned wrapped and
// never with partial data.
func (c *clientImpl) Fetch(ctx context.Context) (types.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return types.Table{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.Table{}, fmt.Errorf("request feed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debug("close feed body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return types.Table{}, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var payload feedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return types.Table{}, fmt.Errorf("decode feed: %w", err)
	}

	table := types.Table{
		Channel: payload.Channel.toChannel(),
		Records: make([]types.Record, 0, len(payload.Feeds)),
	}
	for i, entry := range payload.Feeds {
		rec, err := entry.toRecord()
		if err != nil {
			c.logger.Warn("skipping feed entry", "index", i, "entry_id", entry.EntryID, "error", err)
			continue
		}
		table.Records = append(table.Records, rec)
	}

	c.logger.Debug("feed fetched",
		"channel_id", table.Channel.ID,
		"entries", len(payload.Feeds),
		"records", len(table.Records),
	)
	return table, nil
}
