package feed

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airdash/internal/modules/airquality/types"
)

const threeEntries = `{
  "channel": {"id": 1596152, "name": "Weather Station", "description": "roof", "last_entry_id": 3},
  "feeds": [
    {"created_at": "2024-03-01T10:00:00Z", "entry_id": 1, "field1": "21.5", "field2": "40", "field3": "1013.2", "field4": "120", "field5": "415", "field6": "10"},
    {"created_at": "2024-03-01T10:15:00Z", "entry_id": 2, "field1": "21.7", "field2": "41", "field3": null, "field4": "118", "field5": "420", "field6": "40"},
    {"created_at": "2024-03-01T10:30:00Z", "entry_id": 3, "field1": " 22.0 ", "field2": "oops", "field3": "1012.9", "field4": 117, "field5": "", "field6": "12.1"}
  ]
}`

func newTestFetcher(t *testing.T, handler http.HandlerFunc) (Fetcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f, err := NewFetcher(srv.Client(), srv.URL+"/channels/1596152/feeds.json", 100, nil)
	require.NoError(t, err)
	return f, srv
}

func TestFetch_success(t *testing.T) {
	var gotQuery string
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("results")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(threeEntries))
	})

	table, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "100", gotQuery)
	require.Len(t, table.Records, 3)

	assert.Equal(t, int64(1596152), table.Channel.ID)
	assert.Equal(t, "Weather Station", table.Channel.Name)
	assert.Equal(t, int64(3), table.Channel.LastEntryID)

	first := table.Records[0]
	assert.Equal(t, int64(1), first.EntryID)
	assert.True(t, first.CreatedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
	v, ok := first.Value(types.Temperature)
	assert.True(t, ok)
	assert.InDelta(t, 21.5, v, 1e-9)
	v, ok = first.Value(types.PM25)
	assert.True(t, ok)
	assert.InDelta(t, 10, v, 1e-9)
}

func TestFetch_nullFieldKeepsRestOfRow(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(threeEntries))
	})

	table, err := f.Fetch(context.Background())
	require.NoError(t, err)

	second := table.Records[1]
	_, ok := second.Value(types.Pressure)
	assert.False(t, ok, "field3 null should be missing")
	for _, field := range []types.Field{types.Temperature, types.Humidity, types.LightIntensity, types.CO2, types.PM25} {
		_, ok := second.Value(field)
		assert.True(t, ok, "%s should be kept", field)
	}
}

func TestFetch_coercesMalformedValuesToMissing(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(threeEntries))
	})

	table, err := f.Fetch(context.Background())
	require.NoError(t, err)

	third := table.Records[2]
	v, ok := third.Value(types.Temperature)
	assert.True(t, ok)
	assert.InDelta(t, 22.0, v, 1e-9, "surrounding whitespace is ignored")
	_, ok = third.Value(types.Humidity)
	assert.False(t, ok, "non-numeric string is missing")
	_, ok = third.Value(types.CO2)
	assert.False(t, ok, "empty string is missing")
	v, ok = third.Value(types.LightIntensity)
	assert.True(t, ok, "bare JSON numbers are accepted")
	assert.InDelta(t, 117, v, 1e-9)
}

func TestFetch_notFound(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such channel", http.StatusNotFound)
	})

	table, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, table.Empty())

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "unexpected status 404", err.Error())
}

func TestFetch_emptyFeeds(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"channel": {"id": 7}, "feeds": []}`))
	})

	table, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, table.Empty())
}

func TestFetch_malformedBody(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"feeds": [`))
	})

	table, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, table.Empty())
	assert.Contains(t, err.Error(), "decode feed")
}

func TestFetch_skipsUnparsableTimestamp(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"feeds": [
			{"created_at": "yesterday", "entry_id": 1, "field1": "1"},
			{"created_at": "2024-03-01 10:00:00 -0500", "entry_id": 2, "field1": "2"}
		]}`))
	})

	table, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Records, 1)
	assert.Equal(t, int64(2), table.Records[0].EntryID)
	assert.True(t, table.Records[0].CreatedAt.Equal(time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)))
}

func TestFetch_connectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	f, err := NewFetcher(&http.Client{Timeout: 2 * time.Second}, "http://"+addr+"/feeds.json", 10, nil)
	require.NoError(t, err)

	table, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, table.Empty())
	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
	assert.Contains(t, err.Error(), "request feed")
}

func TestFetch_contextCancelled(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewFetcher_invalidURL(t *testing.T) {
	_, err := NewFetcher(nil, "ftp://example.com/feeds.json", 10, nil)
	assert.Error(t, err)

	_, err = NewFetcher(nil, "://bad", 10, nil)
	assert.Error(t, err)
}

func TestNewFetcher_keepsExistingQuery(t *testing.T) {
	f, err := NewFetcher(nil, "https://api.example.com/feeds.json?timezone=UTC", 25, nil)
	require.NoError(t, err)
	impl := f.(*clientImpl)
	assert.Contains(t, impl.endpoint, "timezone=UTC")
	assert.Contains(t, impl.endpoint, "results=25")
}
