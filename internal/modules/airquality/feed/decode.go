package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"airdash/internal/modules/airquality/types"
)

type feedResponse struct {
	Channel channelJSON `json:"channel"`
	Feeds   []entryJSON `json:"feeds"`
}

type channelJSON struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	LastEntryID int64  `json:"last_entry_id"`
}

func (c channelJSON) toChannel() types.Channel {
	return types.Channel{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		LastEntryID: c.LastEntryID,
	}
}

type entryJSON struct {
	CreatedAt string     `json:"created_at"`
	EntryID   int64      `json:"entry_id"`
	Field1    fieldValue `json:"field1"`
	Field2    fieldValue `json:"field2"`
	Field3    fieldValue `json:"field3"`
	Field4    fieldValue `json:"field4"`
	Field5    fieldValue `json:"field5"`
	Field6    fieldValue `json:"field6"`
}

func (e entryJSON) toRecord() (types.Record, error) {
	ts, err := ParseTimestamp(e.CreatedAt)
	if err != nil {
		return types.Record{}, err
	}
	return types.Record{
		EntryID:   e.EntryID,
		CreatedAt: ts,
		Values: [types.FieldCount]*float64{
			e.Field1.v, e.Field2.v, e.Field3.v, e.Field4.v, e.Field5.v, e.Field6.v,
		},
	}, nil
}

// fieldValue accepts a JSON string, number or null. Anything that does not
// parse to a finite number is kept as missing.
type fieldValue struct {
	v *float64
}

func (f *fieldValue) UnmarshalJSON(data []byte) error {
	f.v = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil
	}
	f.v = &n
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses created_at values. Zone-less values are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("created_at is empty")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("created_at %q: unrecognised timestamp", s)
}

// DecodeEntry decodes a single feed element, as published on the channel's
// MQTT subscribe topic.
func DecodeEntry(data []byte) (types.Record, error) {
	var entry entryJSON
	if err := json.Unmarshal(data, &entry); err != nil {
		return types.Record{}, fmt.Errorf("decode entry: %w", err)
	}
	return entry.toRecord()
}
