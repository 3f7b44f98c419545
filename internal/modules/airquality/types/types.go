package types

import (
	"fmt"
	"time"
)

// Field identifies one of the six numeric channel fields.
type Field int

const (
	Temperature Field = iota + 1
	Humidity
	Pressure
	LightIntensity
	CO2
	PM25
)

// FieldCount is the number of numeric fields carried by a feed record.
const FieldCount = 6

// Fields lists every field in display order.
var Fields = []Field{Temperature, Humidity, Pressure, LightIntensity, CO2, PM25}

var fieldLabels = map[Field]string{
	Temperature:    "Temperature (°C)",
	Humidity:       "Humidity (%)",
	Pressure:       "Pressure (hPa)",
	LightIntensity: "Light Intensity (Lux)",
	CO2:            "CO2 Levels (ppm)",
	PM25:           "PM2.5 (µg/m³) & AQI",
}

// Key returns the wire name of the field, e.g. "field6".
func (f Field) Key() string {
	return fmt.Sprintf("field%d", int(f))
}

func (f Field) Label() string {
	return fieldLabels[f]
}

func (f Field) Valid() bool {
	return f >= Temperature && f <= PM25
}

func (f Field) String() string {
	return f.Key()
}

// ParseField accepts "field1".."field6".
func ParseField(s string) (Field, bool) {
	for _, f := range Fields {
		if f.Key() == s {
			return f, true
		}
	}
	return 0, false
}

// Channel is the metadata block returned alongside the feeds.
type Channel struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	LastEntryID int64  `json:"lastEntryId"`
}

// Record is one sample of the channel. A nil value means the field was
// missing or could not be parsed.
type Record struct {
	EntryID   int64
	CreatedAt time.Time
	Values    [FieldCount]*float64
}

// Value returns the value of f and whether it is present.
func (r Record) Value(f Field) (float64, bool) {
	if !f.Valid() {
		return 0, false
	}
	v := r.Values[int(f)-1]
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Table is the ordered set of records returned by one fetch.
type Table struct {
	Channel Channel
	Records []Record
}

func (t Table) Empty() bool {
	return len(t.Records) == 0
}

type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Series is the windowed data for one field. AQI is only set for PM25 and
// holds one score per point.
type Series struct {
	Field  Field     `json:"-"`
	Key    string    `json:"field"`
	Label  string    `json:"label"`
	Points []Point   `json:"points"`
	AQI    []float64 `json:"aqi,omitempty"`
}

// Snapshot is the outcome of one refresh pass.
type Snapshot struct {
	FetchedAt time.Time
	Table     Table
	Series    []Series
	// Err is the user-visible fetch failure for this pass, if any.
	Err string
}

// SeriesFor returns the series for f, or an empty one.
func (s Snapshot) SeriesFor(f Field) Series {
	for _, series := range s.Series {
		if series.Field == f {
			return series
		}
	}
	return Series{Field: f, Key: f.Key(), Label: f.Label()}
}

// LatestAQI returns the AQI of the newest PM2.5 point.
func (s Snapshot) LatestAQI() (float64, bool) {
	pm := s.SeriesFor(PM25)
	if len(pm.AQI) == 0 {
		return 0, false
	}
	return pm.AQI[len(pm.AQI)-1], true
}
