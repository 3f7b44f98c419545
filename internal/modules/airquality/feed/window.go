package feed

import (
	"airdash/internal/modules/airquality/aqi"
	"airdash/internal/modules/airquality/types"
)

// WindowSize is how many recent values each chart shows.
const WindowSize = 10

// Window returns the last n present values of field in table order.
func Window(table types.Table, field types.Field, n int) []types.Point {
	if n <= 0 {
		return nil
	}
	points := make([]types.Point, 0, n)
	for _, rec := range table.Records {
		v, ok := rec.Value(field)
		if !ok {
			continue
		}
		points = append(points, types.Point{Time: rec.CreatedAt, Value: v})
	}
	if len(points) > n {
		points = points[len(points)-n:]
	}
	return points
}

// WindowAll builds the series for every field, attaching AQI scores to PM2.5.
func WindowAll(table types.Table) []types.Series {
	out := make([]types.Series, 0, len(types.Fields))
	for _, f := range types.Fields {
		s := types.Series{
			Field:  f,
			Key:    f.Key(),
			Label:  f.Label(),
			Points: Window(table, f, WindowSize),
		}
		if f == types.PM25 {
			s.AQI = make([]float64, len(s.Points))
			for i, p := range s.Points {
				s.AQI[i] = aqi.Convert(p.Value)
			}
		}
		out = append(out, s)
	}
	return out
}
