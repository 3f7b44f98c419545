// Package aqi converts PM2.5 concentrations to the US EPA air quality index.
package aqi

// Breakpoint is one band of the PM2.5 to AQI table. A band covers
// (PMLow, PMHigh], except the first which also includes PMLow.
type Breakpoint struct {
	PMLow, PMHigh   float64
	AQILow, AQIHigh float64
	Category        Category
}

type Category string

const (
	Good                        Category = "Good"
	Moderate                    Category = "Moderate"
	UnhealthyForSensitiveGroups Category = "Unhealthy for Sensitive Groups"
	Unhealthy                   Category = "Unhealthy"
	VeryUnhealthy               Category = "Very Unhealthy"
	Hazardous                   Category = "Hazardous"
)

var breakpoints = [...]Breakpoint{
	{PMLow: 0, PMHigh: 12, AQILow: 0, AQIHigh: 50, Category: Good},
	{PMLow: 12, PMHigh: 35.4, AQILow: 50, AQIHigh: 100, Category: Moderate},
	{PMLow: 35.4, PMHigh: 55.4, AQILow: 100, AQIHigh: 150, Category: UnhealthyForSensitiveGroups},
	{PMLow: 55.4, PMHigh: 150.4, AQILow: 150, AQIHigh: 200, Category: Unhealthy},
	{PMLow: 150.4, PMHigh: 250.4, AQILow: 200, AQIHigh: 300, Category: VeryUnhealthy},
	// The last band keeps its slope past 350.4; there is no upper clamp.
	{PMLow: 250.4, PMHigh: 350.4, AQILow: 300, AQIHigh: 500, Category: Hazardous},
}

// Breakpoints returns a copy of the conversion table.
func Breakpoints() []Breakpoint {
	out := make([]Breakpoint, len(breakpoints))
	copy(out, breakpoints[:])
	return out
}

// Convert maps a PM2.5 concentration in µg/m³ to an AQI score. Negative
// input is interpolated with the first band.
func Convert(pm25 float64) float64 {
	return band(pm25).interpolate(pm25)
}

// CategoryOf names the band an AQI score falls in.
func CategoryOf(score float64) Category {
	for _, b := range breakpoints[:len(breakpoints)-1] {
		if score <= b.AQIHigh {
			return b.Category
		}
	}
	return Hazardous
}

func band(pm25 float64) Breakpoint {
	for _, b := range breakpoints[:len(breakpoints)-1] {
		if pm25 <= b.PMHigh {
			return b
		}
	}
	return breakpoints[len(breakpoints)-1]
}

func (b Breakpoint) interpolate(v float64) float64 {
	return (b.AQIHigh-b.AQILow)/(b.PMHigh-b.PMLow)*(v-b.PMLow) + b.AQILow
}
