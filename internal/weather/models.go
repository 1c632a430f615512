package weather

import (
	"context"
	"strings"
)

// Icon is the weather glyph chosen for a condition.
type Icon string

const (
	IconSunny  Icon = "sunny"
	IconCloudy Icon = "cloudy"
	IconRain   Icon = "rain"
)

// IconFor picks the glyph for a free-text condition. Matching is
// case-insensitive against a small vocabulary; anything else is sunny.
func IconFor(condition string) Icon {
	switch strings.ToLower(strings.TrimSpace(condition)) {
	case "rain":
		return IconRain
	case "cloudy", "partly cloudy":
		return IconCloudy
	default:
		return IconSunny
	}
}

// Snapshot is the weather readout shown on the dashboard. Temperatures are
// degrees in the configured unit, wind speed in mph.
type Snapshot struct {
	Temp      float64 `json:"temp" yaml:"temp"`
	Condition string  `json:"condition" yaml:"condition"`
	Location  string  `json:"location" yaml:"location"`
	High      float64 `json:"high" yaml:"high"`
	Low       float64 `json:"low" yaml:"low"`
	Humidity  float64 `json:"humidity" yaml:"humidity"`
	WindSpeed float64 `json:"wind_speed" yaml:"wind_speed"`
}

// Icon returns the glyph for s.Condition.
func (s Snapshot) Icon() Icon {
	return IconFor(s.Condition)
}

// DefaultSnapshot is the static weather shown until a location report
// arrives.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Temp:      72,
		Condition: "Partly Cloudy",
		Location:  "San Francisco, CA",
		High:      75,
		Low:       62,
		Humidity:  45,
		WindSpeed: 8,
	}
}

// Coordinates is a device position report.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Reading is one provider's view of current conditions.
type Reading struct {
	Temp      float64
	High      float64
	Low       float64
	Humidity  float64
	WindSpeed float64
	Condition string
}

// Provider fetches current conditions for a position.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, at Coordinates) (Reading, error)
}
