package model

import "fmt"

type Status string

const (
	StatusActive    Status = "active"
	StatusStale     Status = "stale"
	StatusNeverSeen Status = "never_seen"
)

// IsStale reports whether the device has stopped reporting or was never seen.
func (s Status) IsStale() bool {
	return s == StatusStale || s == StatusNeverSeen
}

type LayoutMode string

const (
	LayoutAuto    LayoutMode = "auto"
	LayoutDesktop LayoutMode = "desktop"
	LayoutMobile  LayoutMode = "mobile"
)

func ParseLayoutMode(s string) (LayoutMode, error) {
	switch LayoutMode(s) {
	case LayoutAuto, LayoutDesktop, LayoutMobile:
		return LayoutMode(s), nil
	case "":
		return LayoutAuto, nil
	default:
		return LayoutAuto, fmt.Errorf("invalid layout %q (allowed: auto, desktop, mobile)", s)
	}
}

const (
	DefaultGroup       = "Ungrouped"
	WeatherStationName = "Outdoor"
	WeatherGroup       = "Outdoor Weather"
)

type MetricKind string

const (
	MetricTemperature MetricKind = "temperature"
	MetricHumidity    MetricKind = "humidity"
	MetricBattery     MetricKind = "battery"
)

// MetricKinds is the fixed display order of metric rows on a card.
var MetricKinds = []MetricKind{MetricTemperature, MetricHumidity, MetricBattery}

// Reading is one device's latest snapshot.
type Reading struct {
	Name             string   `json:"name"`
	DisplayName      string   `json:"display_name"`
	Group            string   `json:"group"`
	Temperature      *float64 `json:"temperature,omitempty"`
	Humidity         *float64 `json:"humidity,omitempty"`
	Battery          *float64 `json:"battery,omitempty"`
	Status           Status   `json:"status"`
	IsWeatherStation bool     `json:"is_weather_station"`
}

// Normalize fills defaults and enforces the weather station invariant.
func (r Reading) Normalize() Reading {
	if r.DisplayName == "" {
		r.DisplayName = r.Name
	}
	if r.Group == "" {
		r.Group = DefaultGroup
	}
	if r.Status == "" {
		r.Status = StatusActive
	}
	if r.IsWeatherStation {
		r.Status = StatusActive
		r.Battery = nil
	}
	return r
}

func (r Reading) HasMetrics() bool {
	return r.Temperature != nil || r.Humidity != nil || r.Battery != nil
}

// Value returns the reading for a metric kind, nil when not reported.
func (r Reading) Value(kind MetricKind) *float64 {
	switch kind {
	case MetricTemperature:
		return r.Temperature
	case MetricHumidity:
		return r.Humidity
	case MetricBattery:
		return r.Battery
	}
	return nil
}

// Previous captures the values a reading carried, for change highlighting
// on the next render.
func (r Reading) Previous() PreviousValues {
	return PreviousValues{
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Battery:     r.Battery,
	}
}

type PreviousValues struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Battery     *float64 `json:"battery,omitempty"`
}

func (p PreviousValues) Value(kind MetricKind) *float64 {
	return Reading{Temperature: p.Temperature, Humidity: p.Humidity, Battery: p.Battery}.Value(kind)
}

// Thresholds are immutable for a session.
type Thresholds struct {
	TempMin    float64 `json:"temp_min"`
	TempMax    float64 `json:"temp_max"`
	TempLow    float64 `json:"temp_low"`
	TempHigh   float64 `json:"temp_high"`
	HumidLow   float64 `json:"humid_low"`
	HumidHigh  float64 `json:"humid_high"`
	BatteryLow float64 `json:"battery_low"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		TempMin:    -20,
		TempMax:    40,
		TempLow:    0,
		TempHigh:   35,
		HumidLow:   30,
		HumidHigh:  70,
		BatteryLow: 5,
	}
}

func (t Thresholds) Validate() error {
	if t.TempMin >= t.TempMax {
		return fmt.Errorf("temperature min (%.1f) must be below max (%.1f)", t.TempMin, t.TempMax)
	}
	return nil
}

// Float is a convenience for building optional readings.
func Float(v float64) *float64 {
	return &v
}
