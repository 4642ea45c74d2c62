package view

import (
	"github.com/shopspring/decimal"

	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
)

// changeThreshold is the smallest delta that highlights a metric value.
var changeThreshold = decimal.New(1, -1)

// NormalizeTemp maps a temperature onto the 0-100 display scale.
func NormalizeTemp(v float64, th model.Thresholds) float64 {
	span := th.TempMax - th.TempMin
	if span <= 0 {
		return 0
	}
	p := (v - th.TempMin) / span * 100
	return clamp(p, 0, 100)
}

// Percent is the progress bar fill for a metric. Humidity and battery are
// only clamped at zero.
func Percent(kind model.MetricKind, v float64, th model.Thresholds) float64 {
	if kind == model.MetricTemperature {
		return NormalizeTemp(v, th)
	}
	if v < 0 {
		return 0
	}
	return v
}

// HasChanged reports whether v moved at least 0.1 away from prev. The delta
// is computed in decimal so 0.3 -> 0.2 counts as a change.
func HasChanged(v float64, prev *float64) bool {
	if prev == nil {
		return false
	}
	delta := decimal.NewFromFloat(v).Sub(decimal.NewFromFloat(*prev)).Abs()
	return delta.GreaterThanOrEqual(changeThreshold)
}

// FormatValue renders a metric value the way the dashboard displays it:
// one decimal for temperature and humidity, whole percent for battery.
func FormatValue(kind model.MetricKind, v float64) string {
	if kind == model.MetricBattery {
		return decimal.NewFromFloat(v).Round(0).String()
	}
	return FormatOneDecimal(v)
}

func FormatOneDecimal(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1)
}

// RoundOneDecimal rounds half away from zero.
func RoundOneDecimal(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(1).Float64()
	return f
}

func formatWidth(p float64) string {
	return decimal.NewFromFloat(p).Round(2).String() + "%"
}

func formatBound(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
