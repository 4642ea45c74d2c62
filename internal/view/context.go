package view

import "github.com/thatsimonsguy/sensor-dashboard/internal/model"

// DesktopBreakpoint is the viewport width above which the auto layout
// renders the desktop card shape.
const DesktopBreakpoint = 600

const (
	LabelMissing    = "Missing"
	LabelStale      = "Stale"
	LabelLowBattery = "Low Battery"
)

// Context is the per-card decision record. It is recomputed on every pass
// and never persisted.
type Context struct {
	IsDesktop                    bool
	IsStale                      bool
	IsLowBattery                 bool
	HasMetrics                   bool
	IsWeatherStation             bool
	Status                       model.Status
	ShouldShowPlaceholderMetrics bool
	ShouldAddNoMetricsClass      bool
	StatusLabel                  string
}

// IsDesktop resolves the layout mode against the session's viewport width.
func IsDesktop(layout model.LayoutMode, viewportWidth int) bool {
	switch layout {
	case model.LayoutDesktop:
		return true
	case model.LayoutMobile:
		return false
	}
	return viewportWidth > DesktopBreakpoint
}

func Derive(r model.Reading, layout model.LayoutMode, viewportWidth int, th model.Thresholds) Context {
	r = r.Normalize()

	ctx := Context{
		IsDesktop:        IsDesktop(layout, viewportWidth),
		IsStale:          r.Status.IsStale(),
		HasMetrics:       r.HasMetrics(),
		IsWeatherStation: r.IsWeatherStation,
		Status:           r.Status,
	}
	ctx.IsLowBattery = !ctx.IsStale && !ctx.IsWeatherStation && r.Battery != nil && *r.Battery <= th.BatteryLow
	ctx.ShouldShowPlaceholderMetrics = ctx.IsStale && !ctx.IsWeatherStation && !ctx.HasMetrics && ctx.IsDesktop
	ctx.ShouldAddNoMetricsClass = !ctx.HasMetrics && !ctx.ShouldShowPlaceholderMetrics

	switch {
	case ctx.IsWeatherStation:
	case r.Status == model.StatusNeverSeen:
		ctx.StatusLabel = LabelMissing
	case ctx.IsStale:
		ctx.StatusLabel = LabelStale
	case ctx.IsLowBattery:
		ctx.StatusLabel = LabelLowBattery
	}
	return ctx
}
