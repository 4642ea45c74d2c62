package view

import "github.com/thatsimonsguy/sensor-dashboard/internal/model"

// PlaceholderText is shown in synthesized metric rows of stale desktop cards.
const PlaceholderText = "—"

const WeatherFooter = "Source: Open-Meteo API"

// Card is the structural view model of one rendered card. The dashboard keeps
// the last rendered Card per device and diffs against it instead of reading
// state back out of the markup.
type Card struct {
	Name           string
	Title          string
	WeatherStation bool
	Stale          bool
	NoMetrics      bool
	Tooltip        string

	// HeaderRow is false only for the flat mobile shape: title followed
	// directly by the compact block.
	HeaderRow  bool
	HeaderChip *Chip
	Compact    Compact
	Metrics    []Metric
	Footer     string
}

// Placeholders reports whether the card currently shows synthesized rows.
func (c Card) Placeholders() bool {
	for _, m := range c.Metrics {
		if m.Placeholder {
			return true
		}
	}
	return false
}

func (c Card) Metric(kind model.MetricKind) (Metric, bool) {
	for _, m := range c.Metrics {
		if m.Kind == kind {
			return m, true
		}
	}
	return Metric{}, false
}

// ClearChanged drops the transient highlight flags before the card is kept
// as the rendered state.
func (c Card) ClearChanged() Card {
	if len(c.Metrics) == 0 {
		return c
	}
	metrics := make([]Metric, len(c.Metrics))
	for i, m := range c.Metrics {
		m.Changed = false
		metrics[i] = m
	}
	c.Metrics = metrics
	return c
}

// Chip is a status chip, either in the compact block or in the desktop header.
type Chip struct {
	Status string
	Label  string
}

type Compact struct {
	Items  []CompactItem
	Status *Chip
}

type CompactItem struct {
	Kind  model.MetricKind
	Text  string
	Class string
	Title string
}

// Warning is the per-metric alert icon.
type Warning struct {
	Class string
	Label string
}

type Metric struct {
	Kind        model.MetricKind
	Label       string
	Text        string
	ValueNow    string
	Min         string
	Max         string
	Width       string
	AriaLabel   string
	Placeholder bool
	Warning     *Warning
	Changed     bool
}

var metricLabels = map[model.MetricKind]string{
	model.MetricTemperature: "Temperature",
	model.MetricHumidity:    "Humidity",
	model.MetricBattery:     "Battery",
}

var metricUnits = map[model.MetricKind]string{
	model.MetricTemperature: "°C",
	model.MetricHumidity:    "%",
	model.MetricBattery:     "%",
}

// BuildCard produces the desired card for a reading.
func BuildCard(r model.Reading, ctx Context, prev model.PreviousValues, th model.Thresholds) Card {
	r = r.Normalize()

	card := Card{
		Name:           r.Name,
		Title:          r.DisplayName,
		WeatherStation: ctx.IsWeatherStation,
		Stale:          ctx.IsStale && !ctx.IsWeatherStation,
		NoMetrics:      ctx.ShouldAddNoMetricsClass,
		Tooltip:        ctx.StatusLabel,
		Compact:        BuildCompact(r, ctx, th),
	}

	// stale mobile card without data: title and status chip only
	if !ctx.HasMetrics && ctx.IsStale && !ctx.IsWeatherStation && !ctx.IsDesktop {
		return card
	}

	card.HeaderRow = true
	if ctx.StatusLabel != "" && ctx.IsDesktop {
		card.HeaderChip = &Chip{Status: chipStatus(ctx), Label: ctx.StatusLabel}
	}

	switch {
	case ctx.ShouldShowPlaceholderMetrics:
		for _, kind := range model.MetricKinds {
			card.Metrics = append(card.Metrics, placeholderMetric(kind, th))
		}
	case ctx.HasMetrics:
		for _, kind := range model.MetricKinds {
			v := r.Value(kind)
			if v == nil {
				continue
			}
			card.Metrics = append(card.Metrics, BuildMetric(kind, *v, prev.Value(kind), th))
		}
	}

	if ctx.IsWeatherStation {
		card.Footer = WeatherFooter
	}
	return card
}

// BuildMetric builds one full metric row.
func BuildMetric(kind model.MetricKind, v float64, prev *float64, th model.Thresholds) Metric {
	label, unit := metricLabels[kind], metricUnits[kind]
	text := FormatValue(kind, v) + unit
	lo, hi := metricBounds(kind, th)

	return Metric{
		Kind:      kind,
		Label:     label,
		Text:      text,
		ValueNow:  FormatValue(kind, v),
		Min:       lo,
		Max:       hi,
		Width:     formatWidth(Percent(kind, v, th)),
		AriaLabel: label + " is " + text,
		Warning:   metricWarning(kind, v, th),
		Changed:   HasChanged(v, prev),
	}
}

func placeholderMetric(kind model.MetricKind, th model.Thresholds) Metric {
	label := metricLabels[kind]
	lo, hi := metricBounds(kind, th)
	return Metric{
		Kind:        kind,
		Label:       label,
		Text:        PlaceholderText,
		ValueNow:    "0",
		Min:         lo,
		Max:         hi,
		Width:       formatWidth(0),
		AriaLabel:   label + " is unavailable",
		Placeholder: true,
	}
}

func metricBounds(kind model.MetricKind, th model.Thresholds) (string, string) {
	if kind == model.MetricTemperature {
		return formatBound(th.TempMin), formatBound(th.TempMax)
	}
	return "0", "100"
}

func metricWarning(kind model.MetricKind, v float64, th model.Thresholds) *Warning {
	switch kind {
	case model.MetricBattery:
		if v <= th.BatteryLow {
			return &Warning{Label: "Low Battery Warning"}
		}
	case model.MetricTemperature:
		if v < th.TempLow {
			return &Warning{Class: "freezing-warning", Label: "Freezing Temperature Warning"}
		}
		if v > th.TempHigh {
			return &Warning{Class: "hot-warning", Label: "High Temperature Warning"}
		}
	case model.MetricHumidity:
		if v > th.HumidHigh {
			return &Warning{Class: "high-humidity-warning", Label: "High Humidity Warning"}
		}
		if v < th.HumidLow {
			return &Warning{Class: "low-humidity-warning", Label: "Low Humidity Warning"}
		}
	}
	return nil
}

// BuildCompact builds the inline summary shown next to the title. The status
// chip moves to the header on desktop placeholder cards.
func BuildCompact(r model.Reading, ctx Context, th model.Thresholds) Compact {
	var c Compact

	if v := r.Temperature; v != nil {
		item := CompactItem{Kind: model.MetricTemperature, Text: FormatOneDecimal(*v) + "°C", Title: "Temperature"}
		switch {
		case *v < th.TempLow:
			item.Class, item.Title = "temp-low", "Low Temperature Warning"
		case *v > th.TempHigh:
			item.Class, item.Title = "temp-high", "High Temperature Warning"
		}
		c.Items = append(c.Items, item)
	}
	if v := r.Humidity; v != nil {
		item := CompactItem{Kind: model.MetricHumidity, Text: FormatOneDecimal(*v) + "%", Title: "Humidity"}
		switch {
		case *v > th.HumidHigh:
			item.Class, item.Title = "humidity-high", "High Humidity Warning"
		case *v < th.HumidLow:
			item.Class, item.Title = "humidity-low", "Low Humidity Warning"
		}
		c.Items = append(c.Items, item)
	}
	if v := r.Battery; v != nil {
		item := CompactItem{Kind: model.MetricBattery, Text: FormatValue(model.MetricBattery, *v) + "%", Title: "Battery"}
		if *v <= th.BatteryLow {
			item.Class, item.Title = "battery-low", "Low Battery Warning"
		}
		c.Items = append(c.Items, item)
	}

	exclude := ctx.IsDesktop && ctx.ShouldShowPlaceholderMetrics
	if !exclude && ctx.IsStale && !ctx.IsWeatherStation {
		label := LabelStale
		if ctx.Status == model.StatusNeverSeen {
			label = LabelMissing
		}
		c.Status = &Chip{Status: string(ctx.Status), Label: label}
	}
	return c
}

func chipStatus(ctx Context) string {
	if ctx.IsLowBattery && !ctx.IsStale {
		return "low-battery"
	}
	return string(ctx.Status)
}
