// Package parser turns the exporter's Prometheus text exposition into device
// readings. Each line is decoded on its own so that a malformed or unknown
// line is dropped without affecting the rest of the snapshot.
package parser

import (
	"math"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
)

const (
	weatherPrefix = "openmeteo_"
	sensorPrefix  = "govee_h5075_"
	statusMetric  = "govee_device_status"

	// status assertions are booleans encoded as floats
	statusAssertThreshold = 0.5
)

// Labels maps device ids to configured groups and display names.
type Labels struct {
	Groups       map[string]string
	DisplayNames map[string]string
}

func (l Labels) group(name string) string {
	if g, ok := l.Groups[name]; ok && g != "" {
		return g
	}
	return model.DefaultGroup
}

func (l Labels) displayName(name string) string {
	if d, ok := l.DisplayNames[name]; ok && d != "" {
		return d
	}
	return name
}

type sample struct {
	name   string
	labels map[string]string
	value  float64
}

// Parse decodes a metrics snapshot. The result is sorted by device name.
func Parse(text string, labels Labels) []model.Reading {
	devices := make(map[string]*model.Reading)
	statuses := make(map[string]model.Status)
	weather := make(map[string]float64)

	device := func(name string) *model.Reading {
		r, ok := devices[name]
		if !ok {
			r = &model.Reading{
				Name:        name,
				DisplayName: labels.displayName(name),
				Group:       labels.group(name),
				Status:      model.StatusActive,
			}
			devices[name] = r
		}
		return r
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s, ok := parseLine(line)
		if !ok {
			continue
		}

		switch {
		case strings.HasPrefix(s.name, weatherPrefix) && len(s.labels) == 0:
			weather[strings.TrimPrefix(s.name, weatherPrefix)] = s.value

		case s.name == statusMetric:
			name, status := s.labels["name"], model.Status(s.labels["status"])
			if name == "" || !knownStatus(status) {
				continue
			}
			if s.value >= statusAssertThreshold {
				statuses[name] = status
			}

		case strings.HasPrefix(s.name, sensorPrefix):
			name := s.labels["name"]
			if name == "" {
				continue
			}
			v := s.value
			switch model.MetricKind(strings.TrimPrefix(s.name, sensorPrefix)) {
			case model.MetricTemperature:
				device(name).Temperature = &v
			case model.MetricHumidity:
				device(name).Humidity = &v
			case model.MetricBattery:
				device(name).Battery = &v
			}
		}
	}

	// devices known only through a status line still get a card
	for name, status := range statuses {
		device(name).Status = status
	}

	temp, hasTemp := weather["temperature"]
	humid, hasHumid := weather["humidity"]
	if hasTemp || hasHumid {
		r := &model.Reading{
			Name:             model.WeatherStationName,
			DisplayName:      labels.displayName(model.WeatherStationName),
			Group:            model.WeatherGroup,
			Status:           model.StatusActive,
			IsWeatherStation: true,
		}
		if hasTemp {
			r.Temperature = &temp
		}
		if hasHumid {
			r.Humidity = &humid
		}
		devices[model.WeatherStationName] = r
	}

	readings := make([]model.Reading, 0, len(devices))
	for _, r := range devices {
		readings = append(readings, r.Normalize())
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].Name < readings[j].Name })
	return readings
}

func parseLine(line string) (sample, bool) {
	var p expfmt.TextParser
	families, err := p.TextToMetricFamilies(strings.NewReader(line + "\n"))
	if err != nil {
		return sample{}, false
	}
	for name, mf := range families {
		for _, m := range mf.GetMetric() {
			v, ok := metricValue(mf.GetType(), m)
			// NaN and infinities are valid in the text format but are not
			// readings
			if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			return sample{name: name, labels: labels, value: v}, true
		}
	}
	return sample{}, false
}

func metricValue(t dto.MetricType, m *dto.Metric) (float64, bool) {
	switch t {
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue(), true
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue(), true
	case dto.MetricType_UNTYPED:
		return m.GetUntyped().GetValue(), true
	}
	return 0, false
}

func knownStatus(s model.Status) bool {
	switch s {
	case model.StatusActive, model.StatusStale, model.StatusNeverSeen:
		return true
	}
	return false
}
