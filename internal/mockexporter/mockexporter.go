// Package mockexporter serves the gauges of the sensor exporter from an
// in-process registry. It backs the mock-exporter command and tests that need
// a realistic metrics endpoint.
package mockexporter

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
)

var statuses = []model.Status{model.StatusActive, model.StatusStale, model.StatusNeverSeen}

type Exporter struct {
	registry    *prometheus.Registry
	temperature *prometheus.GaugeVec
	humidity    *prometheus.GaugeVec
	battery     *prometheus.GaugeVec
	status      *prometheus.GaugeVec
	weatherTemp prometheus.Gauge
	weatherHum  prometheus.Gauge
}

func New() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "govee_h5075_temperature",
			Help: "Temperature in degrees Celsius.",
		}, []string{"name"}),
		humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "govee_h5075_humidity",
			Help: "Relative humidity in percent.",
		}, []string{"name"}),
		battery: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "govee_h5075_battery",
			Help: "Battery level in percent.",
		}, []string{"name"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "govee_device_status",
			Help: "1 for the device's current status, 0 otherwise.",
		}, []string{"name", "status"}),
		weatherTemp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "openmeteo_temperature",
			Help: "Outdoor temperature in degrees Celsius.",
		}),
		weatherHum: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "openmeteo_humidity",
			Help: "Outdoor relative humidity in percent.",
		}),
	}
	e.registry.MustRegister(e.temperature, e.humidity, e.battery, e.status, e.weatherTemp, e.weatherHum)
	return e
}

// SetSensor publishes one device's readings. Nil values are withdrawn.
func (e *Exporter) SetSensor(name string, temperature, humidity, battery *float64) {
	set := func(v *prometheus.GaugeVec, value *float64) {
		if value == nil {
			v.DeleteLabelValues(name)
			return
		}
		v.WithLabelValues(name).Set(*value)
	}
	set(e.temperature, temperature)
	set(e.humidity, humidity)
	set(e.battery, battery)
}

// SetStatus asserts status for name and clears the other statuses.
func (e *Exporter) SetStatus(name string, status model.Status) {
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		e.status.WithLabelValues(name, string(s)).Set(v)
	}
}

// RemoveDevice withdraws every series of name.
func (e *Exporter) RemoveDevice(name string) {
	e.SetSensor(name, nil, nil, nil)
	for _, s := range statuses {
		e.status.DeleteLabelValues(name, string(s))
	}
}

func (e *Exporter) SetWeather(temperature, humidity float64) {
	e.weatherTemp.Set(temperature)
	e.weatherHum.Set(humidity)
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
