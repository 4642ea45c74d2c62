// Package telemetry records the dashboard's own operational metrics.
package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Collector receives telemetry events. Hooks run inline with poll cycles and
// must be cheap.
type Collector interface {
	ObservePoll(outcome string, d time.Duration)
	AddPatchOps(kind string, n int)
	SetReading(device, metric string, value float64)
	SetWarningDevices(n int)
	SetSessions(n int)
	IncConfigReload()
}

type noopCollector struct{}

// Noop returns a collector that discards everything.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) ObservePoll(string, time.Duration)   {}
func (noopCollector) AddPatchOps(string, int)             {}
func (noopCollector) SetReading(string, string, float64) {}
func (noopCollector) SetWarningDevices(int)               {}
func (noopCollector) SetSessions(int)                     {}
func (noopCollector) IncConfigReload()                    {}

type multi []Collector

// Multi fans events out to every collector.
func Multi(cs ...Collector) Collector {
	if len(cs) == 1 {
		return cs[0]
	}
	return multi(cs)
}

func (m multi) ObservePoll(outcome string, d time.Duration) {
	for _, c := range m {
		c.ObservePoll(outcome, d)
	}
}

func (m multi) AddPatchOps(kind string, n int) {
	for _, c := range m {
		c.AddPatchOps(kind, n)
	}
}

func (m multi) SetReading(device, metric string, value float64) {
	for _, c := range m {
		c.SetReading(device, metric, value)
	}
}

func (m multi) SetWarningDevices(n int) {
	for _, c := range m {
		c.SetWarningDevices(n)
	}
}

func (m multi) SetSessions(n int) {
	for _, c := range m {
		c.SetSessions(n)
	}
}

func (m multi) IncConfigReload() {
	for _, c := range m {
		c.IncConfigReload()
	}
}

// PrometheusCollector exposes the events through a Prometheus registry.
type PrometheusCollector struct {
	polls          *prometheus.CounterVec
	pollDuration   prometheus.Histogram
	patchOps       *prometheus.CounterVec
	readings       *prometheus.GaugeVec
	warningDevices prometheus.Gauge
	sessions       prometheus.Gauge
	reloads        prometheus.Counter
}

// NewPrometheusCollector registers the metrics with reg, reusing collectors
// that are already registered.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var err error
	c := &PrometheusCollector{}

	if c.polls, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_dashboard_polls_total",
		Help: "Poll cycles by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if c.pollDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sensor_dashboard_poll_duration_seconds",
		Help:    "Duration of poll cycles including reconciliation.",
		Buckets: prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if c.patchOps, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_dashboard_patch_ops_total",
		Help: "Patch operations pushed to browsers by kind.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if c.readings, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sensor_dashboard_reading",
		Help: "Latest reading per device and metric.",
	}, []string{"device", "metric"})); err != nil {
		return nil, err
	}
	if c.warningDevices, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensor_dashboard_warning_devices",
		Help: "Devices that are missing, stale or low on battery.",
	})); err != nil {
		return nil, err
	}
	if c.sessions, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensor_dashboard_sessions",
		Help: "Connected dashboard sessions.",
	})); err != nil {
		return nil, err
	}
	if c.reloads, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensor_dashboard_config_reloads_total",
		Help: "Configuration hot reloads.",
	})); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (c *PrometheusCollector) ObservePoll(outcome string, d time.Duration) {
	c.polls.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		c.pollDuration.Observe(d.Seconds())
	}
}

func (c *PrometheusCollector) AddPatchOps(kind string, n int) {
	c.patchOps.WithLabelValues(kind).Add(float64(n))
}

func (c *PrometheusCollector) SetReading(device, metric string, value float64) {
	c.readings.WithLabelValues(device, metric).Set(value)
}

func (c *PrometheusCollector) SetWarningDevices(n int) {
	c.warningDevices.Set(float64(n))
}

func (c *PrometheusCollector) SetSessions(n int) {
	c.sessions.Set(float64(n))
}

func (c *PrometheusCollector) IncConfigReload() {
	c.reloads.Inc()
}
