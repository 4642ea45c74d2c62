// Package datadog forwards dashboard telemetry to a DogStatsD agent.
package datadog

import (
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sensor-dashboard/internal/telemetry"
)

var _ telemetry.Collector = (*Collector)(nil)

// Collector implements telemetry.Collector on top of a statsd client.
type Collector struct {
	client *statsd.Client
}

func New(addr, namespace string, tags []string) (*Collector, error) {
	client, err := statsd.New(addr,
		statsd.WithNamespace(namespace),
		statsd.WithTags(tags),
	)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("addr", addr).
		Str("namespace", namespace).
		Strs("tags", tags).
		Msg("Datadog metrics initialized")

	return &Collector{client: client}, nil
}

func (c *Collector) Close() error {
	return c.client.Close()
}

func (c *Collector) Flush() error {
	return c.client.Flush()
}

func (c *Collector) gauge(name string, value float64, tags ...string) {
	if err := c.client.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

func (c *Collector) count(name string, value int64, tags ...string) {
	if err := c.client.Count(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
	}
}

func (c *Collector) ObservePoll(outcome string, d time.Duration) {
	c.count("poll.count", 1, "outcome:"+outcome)
	if err := c.client.Timing("poll.duration", d, []string{"outcome:" + outcome}, 1); err != nil {
		log.Warn().Err(err).Msg("Failed to emit poll timing")
	}
}

func (c *Collector) AddPatchOps(kind string, n int) {
	c.count("patch.ops", int64(n), "kind:"+kind)
}

func (c *Collector) SetReading(device, metric string, value float64) {
	c.gauge("sensor."+metric, value, "device:"+device)
}

func (c *Collector) SetWarningDevices(n int) {
	c.gauge("devices.warning", float64(n))
}

func (c *Collector) SetSessions(n int) {
	c.gauge("sessions", float64(n))
}

func (c *Collector) IncConfigReload() {
	c.count("config.reloads", 1)
}
