// Package poller schedules metrics fetches. One goroutine runs every cycle;
// a manual refresh runs a cycle immediately and pushes the next automatic one
// a full interval away.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sensor-dashboard/internal/telemetry"
)

// Sink consumes the outcome of each cycle.
type Sink interface {
	Apply(ctx context.Context, text string, at time.Time)
	Fail(ctx context.Context, err error, at time.Time)
}

type Poller struct {
	fetcher  Fetcher
	sink     Sink
	interval time.Duration
	metrics  telemetry.Collector
	now      func() time.Time

	cycle   sync.Mutex
	refresh chan chan struct{}
}

func New(fetcher Fetcher, sink Sink, interval time.Duration, metrics telemetry.Collector) *Poller {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &Poller{
		fetcher:  fetcher,
		sink:     sink,
		interval: interval,
		metrics:  metrics,
		now:      time.Now,
		refresh:  make(chan chan struct{}),
	}
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run polls once immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	log.Info().Dur("interval", p.interval).Msg("Starting metrics poller")

	p.RunCycle(ctx)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Metrics poller stopped")
			return
		case <-timer.C:
			p.RunCycle(ctx)
			timer.Reset(p.interval)
		case done := <-p.refresh:
			p.RunCycle(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.interval)
			close(done)
		}
	}
}

// Refresh asks the Run loop for an immediate cycle and waits for it to finish.
func (p *Poller) Refresh(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case p.refresh <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunCycle fetches one snapshot and hands it to the sink. A call made while
// another cycle is in flight is skipped and reports false.
func (p *Poller) RunCycle(ctx context.Context) bool {
	if !p.cycle.TryLock() {
		log.Warn().Msg("Poll cycle already in progress, skipping")
		p.metrics.ObservePoll(telemetry.OutcomeSkipped, 0)
		return false
	}
	defer p.cycle.Unlock()

	start := time.Now()
	text, err := p.fetcher.Fetch(ctx)
	at := p.now()

	switch {
	case err == nil:
		p.sink.Apply(ctx, text, at)
		p.metrics.ObservePoll(telemetry.OutcomeSuccess, time.Since(start))
	case errors.Is(err, ErrTimeout):
		log.Warn().Err(err).Msg("Metrics fetch timed out")
		p.sink.Fail(ctx, err, at)
		p.metrics.ObservePoll(telemetry.OutcomeTimeout, time.Since(start))
	default:
		log.Error().Err(err).Msg("Metrics fetch failed")
		p.sink.Fail(ctx, err, at)
		p.metrics.ObservePoll(telemetry.OutcomeError, time.Since(start))
	}
	return true
}
