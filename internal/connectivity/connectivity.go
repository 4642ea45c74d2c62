// Package connectivity tracks whether the dashboard can reach the sensor
// network and produces the indicator patches when that changes.
package connectivity

import (
	"errors"
	"sync"
	"time"

	"github.com/thatsimonsguy/sensor-dashboard/internal/poller"
	"github.com/thatsimonsguy/sensor-dashboard/internal/reconcile"
)

type State string

const (
	Connected    State = "connected"
	Disconnected State = "disconnected"
	Error        State = "error"
)

const (
	Indicator    = "#connection-status"
	Announcement = "#connection-announcement"
)

func (s State) Message() string {
	switch s {
	case Connected:
		return "Connected to sensor network"
	case Disconnected:
		return "Connection lost to sensor network"
	default:
		return "Error connecting to sensor network"
	}
}

// Tracker is shared by every session. It starts connected, which is what a
// freshly served page shows.
type Tracker struct {
	interval time.Duration

	mu          sync.Mutex
	state       State
	lastSuccess time.Time
}

func NewTracker(interval time.Duration, now time.Time) *Tracker {
	return &Tracker{interval: interval, state: Connected, lastSuccess: now}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) Success(at time.Time) []reconcile.Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSuccess = at
	return t.set(Connected)
}

// Failure maps a fetch error to a state: a timeout means the connection was
// lost, anything else is an error.
func (t *Tracker) Failure(err error) []reconcile.Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	if errors.Is(err, poller.ErrTimeout) {
		return t.set(Disconnected)
	}
	return t.set(Error)
}

// Check marks the connection lost when nothing succeeded for more than two
// intervals.
func (t *Tracker) Check(now time.Time) []reconcile.Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Sub(t.lastSuccess) > 2*t.interval {
		return t.set(Disconnected)
	}
	return nil
}

// StateOps describe the current state in full, for a tab that just
// connected.
func (t *Tracker) StateOps() []reconcile.Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ops []reconcile.Op
	for _, s := range []State{Connected, Disconnected, Error} {
		ops = append(ops, reconcile.Op{Kind: reconcile.OpClass, Target: Indicator, Name: string(s), On: s == t.state})
	}
	msg := t.state.Message()
	return append(ops,
		reconcile.Op{Kind: reconcile.OpAttr, Target: Indicator, Name: "aria-label", Value: msg},
		reconcile.Op{Kind: reconcile.OpAttr, Target: Indicator, Name: "title", Value: msg},
	)
}

func (t *Tracker) set(next State) []reconcile.Op {
	if next == t.state {
		return nil
	}
	prev := t.state
	t.state = next
	msg := next.Message()
	return []reconcile.Op{
		{Kind: reconcile.OpClass, Target: Indicator, Name: string(prev), On: false},
		{Kind: reconcile.OpClass, Target: Indicator, Name: string(next), On: true},
		{Kind: reconcile.OpAttr, Target: Indicator, Name: "aria-label", Value: msg},
		{Kind: reconcile.OpAttr, Target: Indicator, Name: "title", Value: msg},
		{Kind: reconcile.OpAnnounce, Target: Announcement, Value: msg, Millis: reconcile.AnnounceMillis},
	}
}
