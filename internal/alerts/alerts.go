// Package alerts notifies when a device starts or stops needing attention.
package alerts

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
	"github.com/thatsimonsguy/sensor-dashboard/internal/view"
)

// Notifier interface for sending notifications
type Notifier interface {
	Send(title, message string) error
}

const queueSize = 64

type alert struct {
	title, message, device string
}

type Monitor struct {
	notifier Notifier
	queue    chan alert
	done     chan struct{}

	mu     sync.Mutex
	closed bool
	seeded bool
	labels map[string]string // device -> status label
}

// NewMonitor accepts a nil notifier, in which case transitions are only
// logged. Notifications are delivered by a background goroutine so Observe
// never waits on the network; Close stops it.
func NewMonitor(n Notifier) *Monitor {
	m := &Monitor{
		notifier: n,
		queue:    make(chan alert, queueSize),
		done:     make(chan struct{}),
		labels:   make(map[string]string),
	}
	if n == nil {
		close(m.done)
	} else {
		go m.deliver()
	}
	return m
}

func (m *Monitor) deliver() {
	defer close(m.done)
	for a := range m.queue {
		if err := m.notifier.Send(a.title, a.message); err != nil {
			log.Error().Err(err).Str("device", a.device).Msg("Failed to send sensor notification")
		}
	}
}

// Close delivers the queued notifications and stops the sender.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.mu.Unlock()
	<-m.done
	return nil
}

// Observe compares each device's status label with the previous snapshot and
// returns how many devices currently carry one. The first snapshot only seeds
// the monitor so a restart does not re-announce known problems.
func (m *Monitor) Observe(readings []model.Reading, th model.Thresholds) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := make(map[string]string, len(readings))
	names := make(map[string]string, len(readings))
	warning := 0
	for _, r := range readings {
		r = r.Normalize()
		label := view.Derive(r, model.LayoutDesktop, 0, th).StatusLabel
		current[r.Name] = label
		names[r.Name] = r.DisplayName
		if label != "" {
			warning++
		}
	}

	if m.seeded {
		for name, label := range current {
			prev := m.labels[name]
			if label == prev {
				continue
			}
			switch {
			case label != "":
				m.send(fmt.Sprintf("Sensor %s", label), fmt.Sprintf("%s is %s", names[name], describe(label)), name, label)
			case prev != "":
				m.send("Sensor recovered", fmt.Sprintf("%s is reporting normally again", names[name]), name, label)
			}
		}
	}

	m.labels = current
	m.seeded = true
	return warning
}

func (m *Monitor) send(title, message, device, label string) {
	log.Warn().
		Str("device", device).
		Str("label", label).
		Msg(message)

	if m.notifier == nil || m.closed {
		return
	}
	select {
	case m.queue <- alert{title: title, message: message, device: device}:
	default:
		log.Warn().Str("device", device).Msg("Notification queue full, dropping notification")
	}
}

func describe(label string) string {
	switch label {
	case view.LabelMissing:
		return "missing"
	case view.LabelStale:
		return "not reporting"
	case view.LabelLowBattery:
		return "low on battery"
	}
	return label
}
