// Package dashboard owns the latest snapshot and the browser sessions. Every
// poll outcome and every user action ends in a reconciliation pass whose
// patch operations are pushed to the affected sessions.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sensor-dashboard/internal/alerts"
	"github.com/thatsimonsguy/sensor-dashboard/internal/connectivity"
	"github.com/thatsimonsguy/sensor-dashboard/internal/groups"
	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
	"github.com/thatsimonsguy/sensor-dashboard/internal/parser"
	"github.com/thatsimonsguy/sensor-dashboard/internal/reconcile"
	"github.com/thatsimonsguy/sensor-dashboard/internal/state"
	"github.com/thatsimonsguy/sensor-dashboard/internal/store"
	"github.com/thatsimonsguy/sensor-dashboard/internal/telemetry"
	"github.com/thatsimonsguy/sensor-dashboard/internal/view"
)

const (
	TimestampTarget = ".last-update .timestamp"
	LayoutButton    = ".layout-button"

	// SessionIdleTTL is how long a session without open tabs is kept.
	SessionIdleTTL = 30 * time.Minute
)

var (
	ErrInvalidTheme = errors.New("invalid theme")
	ErrUnknownGroup = errors.New("unknown group")
)

// Settings are the configuration values the hub renders with. They can be
// swapped at runtime by Reload.
type Settings struct {
	Thresholds      model.Thresholds
	Labels          parser.Labels
	RefreshInterval time.Duration
}

// reconciler diffs a session's view against the aggregated groups.
type reconciler interface {
	Dashboard(cur *view.Dashboard, gs []groups.Group, opts view.Options) ([]reconcile.Op, error)
}

type Hub struct {
	views   *view.Renderer
	rc      reconciler
	kv      store.KV
	conn    *connectivity.Tracker
	alerts  *alerts.Monitor
	metrics telemetry.Collector

	now     func() time.Time
	idleTTL time.Duration

	mu          sync.Mutex
	settings    Settings
	text        string
	readings    []model.Reading
	hasSnapshot bool
	failed      bool
	lastUpdated string
	sessions    map[string]*Session
}

func New(views *view.Renderer, kv store.KV, settings Settings, conn *connectivity.Tracker, monitor *alerts.Monitor, metrics telemetry.Collector) *Hub {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	if monitor == nil {
		monitor = alerts.NewMonitor(nil)
	}
	return &Hub{
		views:    views,
		rc:       reconcile.New(views),
		kv:       kv,
		conn:     conn,
		alerts:   monitor,
		metrics:  metrics,
		now:      time.Now,
		idleTTL:  SessionIdleTTL,
		settings: settings,
		sessions: make(map[string]*Session),
	}
}

// session returns the session for id, loading its persisted state on first
// use. Callers hold h.mu.
func (h *Hub) session(id string) (*Session, error) {
	if s, ok := h.sessions[id]; ok {
		s.lastSeen = h.now()
		return s, nil
	}
	st, err := state.Load(store.NewPrefixed(h.kv, id))
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	s := newSession(id, st)
	s.lastSeen = h.now()
	h.sessions[id] = s
	log.Debug().Str("session", id).Msg("Session loaded")
	return s, nil
}

// peek returns the session for id without keeping a new one: an unknown id
// gets a transient session whose writes never reach the store.
func (h *Hub) peek(id string) (*Session, error) {
	if s, ok := h.sessions[id]; ok {
		s.lastSeen = h.now()
		return s, nil
	}
	st, err := state.Load(store.NewOverlay(store.NewPrefixed(h.kv, id)))
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return newSession(id, st), nil
}

// evictIdle forgets sessions without subscribers that have been idle longer
// than the TTL. Their persisted state is reloaded if they come back.
func (h *Hub) evictIdle() {
	now := h.now()
	evicted := 0
	for id, s := range h.sessions {
		if len(s.subs) == 0 && now.Sub(s.lastSeen) > h.idleTTL {
			delete(h.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Int("sessions", len(h.sessions)).Msg("Evicted idle sessions")
	}
}

// Apply is the poll sink for a successful fetch.
func (h *Hub) Apply(ctx context.Context, text string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.text = text
	h.readings = parser.Parse(text, h.settings.Labels)
	h.hasSnapshot = true
	h.failed = false
	h.lastUpdated = "Last updated: " + at.Format("15:04:05")

	h.observe()
	h.evictIdle()

	common := h.conn.Success(at)
	common = append(common, reconcile.Op{Kind: reconcile.OpText, Target: TimestampTarget, Value: h.lastUpdated})

	for _, s := range h.sessions {
		// a session nobody watches catches up when it is next rendered
		if len(s.subs) == 0 {
			continue
		}
		ops, err := h.reconcile(s)
		if err != nil {
			log.Error().Err(err).Str("session", s.ID).Msg("Failed to reconcile session")
			continue
		}
		h.send(s, append(append([]reconcile.Op{}, common...), ops...))
	}

	log.Debug().Int("devices", len(h.readings)).Int("sessions", len(h.sessions)).Msg("Applied metrics snapshot")
}

// Fail is the poll sink for a failed fetch: the container of every session is
// replaced by the retry-pending error card.
func (h *Hub) Fail(ctx context.Context, err error, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failed = true
	h.evictIdle()
	ops := h.conn.Failure(err)

	card, renderErr := h.views.ErrorCard(h.retrySeconds())
	if renderErr != nil {
		log.Error().Err(renderErr).Msg("Failed to render error card")
	} else {
		ops = append(ops, reconcile.Op{Kind: reconcile.OpRebuild, Target: reconcile.Container, HTML: card})
	}

	for _, s := range h.sessions {
		s.view = view.Dashboard{}
		h.send(s, ops)
	}
}

// CheckConnection marks the connection lost when polls have stopped
// succeeding.
func (h *Hub) CheckConnection(now time.Time) {
	ops := h.conn.Check(now)
	if len(ops) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		h.send(s, ops)
	}
}

// WatchConnection runs CheckConnection once per refresh interval until ctx is
// done.
func (h *Hub) WatchConnection(ctx context.Context) {
	ticker := time.NewTicker(h.Settings().RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.CheckConnection(now)
		}
	}
}

// Reload swaps the settings and re-renders the latest snapshot with them.
func (h *Hub) Reload(settings Settings) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.settings = settings
	h.metrics.IncConfigReload()
	if !h.hasSnapshot {
		return
	}
	h.readings = parser.Parse(h.text, settings.Labels)
	if h.failed {
		return
	}
	for _, s := range h.sessions {
		if len(s.subs) > 0 {
			h.refresh(s)
		}
	}
	log.Info().Int("sessions", len(h.sessions)).Msg("Re-rendered sessions with reloaded settings")
}

func (h *Hub) Settings() Settings {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.settings
}

func (h *Hub) retrySeconds() int {
	return int(h.settings.RefreshInterval / time.Second)
}

// reconcile diffs the session's view against the latest snapshot. Callers
// hold h.mu.
func (h *Hub) reconcile(s *Session) ([]reconcile.Op, error) {
	gs, err := groups.Aggregate(h.readings, h.settings.Thresholds, s.state)
	if err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("Failed to persist group state")
	}
	opts := view.Options{
		Layout:        s.state.Layout(),
		ViewportWidth: s.viewport,
		Thresholds:    h.settings.Thresholds,
		Previous:      s.shown,
	}
	ops, err := h.rc.Dashboard(&s.view, gs, opts)
	if err != nil {
		// the view may be partly patched; start over from a rebuild
		s.view = view.Dashboard{}
		return nil, err
	}
	s.shown = previousValues(h.readings)
	return ops, nil
}

// refresh re-runs reconciliation after a session-local change. Nothing is
// reconciled while the error card is up; the next successful poll rebuilds.
func (h *Hub) refresh(s *Session) {
	if !h.hasSnapshot || h.failed {
		return
	}
	ops, err := h.reconcile(s)
	if err != nil {
		log.Error().Err(err).Str("session", s.ID).Msg("Failed to reconcile session")
		return
	}
	h.send(s, ops)
}

func (h *Hub) send(s *Session, ops []reconcile.Op) {
	for kind, n := range reconcile.Count(ops) {
		h.metrics.AddPatchOps(string(kind), n)
	}
	s.publish(ops)
}

func (h *Hub) observe() {
	for _, r := range h.readings {
		for _, kind := range model.MetricKinds {
			if v := r.Value(kind); v != nil {
				h.metrics.SetReading(r.Name, string(kind), *v)
			}
		}
	}
	h.metrics.SetWarningDevices(h.alerts.Observe(h.readings, h.settings.Thresholds))
}

// RenderPage writes the full document for a session. Rendering alone does not
// keep a new session; subscribing or acting on the page does.
func (h *Hub) RenderPage(w io.Writer, sessionID string) error {
	h.mu.Lock()
	s, err := h.peek(sessionID)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	h.refresh(s)

	conn := h.conn.State()
	page := view.Page{
		Theme:          s.state.Theme(),
		Layout:         s.state.Layout(),
		RefreshSeconds: h.retrySeconds(),
		LastUpdated:    h.lastUpdated,
		Connection:     view.Connection{State: string(conn), Label: conn.Message()},
		Dashboard:      s.view,
		Failed:         h.failed,
	}
	h.mu.Unlock()

	return h.views.Page(w, page)
}

// Subscribe registers a browser tab. The first batch on the returned channel
// brings the tab in line with the session's view; cancel must be called when
// the tab goes away.
func (h *Hub) Subscribe(sessionID string) (<-chan []reconcile.Op, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, err := h.session(sessionID)
	if err != nil {
		return nil, nil, err
	}
	h.refresh(s)

	ch := make(chan []reconcile.Op, subscriberBuffer)
	prime, err := h.prime(s)
	if err != nil {
		return nil, nil, err
	}
	ch <- prime
	s.subs[ch] = struct{}{}
	h.metrics.SetSessions(h.subscriberCount())

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			s.lastSeen = h.now()
			h.metrics.SetSessions(h.subscriberCount())
		}
	}
	return ch, cancel, nil
}

func (h *Hub) prime(s *Session) ([]reconcile.Op, error) {
	ops := h.conn.StateOps()
	if h.lastUpdated != "" {
		ops = append(ops, reconcile.Op{Kind: reconcile.OpText, Target: TimestampTarget, Value: h.lastUpdated})
	}

	var html string
	var err error
	if h.failed {
		html, err = h.views.ErrorCard(h.retrySeconds())
	} else {
		html, err = h.views.Groups(s.view)
	}
	if err != nil {
		return nil, err
	}
	return append(ops, reconcile.Op{Kind: reconcile.OpRebuild, Target: reconcile.Container, HTML: html}), nil
}

func (h *Hub) subscriberCount() int {
	n := 0
	for _, s := range h.sessions {
		n += len(s.subs)
	}
	return n
}

// ToggleGroup flips a group's expansion for one session.
func (h *Hub) ToggleGroup(sessionID, group string) (bool, error) {
	return withSession(h, sessionID, func(s *Session) (bool, error) {
		return s.state.Toggle(group)
	})
}

// SetOrder replaces the session's group order, typically after a drop.
func (h *Hub) SetOrder(sessionID string, order []string) error {
	_, err := withSession(h, sessionID, func(s *Session) (struct{}, error) {
		return struct{}{}, s.state.SetOrder(order)
	})
	return err
}

// MoveGroup moves one group to index in the session's order.
func (h *Hub) MoveGroup(sessionID, group string, index int) error {
	_, err := withSession(h, sessionID, func(s *Session) (struct{}, error) {
		if h.hasSnapshot && !h.knownGroup(group) {
			return struct{}{}, fmt.Errorf("%w: %s", ErrUnknownGroup, group)
		}
		return struct{}{}, s.state.Move(group, index)
	})
	return err
}

func (h *Hub) SetLayout(sessionID string, layout model.LayoutMode) error {
	_, err := withSession(h, sessionID, func(s *Session) (struct{}, error) {
		if err := s.state.SetLayout(layout); err != nil {
			return struct{}{}, err
		}
		s.publish([]reconcile.Op{
			{Kind: reconcile.OpAttr, Target: "html", Name: "data-layout", Value: string(layout)},
			{Kind: reconcile.OpText, Target: LayoutButton, Value: string(layout)},
		})
		return struct{}{}, nil
	})
	return err
}

// SetViewport records the width the browser reports. It only matters in the
// auto layout.
func (h *Hub) SetViewport(sessionID string, width int) error {
	_, err := withSession(h, sessionID, func(s *Session) (struct{}, error) {
		if width > 0 {
			s.viewport = width
		}
		return struct{}{}, nil
	})
	return err
}

func (h *Hub) SetTheme(sessionID, theme string) error {
	if !state.ValidTheme(theme) {
		return fmt.Errorf("%w: %q (allowed: dark, light)", ErrInvalidTheme, theme)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s, err := h.session(sessionID)
	if err != nil {
		return err
	}
	if err := s.state.SetTheme(theme); err != nil {
		return err
	}
	s.publish([]reconcile.Op{{Kind: reconcile.OpAttr, Target: "html", Name: "data-theme", Value: theme}})
	return nil
}

func (h *Hub) State(sessionID string) (state.Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, err := h.peek(sessionID)
	if err != nil {
		return state.Snapshot{}, err
	}
	return s.state.Snapshot(), nil
}

func (h *Hub) knownGroup(name string) bool {
	for _, r := range h.readings {
		if r.Group == name {
			return true
		}
	}
	return false
}

// withSession runs fn under the hub lock and then reconciles the session.
func withSession[T any](h *Hub, sessionID string, fn func(*Session) (T, error)) (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero T
	s, err := h.session(sessionID)
	if err != nil {
		return zero, err
	}
	// a session acting before its first render still gets first-load
	// expansion and the default order
	if !s.view.Rendered {
		h.refresh(s)
	}
	out, err := fn(s)
	if err != nil {
		return zero, err
	}
	h.refresh(s)
	return out, nil
}
