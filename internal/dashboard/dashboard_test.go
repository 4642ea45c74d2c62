package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/sensor-dashboard/internal/alerts"
	"github.com/thatsimonsguy/sensor-dashboard/internal/connectivity"
	"github.com/thatsimonsguy/sensor-dashboard/internal/groups"
	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
	"github.com/thatsimonsguy/sensor-dashboard/internal/parser"
	"github.com/thatsimonsguy/sensor-dashboard/internal/poller"
	"github.com/thatsimonsguy/sensor-dashboard/internal/reconcile"
	"github.com/thatsimonsguy/sensor-dashboard/internal/store"
	"github.com/thatsimonsguy/sensor-dashboard/internal/view"
)

var t0 = time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC)

func snapshot(loungeTemp float64) string {
	return fmt.Sprintf(`# HELP govee_h5075_temperature Temperature
govee_h5075_temperature{name="lounge"} %.1f
govee_h5075_humidity{name="lounge"} 45
govee_h5075_battery{name="lounge"} 80
govee_device_status{name="attic",status="never_seen"} 1
`, loungeTemp)
}

func settings() Settings {
	return Settings{
		Thresholds:      model.DefaultThresholds(),
		RefreshInterval: 30 * time.Second,
		Labels: parser.Labels{
			Groups: map[string]string{"lounge": "Downstairs", "attic": "Upstairs"},
		},
	}
}

func newHub(t *testing.T) (*Hub, *store.Memory) {
	t.Helper()
	views, err := view.NewRenderer()
	require.NoError(t, err)
	kv := store.NewMemory()
	return New(views, kv, settings(), connectivity.NewTracker(30*time.Second, t0), nil, nil), kv
}

func next(t *testing.T, ch <-chan []reconcile.Op) []reconcile.Op {
	t.Helper()
	select {
	case ops := <-ch:
		return ops
	case <-time.After(time.Second):
		t.Fatal("no batch received")
		return nil
	}
}

func find(ops []reconcile.Op, kind reconcile.Kind, target string) (reconcile.Op, bool) {
	for _, op := range ops {
		if op.Kind == kind && op.Target == target {
			return op, true
		}
	}
	return reconcile.Op{}, false
}

func TestSubscribe_PrimesWithCurrentView(t *testing.T) {
	h, _ := newHub(t)
	h.Apply(context.Background(), snapshot(21.5), t0)

	ch, cancel, err := h.Subscribe("s1")
	require.NoError(t, err)
	defer cancel()

	ops := next(t, ch)
	rebuild, ok := find(ops, reconcile.OpRebuild, reconcile.Container)
	require.True(t, ok)
	assert.Contains(t, rebuild.HTML, `data-group="Downstairs"`)
	assert.Contains(t, rebuild.HTML, `data-room="lounge"`)

	ts, ok := find(ops, reconcile.OpText, TimestampTarget)
	require.True(t, ok)
	assert.Equal(t, "Last updated: 14:05:09", ts.Value)
}

func TestApply_PatchesSubscribers(t *testing.T) {
	h, _ := newHub(t)
	h.Apply(context.Background(), snapshot(21.5), t0)

	ch, cancel, err := h.Subscribe("s1")
	require.NoError(t, err)
	defer cancel()
	next(t, ch)

	h.Apply(context.Background(), snapshot(22.5), t0.Add(30*time.Second))
	ops := next(t, ch)

	_, rebuilt := find(ops, reconcile.OpRebuild, reconcile.Container)
	assert.False(t, rebuilt)

	text, ok := find(ops, reconcile.OpText, ".metric.temperature .metric-text")
	require.True(t, ok)
	assert.Equal(t, "22.5°C", text.Value)
	assert.Equal(t, "lounge", text.Card)

	flash, ok := find(ops, reconcile.OpFlash, ".metric.temperature .metric-value")
	require.True(t, ok)
	assert.Equal(t, reconcile.FlashMillis, flash.Millis)

	ts, ok := find(ops, reconcile.OpText, TimestampTarget)
	require.True(t, ok)
	assert.Equal(t, "Last updated: 14:05:39", ts.Value)
}

func TestFail_ShowsErrorCardThenRebuilds(t *testing.T) {
	h, _ := newHub(t)
	h.Apply(context.Background(), snapshot(21.5), t0)
	ch, cancel, err := h.Subscribe("s1")
	require.NoError(t, err)
	defer cancel()
	next(t, ch)

	h.Fail(context.Background(), fmt.Errorf("%w after 10s", poller.ErrTimeout), t0)
	ops := next(t, ch)

	rebuild, ok := find(ops, reconcile.OpRebuild, reconcile.Container)
	require.True(t, ok)
	assert.Contains(t, rebuild.HTML, "Unable to fetch sensor data. Will retry in 30 seconds.")
	announce, ok := find(ops, reconcile.OpAnnounce, connectivity.Announcement)
	require.True(t, ok)
	assert.Equal(t, "Connection lost to sensor network", announce.Value)

	// actions while failed do not touch the error card
	_, err = h.ToggleGroup("s1", "Downstairs")
	require.NoError(t, err)
	assert.Empty(t, ch)

	h.Apply(context.Background(), snapshot(21.5), t0.Add(time.Minute))
	ops = next(t, ch)
	rebuild, ok = find(ops, reconcile.OpRebuild, reconcile.Container)
	require.True(t, ok)
	assert.Contains(t, rebuild.HTML, `data-room="lounge"`)
	_, ok = find(ops, reconcile.OpAnnounce, connectivity.Announcement)
	assert.True(t, ok, "recovery is announced")
}

func TestToggleGroup(t *testing.T) {
	h, _ := newHub(t)
	h.Apply(context.Background(), snapshot(21.5), t0)
	ch, cancel, err := h.Subscribe("s1")
	require.NoError(t, err)
	defer cancel()
	next(t, ch)

	expanded, err := h.ToggleGroup("s1", "Downstairs")
	require.NoError(t, err)
	assert.False(t, expanded, "groups start expanded")

	ops := next(t, ch)
	collapse, ok := find(ops, reconcile.OpClass, "")
	require.True(t, ok)
	assert.Equal(t, "Downstairs", collapse.Group)
	assert.Equal(t, "collapsed", collapse.Name)
	assert.True(t, collapse.On)
}

func TestSessionsAreIsolated(t *testing.T) {
	h, kv := newHub(t)
	h.Apply(context.Background(), snapshot(21.5), t0)

	_, err := h.ToggleGroup("a", "Downstairs")
	require.NoError(t, err)
	require.NoError(t, h.MoveGroup("a", "Upstairs", 0))

	a, err := h.State("a")
	require.NoError(t, err)
	b, err := h.State("b")
	require.NoError(t, err)

	assert.Equal(t, []string{"Upstairs"}, a.ExpandedGroups)
	assert.Equal(t, []string{"Upstairs", "Downstairs"}, a.GroupOrder)
	assert.Empty(t, b.ExpandedGroups, "b has not rendered yet")

	raw, ok, err := kv.Get("a/groupOrder")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["Upstairs","Downstairs"]`, raw)
}

func TestMoveGroup_Unknown(t *testing.T) {
	h, _ := newHub(t)
	h.Apply(context.Background(), snapshot(21.5), t0)
	assert.ErrorIs(t, h.MoveGroup("a", "Garage", 0), ErrUnknownGroup)
}

func TestSetOrder_RebuildsInNewOrder(t *testing.T) {
	h, _ := newHub(t)
	h.Apply(context.Background(), snapshot(21.5), t0)
	ch, cancel, err := h.Subscribe("s1")
	require.NoError(t, err)
	defer cancel()
	next(t, ch)

	require.NoError(t, h.SetOrder("s1", []string{"Upstairs", "Downstairs"}))
	ops := next(t, ch)
	require.NotEmpty(t, ops)
	assert.Equal(t, reconcile.OpRebuild, ops[0].Kind)
	assert.Less(t, bytes.Index([]byte(ops[0].HTML), []byte("Upstairs")), bytes.Index([]byte(ops[0].HTML), []byte("Downstairs")))
}

func TestSetLayout_RestructuresCards(t *testing.T) {
	h, _ := newHub(t)
	h.Apply(context.Background(), snapshot(21.5), t0)
	ch, cancel, err := h.Subscribe("s1")
	require.NoError(t, err)
	defer cancel()
	next(t, ch)

	require.NoError(t, h.SetLayout("s1", model.LayoutMobile))

	attr := next(t, ch)
	layoutAttr, ok := find(attr, reconcile.OpAttr, "html")
	require.True(t, ok)
	assert.Equal(t, "mobile", layoutAttr.Value)

	ops := next(t, ch)
	unwrap, ok := find(ops, reconcile.OpUnwrap, ".card-header-row")
	require.True(t, ok)
	assert.Equal(t, "attic", unwrap.Card)

	snap, err := h.State("s1")
	require.NoError(t, err)
	assert.Equal(t, model.LayoutMobile, snap.Layout)
}

func TestSetViewport_AutoLayout(t *testing.T) {
	h, _ := newHub(t)
	h.Apply(context.Background(), snapshot(21.5), t0)
	ch, cancel, err := h.Subscribe("s1")
	require.NoError(t, err)
	defer cancel()
	next(t, ch)

	require.NoError(t, h.SetViewport("s1", 400))
	ops := next(t, ch)
	_, ok := find(ops, reconcile.OpUnwrap, ".card-header-row")
	assert.True(t, ok)

	require.NoError(t, h.SetViewport("s1", 400))
	assert.Empty(t, ch, "same width is a no-op")
}

func TestSetTheme(t *testing.T) {
	h, _ := newHub(t)
	assert.ErrorIs(t, h.SetTheme("s1", "purple"), ErrInvalidTheme)
	require.NoError(t, h.SetTheme("s1", "light"))

	snap, err := h.State("s1")
	require.NoError(t, err)
	assert.Equal(t, "light", snap.Theme)
}

func TestReload_AppliesNewLabels(t *testing.T) {
	h, _ := newHub(t)
	h.Apply(context.Background(), snapshot(21.5), t0)
	ch, cancel, err := h.Subscribe("s1")
	require.NoError(t, err)
	defer cancel()
	next(t, ch)

	s := settings()
	s.Labels.Groups["lounge"] = "Ground Floor"
	s.Labels.DisplayNames = map[string]string{"lounge": "Living Room"}
	h.Reload(s)

	ops := next(t, ch)
	require.NotEmpty(t, ops)
	assert.Equal(t, reconcile.OpRebuild, ops[0].Kind)
	assert.Contains(t, ops[0].HTML, "Ground Floor")
	assert.Contains(t, ops[0].HTML, "Living Room")
}

func TestRenderPage(t *testing.T) {
	h, _ := newHub(t)
	require.NoError(t, h.SetTheme("s1", "light"))
	h.Apply(context.Background(), snapshot(21.5), t0)

	var buf bytes.Buffer
	require.NoError(t, h.RenderPage(&buf, "s1"))
	page := buf.String()

	assert.Contains(t, page, `data-theme="light"`)
	assert.Contains(t, page, `data-room="lounge"`)
	assert.Contains(t, page, "Last updated: 14:05:09")
	assert.Contains(t, page, "Connected to sensor network")
}

func TestRenderPage_Failed(t *testing.T) {
	h, _ := newHub(t)
	h.Fail(context.Background(), errors.New("connection refused"), t0)

	var buf bytes.Buffer
	require.NoError(t, h.RenderPage(&buf, "s1"))
	assert.Contains(t, buf.String(), "Will retry in 30 seconds.")
	assert.Contains(t, buf.String(), "Error connecting to sensor network")
}

func TestCancelUnsubscribes(t *testing.T) {
	h, _ := newHub(t)
	_, cancel, err := h.Subscribe("s1")
	require.NoError(t, err)
	cancel()
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Zero(t, h.subscriberCount())
}

func TestCheckConnection(t *testing.T) {
	h, _ := newHub(t)
	ch, cancel, err := h.Subscribe("s1")
	require.NoError(t, err)
	defer cancel()
	next(t, ch)

	h.CheckConnection(t0.Add(61 * time.Second))
	ops := next(t, ch)
	announce, ok := find(ops, reconcile.OpAnnounce, connectivity.Announcement)
	require.True(t, ok)
	assert.Equal(t, "Connection lost to sensor network", announce.Value)
}

type blockingNotifier struct {
	release chan struct{}
}

func (b *blockingNotifier) Send(title, message string) error {
	<-b.release
	return nil
}

func TestApply_DoesNotWaitForNotifications(t *testing.T) {
	views, err := view.NewRenderer()
	require.NoError(t, err)
	notifier := &blockingNotifier{release: make(chan struct{})}
	monitor := alerts.NewMonitor(notifier)
	defer func() {
		close(notifier.release)
		require.NoError(t, monitor.Close())
	}()
	h := New(views, store.NewMemory(), settings(), connectivity.NewTracker(30*time.Second, t0), monitor, nil)

	h.Apply(context.Background(), snapshot(21.5), t0)

	stale := snapshot(21.5) + `govee_device_status{name="lounge",status="stale"} 1
`
	done := make(chan struct{})
	go func() {
		h.Apply(context.Background(), stale, t0.Add(30*time.Second))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Apply waited on a blocked notifier")
	}

	// the hub stays usable while the notification is pending
	var buf bytes.Buffer
	require.NoError(t, h.RenderPage(&buf, "s1"))
}

func TestRenderPage_DoesNotKeepSession(t *testing.T) {
	h, kv := newHub(t)
	h.Apply(context.Background(), snapshot(21.5), t0)

	var buf bytes.Buffer
	require.NoError(t, h.RenderPage(&buf, "visitor"))
	assert.Contains(t, buf.String(), `data-room="lounge"`)

	snap, err := h.State("visitor")
	require.NoError(t, err)
	assert.Equal(t, "dark", snap.Theme)

	h.mu.Lock()
	assert.Empty(t, h.sessions)
	h.mu.Unlock()

	keys, err := kv.Keys("visitor/")
	require.NoError(t, err)
	assert.Empty(t, keys, "a page view persists nothing")
}

func TestEvictIdleSessions(t *testing.T) {
	h, kv := newHub(t)
	now := t0
	h.now = func() time.Time { return now }
	h.Apply(context.Background(), snapshot(21.5), now)

	_, err := h.ToggleGroup("idle", "Downstairs")
	require.NoError(t, err)
	ch, cancel, err := h.Subscribe("watched")
	require.NoError(t, err)
	defer cancel()
	next(t, ch)

	now = now.Add(SessionIdleTTL + time.Minute)
	h.Apply(context.Background(), snapshot(22.5), now)
	next(t, ch)

	h.mu.Lock()
	_, idleKept := h.sessions["idle"]
	_, watchedKept := h.sessions["watched"]
	h.mu.Unlock()
	assert.False(t, idleKept)
	assert.True(t, watchedKept, "sessions with open tabs are kept")

	// the evicted session comes back with its persisted state
	_, ok, err := kv.Get("idle/expandedGroups")
	require.NoError(t, err)
	require.True(t, ok)
	snap, err := h.State("idle")
	require.NoError(t, err)
	assert.Equal(t, []string{"Upstairs"}, snap.ExpandedGroups)
}

func TestApply_SkipsUnwatchedSessions(t *testing.T) {
	h, _ := newHub(t)
	h.Apply(context.Background(), snapshot(21.5), t0)
	_, err := h.ToggleGroup("s1", "Downstairs")
	require.NoError(t, err)

	h.mu.Lock()
	before := h.sessions["s1"].view
	h.mu.Unlock()

	h.Apply(context.Background(), snapshot(25), t0.Add(30*time.Second))

	h.mu.Lock()
	after := h.sessions["s1"].view
	h.mu.Unlock()
	assert.Equal(t, before, after)

	var buf bytes.Buffer
	require.NoError(t, h.RenderPage(&buf, "s1"))
	assert.Contains(t, buf.String(), "25.0°C", "rendering catches the session up")
}

// halfPatch patches the first group of an already rendered view and fails.
type halfPatch struct{}

func (halfPatch) Dashboard(cur *view.Dashboard, gs []groups.Group, opts view.Options) ([]reconcile.Op, error) {
	if cur.Rendered && len(cur.Groups) > 0 {
		cur.Groups[0].Count = 99
	}
	return nil, errors.New("render metric: template failed")
}

func TestReconcileError_ResetsView(t *testing.T) {
	h, _ := newHub(t)
	h.Apply(context.Background(), snapshot(21.5), t0)
	ch, cancel, err := h.Subscribe("s1")
	require.NoError(t, err)
	defer cancel()
	next(t, ch)

	working := h.rc
	h.rc = halfPatch{}
	h.Apply(context.Background(), snapshot(22.5), t0.Add(30*time.Second))

	h.mu.Lock()
	assert.False(t, h.sessions["s1"].view.Rendered)
	h.mu.Unlock()

	h.rc = working
	h.Apply(context.Background(), snapshot(22.5), t0.Add(time.Minute))
	ops := next(t, ch)
	_, rebuilt := find(ops, reconcile.OpRebuild, reconcile.Container)
	assert.True(t, rebuilt)
}
