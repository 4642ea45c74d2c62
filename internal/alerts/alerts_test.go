package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
)

type MockNotifier struct {
	calls []string
}

func (m *MockNotifier) Send(title, message string) error {
	m.calls = append(m.calls, title+": "+message)
	return nil
}

func reading(name string, status model.Status, battery float64) model.Reading {
	return model.Reading{Name: name, Status: status, Battery: model.Float(battery), Temperature: model.Float(20)}
}

func TestObserve(t *testing.T) {
	th := model.DefaultThresholds()

	tests := []struct {
		name          string
		snapshots     [][]model.Reading
		wantWarning   int
		expectedCalls []string
	}{
		{
			name: "first snapshot seeds silently",
			snapshots: [][]model.Reading{
				{reading("attic", model.StatusStale, 80)},
			},
			wantWarning: 1,
		},
		{
			name: "entering stale notifies",
			snapshots: [][]model.Reading{
				{reading("attic", model.StatusActive, 80)},
				{reading("attic", model.StatusStale, 80)},
			},
			wantWarning:   1,
			expectedCalls: []string{"Sensor Stale: attic is not reporting"},
		},
		{
			name: "low battery then recovery",
			snapshots: [][]model.Reading{
				{reading("attic", model.StatusActive, 80)},
				{reading("attic", model.StatusActive, 4)},
				{reading("attic", model.StatusActive, 100)},
			},
			wantWarning: 0,
			expectedCalls: []string{
				"Sensor Low Battery: attic is low on battery",
				"Sensor recovered: attic is reporting normally again",
			},
		},
		{
			name: "weather station never alerts",
			snapshots: [][]model.Reading{
				{{Name: "Outdoor", IsWeatherStation: true, Temperature: model.Float(1)}},
				{{Name: "Outdoor", IsWeatherStation: true, Status: model.StatusStale}},
			},
			wantWarning: 0,
		},
		{
			name: "new missing device notifies",
			snapshots: [][]model.Reading{
				{},
				{{Name: "loft", DisplayName: "Loft", Status: model.StatusNeverSeen}},
			},
			wantWarning:   1,
			expectedCalls: []string{"Sensor Missing: Loft is missing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &MockNotifier{}
			m := NewMonitor(notifier)

			var warning int
			for _, snap := range tt.snapshots {
				warning = m.Observe(snap, th)
			}

			require.NoError(t, m.Close())
			assert.Equal(t, tt.wantWarning, warning)
			assert.Equal(t, tt.expectedCalls, notifier.calls)
		})
	}
}

func TestObserve_NilNotifier(t *testing.T) {
	m := NewMonitor(nil)
	m.Observe([]model.Reading{reading("attic", model.StatusActive, 80)}, model.DefaultThresholds())
	assert.Equal(t, 1, m.Observe([]model.Reading{reading("attic", model.StatusStale, 80)}, model.DefaultThresholds()))
	require.NoError(t, m.Close())
}

// BlockingNotifier holds every Send until release is closed.
type BlockingNotifier struct {
	release chan struct{}
	sent    chan string
}

func (b *BlockingNotifier) Send(title, message string) error {
	<-b.release
	b.sent <- title
	return nil
}

func TestObserve_DoesNotWaitForDelivery(t *testing.T) {
	th := model.DefaultThresholds()
	notifier := &BlockingNotifier{release: make(chan struct{}), sent: make(chan string, 8)}
	m := NewMonitor(notifier)

	m.Observe([]model.Reading{reading("attic", model.StatusActive, 80), reading("loft", model.StatusActive, 80)}, th)

	returned := make(chan int)
	go func() {
		returned <- m.Observe([]model.Reading{reading("attic", model.StatusStale, 80), reading("loft", model.StatusStale, 80)}, th)
	}()

	select {
	case warning := <-returned:
		assert.Equal(t, 2, warning)
	case <-time.After(time.Second):
		t.Fatal("Observe blocked on a slow notifier")
	}

	close(notifier.release)
	require.NoError(t, m.Close())
	assert.Len(t, notifier.sent, 2)
}

func TestClose_Idempotent(t *testing.T) {
	m := NewMonitor(&MockNotifier{})
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	m.Observe([]model.Reading{reading("attic", model.StatusActive, 80)}, model.DefaultThresholds())
}
