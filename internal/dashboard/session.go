package dashboard

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
	"github.com/thatsimonsguy/sensor-dashboard/internal/reconcile"
	"github.com/thatsimonsguy/sensor-dashboard/internal/state"
	"github.com/thatsimonsguy/sensor-dashboard/internal/view"
)

// DefaultViewportWidth is assumed until the browser reports its width.
const DefaultViewportWidth = 1024

const subscriberBuffer = 16

// Session is one browser. Every open tab of the browser subscribes to the
// same session and shows the same view.
type Session struct {
	ID    string
	state *state.DashboardState

	// view mirrors what every subscriber currently displays.
	view     view.Dashboard
	viewport int
	// shown holds the raw values of the snapshot view was last reconciled
	// against; they drive change highlighting on the next pass.
	shown    map[string]model.PreviousValues
	subs     map[chan []reconcile.Op]struct{}
	lastSeen time.Time
}

func newSession(id string, st *state.DashboardState) *Session {
	return &Session{
		ID:       id,
		state:    st,
		viewport: DefaultViewportWidth,
		subs:     make(map[chan []reconcile.Op]struct{}),
	}
}

// publish sends a batch to every subscriber. A subscriber that cannot keep up
// loses the batch, so the view is reset and the next pass rebuilds.
func (s *Session) publish(ops []reconcile.Op) {
	if len(ops) == 0 {
		return
	}
	for ch := range s.subs {
		select {
		case ch <- ops:
		default:
			log.Warn().Str("session", s.ID).Int("ops", len(ops)).Msg("Subscriber is behind, forcing a rebuild")
			s.view = view.Dashboard{}
		}
	}
}

func previousValues(readings []model.Reading) map[string]model.PreviousValues {
	out := make(map[string]model.PreviousValues, len(readings))
	for _, r := range readings {
		out[r.Name] = r.Previous()
	}
	return out
}
