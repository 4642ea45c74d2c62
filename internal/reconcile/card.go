package reconcile

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
	"github.com/thatsimonsguy/sensor-dashboard/internal/view"
)

var ErrNotRendered = errors.New("card is not rendered")

type Reconciler struct {
	views *view.Renderer
}

func New(views *view.Renderer) *Reconciler {
	return &Reconciler{views: views}
}

// Card brings the rendered card cur in line with the reading and returns the
// patch. cur is updated to the new rendered state, so calling Card again with
// the same inputs returns no ops.
func (rc *Reconciler) Card(cur *view.Card, r model.Reading, ctx view.Context, prev model.PreviousValues, th model.Thresholds) ([]Op, error) {
	if cur == nil {
		return nil, ErrNotRendered
	}
	want := view.BuildCard(r, ctx, prev, th)
	if cur.Name != want.Name {
		return nil, fmt.Errorf("reconcile card %q against reading %q", cur.Name, want.Name)
	}
	return rc.patchCard(cur, want)
}

func (rc *Reconciler) patchCard(cur *view.Card, want view.Card) ([]Op, error) {
	var ops []Op
	emit := func(op Op) { ops = append(ops, op) }

	if cur.WeatherStation != want.WeatherStation {
		emit(Op{Kind: OpClass, Name: "weather-station", On: want.WeatherStation})
	}
	if cur.Stale != want.Stale {
		emit(Op{Kind: OpClass, Name: "card-stale", On: want.Stale})
	}
	if cur.NoMetrics != want.NoMetrics {
		emit(Op{Kind: OpClass, Name: "card-no-metrics", On: want.NoMetrics})
	}
	if cur.Tooltip != want.Tooltip {
		if want.Tooltip == "" {
			emit(Op{Kind: OpRmAttr, Name: "title"})
		} else {
			emit(Op{Kind: OpAttr, Name: "title", Value: want.Tooltip})
		}
	}
	if cur.Title != want.Title {
		emit(Op{Kind: OpText, Target: "h2", Value: want.Title})
	}

	// the rendered shape drives the rest of the patch, so track it as ops go out
	shape := *cur

	switch {
	case !shape.HeaderRow && want.HeaderRow:
		emit(Op{Kind: OpWrap, Target: ":scope > h2", Value: ":scope > .metrics-compact", Name: "card-header-row"})
		shape.HeaderRow = true

	case shape.HeaderRow && !want.HeaderRow:
		if shape.HeaderChip != nil {
			emit(Op{Kind: OpRemove, Target: ".card-header-warning-chip"})
			shape.HeaderChip = nil
		}
		for _, m := range shape.Metrics {
			emit(Op{Kind: OpRemove, Target: metricSelector(m.Kind)})
		}
		shape.Metrics = nil
		if shape.Footer != "" {
			emit(Op{Kind: OpRemove, Target: ".card-footer"})
			shape.Footer = ""
		}
		emit(Op{Kind: OpUnwrap, Target: ".card-header-row"})
		shape.HeaderRow = false
	}

	chipOps, err := rc.patchHeaderChip(shape.HeaderChip, want.HeaderChip)
	if err != nil {
		return nil, err
	}
	ops = append(ops, chipOps...)

	metricOps, err := rc.patchMetrics(shape.Metrics, want.Metrics)
	if err != nil {
		return nil, err
	}
	ops = append(ops, metricOps...)

	if !reflect.DeepEqual(shape.Compact, want.Compact) {
		html, err := rc.views.Compact(want.Compact)
		if err != nil {
			return nil, err
		}
		emit(Op{Kind: OpReplace, Target: ".metrics-compact", HTML: html})
	}

	if shape.Footer != want.Footer {
		switch {
		case want.Footer == "":
			emit(Op{Kind: OpRemove, Target: ".card-footer"})
		default:
			html, err := rc.views.Footer(want.Footer)
			if err != nil {
				return nil, err
			}
			if shape.Footer == "" {
				emit(Op{Kind: OpInsert, Position: BeforeEnd, HTML: html})
			} else {
				emit(Op{Kind: OpReplace, Target: ".card-footer", HTML: html})
			}
		}
	}

	*cur = want.ClearChanged()
	return scope(ops, "", cur.Name), nil
}

func (rc *Reconciler) patchHeaderChip(cur, want *view.Chip) ([]Op, error) {
	if reflect.DeepEqual(cur, want) {
		return nil, nil
	}
	if want == nil {
		return []Op{{Kind: OpRemove, Target: ".card-header-warning-chip"}}, nil
	}
	html, err := rc.views.HeaderChip(*want)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return []Op{{Kind: OpInsert, Target: ".card-header-row > h2", Position: AfterEnd, HTML: html}}, nil
	}
	return []Op{{Kind: OpReplace, Target: ".card-header-warning-chip", HTML: html}}, nil
}

// patchMetrics walks the rows in display order. New rows go after the
// previous row of the desired card, or right after the header row.
func (rc *Reconciler) patchMetrics(cur, want []view.Metric) ([]Op, error) {
	var ops []Op
	anchor := ".card-header-row"

	for _, kind := range model.MetricKinds {
		c, inCur := findMetric(cur, kind)
		w, inWant := findMetric(want, kind)
		sel := metricSelector(kind)

		switch {
		case inCur && !inWant:
			ops = append(ops, Op{Kind: OpRemove, Target: sel})

		case !inCur && inWant:
			html, err := rc.views.Metric(w)
			if err != nil {
				return nil, err
			}
			ops = append(ops, Op{Kind: OpInsert, Target: anchor, Position: AfterEnd, HTML: html})
			if w.Changed {
				ops = append(ops, flash(sel))
			}

		case inCur && inWant:
			rowOps, err := rc.patchMetric(sel, c, w)
			if err != nil {
				return nil, err
			}
			ops = append(ops, rowOps...)
		}

		if inWant {
			anchor = sel
		}
	}
	return ops, nil
}

func (rc *Reconciler) patchMetric(sel string, cur, want view.Metric) ([]Op, error) {
	restructure := cur.Placeholder != want.Placeholder ||
		cur.Label != want.Label ||
		cur.Min != want.Min ||
		cur.Max != want.Max ||
		!reflect.DeepEqual(cur.Warning, want.Warning)

	if restructure {
		html, err := rc.views.Metric(want)
		if err != nil {
			return nil, err
		}
		ops := []Op{{Kind: OpReplace, Target: sel, HTML: html}}
		if want.Changed && cur.Text != want.Text {
			ops = append(ops, flash(sel))
		}
		return ops, nil
	}

	var ops []Op
	if cur.Text != want.Text {
		ops = append(ops,
			Op{Kind: OpText, Target: sel + " .metric-text", Value: want.Text},
			Op{Kind: OpAttr, Target: sel + " .metric-value", Name: "aria-label", Value: want.AriaLabel},
			Op{Kind: OpAttr, Target: sel + " .progress-bar", Name: "aria-valuenow", Value: want.ValueNow},
			Op{Kind: OpAttr, Target: sel, Name: "data-value", Value: want.ValueNow},
		)
		if want.Changed {
			ops = append(ops, flash(sel))
		}
	}
	if cur.Width != want.Width {
		ops = append(ops, Op{Kind: OpWidth, Target: sel + " .progress", Value: want.Width})
	}
	return ops, nil
}

func flash(sel string) Op {
	return Op{Kind: OpFlash, Target: sel + " .metric-value", Name: "changed", Millis: FlashMillis}
}

func metricSelector(kind model.MetricKind) string {
	return ".metric." + string(kind)
}

func findMetric(ms []view.Metric, kind model.MetricKind) (view.Metric, bool) {
	for _, m := range ms {
		if m.Kind == kind {
			return m, true
		}
	}
	return view.Metric{}, false
}
