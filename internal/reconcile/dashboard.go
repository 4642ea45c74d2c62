package reconcile

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/thatsimonsguy/sensor-dashboard/internal/groups"
	"github.com/thatsimonsguy/sensor-dashboard/internal/view"
)

// Container is the element holding every group section.
const Container = "#sensors-container"

// Dashboard reconciles the whole container. A change in the ordered group
// names or in any group's ordered card names rebuilds the container; anything
// else is patched group by group and card by card.
func (rc *Reconciler) Dashboard(cur *view.Dashboard, gs []groups.Group, opts view.Options) ([]Op, error) {
	want := view.BuildDashboard(gs, opts)

	if !cur.Rendered || !reflect.DeepEqual(cur.Topology(), want.Topology()) {
		return rc.rebuild(cur, want)
	}

	var ops []Op
	for i := range want.Groups {
		groupOps, err := rc.patchGroup(&cur.Groups[i], want.Groups[i])
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", want.Groups[i].Name, err)
		}
		ops = append(ops, groupOps...)
	}
	return ops, nil
}

func (rc *Reconciler) rebuild(cur *view.Dashboard, want view.Dashboard) ([]Op, error) {
	html, err := rc.views.Groups(want)
	if err != nil {
		return nil, err
	}
	ops := []Op{{Kind: OpRebuild, Target: Container, HTML: html}}
	for _, g := range want.Groups {
		for _, c := range g.Cards {
			for _, m := range c.Metrics {
				if m.Changed {
					op := flash(metricSelector(m.Kind))
					op.Group, op.Card = g.Name, c.Name
					ops = append(ops, op)
				}
			}
		}
	}
	*cur = want.ClearChanged()
	return ops, nil
}

func (rc *Reconciler) patchGroup(cur *view.Group, want view.Group) ([]Op, error) {
	var ops []Op

	statsOps, err := rc.patchStats(cur.Stats, want.Stats)
	if err != nil {
		return nil, err
	}
	ops = append(ops, statsOps...)
	cur.Stats = want.Stats

	if want.ShowCount && cur.Count != want.Count {
		ops = append(ops, Op{Kind: OpText, Target: ".group-count", Value: "[" + strconv.Itoa(want.Count) + "]"})
	}
	cur.Count = want.Count

	if cur.Expanded != want.Expanded {
		ops = append(ops,
			Op{Kind: OpClass, Name: "collapsed", On: !want.Expanded},
			Op{Kind: OpAttr, Target: ".group-header", Name: "aria-expanded", Value: strconv.FormatBool(want.Expanded)},
		)
		if want.Expanded {
			ops = append(ops, Op{Kind: OpRmAttr, Target: ".group-content", Name: "hidden"})
		} else {
			ops = append(ops, Op{Kind: OpAttr, Target: ".group-content", Name: "hidden", Value: "hidden"})
		}
		cur.Expanded = want.Expanded
	}

	rendered := make(map[string]int, len(cur.Cards))
	for i, c := range cur.Cards {
		rendered[c.Name] = i
	}
	for _, w := range want.Cards {
		i, ok := rendered[w.Name]
		if !ok {
			return nil, fmt.Errorf("card %q: %w", w.Name, ErrNotRendered)
		}
		cardOps, err := rc.patchCard(&cur.Cards[i], w)
		if err != nil {
			return nil, fmt.Errorf("card %q: %w", w.Name, err)
		}
		ops = append(ops, cardOps...)
	}

	return scope(ops, want.Name, ""), nil
}

func (rc *Reconciler) patchStats(cur, want view.Stats) ([]Op, error) {
	if (cur.Temp == "") != (want.Temp == "") || (cur.Humid == "") != (want.Humid == "") {
		html, err := rc.views.Stats(want)
		if err != nil {
			return nil, err
		}
		return []Op{{Kind: OpReplace, Target: ".group-stats", HTML: html}}, nil
	}

	var ops []Op
	if cur.Temp != want.Temp {
		ops = append(ops, Op{Kind: OpText, Target: ".group-stat-temp .group-stat-text", Value: want.Temp})
	}
	if cur.Humid != want.Humid {
		ops = append(ops, Op{Kind: OpText, Target: ".group-stat-humid .group-stat-text", Value: want.Humid})
	}
	if cur.Warning != want.Warning {
		if want.Warning {
			html, err := rc.views.GroupWarning()
			if err != nil {
				return nil, err
			}
			ops = append(ops, Op{Kind: OpInsert, Target: ".group-stats", Position: BeforeEnd, HTML: html})
		} else {
			ops = append(ops, Op{Kind: OpRemove, Target: ".group-stat-warning"})
		}
	}
	return ops, nil
}
