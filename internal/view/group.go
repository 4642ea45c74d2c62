package view

import (
	"github.com/thatsimonsguy/sensor-dashboard/internal/groups"
	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
)

const GroupWarningTitle = "Missing, stale or low battery devices"

// Options carries the per-session inputs of a render pass.
type Options struct {
	Layout        model.LayoutMode
	ViewportWidth int
	Thresholds    model.Thresholds
	Previous      map[string]model.PreviousValues
}

type Stats struct {
	Temp    string
	Humid   string
	Warning bool
}

type Group struct {
	Name      string
	Expanded  bool
	ShowCount bool
	Count     int
	Stats     Stats
	Cards     []Card
}

// Dashboard is the rendered container: every group with its cards. The zero
// value stands for a container that holds no group markup, such as the
// initial page or the error card.
type Dashboard struct {
	Rendered bool
	Groups   []Group
}

// Topology lists group names, each followed by its card names.
func (d Dashboard) Topology() [][]string {
	out := make([][]string, len(d.Groups))
	for i, g := range d.Groups {
		names := make([]string, 0, len(g.Cards)+1)
		names = append(names, g.Name)
		for _, c := range g.Cards {
			names = append(names, c.Name)
		}
		out[i] = names
	}
	return out
}

func (d Dashboard) ClearChanged() Dashboard {
	out := Dashboard{Rendered: d.Rendered, Groups: make([]Group, len(d.Groups))}
	for i, g := range d.Groups {
		cards := make([]Card, len(g.Cards))
		for j, c := range g.Cards {
			cards[j] = c.ClearChanged()
		}
		g.Cards = cards
		out.Groups[i] = g
	}
	return out
}

func BuildStats(g groups.Group) Stats {
	s := Stats{Warning: g.HasWarning()}
	if g.AvgTemp != nil {
		s.Temp = FormatOneDecimal(*g.AvgTemp) + "°C"
	}
	if g.AvgHumid != nil {
		s.Humid = FormatOneDecimal(*g.AvgHumid) + "%"
	}
	return s
}

func BuildGroup(g groups.Group, opts Options) Group {
	out := Group{
		Name:      g.Name,
		Expanded:  g.Expanded,
		ShowCount: g.ShowCount(),
		Count:     len(g.Readings),
		Stats:     BuildStats(g),
		Cards:     make([]Card, 0, len(g.Readings)),
	}
	for _, r := range g.Readings {
		ctx := Derive(r, opts.Layout, opts.ViewportWidth, opts.Thresholds)
		out.Cards = append(out.Cards, BuildCard(r, ctx, opts.Previous[r.Name], opts.Thresholds))
	}
	return out
}

func BuildDashboard(gs []groups.Group, opts Options) Dashboard {
	d := Dashboard{Rendered: true, Groups: make([]Group, 0, len(gs))}
	for _, g := range gs {
		d.Groups = append(d.Groups, BuildGroup(g, opts))
	}
	return d
}
