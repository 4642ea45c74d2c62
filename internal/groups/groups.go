// Package groups buckets readings into named groups, orders them according to
// the persisted group order and computes the per-group aggregates.
package groups

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
)

// OrderState is the persisted ordering and expansion of groups.
type OrderState interface {
	IsExpanded(name string) bool
	Order() []string
	SetOrder(order []string) error
	// EnsureExpanded marks every name expanded when no expansion state has
	// ever been saved.
	EnsureExpanded(names []string) error
}

type Group struct {
	Name     string
	Readings []model.Reading
	Expanded bool

	// one decimal, nil when no member reports the metric
	AvgTemp  *float64
	AvgHumid *float64

	HasStaleMember      bool
	HasLowBatteryMember bool
}

func (g Group) HasWarning() bool {
	return g.HasStaleMember || g.HasLowBatteryMember
}

// ShowCount is false for the weather group, which always holds one card.
func (g Group) ShowCount() bool {
	return g.Name != model.WeatherGroup
}

// Names returns the card names of the group in display order.
func (g Group) Names() []string {
	names := make([]string, len(g.Readings))
	for i, r := range g.Readings {
		names[i] = r.Name
	}
	return names
}

// Aggregate groups readings and applies the persisted order. The returned
// groups are always usable; a non-nil error only reports that the updated
// order or expansion state could not be saved.
func Aggregate(readings []model.Reading, th model.Thresholds, st OrderState) ([]Group, error) {
	buckets := make(map[string][]model.Reading)
	for _, r := range readings {
		r = r.Normalize()
		buckets[r.Group] = append(buckets[r.Group], r)
	}

	col := collate.New(language.English)
	for _, rs := range buckets {
		sort.SliceStable(rs, func(i, j int) bool {
			if c := col.CompareString(rs[i].DisplayName, rs[j].DisplayName); c != 0 {
				return c < 0
			}
			return rs[i].Name < rs[j].Name
		})
	}

	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	order, changed := ApplyOrder(names, st.Order())
	if changed {
		if err := st.SetOrder(order); err != nil {
			errs = append(errs, fmt.Errorf("save group order: %w", err))
		}
	}
	if err := st.EnsureExpanded(order); err != nil {
		errs = append(errs, fmt.Errorf("save expanded groups: %w", err))
	}

	groups := make([]Group, 0, len(order))
	for _, name := range order {
		g := Group{
			Name:     name,
			Readings: buckets[name],
			Expanded: st.IsExpanded(name),
		}
		g.AvgTemp, g.AvgHumid = averages(g.Readings)
		g.HasStaleMember, g.HasLowBatteryMember = warnings(g.Readings, th)
		groups = append(groups, g)
	}

	if len(errs) > 0 {
		return groups, errs[0]
	}
	return groups, nil
}

// ApplyOrder orders the alphabetically sorted names by the saved order. Known
// groups keep their saved relative order, new groups follow alphabetically.
// changed reports whether the saved order must be updated.
func ApplyOrder(sorted, saved []string) (order []string, changed bool) {
	if len(saved) == 0 {
		return append([]string(nil), sorted...), len(sorted) > 0
	}

	present := make(map[string]bool, len(sorted))
	for _, n := range sorted {
		present[n] = true
	}
	known := make(map[string]bool, len(saved))
	for _, n := range saved {
		known[n] = true
	}

	order = make([]string, 0, len(sorted))
	for _, n := range saved {
		if present[n] {
			order = append(order, n)
		}
	}
	for _, n := range sorted {
		if !known[n] {
			order = append(order, n)
			changed = true
		}
	}
	return order, changed
}

func averages(rs []model.Reading) (*float64, *float64) {
	var tempSum, humidSum decimal.Decimal
	var tempN, humidN int64
	for _, r := range rs {
		if r.Temperature != nil {
			tempSum = tempSum.Add(decimal.NewFromFloat(*r.Temperature))
			tempN++
		}
		if r.Humidity != nil {
			humidSum = humidSum.Add(decimal.NewFromFloat(*r.Humidity))
			humidN++
		}
	}
	return mean(tempSum, tempN), mean(humidSum, humidN)
}

func mean(sum decimal.Decimal, n int64) *float64 {
	if n == 0 {
		return nil
	}
	f, _ := sum.Div(decimal.NewFromInt(n)).Round(1).Float64()
	return &f
}

func warnings(rs []model.Reading, th model.Thresholds) (stale, lowBattery bool) {
	for _, r := range rs {
		if r.IsWeatherStation {
			continue
		}
		if r.Status.IsStale() {
			stale = true
			continue
		}
		if r.Battery != nil && *r.Battery <= th.BatteryLow {
			lowBattery = true
		}
	}
	return stale, lowBattery
}
