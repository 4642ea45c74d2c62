package groups

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
)

type fakeOrder struct {
	order       []string
	setCalls    int
	expanded    map[string]bool
	hasExpanded bool
	setErr      error
}

func (f *fakeOrder) IsExpanded(name string) bool { return f.expanded[name] }
func (f *fakeOrder) Order() []string             { return f.order }

func (f *fakeOrder) SetOrder(order []string) error {
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	f.order = append([]string(nil), order...)
	return nil
}

func (f *fakeOrder) EnsureExpanded(names []string) error {
	if f.hasExpanded {
		return nil
	}
	f.hasExpanded = true
	if f.expanded == nil {
		f.expanded = make(map[string]bool)
	}
	for _, n := range names {
		f.expanded[n] = true
	}
	return nil
}

func reading(name, group string) model.Reading {
	return model.Reading{Name: name, Group: group, Temperature: model.Float(20)}
}

func groupNames(gs []Group) []string {
	out := make([]string, len(gs))
	for i, g := range gs {
		out[i] = g.Name
	}
	return out
}

func TestAggregate_NoSavedOrderPersistsAlphabetical(t *testing.T) {
	st := &fakeOrder{}
	rs := []model.Reading{reading("b1", "B"), reading("a1", "A"), reading("c1", "C")}

	gs, err := Aggregate(rs, model.DefaultThresholds(), st)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, groupNames(gs))
	assert.Equal(t, []string{"A", "B", "C"}, st.order)
	assert.Equal(t, 1, st.setCalls)
}

func TestAggregate_SavedOrderWithNewGroup(t *testing.T) {
	st := &fakeOrder{order: []string{"C", "A"}, hasExpanded: true}
	rs := []model.Reading{reading("a1", "A"), reading("b1", "B"), reading("c1", "C")}

	gs, err := Aggregate(rs, model.DefaultThresholds(), st)
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "A", "B"}, groupNames(gs))
	assert.Equal(t, []string{"C", "A", "B"}, st.order)
}

func TestAggregate_SavedOrderUnchangedIsNotRewritten(t *testing.T) {
	st := &fakeOrder{order: []string{"C", "Gone", "A"}, hasExpanded: true}
	rs := []model.Reading{reading("a1", "A"), reading("c1", "C")}

	gs, err := Aggregate(rs, model.DefaultThresholds(), st)
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "A"}, groupNames(gs))
	assert.Equal(t, 0, st.setCalls)
}

func TestAggregate_FirstLoadExpandsEverything(t *testing.T) {
	st := &fakeOrder{}
	gs, err := Aggregate([]model.Reading{reading("a1", "A"), reading("b1", "B")}, model.DefaultThresholds(), st)
	require.NoError(t, err)

	for _, g := range gs {
		assert.True(t, g.Expanded, g.Name)
	}
}

func TestAggregate_KeepsCollapsedGroups(t *testing.T) {
	st := &fakeOrder{hasExpanded: true, expanded: map[string]bool{"A": true}}
	gs, err := Aggregate([]model.Reading{reading("a1", "A"), reading("b1", "B")}, model.DefaultThresholds(), st)
	require.NoError(t, err)

	assert.True(t, gs[0].Expanded)
	assert.False(t, gs[1].Expanded)
}

func TestAggregate_CardSorting(t *testing.T) {
	rs := []model.Reading{
		{Name: "z", DisplayName: "bedroom"},
		{Name: "y", DisplayName: "Attic"},
		{Name: "b", DisplayName: "Cellar"},
		{Name: "a", DisplayName: "Cellar"},
	}
	gs, err := Aggregate(rs, model.DefaultThresholds(), &fakeOrder{})
	require.NoError(t, err)

	require.Len(t, gs, 1)
	assert.Equal(t, []string{"y", "z", "a", "b"}, gs[0].Names())
}

func TestAggregate_Averages(t *testing.T) {
	rs := []model.Reading{
		{Name: "a", Temperature: model.Float(20.0), Humidity: model.Float(40)},
		{Name: "b", Temperature: model.Float(21.25)},
		{Name: "c", Battery: model.Float(50)},
	}
	gs, err := Aggregate(rs, model.DefaultThresholds(), &fakeOrder{})
	require.NoError(t, err)

	g := gs[0]
	require.NotNil(t, g.AvgTemp)
	require.NotNil(t, g.AvgHumid)
	assert.Equal(t, 20.6, *g.AvgTemp)
	assert.Equal(t, 40.0, *g.AvgHumid)
}

func TestAggregate_AveragesNilWhenNoneReport(t *testing.T) {
	rs := []model.Reading{{Name: "a", Status: model.StatusNeverSeen}}
	gs, err := Aggregate(rs, model.DefaultThresholds(), &fakeOrder{})
	require.NoError(t, err)

	assert.Nil(t, gs[0].AvgTemp)
	assert.Nil(t, gs[0].AvgHumid)
}

func TestAggregate_WarningFlags(t *testing.T) {
	th := model.DefaultThresholds()
	tests := []struct {
		name       string
		readings   []model.Reading
		stale, low bool
	}{
		{"healthy", []model.Reading{{Name: "a", Battery: model.Float(80)}}, false, false},
		{"low battery", []model.Reading{{Name: "a", Battery: model.Float(5)}}, false, true},
		{"stale wins over battery", []model.Reading{{Name: "a", Battery: model.Float(3), Status: model.StatusStale}}, true, false},
		{"missing", []model.Reading{{Name: "a", Status: model.StatusNeverSeen}}, true, false},
		{"weather station ignored", []model.Reading{{Name: "Outdoor", IsWeatherStation: true, Status: model.StatusStale}}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gs, err := Aggregate(tt.readings, th, &fakeOrder{})
			require.NoError(t, err)
			assert.Equal(t, tt.stale, gs[0].HasStaleMember)
			assert.Equal(t, tt.low, gs[0].HasLowBatteryMember)
			assert.Equal(t, tt.stale || tt.low, gs[0].HasWarning())
		})
	}
}

func TestAggregate_PersistErrorStillReturnsGroups(t *testing.T) {
	st := &fakeOrder{setErr: errors.New("disk full")}
	gs, err := Aggregate([]model.Reading{reading("a1", "A")}, model.DefaultThresholds(), st)

	assert.Error(t, err)
	assert.Equal(t, []string{"A"}, groupNames(gs))
}

func TestShowCount(t *testing.T) {
	assert.True(t, Group{Name: "Upstairs"}.ShowCount())
	assert.False(t, Group{Name: model.WeatherGroup}.ShowCount())
}
