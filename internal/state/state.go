package state

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
	"github.com/thatsimonsguy/sensor-dashboard/internal/store"
)

const (
	KeyTheme          = "theme"
	KeyLayout         = "layout"
	KeyExpandedGroups = "expandedGroups"
	KeyGroupOrder     = "groupOrder"
)

const DefaultTheme = "dark"

func ValidTheme(theme string) bool {
	return theme == "dark" || theme == "light"
}

// DashboardState is the persisted per-browser state. Every mutation is
// written through to the store before it returns.
type DashboardState struct {
	kv store.KV

	mu             sync.Mutex
	expanded       map[string]bool
	expansionSaved bool
	order          []string
	layout         model.LayoutMode
	theme          string
}

// Load reads the state from kv. Corrupt values are logged and reset to their
// defaults; read failures are returned.
func Load(kv store.KV) (*DashboardState, error) {
	s := &DashboardState{
		kv:       kv,
		expanded: make(map[string]bool),
		layout:   model.LayoutAuto,
		theme:    DefaultTheme,
	}

	var expanded []string
	saved, err := s.loadList(KeyExpandedGroups, &expanded)
	if err != nil {
		return nil, err
	}
	s.expansionSaved = saved
	for _, name := range expanded {
		s.expanded[name] = true
	}

	if _, err := s.loadList(KeyGroupOrder, &s.order); err != nil {
		return nil, err
	}

	if v, ok, err := kv.Get(KeyLayout); err != nil {
		return nil, fmt.Errorf("read %s: %w", KeyLayout, err)
	} else if ok {
		layout, err := model.ParseLayoutMode(v)
		if err != nil {
			log.Warn().Err(err).Str("key", KeyLayout).Msg("Resetting corrupt layout")
			_ = kv.Delete(KeyLayout)
		}
		s.layout = layout
	}

	if v, ok, err := kv.Get(KeyTheme); err != nil {
		return nil, fmt.Errorf("read %s: %w", KeyTheme, err)
	} else if ok {
		if ValidTheme(v) {
			s.theme = v
		} else {
			log.Warn().Str("key", KeyTheme).Str("value", v).Msg("Resetting corrupt theme")
			_ = kv.Delete(KeyTheme)
		}
	}

	return s, nil
}

// loadList decodes a JSON string list. saved reports whether a valid value
// was present.
func (s *DashboardState) loadList(key string, out *[]string) (saved bool, err error) {
	raw, ok, err := s.kv.Get(key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Resetting corrupt persisted state")
		*out = nil
		if err := s.kv.Delete(key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to delete corrupt state")
		}
		return false, nil
	}
	return true, nil
}

func (s *DashboardState) saveList(key string, list []string) error {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	if err := s.kv.Set(key, string(b)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *DashboardState) IsExpanded(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expanded[name]
}

func (s *DashboardState) EnsureExpanded(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expansionSaved || len(names) == 0 {
		return nil
	}
	for _, n := range names {
		s.expanded[n] = true
	}
	s.expansionSaved = true
	return s.saveExpanded()
}

// Toggle flips a group's expansion and returns the new state.
func (s *DashboardState) Toggle(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expanded[name] {
		delete(s.expanded, name)
	} else {
		s.expanded[name] = true
	}
	s.expansionSaved = true
	return s.expanded[name], s.saveExpanded()
}

func (s *DashboardState) saveExpanded() error {
	names := make([]string, 0, len(s.expanded))
	for n := range s.expanded {
		names = append(names, n)
	}
	slices.Sort(names)
	return s.saveList(KeyExpandedGroups, names)
}

func (s *DashboardState) Order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

func (s *DashboardState) SetOrder(order []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = slices.Clone(order)
	return s.saveList(KeyGroupOrder, s.order)
}

// Move places group at index in the saved order, clamping the index. This is
// the persisted outcome of one drag-and-drop gesture.
func (s *DashboardState) Move(group string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := slices.DeleteFunc(slices.Clone(s.order), func(n string) bool { return n == group })
	if index < 0 {
		index = 0
	}
	if index > len(order) {
		index = len(order)
	}
	s.order = slices.Insert(order, index, group)
	return s.saveList(KeyGroupOrder, s.order)
}

func (s *DashboardState) Layout() model.LayoutMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout
}

func (s *DashboardState) SetLayout(layout model.LayoutMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layout = layout
	return s.kv.Set(KeyLayout, string(layout))
}

func (s *DashboardState) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

func (s *DashboardState) SetTheme(theme string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theme = theme
	return s.kv.Set(KeyTheme, theme)
}

// Snapshot is the JSON view of the state served to clients and the debug CLI.
type Snapshot struct {
	Theme          string           `json:"theme"`
	Layout         model.LayoutMode `json:"layout"`
	ExpandedGroups []string         `json:"expandedGroups"`
	GroupOrder     []string         `json:"groupOrder"`
}

func (s *DashboardState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	expanded := make([]string, 0, len(s.expanded))
	for n := range s.expanded {
		expanded = append(expanded, n)
	}
	slices.Sort(expanded)
	order := slices.Clone(s.order)
	if order == nil {
		order = []string{}
	}
	return Snapshot{
		Theme:          s.theme,
		Layout:         s.layout,
		ExpandedGroups: expanded,
		GroupOrder:     order,
	}
}
