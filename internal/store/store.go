package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// KV is the string key-value persistence the dashboard state writes through.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Lister is implemented by stores that can enumerate keys by prefix.
type Lister interface {
	Keys(prefix string) ([]string, error)
}

type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return matchingKeys(m.data, prefix), nil
}

// File keeps every key in one JSON document, rewritten atomically on each
// change.
type File struct {
	path string
	mu   sync.Mutex
	data map[string]string
}

// NewFile loads path if it exists.
func NewFile(path string) (*File, error) {
	f := &File{path: path, data: make(map[string]string)}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&f.data); err != nil {
		return fmt.Errorf("decode %s: %w", f.path, err)
	}
	if f.data == nil {
		f.data = make(map[string]string)
	}
	return nil
}

func (f *File) save() error {
	tmpPath := f.path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(f.data); err != nil {
		file.Close()
		return err
	}
	file.Sync()
	file.Close()

	return os.Rename(tmpPath, f.path)
}

func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return f.save()
}

func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return nil
	}
	delete(f.data, key)
	return f.save()
}

func (f *File) Keys(prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return matchingKeys(f.data, prefix), nil
}

// Prefixed scopes a store to one namespace, one per browser session.
type Prefixed struct {
	kv     KV
	prefix string
}

func NewPrefixed(kv KV, namespace string) *Prefixed {
	return &Prefixed{kv: kv, prefix: namespace + "/"}
}

func (p *Prefixed) Get(key string) (string, bool, error) { return p.kv.Get(p.prefix + key) }
func (p *Prefixed) Set(key, value string) error          { return p.kv.Set(p.prefix+key, value) }
func (p *Prefixed) Delete(key string) error              { return p.kv.Delete(p.prefix + key) }

func matchingKeys(data map[string]string, prefix string) []string {
	var keys []string
	for k := range data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Overlay reads through to a base store but keeps its own writes in memory.
// It backs sessions that are looked at but not yet kept.
type Overlay struct {
	base KV

	mu      sync.Mutex
	local   map[string]string
	deleted map[string]bool
}

func NewOverlay(base KV) *Overlay {
	return &Overlay{base: base, local: make(map[string]string), deleted: make(map[string]bool)}
}

func (o *Overlay) Get(key string) (string, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if v, ok := o.local[key]; ok {
		return v, true, nil
	}
	if o.deleted[key] {
		return "", false, nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Set(key, value string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.local[key] = value
	delete(o.deleted, key)
	return nil
}

func (o *Overlay) Delete(key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.local, key)
	o.deleted[key] = true
	return nil
}
