package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// GetValue returns the value stored under key.
func GetValue(db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// ListKeys returns every key starting with prefix, sorted.
func ListKeys(db *sql.DB, prefix string) ([]string, error) {
	rows, err := db.Query(`SELECT key FROM kv WHERE instr(key, ?) = 1 ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListSessions returns the distinct namespaces of session-scoped keys.
func ListSessions(db *sql.DB) ([]string, error) {
	keys, err := ListKeys(db, "")
	if err != nil {
		return nil, err
	}
	var sessions []string
	seen := make(map[string]bool)
	for _, k := range keys {
		ns, _, ok := strings.Cut(k, "/")
		if !ok || seen[ns] {
			continue
		}
		seen[ns] = true
		sessions = append(sessions, ns)
	}
	return sessions, nil
}

// KV adapts the kv table to the dashboard's key-value store.
type KV struct {
	db *sql.DB
}

func NewKV(db *sql.DB) *KV {
	return &KV{db: db}
}

func (k *KV) Get(key string) (string, bool, error) { return GetValue(k.db, key) }
func (k *KV) Set(key, value string) error          { return SetValue(k.db, key, value) }
func (k *KV) Delete(key string) error              { return DeleteValue(k.db, key) }
func (k *KV) Keys(prefix string) ([]string, error) { return ListKeys(k.db, prefix) }
