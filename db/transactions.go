package db

import (
	"database/sql"
	"fmt"
	"time"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func SetValueWithTx(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func DeleteValueWithTx(tx *sql.Tx, key string) error {
	if _, err := tx.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefixWithTx removes every key starting with prefix and returns how
// many were removed.
func DeletePrefixWithTx(tx *sql.Tx, prefix string) (int64, error) {
	res, err := tx.Exec(`DELETE FROM kv WHERE instr(key, ?) = 1`, prefix)
	if err != nil {
		return 0, fmt.Errorf("delete prefix %s: %w", prefix, err)
	}
	return res.RowsAffected()
}

func SetValue(db *sql.DB, key, value string) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	if err := SetValueWithTx(tx, key, value); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}

func DeleteValue(db *sql.DB, key string) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	if err := DeleteValueWithTx(tx, key); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}
