package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// Open opens the SQLite state database at path and applies the schema.
// ":memory:" is accepted for tests.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway, and an in-memory database only
	// exists on the connection that created it
	db.SetMaxOpenConns(1)

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Msg("State database ready")
	return db, nil
}

func InitSchema(db *sql.DB) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(schema); err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("failed to create kv table: %w", err)
	}
	return CommitTransaction(tx)
}
