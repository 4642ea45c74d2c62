package db

import (
	"database/sql"
	"fmt"
	"io"
)

func withDB(dbPath string, fn func(*sql.DB) error) error {
	db, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

// ListSessionsCLI prints every browser session that has saved state.
func ListSessionsCLI(dbPath string, w io.Writer) error {
	return withDB(dbPath, func(db *sql.DB) error {
		sessions, err := ListSessions(db)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			fmt.Fprintln(w, s)
		}
		return nil
	})
}

// ShowSessionCLI prints the raw keys and values of one session.
func ShowSessionCLI(dbPath, session string, w io.Writer) error {
	return withDB(dbPath, func(db *sql.DB) error {
		keys, err := ListKeys(db, session+"/")
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return fmt.Errorf("no state for session %s", session)
		}
		for _, k := range keys {
			v, _, err := GetValue(db, k)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s = %s\n", k, v)
		}
		return nil
	})
}

func SetSessionValueCLI(dbPath, session, key, value string) error {
	return withDB(dbPath, func(db *sql.DB) error {
		return SetValue(db, session+"/"+key, value)
	})
}

// ResetSessionCLI drops all saved state of a session.
func ResetSessionCLI(dbPath, session string, w io.Writer) error {
	return withDB(dbPath, func(db *sql.DB) error {
		tx, err := StartTransaction(db)
		if err != nil {
			return err
		}
		n, err := DeletePrefixWithTx(tx, session+"/")
		if err != nil {
			RollbackTransaction(tx)
			return err
		}
		if err := CommitTransaction(tx); err != nil {
			return err
		}
		fmt.Fprintf(w, "Removed %d keys for session %s\n", n, session)
		return nil
	})
}
