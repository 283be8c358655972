package latency

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// PersistSQLite appends samples to a samples(entry_ns, exit_ns) table in
// the SQLite database at path, batched in one transaction. This is the
// supplemental --lat-db sink described in SPEC_FULL.md §4.4.2 — off by
// default, additive to the TSV dump above.
func PersistSQLite(path string, samples [][2]int64) error {
	if len(samples) == 0 {
		return nil
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS samples (entry_ns INTEGER, exit_ns INTEGER)`); err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO samples (entry_ns, exit_ns) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, s := range samples {
		if _, err := stmt.Exec(s[0], s[1]); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	return tx.Commit()
}
