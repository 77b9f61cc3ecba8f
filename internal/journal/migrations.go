package journal

import (
	"database/sql"
	"errors"
	"fmt"
)

const schemaVersion = 2

// migrate brings an existing database up to schemaVersion. Version 1
// journals predate the content column.
func (j *Journal) migrate() error {
	var version sql.NullInt64
	if err := j.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking migration version: %w", err)
	}
	if version.Int64 >= schemaVersion {
		return nil
	}

	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var column string
	err = tx.QueryRow(`SELECT name FROM pragma_table_info('snapshots') WHERE name = 'content'`).Scan(&column)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.Exec(`ALTER TABLE snapshots ADD COLUMN content TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("adding content column: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("inspecting snapshots table: %w", err)
	}

	if _, err := tx.Exec(`INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)`, schemaVersion); err != nil {
		return fmt.Errorf("setting migration version: %w", err)
	}
	return tx.Commit()
}
