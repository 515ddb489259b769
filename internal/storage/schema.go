package storage

import (
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database.
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}

		creators := []func(*sql.Tx) error{
			createFilesTable,
			createFunctionsTable,
			createImportEdgesTable,
			createTodoItemsTable,
			createCommitsTable,
			createCommitFileChangesTable,
			createIndexMetaTable,
			createIndexRunsTable,
		}
		for _, create := range creators {
			if err := create(tx); err != nil {
				return err
			}
		}

		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Database schema initialized", map[string]interface{}{
			"version": currentSchemaVersion,
		})
		return nil
	})
}

// runMigrations brings an existing database up to the current schema version.
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		db.logger.Debug("Database schema is up to date", map[string]interface{}{
			"version": version,
		})
		return nil
	}
	if version == 0 {
		// schema_version table missing: treat as a fresh database
		return db.initializeSchema()
	}

	db.logger.Info("Running database migrations", map[string]interface{}{
		"from_version": version,
		"to_version":   currentSchemaVersion,
	})

	// Add migration steps here as the schema evolves
	return nil
}

func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// createFilesTable creates the files table, one row per indexed file.
// Degraded files keep their row with zero syntax facts.
func createFilesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			path TEXT PRIMARY KEY,
			language TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			line_count INTEGER NOT NULL,
			fingerprint TEXT NOT NULL,
			mod_time TEXT NOT NULL,
			degraded INTEGER NOT NULL DEFAULT 0,
			indexed_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create files table: %w", err)
	}

	_, err = tx.Exec("CREATE INDEX IF NOT EXISTS idx_files_language ON files(language)")
	return err
}

func createFunctionsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS functions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_path TEXT NOT NULL,
			name TEXT NOT NULL,
			signature TEXT NOT NULL,
			docstring TEXT NOT NULL DEFAULT '',
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,

			UNIQUE(file_path, name, start_line)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create functions table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_functions_name ON functions(name)",
		"CREATE INDEX IF NOT EXISTS idx_functions_file_path ON functions(file_path)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func createImportEdgesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS import_edges (
			source_file TEXT NOT NULL,
			target_file TEXT NOT NULL DEFAULT '',
			raw_text TEXT NOT NULL,

			UNIQUE(source_file, raw_text)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create import_edges table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_import_edges_source ON import_edges(source_file)",
		"CREATE INDEX IF NOT EXISTS idx_import_edges_target ON import_edges(target_file)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func createTodoItemsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS todo_items (
			file_path TEXT NOT NULL,
			line_number INTEGER NOT NULL,
			marker TEXT NOT NULL,
			text TEXT NOT NULL DEFAULT '',

			UNIQUE(file_path, line_number)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create todo_items table: %w", err)
	}

	_, err = tx.Exec("CREATE INDEX IF NOT EXISTS idx_todo_items_file_path ON todo_items(file_path)")
	return err
}

func createCommitsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS commits (
			hash TEXT PRIMARY KEY,
			author TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			message TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create commits table: %w", err)
	}

	_, err = tx.Exec("CREATE INDEX IF NOT EXISTS idx_commits_timestamp ON commits(timestamp)")
	return err
}

func createCommitFileChangesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS commit_file_changes (
			commit_hash TEXT NOT NULL,
			file_path TEXT NOT NULL,
			change_kind TEXT NOT NULL CHECK(change_kind IN ('added', 'modified', 'deleted')),
			summary TEXT NOT NULL DEFAULT '',

			UNIQUE(commit_hash, file_path),
			FOREIGN KEY (commit_hash) REFERENCES commits(hash) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create commit_file_changes table: %w", err)
	}

	_, err = tx.Exec("CREATE INDEX IF NOT EXISTS idx_commit_file_changes_path ON commit_file_changes(file_path)")
	return err
}

// createIndexMetaTable creates the key/value table for harvest cursors and
// other index bookkeeping.
func createIndexMetaTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS index_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	return err
}

func createIndexRunsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS index_runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			files_indexed INTEGER NOT NULL,
			files_skipped INTEGER NOT NULL,
			files_deleted INTEGER NOT NULL,
			files_degraded INTEGER NOT NULL,
			commits_harvested INTEGER NOT NULL
		)
	`)
	return err
}
