// Package storage persists indexed facts in a SQLite database under
// .devmind/ at the project root.
//
// All fact mutations for a single file happen inside one transaction, so a
// crash mid-index leaves the previous generation of facts intact.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	devminderrors "devmind/internal/errors"
	"devmind/internal/logging"
)

// DB wraps the SQLite connection with transaction helpers.
type DB struct {
	conn   *sql.DB
	logger *logging.Logger
	dbPath string
}

// Open opens or creates the index database at <projectRoot>/.devmind/devmind.db.
// A new database gets the full schema; an existing one is migrated forward.
func Open(projectRoot string, logger *logging.Logger) (*DB, error) {
	devmindDir := filepath.Join(projectRoot, ".devmind")
	if err := os.MkdirAll(devmindDir, 0755); err != nil {
		return nil, devminderrors.New(devminderrors.StorageUnavailable,
			"failed to create .devmind directory", err)
	}

	dbPath := filepath.Join(devmindDir, "devmind.db")
	dbExists := fileExists(dbPath)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, devminderrors.New(devminderrors.StorageUnavailable,
			"failed to open database", err)
	}

	// Pragmas for concurrency and reliability
	pragmas := []string{
		"PRAGMA journal_mode=WAL",    // readers don't block the writer
		"PRAGMA synchronous=NORMAL",  // balance between safety and performance
		"PRAGMA foreign_keys=ON",     // enforce commit -> change references
		"PRAGMA busy_timeout=5000",   // wait up to 5 seconds on lock
		"PRAGMA temp_store=MEMORY",   // use memory for temp tables
		"PRAGMA cache_size=-32000",   // 32MB cache
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, devminderrors.New(devminderrors.StorageUnavailable,
				"failed to set pragma", err)
		}
	}

	db := &DB{
		conn:   conn,
		logger: logger,
		dbPath: dbPath,
	}

	if !dbExists {
		logger.Info("Creating new index database", map[string]interface{}{
			"path": dbPath,
		})
		if err := db.initializeSchema(); err != nil {
			conn.Close()
			return nil, devminderrors.New(devminderrors.StorageCorrupt,
				"failed to initialize schema", err)
		}
	} else {
		if err := db.runMigrations(); err != nil {
			conn.Close()
			return nil, devminderrors.New(devminderrors.StorageCorrupt,
				"failed to run migrations", err)
		}
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the on-disk location of the database file.
func (db *DB) Path() string {
	return db.dbPath
}

// WithTx executes fn inside a transaction, rolling back on error or panic.
func (db *DB) WithTx(fn func(*sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("failed to rollback transaction", map[string]interface{}{
				"error":          err.Error(),
				"rollback_error": rbErr.Error(),
			})
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Exec executes a statement without returning rows.
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
