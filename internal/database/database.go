package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the run history store
type DB struct {
	conn *sql.DB
	path string
}

// Counts are the row totals of the history tables
type Counts struct {
	Runs         int64
	Calibrations int64
	Triggers     int64
}

// dsn turns on foreign keys and a 5 s busy timeout
func dsn(path string) string {
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", "5000")
	return path + "?" + q.Encode()
}

// Open opens the history file, creating its directory if needed
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}
	return &DB{conn: conn, path: path}, nil
}

// OpenAndMigrate opens the history and brings its schema up to date
func OpenAndMigrate(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the history file path
func (db *DB) Path() string {
	return db.path
}

// inTx runs fn in a transaction, rolling back when it fails
func (db *DB) inTx(fn func(*sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Version returns the applied schema version, 0 for a new file
func (db *DB) Version() (int, error) {
	return db.getCurrentVersion()
}

// Counts totals the history tables
func (db *DB) Counts() (Counts, error) {
	var c Counts
	err := db.conn.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM runs),
			(SELECT COUNT(*) FROM calibrations),
			(SELECT COUNT(*) FROM triggers)
	`).Scan(&c.Runs, &c.Calibrations, &c.Triggers)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count history: %w", err)
	}
	return c, nil
}
