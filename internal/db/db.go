package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/marianozunino/gallery/internal/config"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("no value stored")

// DB is the client's durable key/value store.
type DB struct {
	*sql.DB
}

// NewDB creates a new SQLite database connection
func NewDB(config *config.Config) (*DB, error) {
	db, err := sql.Open("sqlite3", config.StatePath)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// Create table if it doesn't exist
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// SetValue stores value under key, replacing any previous value
func (db *DB) SetValue(key, value string) error {
	stmt, err := db.Prepare(`
		INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(key, value)
	return err
}

// GetValue returns the value stored under key or ErrNotFound
func (db *DB) GetValue(key string) (string, error) {
	var value string

	err := db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w for key: %s", ErrNotFound, key)
		}
		return "", err
	}

	return value, nil
}

// DeleteValue removes key. Deleting a missing key is not an error.
func (db *DB) DeleteValue(key string) error {
	stmt, err := db.Prepare("DELETE FROM kv WHERE key = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(key)
	return err
}

// Keys lists every stored key
func (db *DB) Keys() ([]string, error) {
	var keys []string

	rows, err := db.Query("SELECT key FROM kv ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}
