// Package store persists generated thumbnails in a small SQLite database so
// they survive restarts. The cache is keyed by path and mtime; a modified
// file naturally misses and gets regenerated.
package store

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/underlay-sh/underlay/internal/debug"
)

// DB is the thumbnail cache. A DB that failed to open degrades to a no-op:
// every lookup misses and every store is dropped.
type DB struct {
	conn *sql.DB
}

// NewDB creates an unopened cache handle.
func NewDB() *DB {
	return &DB{}
}

// DefaultPath returns the cache location: ~/.cache/underlay/thumbs.db
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "underlay", "thumbs.db")
}

// Open initializes the database connection and schema.
func (d *DB) Open(dbPath string) error {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}

	// Performance Tuning
	// WAL mode allows simultaneous readers and writers
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return err
	}
	// Synchronous NORMAL is safe against app crashes, faster than FULL
	if _, err := db.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		return err
	}

	query := `
	CREATE TABLE IF NOT EXISTS thumbnails (
		path  TEXT PRIMARY KEY,
		mtime INTEGER NOT NULL,
		png   BLOB NOT NULL
	);
	`
	if _, err := db.Exec(query); err != nil {
		return err
	}

	d.conn = db
	return nil
}

// GetThumbnail returns the cached PNG for a path if the stored mtime still
// matches. A stale or missing entry is a miss.
func (d *DB) GetThumbnail(path string, mtime int64) ([]byte, bool) {
	if d.conn == nil {
		return nil, false
	}

	var storedMtime int64
	var png []byte
	err := d.conn.QueryRow(
		"SELECT mtime, png FROM thumbnails WHERE path = ?", path,
	).Scan(&storedMtime, &png)
	if err != nil {
		if err != sql.ErrNoRows {
			debug.Log(debug.STORE, "thumbnail lookup for %s failed: %v", path, err)
		}
		return nil, false
	}

	if storedMtime != mtime {
		debug.Log(debug.STORE, "thumbnail for %s is stale (mtime %d != %d)", path, storedMtime, mtime)
		return nil, false
	}

	return png, true
}

// PutThumbnail stores or replaces the cached PNG for a path. Failures are
// logged only; the cache is an optimization, not a source of truth.
func (d *DB) PutThumbnail(path string, mtime int64, png []byte) {
	if d.conn == nil {
		return
	}

	_, err := d.conn.Exec(
		"INSERT INTO thumbnails (path, mtime, png) VALUES (?, ?, ?) "+
			"ON CONFLICT(path) DO UPDATE SET mtime = excluded.mtime, png = excluded.png",
		path, mtime, png,
	)
	if err != nil {
		debug.Log(debug.STORE, "thumbnail store for %s failed: %v", path, err)
	}
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
