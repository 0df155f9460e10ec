// Package sqlite stores persistence slots as rows of a key/value table.
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// DB owns the database handle. Several slots may share one DB.
type DB struct {
	db *sql.DB
}

func Open(dsn string) (*DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite slot: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite slot: open")
	}
	// one writer at a time; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate() error {
	_, err := d.db.Exec(`
CREATE TABLE IF NOT EXISTS slots (
  key TEXT PRIMARY KEY,
  data BLOB NOT NULL,
  updated_at_ms INTEGER NOT NULL
);`)
	return errors.Wrap(err, "sqlite slot: migrate")
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Slot returns the slot stored under key.
func (d *DB) Slot(key string) *Slot {
	return &Slot{db: d.db, key: key}
}

// Keys lists the slot keys present in the database.
func (d *DB) Keys(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT key FROM slots ORDER BY key`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite slot: list keys")
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.Wrap(err, "sqlite slot: scan key")
		}
		keys = append(keys, k)
	}
	return keys, errors.Wrap(rows.Err(), "sqlite slot: list keys")
}

type Slot struct {
	db  *sql.DB
	key string
}

func (s *Slot) Read(ctx context.Context) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM slots WHERE key = ?`, s.key)

	var data []byte
	switch err := row.Scan(&data); {
	case err == nil:
		return data, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	default:
		return nil, errors.Wrapf(err, "sqlite slot: read %s", s.key)
	}
}

func (s *Slot) Write(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO slots (key, data, updated_at_ms) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at_ms = excluded.updated_at_ms`,
		s.key, data, time.Now().UnixMilli())
	return errors.Wrapf(err, "sqlite slot: write %s", s.key)
}
