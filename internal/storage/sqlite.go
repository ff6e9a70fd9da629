// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage holds conversations and messages in memory and persists them.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// sqliteSchemaVersion is the table layout tracked in PRAGMA user_version.
const sqliteSchemaVersion = 2

// SQLiteBackend stores snapshots as JSON blobs in a single SQLite file.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// OpenSQLiteBackend opens or creates the database at path.
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=3000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteBackend{db: db, path: path}, nil
}

// migrateSQLite brings the table layout up to sqliteSchemaVersion.
func migrateSQLite(db *sql.DB) error {
	var v int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= sqliteSchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if v < 1 {
		if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS snapshots (
  conversation_id TEXT PRIMARY KEY,
  data TEXT NOT NULL,
  updated_at_unix_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  data TEXT NOT NULL
);
`); err != nil {
			return err
		}
	}

	// v2: schema version of each blob, for finding stale rows without decoding.
	if v < 2 {
		if _, err := tx.Exec(`ALTER TABLE snapshots ADD COLUMN schema_version INTEGER NOT NULL DEFAULT 0`); err != nil {
			return err
		}
		rows, err := tx.Query(`SELECT conversation_id, data FROM snapshots`)
		if err != nil {
			return err
		}
		versions := map[string]int64{}
		for rows.Next() {
			var id, data string
			if err := rows.Scan(&id, &data); err != nil {
				rows.Close()
				return err
			}
			versions[id] = gjson.Get(data, "schema_version").Int()
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for id, ver := range versions {
			if _, err := tx.Exec(`UPDATE snapshots SET schema_version = ? WHERE conversation_id = ?`, ver, id); err != nil {
				return err
			}
		}
	}

	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, sqliteSchemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Name implements Backend.
func (b *SQLiteBackend) Name() string { return BackendSQLite }

// Path returns the database file.
func (b *SQLiteBackend) Path() string { return b.path }

// LoadAll implements Backend.
func (b *SQLiteBackend) LoadAll(ctx context.Context) (map[string][]byte, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT conversation_id, data FROM snapshots ORDER BY updated_at_unix_ms`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]byte{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		out[id] = []byte(data)
	}
	return out, rows.Err()
}

// Load implements Backend.
func (b *SQLiteBackend) Load(ctx context.Context, conversationID string) ([]byte, error) {
	var data string
	err := b.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE conversation_id = ?`, conversationID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// Save implements Backend.
func (b *SQLiteBackend) Save(ctx context.Context, conversationID string, blob []byte) error {
	if conversationID == "" {
		return ErrInvalidID
	}
	version := gjson.GetBytes(blob, "schema_version").Int()
	_, err := b.db.ExecContext(ctx, `
INSERT INTO snapshots (conversation_id, data, updated_at_unix_ms, schema_version)
VALUES (?, ?, ?, ?)
ON CONFLICT(conversation_id) DO UPDATE SET
  data = excluded.data,
  updated_at_unix_ms = excluded.updated_at_unix_ms,
  schema_version = excluded.schema_version
`, conversationID, string(blob), time.Now().UnixMilli(), version)
	return err
}

// Delete implements Backend.
func (b *SQLiteBackend) Delete(ctx context.Context, conversationID string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM snapshots WHERE conversation_id = ?`, conversationID)
	return err
}

// LoadSettings implements Backend.
func (b *SQLiteBackend) LoadSettings(ctx context.Context) ([]byte, error) {
	var data string
	err := b.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// SaveSettings implements Backend.
func (b *SQLiteBackend) SaveSettings(ctx context.Context, blob []byte) error {
	_, err := b.db.ExecContext(ctx, `
INSERT INTO settings (id, data) VALUES (1, ?)
ON CONFLICT(id) DO UPDATE SET data = excluded.data
`, string(blob))
	return err
}

// Close implements Backend.
func (b *SQLiteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
