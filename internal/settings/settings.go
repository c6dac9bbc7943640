// Package settings is a sqlite-backed flat key/value store. Entries are
// loaded once, edits stage in memory, and Save flushes the dirty keys in a
// single transaction. A single session owns the store for its lifetime.
package settings

import (
	"database/sql"
	"fmt"
)

// Store implements the profile.Store contract over the settings table.
type Store struct {
	db     *sql.DB
	values map[string]string
	dirty  map[string]struct{}
}

// Open loads every settings row into memory.
func Open(db *sql.DB) (*Store, error) {
	rows, err := db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}

	return &Store{
		db:     db,
		values: values,
		dirty:  make(map[string]struct{}),
	}, nil
}

// Get returns the staged or persisted value for key.
func (s *Store) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stages a value. Nothing reaches the database until Save.
func (s *Store) Set(key, value string) {
	if existing, ok := s.values[key]; ok && existing == value {
		return
	}
	s.values[key] = value
	s.dirty[key] = struct{}{}
}

// Save flushes all staged entries in one transaction. With nothing staged
// it is a no-op.
func (s *Store) Save() error {
	if len(s.dirty) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin settings transaction: %w", err)
	}

	for key := range s.dirty {
		if _, err := tx.Exec(`
			INSERT INTO settings (key, value)
			VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, key, s.values[key]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert setting %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings transaction: %w", err)
	}

	s.dirty = make(map[string]struct{})
	return nil
}
