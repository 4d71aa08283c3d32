package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore backs the document store with a local SQLite file. Suitable
// for single-node deployments where running Postgres is overkill.
type SQLiteStore struct {
	path   string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	return &SQLiteStore{path: path, openDB: sql.Open}, nil
}

func (s *SQLiteStore) Get(key string) (json.RawMessage, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM app_documents WHERE key = ?", key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(payload), nil
}

func (s *SQLiteStore) Set(key string, value any) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_documents (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key)
		DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, string(payload))
	return err
}

func (s *SQLiteStore) MergeObject(key string, patch map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	return mergeObject(s, key, patch)
}

func (s *SQLiteStore) DeleteKeys(key string, keys []string) (map[string]json.RawMessage, error) {
	return deleteObjectKeys(s, key, keys)
}

func (s *SQLiteStore) Provider() string { return "sqlite" }

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) ensureReady() error {
	if s == nil {
		return ErrNotConfigured
	}
	s.initOnce.Do(func() {
		if dir := filepath.Dir(s.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				s.initErr = err
				return
			}
		}
		db, err := s.openDB("sqlite3", s.path+"?_journal_mode=WAL")
		if err != nil {
			s.initErr = err
			return
		}
		// Single writer avoids database-locked errors under concurrency.
		db.SetMaxOpenConns(1)

		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()
		if _, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS app_documents (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}
