package tracker

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v3"
)

// BadgerStore backs the document store with an embedded Badger database.
type BadgerStore struct {
	path string

	initOnce sync.Once
	initErr  error
	db       *badger.DB
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	return &BadgerStore{path: path}, nil
}

func (s *BadgerStore) Get(key string) (json.RawMessage, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var result []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(result), nil
}

func (s *BadgerStore) Set(key string, value any) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), payload)
	})
}

func (s *BadgerStore) MergeObject(key string, patch map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	return mergeObject(s, key, patch)
}

func (s *BadgerStore) DeleteKeys(key string, keys []string) (map[string]json.RawMessage, error) {
	return deleteObjectKeys(s, key, keys)
}

func (s *BadgerStore) Provider() string { return "badger" }

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) ensureReady() error {
	if s == nil {
		return ErrNotConfigured
	}
	s.initOnce.Do(func() {
		opts := badger.DefaultOptions(s.path).WithLogger(nil)
		db, err := badger.Open(opts)
		if err != nil {
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}
