package tracker

import (
	"encoding/json"
	"sync"
)

// InMemoryStore keeps documents in process memory. Used for tests and for
// running without persistence configured at all.
type InMemoryStore struct {
	mu   sync.Mutex
	docs map[string]json.RawMessage
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: map[string]json.RawMessage{}}
}

func (s *InMemoryStore) Get(key string) (json.RawMessage, error) {
	if s == nil {
		return nil, ErrNotConfigured
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	clone := make(json.RawMessage, len(raw))
	copy(clone, raw)
	return clone, nil
}

func (s *InMemoryStore) Set(key string, value any) error {
	if s == nil {
		return ErrNotConfigured
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = payload
	return nil
}

func (s *InMemoryStore) MergeObject(key string, patch map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	return mergeObject(s, key, patch)
}

func (s *InMemoryStore) DeleteKeys(key string, keys []string) (map[string]json.RawMessage, error) {
	return deleteObjectKeys(s, key, keys)
}

func (s *InMemoryStore) Provider() string { return "memory" }

func (s *InMemoryStore) Close() error { return nil }
