package tracker

import (
	"encoding/json"
	"errors"
)

var (
	ErrNotConfigured     = errors.New("document store not configured")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrScopeMismatch     = errors.New("consultant scope mismatch")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUnsupportedAction = errors.New("unsupported action")
)

// Fixed document keys. The suffix is a schema version, not a revision:
// bumping it abandons the old document rather than migrating it.
const (
	DocAuthorOverrides  = "author_overrides_v1"
	DocAuthorsRuntime   = "authors_runtime_v1"
	DocTrackerOverrides = "tracker_overrides_v1"
	DocCallbacks        = "callbacks_v1"
	DocSheetURLs        = "consultant_sheet_urls_v1"
	DocTicketCache      = "fd_cache_v1"
)

// DocumentStore is a key -> JSON value store. Each Set of a single key is
// atomic; there are no cross-key transactions. MergeObject and DeleteKeys
// are read-modify-write: the whole result is computed in memory and written
// with one Set, so a failed merge never partially applies.
type DocumentStore interface {
	Get(key string) (json.RawMessage, error)
	Set(key string, value any) error
	MergeObject(key string, patch map[string]json.RawMessage) (map[string]json.RawMessage, error)
	DeleteKeys(key string, keys []string) (map[string]json.RawMessage, error)
	Provider() string
	Close() error
}

// getObject loads a document and coerces it to an object, treating a
// missing or wrong-shaped document as empty.
func getObject(store DocumentStore, key string) (map[string]json.RawMessage, error) {
	raw, err := store.Get(key)
	if errors.Is(err, ErrNotFound) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return map[string]json.RawMessage{}, nil
	}
	return obj, nil
}

func mergeObject(store DocumentStore, key string, patch map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	base, err := getObject(store, key)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		base[k] = v
	}
	if err := store.Set(key, base); err != nil {
		return nil, err
	}
	return base, nil
}

func deleteObjectKeys(store DocumentStore, key string, keys []string) (map[string]json.RawMessage, error) {
	base, err := getObject(store, key)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		delete(base, k)
	}
	if err := store.Set(key, base); err != nil {
		return nil, err
	}
	return base, nil
}
