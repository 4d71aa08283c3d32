package tracker

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestInMemoryStoreRoundTrip(t *testing.T) {
	store := NewInMemoryStore()

	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing doc, got %v", err)
	}

	if err := store.Set("doc", map[string]string{"a": "1"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, err := store.Get("doc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["a"] != "1" {
		t.Fatalf("expected a=1, got %v", decoded)
	}
}

func TestMergeObjectPatchesExistingDocument(t *testing.T) {
	store := NewInMemoryStore()
	if err := store.Set("doc", map[string]any{"keep": "old", "replace": "old"}); err != nil {
		t.Fatalf("seed doc: %v", err)
	}

	merged, err := store.MergeObject("doc", map[string]json.RawMessage{
		"replace": json.RawMessage(`"new"`),
		"added":   json.RawMessage(`"new"`),
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if string(merged["keep"]) != `"old"` {
		t.Fatalf("expected untouched field to survive, got %s", merged["keep"])
	}
	if string(merged["replace"]) != `"new"` || string(merged["added"]) != `"new"` {
		t.Fatalf("unexpected merge result: %v", merged)
	}
}

func TestMergeObjectCreatesMissingDocument(t *testing.T) {
	store := NewInMemoryStore()
	merged, err := store.MergeObject("doc", map[string]json.RawMessage{"a": json.RawMessage(`1`)})
	if err != nil {
		t.Fatalf("merge into missing doc: %v", err)
	}
	if len(merged) != 1 {
		t.Fatalf("expected single-field doc, got %v", merged)
	}
}

func TestMergeObjectIdempotent(t *testing.T) {
	store := NewInMemoryStore()
	if err := store.Set("doc", map[string]any{"base": "v"}); err != nil {
		t.Fatalf("seed doc: %v", err)
	}
	patch := map[string]json.RawMessage{"st": json.RawMessage(`"active"`)}

	first, err := store.MergeObject("doc", patch)
	if err != nil {
		t.Fatalf("first merge: %v", err)
	}
	second, err := store.MergeObject("doc", patch)
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("double merge changed the document: %v vs %v", first, second)
	}
	for k, v := range first {
		if string(second[k]) != string(v) {
			t.Fatalf("double merge changed field %s: %s vs %s", k, v, second[k])
		}
	}
}

func TestDeleteKeysIgnoresUnknownKeys(t *testing.T) {
	store := NewInMemoryStore()
	if err := store.Set("doc", map[string]any{"a": 1, "b": 2}); err != nil {
		t.Fatalf("seed doc: %v", err)
	}
	remaining, err := store.DeleteKeys("doc", []string{"a", "nope"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := remaining["a"]; ok {
		t.Fatalf("expected a to be deleted, got %v", remaining)
	}
	if _, ok := remaining["b"]; !ok {
		t.Fatalf("expected b to survive, got %v", remaining)
	}
}

func TestOpenStoreSchemes(t *testing.T) {
	store, err := OpenStore("")
	if err != nil {
		t.Fatalf("empty dsn: %v", err)
	}
	if store != nil {
		t.Fatalf("expected nil store for empty dsn")
	}

	store, err = OpenStore("memory://")
	if err != nil {
		t.Fatalf("memory dsn: %v", err)
	}
	if store == nil || store.Provider() != "memory" {
		t.Fatalf("expected memory store, got %v", store)
	}

	if _, err := OpenStore("redis://localhost"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestOpenStoreSQLitePath(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore("sqlite://" + dir + "/state.db")
	if err != nil {
		t.Fatalf("sqlite dsn: %v", err)
	}
	defer store.Close()
	if store.Provider() != "sqlite" {
		t.Fatalf("expected sqlite provider, got %s", store.Provider())
	}
}
