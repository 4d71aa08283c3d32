package tracker

import (
	"encoding/json"
	"errors"
	"testing"
)

func dispatchJSON(t *testing.T, store DocumentStore, scope Scope, action, body string) map[string]any {
	t.Helper()
	result, err := Dispatch(store, DefaultRoster(), scope, action, []byte(body))
	if err != nil {
		t.Fatalf("dispatch %s: %v", action, err)
	}
	return result
}

func readDoc[T any](t *testing.T, store DocumentStore, key string) T {
	t.Helper()
	raw, err := store.Get(key)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	var decoded T
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode %s: %v", key, err)
	}
	return decoded
}

func TestDispatchUnsupportedAction(t *testing.T) {
	_, err := Dispatch(NewInMemoryStore(), DefaultRoster(), AdminScope(), "nuke_everything", []byte(`{}`))
	if !errors.Is(err, ErrUnsupportedAction) {
		t.Fatalf("expected ErrUnsupportedAction, got %v", err)
	}
}

func TestDispatchInvalidJSON(t *testing.T) {
	_, err := Dispatch(NewInMemoryStore(), DefaultRoster(), AdminScope(), "health", []byte(`{`))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDispatchHealth(t *testing.T) {
	result := dispatchJSON(t, NewInMemoryStore(), ConsultantScope("Sapna"), "health", `{}`)
	if result["ok"] != true || result["view"] != "Sapna" || result["isAdmin"] != false {
		t.Fatalf("unexpected health result: %v", result)
	}
}

func TestUpsertAuthorOverridesForcesConsultantField(t *testing.T) {
	store := NewInMemoryStore()
	dispatchJSON(t, store, ConsultantScope("Vandana"), "upsert_author_overrides",
		`{"action":"upsert_author_overrides","items":[{"e":"A@X.com","st":"Converted","n":"ignored"}]}`)

	doc := readDoc[map[string]AuthorRecord](t, store, DocAuthorOverrides)
	row, ok := doc["a@x.com"]
	if !ok {
		t.Fatalf("expected normalized email key, got %v", doc)
	}
	if got := recordString(row, "c"); got != "Vandana" {
		t.Fatalf("expected consultant force-set to caller, got %q", got)
	}
	if got := recordString(row, "st"); got != "Converted" {
		t.Fatalf("expected status override, got %q", got)
	}
	if _, ok := row["n"]; ok {
		t.Fatalf("name is not an allowed author override field")
	}
}

func TestUpsertAuthorOverridesScopeMismatchWritesNothing(t *testing.T) {
	store := NewInMemoryStore()
	_, err := Dispatch(store, DefaultRoster(), ConsultantScope("Vandana"), "upsert_author_overrides",
		[]byte(`{"items":[{"e":"a@x.com","st":"Converted"},{"e":"b@x.com","c":"Sapna","st":"Converted"}]}`))
	if !errors.Is(err, ErrScopeMismatch) {
		t.Fatalf("expected ErrScopeMismatch, got %v", err)
	}
	if _, err := store.Get(DocAuthorOverrides); !errors.Is(err, ErrNotFound) {
		t.Fatalf("a rejected payload must not leave a partial write, got %v", err)
	}
}

func TestUpsertAuthorOverridesMergesAcrossCalls(t *testing.T) {
	store := NewInMemoryStore()
	dispatchJSON(t, store, AdminScope(), "upsert_author_overrides",
		`{"items":[{"e":"a@x.com","st":"Converted"}]}`)
	dispatchJSON(t, store, AdminScope(), "upsert_author_overrides",
		`{"items":[{"e":"b@x.com","rm":"call later"}]}`)

	doc := readDoc[map[string]AuthorRecord](t, store, DocAuthorOverrides)
	if len(doc) != 2 {
		t.Fatalf("expected both patches to accumulate, got %v", doc)
	}
}

func TestReplaceAuthorsRuntimeAdminOnly(t *testing.T) {
	store := NewInMemoryStore()
	_, err := Dispatch(store, DefaultRoster(), ConsultantScope("Tannu"), "replace_authors_runtime",
		[]byte(`{"authors":[{"e":"a@x.com"}]}`))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for consultant, got %v", err)
	}

	result := dispatchJSON(t, store, AdminScope(), "replace_authors_runtime",
		`{"authors":[{"e":"A@X.com","n":"Asha","ph":"123"},{"n":"no email, dropped"}]}`)
	if result["count"] != 1 {
		t.Fatalf("expected the email-less record to be dropped, got %v", result)
	}

	doc := readDoc[[]AuthorRecord](t, store, DocAuthorsRuntime)
	if len(doc) != 1 || recordString(doc[0], "e") != "a@x.com" {
		t.Fatalf("unexpected runtime doc: %v", doc)
	}
}

func TestUpsertTrackerOverridesAcceptsBothShapes(t *testing.T) {
	store := NewInMemoryStore()
	dispatchJSON(t, store, AdminScope(), "upsert_tracker_overrides",
		`{"rows":{"a@x.com":{"c":"Sapna","ie":true}}}`)
	dispatchJSON(t, store, AdminScope(), "upsert_tracker_overrides",
		`{"rows":[{"email":"b@x.com","data":{"c":"Tannu"}}]}`)

	doc := readDoc[map[string]TrackerRow](t, store, DocTrackerOverrides)
	if len(doc) != 2 {
		t.Fatalf("expected both shapes to land, got %v", doc)
	}
	if got := recordString(doc["a@x.com"], "c"); got != "Sapna" {
		t.Fatalf("unexpected mapping-shape row: %v", doc["a@x.com"])
	}
	if got := recordString(doc["b@x.com"], "c"); got != "Tannu" {
		t.Fatalf("unexpected list-shape row: %v", doc["b@x.com"])
	}
}

func TestDeleteTrackerOverridesAdminOnly(t *testing.T) {
	store := NewInMemoryStore()
	dispatchJSON(t, store, AdminScope(), "upsert_tracker_overrides",
		`{"rows":{"a@x.com":{"c":"Sapna"},"b@x.com":{"c":"Tannu"}}}`)

	_, err := Dispatch(store, DefaultRoster(), ConsultantScope("Sapna"), "delete_tracker_overrides",
		[]byte(`{"emails":["a@x.com"]}`))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for consultant delete, got %v", err)
	}

	result := dispatchJSON(t, store, AdminScope(), "delete_tracker_overrides",
		`{"emails":["A@X.com","","unknown@x.com"]}`)
	if result["deleted"] != 2 {
		t.Fatalf("expected two non-empty keys processed, got %v", result)
	}
	doc := readDoc[map[string]TrackerRow](t, store, DocTrackerOverrides)
	if _, ok := doc["a@x.com"]; ok {
		t.Fatalf("expected a@x.com deleted, got %v", doc)
	}
	if _, ok := doc["b@x.com"]; !ok {
		t.Fatalf("expected b@x.com to survive, got %v", doc)
	}
}

func TestReplaceCallbacksKeepsOtherConsultantsRows(t *testing.T) {
	store := NewInMemoryStore()
	if err := store.Set(DocCallbacks, []Callback{
		{ID: "v1", AuthorEmail: "a@x.com", Consultant: "Vandana", Status: "upcoming"},
		{ID: "s1", AuthorEmail: "b@x.com", Consultant: "Sapna", Status: "done"},
	}); err != nil {
		t.Fatalf("seed callbacks: %v", err)
	}

	dispatchJSON(t, store, ConsultantScope("Sapna"), "replace_callbacks",
		`{"callbacks":[{"id":"s2","authorEmail":"c@x.com","datetime":"2026-03-01T10:00"}]}`)

	doc := readDoc[[]Callback](t, store, DocCallbacks)
	if len(doc) != 2 {
		t.Fatalf("expected Vandana's row plus Sapna's replacement, got %v", doc)
	}
	byID := map[string]Callback{}
	for _, cb := range doc {
		byID[cb.ID] = cb
	}
	if _, ok := byID["v1"]; !ok {
		t.Fatalf("another consultant's callback was dropped: %v", doc)
	}
	if _, ok := byID["s1"]; ok {
		t.Fatalf("caller's previous callbacks must be replaced: %v", doc)
	}
	replaced := byID["s2"]
	if replaced.Consultant != "Sapna" {
		t.Fatalf("expected consultant force-set, got %q", replaced.Consultant)
	}
	if replaced.Status != "upcoming" {
		t.Fatalf("expected default status, got %q", replaced.Status)
	}
}

func TestReplaceCallbacksRejectsForeignConsultant(t *testing.T) {
	store := NewInMemoryStore()
	_, err := Dispatch(store, DefaultRoster(), ConsultantScope("Sapna"), "replace_callbacks",
		[]byte(`{"callbacks":[{"id":"x","authorEmail":"a@x.com","consultant":"Vandana"}]}`))
	if !errors.Is(err, ErrScopeMismatch) {
		t.Fatalf("expected ErrScopeMismatch, got %v", err)
	}
}

func TestReplaceCallbacksDropsIncompleteRows(t *testing.T) {
	store := NewInMemoryStore()
	result := dispatchJSON(t, store, AdminScope(), "replace_callbacks",
		`{"callbacks":[{"id":"ok","authorEmail":"a@x.com","consultant":"Tannu"},{"id":"no-email"},{"authorEmail":"no-id@x.com"}]}`)
	if result["count"] != 1 {
		t.Fatalf("expected rows without id or email dropped, got %v", result)
	}
}

func TestSetSheetURL(t *testing.T) {
	store := NewInMemoryStore()

	_, err := Dispatch(store, DefaultRoster(), AdminScope(), "set_sheet_url",
		[]byte(`{"consultant":"Nobody","url":"https://sheets/x"}`))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown consultant, got %v", err)
	}

	_, err = Dispatch(store, DefaultRoster(), ConsultantScope("Sapna"), "set_sheet_url",
		[]byte(`{"consultant":"Vandana","url":"https://sheets/v"}`))
	if !errors.Is(err, ErrScopeMismatch) {
		t.Fatalf("expected ErrScopeMismatch, got %v", err)
	}

	dispatchJSON(t, store, ConsultantScope("Sapna"), "set_sheet_url",
		`{"consultant":"Sapna","url":"https://sheets/s"}`)
	dispatchJSON(t, store, AdminScope(), "set_sheet_url",
		`{"consultant":"Vandana","url":"https://sheets/v"}`)

	doc := readDoc[map[string]string](t, store, DocSheetURLs)
	if doc["Sapna"] != "https://sheets/s" || doc["Vandana"] != "https://sheets/v" {
		t.Fatalf("unexpected sheet urls: %v", doc)
	}
}
