package tracker

import (
	"encoding/json"
	"testing"
)

func rawString(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}

func TestLoadRuntimeStateNilStore(t *testing.T) {
	state, err := LoadRuntimeState(nil)
	if err != nil {
		t.Fatalf("nil store: %v", err)
	}
	if state.DB.Configured {
		t.Fatalf("expected unconfigured DB status")
	}
	if state.AuthorOverrides == nil || state.TrackerOverrides == nil || state.Callbacks == nil || state.SheetURLs == nil {
		t.Fatalf("expected non-nil empty collections, got %+v", state)
	}
}

func TestLoadRuntimeStateCoercesWrongShapes(t *testing.T) {
	store := NewInMemoryStore()
	// A list where an object is expected must read as empty, not fail.
	if err := store.Set(DocAuthorOverrides, []string{"oops"}); err != nil {
		t.Fatalf("seed bad doc: %v", err)
	}
	state, err := LoadRuntimeState(store)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !state.DB.Configured || state.DB.Provider != "memory" {
		t.Fatalf("unexpected db status: %+v", state.DB)
	}
	if len(state.AuthorOverrides) != 0 {
		t.Fatalf("expected wrong-shaped doc to coerce to empty, got %v", state.AuthorOverrides)
	}
}

func TestMergeAuthorsAppliesFieldPatches(t *testing.T) {
	seed := []AuthorRecord{
		{"e": rawString("a@x.com"), "n": rawString("Asha"), "c": rawString("Vandana"), "st": rawString("New")},
		{"e": rawString("b@x.com"), "n": rawString("Bo")},
	}
	state := emptyRuntimeState()
	state.AuthorOverrides = map[string]AuthorRecord{
		"a@x.com": {"st": rawString("Converted"), "rm": rawString("paid in full")},
		// Overrides never create records for unknown emails.
		"ghost@x.com": {"st": rawString("Converted")},
	}

	merged := MergeAuthors(seed, state)
	if len(merged) != 2 {
		t.Fatalf("expected 2 records, got %d", len(merged))
	}
	if got := recordString(merged[0], "st"); got != "Converted" {
		t.Fatalf("expected patched status, got %q", got)
	}
	if got := recordString(merged[0], "n"); got != "Asha" {
		t.Fatalf("expected unpatched name to survive, got %q", got)
	}
	if got := recordString(merged[0], "rm"); got != "paid in full" {
		t.Fatalf("expected remark from override, got %q", got)
	}
	// Seed must not be mutated by the merge.
	if got := recordString(seed[0], "st"); got != "New" {
		t.Fatalf("seed record mutated: st=%q", got)
	}
}

func TestMergeAuthorsRuntimeReplacementWins(t *testing.T) {
	seed := []AuthorRecord{{"e": rawString("a@x.com"), "n": rawString("Asha")}}
	state := emptyRuntimeState()
	state.AuthorsRuntime = []AuthorRecord{
		{"e": rawString("z@x.com"), "n": rawString("Zara")},
	}
	state.AuthorOverrides = map[string]AuthorRecord{
		"z@x.com": {"st": rawString("Callback")},
	}

	merged := MergeAuthors(seed, state)
	if len(merged) != 1 {
		t.Fatalf("expected runtime list to replace seed, got %d records", len(merged))
	}
	if got := recordString(merged[0], "e"); got != "z@x.com" {
		t.Fatalf("expected runtime record, got %q", got)
	}
	if got := recordString(merged[0], "st"); got != "Callback" {
		t.Fatalf("expected override applied on top of runtime list, got %q", got)
	}
}

func TestMergeAuthorsDropsDisallowedOverrideFields(t *testing.T) {
	seed := []AuthorRecord{{"e": rawString("a@x.com"), "n": rawString("Asha")}}
	state := emptyRuntimeState()
	state.AuthorOverrides = map[string]AuthorRecord{
		"a@x.com": {"n": rawString("Hacked"), "st": rawString("Converted")},
	}
	merged := MergeAuthors(seed, state)
	if got := recordString(merged[0], "n"); got != "Asha" {
		t.Fatalf("name is not an overridable author field, got %q", got)
	}
	if got := recordString(merged[0], "st"); got != "Converted" {
		t.Fatalf("expected allowed field to apply, got %q", got)
	}
}

func TestMergeTrackerIntroducesNewKeys(t *testing.T) {
	seed := map[string]TrackerRow{
		"a@x.com": {"n": rawString("Asha"), "c": rawString("Vandana")},
	}
	overrides := map[string]TrackerRow{
		"a@x.com":   {"c": rawString("Sapna")},
		"NEW@x.com": {"n": rawString("Noor"), "c": rawString("Tannu")},
	}

	merged := MergeTracker(seed, overrides)
	if len(merged) != 2 {
		t.Fatalf("expected override to introduce new key, got %d rows", len(merged))
	}
	if got := recordString(merged["a@x.com"], "c"); got != "Sapna" {
		t.Fatalf("expected reassignment to apply, got %q", got)
	}
	if got := recordString(merged["a@x.com"], "n"); got != "Asha" {
		t.Fatalf("expected unpatched field to survive, got %q", got)
	}
	if _, ok := merged["new@x.com"]; !ok {
		t.Fatalf("expected override email to be normalized, got keys %v", merged)
	}
}

func TestTrackerCounts(t *testing.T) {
	rows := map[string]TrackerRow{
		"a@x.com": {"c": rawString("Vandana")},
		"b@x.com": {"c": rawString("Vandana")},
		"c@x.com": {"c": rawString("Sapna")},
		"d@x.com": {},
	}
	counts := TrackerCounts(rows)
	if counts["Vandana"] != 2 || counts["Sapna"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if _, ok := counts[""]; ok {
		t.Fatalf("unassigned rows must not be counted, got %v", counts)
	}
}
