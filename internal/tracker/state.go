package tracker

import (
	"encoding/json"
	"errors"
)

// Field allow-lists per document type. Unknown fields in a patch are
// silently dropped; the allow-list is the write schema.
var (
	authorOverrideFields  = []string{"c", "st", "rm", "ie", "ar", "fu", "my", "fg", "am", "pp", "ce"}
	trackerOverrideFields = []string{"c", "n", "ie", "ar", "fu", "my", "fg", "am", "pp", "ce", "rm", "st"}
	authorRuntimeFields   = []string{"n", "ph", "pk", "pl", "dt", "c", "st", "ie", "ar", "fu", "my", "fg", "am", "pp", "ce", "rm"}
)

type DBStatus struct {
	Configured bool   `json:"configured"`
	Provider   string `json:"provider,omitempty"`
}

type Callback struct {
	ID          string `json:"id"`
	AuthorEmail string `json:"authorEmail"`
	AuthorName  string `json:"authorName"`
	Consultant  string `json:"consultant"`
	Datetime    string `json:"datetime"`
	Notes       string `json:"notes"`
	Status      string `json:"status"`
}

// RuntimeState is everything the document store contributes on top of the
// seed dataset.
type RuntimeState struct {
	DB               DBStatus                `json:"db"`
	AuthorOverrides  map[string]AuthorRecord `json:"authorOverrides"`
	AuthorsRuntime   []AuthorRecord          `json:"authorsRuntime"`
	TrackerOverrides map[string]TrackerRow   `json:"trackerOverrides"`
	Callbacks        []Callback              `json:"callbacks"`
	SheetURLs        map[string]string       `json:"consultantSheetUrls"`
}

func emptyRuntimeState() RuntimeState {
	return RuntimeState{
		AuthorOverrides:  map[string]AuthorRecord{},
		TrackerOverrides: map[string]TrackerRow{},
		Callbacks:        []Callback{},
		SheetURLs:        map[string]string{},
	}
}

// LoadRuntimeState reads the five runtime documents. Wrong-shaped documents
// are coerced to their empty form rather than failing the whole read; only
// store connectivity errors propagate. A nil store yields the empty state
// with DB.Configured=false.
func LoadRuntimeState(store DocumentStore) (RuntimeState, error) {
	state := emptyRuntimeState()
	if store == nil {
		return state, nil
	}
	state.DB = DBStatus{Configured: true, Provider: store.Provider()}

	if err := loadDoc(store, DocAuthorOverrides, &state.AuthorOverrides); err != nil {
		return RuntimeState{}, err
	}
	if err := loadDoc(store, DocAuthorsRuntime, &state.AuthorsRuntime); err != nil {
		return RuntimeState{}, err
	}
	if err := loadDoc(store, DocTrackerOverrides, &state.TrackerOverrides); err != nil {
		return RuntimeState{}, err
	}
	if err := loadDoc(store, DocCallbacks, &state.Callbacks); err != nil {
		return RuntimeState{}, err
	}
	if err := loadDoc(store, DocSheetURLs, &state.SheetURLs); err != nil {
		return RuntimeState{}, err
	}

	if state.AuthorOverrides == nil {
		state.AuthorOverrides = map[string]AuthorRecord{}
	}
	if state.TrackerOverrides == nil {
		state.TrackerOverrides = map[string]TrackerRow{}
	}
	if state.Callbacks == nil {
		state.Callbacks = []Callback{}
	}
	if state.SheetURLs == nil {
		state.SheetURLs = map[string]string{}
	}
	return state, nil
}

func loadDoc(store DocumentStore, key string, dst any) error {
	raw, err := store.Get(key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	// Shape mismatch falls back to the zero value, same as a missing doc.
	_ = json.Unmarshal(raw, dst)
	return nil
}

// MergeAuthors layers the runtime state onto the seed author list. A
// non-empty wholesale replacement wins over the seed entirely; field
// patches then apply per email. Override entries for unknown emails never
// create records.
func MergeAuthors(seed []AuthorRecord, state RuntimeState) []AuthorRecord {
	base := seed
	if len(state.AuthorsRuntime) > 0 {
		base = state.AuthorsRuntime
	}
	if len(state.AuthorOverrides) == 0 {
		return base
	}
	merged := make([]AuthorRecord, 0, len(base))
	for _, rec := range base {
		email := normalizeEmail(recordString(rec, "e"))
		ov, ok := state.AuthorOverrides[email]
		if email == "" || !ok {
			merged = append(merged, rec)
			continue
		}
		row := cloneRecord(rec)
		for _, key := range authorOverrideFields {
			if v, present := ov[key]; present {
				row[key] = v
			}
		}
		merged = append(merged, row)
	}
	return merged
}

// MergeTracker applies per-key field patches onto the seed tracker map.
// Unlike author overrides, a tracker override may introduce a new key.
func MergeTracker(seed map[string]TrackerRow, overrides map[string]TrackerRow) map[string]TrackerRow {
	merged := make(map[string]TrackerRow, len(seed))
	for email, row := range seed {
		merged[email] = row
	}
	for emailRaw, row := range overrides {
		email := normalizeEmail(emailRaw)
		if email == "" || row == nil {
			continue
		}
		next := cloneRow(merged[email])
		for _, key := range trackerOverrideFields {
			if v, present := row[key]; present {
				next[key] = v
			}
		}
		merged[email] = next
	}
	return merged
}

// TrackerCounts counts rows per non-empty consultant assignment.
func TrackerCounts(tracker map[string]TrackerRow) map[string]int {
	counts := map[string]int{}
	for _, row := range tracker {
		consultant := recordString(row, "c")
		if consultant == "" {
			continue
		}
		counts[consultant]++
	}
	return counts
}

func cloneRecord(rec AuthorRecord) AuthorRecord {
	clone := make(AuthorRecord, len(rec))
	for k, v := range rec {
		clone[k] = v
	}
	return clone
}

func cloneRow(row TrackerRow) TrackerRow {
	clone := make(TrackerRow, len(row))
	for k, v := range row {
		clone[k] = v
	}
	return clone
}
