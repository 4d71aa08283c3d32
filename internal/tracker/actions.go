package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Scope identifies the caller of a mutating action: admin, or exactly one
// consultant. A consultant scope restricts which rows the action may touch.
type Scope struct {
	Admin      bool
	Consultant string
}

func AdminScope() Scope { return Scope{Admin: true} }

func ConsultantScope(name string) Scope { return Scope{Consultant: name} }

func (s Scope) View() string {
	if s.Admin {
		return ViewAdmin
	}
	return s.Consultant
}

// Action envelope schemas. Validation here only pins the payload shape;
// field-level sanitizing below owns the allow-lists and scope checks.
var actionSchemas = map[string]*jsonschema.Schema{
	"upsert_author_overrides": mustCompileSchema("upsert_author_overrides.json", `{
		"type": "object",
		"properties": {
			"items": {"type": "array", "items": {"type": "object"}}
		}
	}`),
	"replace_authors_runtime": mustCompileSchema("replace_authors_runtime.json", `{
		"type": "object",
		"properties": {
			"authors": {"type": "array", "items": {"type": "object"}}
		},
		"required": ["authors"]
	}`),
	"upsert_tracker_overrides": mustCompileSchema("upsert_tracker_overrides.json", `{
		"type": "object",
		"properties": {
			"rows": {"type": ["object", "array"]}
		}
	}`),
	"delete_tracker_overrides": mustCompileSchema("delete_tracker_overrides.json", `{
		"type": "object",
		"properties": {
			"emails": {"type": "array", "items": {"type": "string"}}
		}
	}`),
	"replace_callbacks": mustCompileSchema("replace_callbacks.json", `{
		"type": "object",
		"properties": {
			"callbacks": {"type": "array", "items": {"type": "object"}}
		},
		"required": ["callbacks"]
	}`),
	"set_sheet_url": mustCompileSchema("set_sheet_url.json", `{
		"type": "object",
		"properties": {
			"consultant": {"type": "string"},
			"url": {"type": "string"}
		},
		"required": ["consultant"]
	}`),
	"health": mustCompileSchema("health.json", `{"type": "object"}`),
}

func mustCompileSchema(name, doc string) *jsonschema.Schema {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, parsed); err != nil {
		panic(err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(err)
	}
	return schema
}

// Dispatch validates and applies one named action against the store.
// Validation runs to completion over the whole payload before anything is
// written, so a scope violation never leaves a partial write behind.
func Dispatch(store DocumentStore, roster Roster, scope Scope, action string, body []byte) (map[string]any, error) {
	action = strings.TrimSpace(action)
	schema, ok := actionSchemas[action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, action)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSON body", ErrInvalidInput)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var envelope struct {
		Items      []map[string]json.RawMessage `json:"items"`
		Authors    []map[string]json.RawMessage `json:"authors"`
		Rows       json.RawMessage              `json:"rows"`
		Emails     []string                     `json:"emails"`
		Callbacks  []map[string]json.RawMessage `json:"callbacks"`
		Consultant string                       `json:"consultant"`
		URL        string                       `json:"url"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON body", ErrInvalidInput)
	}

	switch action {
	case "upsert_author_overrides":
		patch, err := sanitizeAuthorOverrideItems(envelope.Items, scope)
		if err != nil {
			return nil, err
		}
		if _, err := store.MergeObject(DocAuthorOverrides, patchToRaw(patch)); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true, "action": action, "updated": len(patch)}, nil

	case "replace_authors_runtime":
		if !scope.Admin {
			return nil, fmt.Errorf("%w: admin required", ErrUnauthorized)
		}
		cleaned := sanitizeAuthorsRuntime(envelope.Authors)
		if err := store.Set(DocAuthorsRuntime, cleaned); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true, "action": action, "count": len(cleaned)}, nil

	case "upsert_tracker_overrides":
		patch, err := sanitizeTrackerOverrides(envelope.Rows, scope)
		if err != nil {
			return nil, err
		}
		if _, err := store.MergeObject(DocTrackerOverrides, patchToRaw(patch)); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true, "action": action, "updated": len(patch)}, nil

	case "delete_tracker_overrides":
		// Ownership of an override row cannot be verified without
		// re-reading every row, so deletes stay admin-only.
		if !scope.Admin {
			return nil, fmt.Errorf("%w: consultant-scoped delete not allowed", ErrUnauthorized)
		}
		keys := make([]string, 0, len(envelope.Emails))
		for _, raw := range envelope.Emails {
			if email := normalizeEmail(raw); email != "" {
				keys = append(keys, email)
			}
		}
		if _, err := store.DeleteKeys(DocTrackerOverrides, keys); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true, "action": action, "deleted": len(keys)}, nil

	case "replace_callbacks":
		cleaned, err := sanitizeCallbacks(envelope.Callbacks, scope)
		if err != nil {
			return nil, err
		}
		next := cleaned
		if !scope.Admin {
			var current []Callback
			if err := loadDoc(store, DocCallbacks, &current); err != nil {
				return nil, err
			}
			kept := make([]Callback, 0, len(current))
			for _, cb := range current {
				if cb.Consultant != scope.Consultant {
					kept = append(kept, cb)
				}
			}
			next = append(kept, cleaned...)
		}
		if err := store.Set(DocCallbacks, next); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true, "action": action, "count": len(cleaned)}, nil

	case "set_sheet_url":
		consultant := strings.TrimSpace(envelope.Consultant)
		if !roster.IsConsultant(consultant) {
			return nil, fmt.Errorf("%w: invalid consultant", ErrInvalidInput)
		}
		if !scope.Admin && consultant != scope.Consultant {
			return nil, fmt.Errorf("%w: %s", ErrScopeMismatch, consultant)
		}
		url := strings.TrimSpace(envelope.URL)
		raw, _ := json.Marshal(url)
		if _, err := store.MergeObject(DocSheetURLs, map[string]json.RawMessage{consultant: raw}); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true, "action": action, "consultant": consultant}, nil

	case "health":
		return map[string]any{"ok": true, "dbConfigured": true, "isAdmin": scope.Admin, "view": scope.View()}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, action)
}

func sanitizeAuthorOverrideItems(items []map[string]json.RawMessage, scope Scope) (map[string]AuthorRecord, error) {
	patch := map[string]AuthorRecord{}
	for _, item := range items {
		email := normalizeEmail(recordString(item, "e"))
		if email == "" {
			continue
		}
		compact, err := sanitizeOverrideFields(item, authorOverrideFields, scope, email)
		if err != nil {
			return nil, err
		}
		if len(compact) > 0 {
			patch[email] = compact
		}
	}
	return patch, nil
}

func sanitizeTrackerOverrides(rows json.RawMessage, scope Scope) (map[string]TrackerRow, error) {
	patch := map[string]TrackerRow{}
	normalized := normalizeTrackerRows(rows)
	for emailRaw, item := range normalized {
		email := normalizeEmail(emailRaw)
		if email == "" || item == nil {
			continue
		}
		compact, err := sanitizeOverrideFields(item, trackerOverrideFields, scope, email)
		if err != nil {
			return nil, err
		}
		if len(compact) > 0 {
			patch[email] = TrackerRow(compact)
		}
	}
	return patch, nil
}

// normalizeTrackerRows accepts either the mapping shape {email: row} or the
// list shape [{email, data}] and returns a mapping.
func normalizeTrackerRows(rows json.RawMessage) map[string]map[string]json.RawMessage {
	trimmed := bytes.TrimSpace(rows)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '[' {
		var entries []map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil
		}
		normalized := map[string]map[string]json.RawMessage{}
		for _, entry := range entries {
			email := recordString(entry, "email")
			if email == "" {
				email = recordString(entry, "e")
			}
			email = normalizeEmail(email)
			if email == "" {
				continue
			}
			data := entry
			if rawData, ok := entry["data"]; ok {
				var inner map[string]json.RawMessage
				if err := json.Unmarshal(rawData, &inner); err == nil && inner != nil {
					data = inner
				}
			}
			normalized[email] = data
		}
		return normalized
	}
	var mapped map[string]map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &mapped); err != nil {
		return nil
	}
	return mapped
}

// sanitizeOverrideFields keeps only allow-listed fields and enforces the
// consultant-ownership rule: under a consultant scope the "c" field must
// match the scope (or be absent, in which case it is force-set).
func sanitizeOverrideFields(item map[string]json.RawMessage, allowed []string, scope Scope, email string) (map[string]json.RawMessage, error) {
	if !scope.Admin {
		consultant := strings.TrimSpace(recordString(item, "c"))
		if consultant != "" && consultant != scope.Consultant {
			return nil, fmt.Errorf("%w for %s", ErrScopeMismatch, email)
		}
	}
	compact := map[string]json.RawMessage{}
	for _, key := range allowed {
		if v, ok := item[key]; ok {
			compact[key] = v
		}
	}
	if !scope.Admin {
		if _, ok := compact["c"]; !ok {
			raw, _ := json.Marshal(scope.Consultant)
			compact["c"] = raw
		}
	}
	return compact, nil
}

func sanitizeAuthorsRuntime(authors []map[string]json.RawMessage) []AuthorRecord {
	cleaned := make([]AuthorRecord, 0, len(authors))
	for _, a := range authors {
		email := normalizeEmail(recordString(a, "e"))
		if email == "" {
			continue
		}
		raw, _ := json.Marshal(email)
		row := AuthorRecord{"e": raw}
		for _, key := range authorRuntimeFields {
			if v, ok := a[key]; ok {
				row[key] = v
			}
		}
		cleaned = append(cleaned, row)
	}
	return cleaned
}

func sanitizeCallbacks(callbacks []map[string]json.RawMessage, scope Scope) ([]Callback, error) {
	cleaned := make([]Callback, 0, len(callbacks))
	for _, cb := range callbacks {
		item := Callback{
			ID:          strings.TrimSpace(recordString(cb, "id")),
			AuthorEmail: strings.TrimSpace(recordString(cb, "authorEmail")),
			AuthorName:  strings.TrimSpace(recordString(cb, "authorName")),
			Consultant:  strings.TrimSpace(recordString(cb, "consultant")),
			Datetime:    strings.TrimSpace(recordString(cb, "datetime")),
			Notes:       recordString(cb, "notes"),
			Status:      strings.TrimSpace(recordString(cb, "status")),
		}
		if item.Status == "" {
			item.Status = "upcoming"
		}
		if item.ID == "" || item.AuthorEmail == "" {
			continue
		}
		if !scope.Admin {
			if item.Consultant == "" {
				item.Consultant = scope.Consultant
			} else if item.Consultant != scope.Consultant {
				return nil, fmt.Errorf("callback %w", ErrScopeMismatch)
			}
		}
		cleaned = append(cleaned, item)
	}
	return cleaned, nil
}

func patchToRaw[T ~map[string]json.RawMessage](patch map[string]T) map[string]json.RawMessage {
	raw := make(map[string]json.RawMessage, len(patch))
	for key, row := range patch {
		encoded, err := json.Marshal(row)
		if err != nil {
			continue
		}
		raw[key] = encoded
	}
	return raw
}
