package tracker

import "crypto/subtle"

const (
	ViewAdmin = "admin"

	// Fallback used when no admin password is configured, kept for local
	// continuity with existing deployments.
	DefaultAdminPassword = "bookleaf2025"
)

// ScopeAdmin/ScopeConsultant are the response discriminators.
const (
	ScopeAdmin      = "admin"
	ScopeConsultant = "consultant"
)

// CheckAdminPassword compares the supplied secret against the configured
// one in constant time. An empty supplied value never authenticates.
func CheckAdminPassword(supplied, configured string) bool {
	if supplied == "" || configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(configured)) == 1
}

// FilterAuthorsForView trims the merged author list to the caller's scope.
func FilterAuthorsForView(authors []AuthorRecord, view string) []AuthorRecord {
	if view == ViewAdmin {
		return authors
	}
	filtered := make([]AuthorRecord, 0)
	for _, rec := range authors {
		if recordString(rec, "c") == view {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}

func FilterCallbacksForView(callbacks []Callback, view string) []Callback {
	if view == ViewAdmin {
		return callbacks
	}
	filtered := make([]Callback, 0)
	for _, cb := range callbacks {
		if cb.Consultant == view {
			filtered = append(filtered, cb)
		}
	}
	return filtered
}

// SheetURLsForView returns the full map for admin and the caller's single
// entry otherwise (present but empty when unset).
func SheetURLsForView(urls map[string]string, view string) map[string]string {
	if view == ViewAdmin {
		if urls == nil {
			return map[string]string{}
		}
		return urls
	}
	return map[string]string{view: urls[view]}
}

// FilterStateForView trims a runtime-state read to the caller's scope:
// override rows whose consultant assignment matches the view, the view's
// callbacks and the view's sheet URL. Admin sees everything.
func FilterStateForView(state RuntimeState, view string) RuntimeState {
	if view == ViewAdmin {
		return state
	}
	filtered := emptyRuntimeState()
	filtered.DB = state.DB
	for email, ov := range state.AuthorOverrides {
		if recordString(ov, "c") == view {
			filtered.AuthorOverrides[email] = ov
		}
	}
	for email, row := range state.TrackerOverrides {
		if recordString(row, "c") == view {
			filtered.TrackerOverrides[email] = row
		}
	}
	filtered.Callbacks = FilterCallbacksForView(state.Callbacks, view)
	filtered.SheetURLs = SheetURLsForView(state.SheetURLs, view)
	return filtered
}
