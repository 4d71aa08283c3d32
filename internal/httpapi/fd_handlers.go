package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bookleafpub/outreach-tracker/internal/freshdesk"
	"github.com/bookleafpub/outreach-tracker/internal/tracker"
)

// handleTicketCache serves the cached Freshdesk snapshot, filtered to the
// requesting view. It never talks to Freshdesk itself.
func (s *Server) handleTicketCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	view := strings.TrimSpace(r.URL.Query().Get("view"))
	if view == "" {
		view = tracker.ViewAdmin
	}
	if !s.roster.IsValidView(view) {
		writeError(w, http.StatusBadRequest, "Invalid view")
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":           "Cache store not configured",
			"configured":      false,
			"store":           "none",
			"supportedStores": tracker.SupportedStores,
		})
		return
	}
	scope := tracker.ScopeConsultant
	if view == tracker.ViewAdmin {
		if !s.isAdmin(r) {
			writeError(w, http.StatusUnauthorized, "Invalid admin password")
			return
		}
		scope = tracker.ScopeAdmin
	}

	raw, err := s.store.Get(tracker.DocTicketCache)
	if errors.Is(err, tracker.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No cached Freshdesk snapshot yet")
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	var cache freshdesk.CachePayload
	if err := json.Unmarshal(raw, &cache); err != nil {
		writeError(w, http.StatusInternalServerError, "Corrupt ticket cache document")
		return
	}

	tickets := freshdesk.FilterTicketsForView(cache.Tickets, view)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                 true,
		"scope":              scope,
		"view":               view,
		"fetchedAt":          cache.FetchedAt,
		"ticketCount":        len(tickets),
		"totalCachedTickets": len(cache.Tickets),
		"meta":               cache.Meta,
		"tickets":            tickets,
	})
}

// handleTicketSync runs a pull-sync against Freshdesk and stores the
// resulting snapshot. ?status=1 reports configuration state without
// syncing; the trigger itself accepts GET or POST so plain cron schedulers
// can call it either way.
func (s *Server) handleTicketSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if r.URL.Query().Get("status") == "1" {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":                  true,
			"freshdeskConfigured": s.fdClient.Configured(),
			"storeConfigured":     s.store != nil,
			"domain":              s.cfg.FreshdeskDomain,
			"defaultMaxPages":     s.cfg.SyncMaxPages,
		})
		return
	}

	if !s.syncAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":           "Cache store not configured",
			"configured":      false,
			"store":           "none",
			"supportedStores": tracker.SupportedStores,
		})
		return
	}
	if !s.fdClient.Configured() {
		writeError(w, http.StatusInternalServerError, "Freshdesk API key not configured")
		return
	}

	maxPages := parseBoundedInt(r.URL.Query().Get("maxPages"), s.cfg.SyncMaxPages, 1, freshdesk.MaxPagesLimit)

	cache, err := s.SyncTickets(r.Context(), maxPages)
	if err != nil {
		var apiErr *freshdesk.APIError
		if errors.As(err, &apiErr) {
			body := map[string]any{"error": apiErr.Error(), "detail": apiErr.Detail}
			if apiErr.RetryAfter > 0 {
				body["retryAfter"] = apiErr.RetryAfter
			}
			writeJSON(w, apiErr.Status, body)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"ticketCount":   cache.TicketCount,
		"fetchedAt":     cache.FetchedAt,
		"meta":          cache.Meta,
		"agentMapCount": cache.AgentMapCount,
	})
}

// SyncTickets pulls the current ticket pages from Freshdesk, matches them
// against the merged author roster, and stores the snapshot. It is shared
// by the HTTP trigger and the background cron loop.
func (s *Server) SyncTickets(ctx context.Context, maxPages int) (freshdesk.CachePayload, error) {
	if s.store == nil {
		return freshdesk.CachePayload{}, tracker.ErrNotConfigured
	}
	seed := s.seeds.Seed()
	state, err := tracker.LoadRuntimeState(s.store)
	if err != nil {
		s.logger.Printf("ticket sync: runtime state unavailable, matching against seed only: %v", err)
		state, _ = tracker.LoadRuntimeState(nil)
	}
	index := freshdesk.BuildAuthorIndex(tracker.MergeAuthors(seed.Authors, state))

	cache, err := s.syncer.BuildCachePayload(ctx, index, maxPages)
	if err != nil {
		return freshdesk.CachePayload{}, err
	}
	if err := s.store.Set(tracker.DocTicketCache, cache); err != nil {
		return freshdesk.CachePayload{}, err
	}
	return cache, nil
}

// handleTicketWebhook merges a single ticket pushed by a Freshdesk
// automation rule into the cached snapshot.
func (s *Server) handleTicketWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":              true,
			"endpoint":        "freshdesk-webhook",
			"secretrequired": s.cfg.WebhookSecret != "",
			"storeConfigured": s.store != nil,
		})
		return
	case http.MethodPost:
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if !s.webhookAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":           "Cache store not configured",
			"configured":      false,
			"store":           "none",
			"supportedStores": tracker.SupportedStores,
		})
		return
	}
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		writeError(w, http.StatusBadRequest, "Empty webhook body")
		return
	}
	rawTicket, ok := freshdesk.ExtractWebhookTicket(body)
	if !ok {
		writeError(w, http.StatusBadRequest, "Webhook payload did not contain a recognizable ticket")
		return
	}

	seed := s.seeds.Seed()
	state, err := tracker.LoadRuntimeState(s.store)
	if err != nil {
		state, _ = tracker.LoadRuntimeState(nil)
	}
	index := freshdesk.BuildAuthorIndex(tracker.MergeAuthors(seed.Authors, state))
	// Webhook pushes carry no agent roster; assignee mapping waits for the
	// next pull-sync.
	normalized := freshdesk.NormalizeTickets([]freshdesk.RawTicket{rawTicket}, index, nil)
	if len(normalized) == 0 {
		writeError(w, http.StatusBadRequest, "Webhook payload did not contain a recognizable ticket")
		return
	}
	ticket := normalized[0]

	var cache *freshdesk.CachePayload
	raw, err := s.store.Get(tracker.DocTicketCache)
	if err == nil {
		var existing freshdesk.CachePayload
		if json.Unmarshal(raw, &existing) == nil {
			cache = &existing
		}
	} else if !errors.Is(err, tracker.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	merged := freshdesk.MergeTicketIntoCache(cache, ticket, s.cfg.FreshdeskDomain)
	if err := s.store.Set(tracker.DocTicketCache, merged); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                 true,
		"ticketId":           ticket.ID,
		"action":             "merged",
		"totalCachedTickets": len(merged.Tickets),
		"updatedAt":          merged.Meta.LastWebhookAt,
	})
}
