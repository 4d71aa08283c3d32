package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/bookleafpub/outreach-tracker/internal/freshdesk"
	"github.com/bookleafpub/outreach-tracker/internal/tracker"
)

type ServerConfig struct {
	AdminPassword   string
	CronSecret      string
	WebhookSecret   string
	RazorpaySecret  string
	ReassignCutoff  string
	FreshdeskDomain string
	FreshdeskAPIKey string
	SyncMaxPages    int
	MaxBodyBytes    int64
}

type Server struct {
	store        tracker.DocumentStore
	seeds        *tracker.SeedProvider
	roster       tracker.Roster
	fdClient     *freshdesk.Client
	syncer       *freshdesk.Syncer
	cfg          ServerConfig
	recentEvents *eventBuffer
	logger       tracker.Logger
	proxyClient  *http.Client

	// Overridable upstream bases for the raw passthrough proxies.
	freshdeskProxyBase string
	razorpayProxyBase  string
}

func NewServer(store tracker.DocumentStore, seeds *tracker.SeedProvider, roster tracker.Roster, cfg ServerConfig) *Server {
	if cfg.AdminPassword == "" {
		cfg.AdminPassword = tracker.DefaultAdminPassword
	}
	if cfg.ReassignCutoff == "" {
		cfg.ReassignCutoff = "2026-02-17"
	}
	if cfg.FreshdeskDomain == "" {
		cfg.FreshdeskDomain = freshdesk.DefaultDomain
	}
	if cfg.SyncMaxPages <= 0 {
		cfg.SyncMaxPages = freshdesk.DefaultMaxPages
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	logger := log.Default()
	client := freshdesk.NewClient(cfg.FreshdeskDomain, cfg.FreshdeskAPIKey, nil)
	return &Server{
		store:              store,
		seeds:              seeds,
		roster:             roster,
		fdClient:           client,
		syncer:             freshdesk.NewSyncer(client, roster, cfg.FreshdeskDomain, logger),
		cfg:                cfg,
		recentEvents:       newEventBuffer(),
		logger:             logger,
		proxyClient:        &http.Client{},
		freshdeskProxyBase: "https://" + cfg.FreshdeskDomain + "/api/v2",
		razorpayProxyBase:  "https://api.razorpay.com/v1",
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/data":
		s.withCORS(w, r, "GET, OPTIONS", "Content-Type, x-admin-password", s.handleData)
	case path == "/state":
		s.withCORS(w, r, "GET, POST, OPTIONS", "Content-Type, x-admin-password", s.handleState)
	case path == "/fd-cache":
		s.withCORS(w, r, "GET, OPTIONS", "Content-Type, x-admin-password", s.handleTicketCache)
	case path == "/fd-sync":
		s.withCORS(w, r, "GET, POST, OPTIONS", "Content-Type, Authorization, x-admin-password", s.handleTicketSync)
	case path == "/fd-webhook":
		s.withCORS(w, r, "GET, POST, OPTIONS", "Content-Type, x-webhook-secret", s.handleTicketWebhook)
	case path == "/razorpay-webhook":
		s.withCORS(w, r, "GET, POST, OPTIONS", "Content-Type, X-Razorpay-Signature", s.handleRazorpayWebhook)
	case strings.HasPrefix(path, "/api/fd"):
		s.withCORS(w, r, "GET, PUT, POST, OPTIONS", "Authorization, Content-Type", s.handleFreshdeskProxy)
	case strings.HasPrefix(path, "/api/rp"):
		s.withCORS(w, r, "GET, POST, OPTIONS", "Authorization, Content-Type", s.handleRazorpayProxy)
	default:
		w.Header().Set("Access-Control-Allow-Origin", "*")
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) withCORS(w http.ResponseWriter, r *http.Request, methods, headers string, next func(http.ResponseWriter, *http.Request)) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", headers)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	next(w, r)
}

// handleData serves the merged bootstrap dataset scoped to the view.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	query := r.URL.Query()
	kind := strings.TrimSpace(query.Get("kind"))
	if kind == "" {
		kind = "bootstrap"
	}
	view := strings.TrimSpace(query.Get("view"))
	if view == "" {
		view = tracker.ViewAdmin
	}
	if kind != "bootstrap" {
		writeError(w, http.StatusBadRequest, "Unsupported kind")
		return
	}
	if !s.roster.IsValidView(view) {
		writeError(w, http.StatusBadRequest, "Invalid view")
		return
	}

	seed := s.seeds.Seed()
	state, err := tracker.LoadRuntimeState(s.store)
	if err != nil {
		// Bootstrap degrades to seed-only data when the store is down.
		s.logger.Printf("runtime state unavailable, serving seed only: %v", err)
		state, _ = tracker.LoadRuntimeState(nil)
	}

	authors := tracker.MergeAuthors(seed.Authors, state)
	trackerMap := tracker.MergeTracker(seed.Tracker, state.TrackerOverrides)
	counts := tracker.TrackerCounts(trackerMap)

	if view == tracker.ViewAdmin {
		if !s.isAdmin(r) {
			writeError(w, http.StatusUnauthorized, "Invalid admin password")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"scope":                tracker.ScopeAdmin,
			"view":                 view,
			"authors":              authors,
			"tracker":              trackerMap,
			"trackerCounts":        counts,
			"reassignCutoff":       s.cfg.ReassignCutoff,
			"callbacks":            state.Callbacks,
			"consultantSheetUrls":  state.SheetURLs,
			"dbPersistence":        state.DB,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scope":               tracker.ScopeConsultant,
		"view":                view,
		"authors":             tracker.FilterAuthorsForView(authors, view),
		// Tracker stage detail is never exposed on consultant links.
		"tracker":             map[string]tracker.TrackerRow{},
		"trackerCounts":       counts,
		"reassignCutoff":      s.cfg.ReassignCutoff,
		"callbacks":           tracker.FilterCallbacksForView(state.Callbacks, view),
		"consultantSheetUrls": tracker.SheetURLsForView(state.SheetURLs, view),
		"dbPersistence":       state.DB,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleStateRead(w, r)
	case http.MethodPost:
		s.handleStateWrite(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleStateRead(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":      "Database not configured",
			"configured": false,
		})
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
	state, err := tracker.LoadRuntimeState(s.store)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	if view == tracker.ViewAdmin {
		if !s.isAdmin(r) {
			writeError(w, http.StatusUnauthorized, "Invalid admin password")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":                  true,
			"db":                  state.DB,
			"authorOverrides":     state.AuthorOverrides,
			"authorsRuntime":      state.AuthorsRuntime,
			"trackerOverrides":    state.TrackerOverrides,
			"callbacks":           state.Callbacks,
			"consultantSheetUrls": state.SheetURLs,
		})
		return
	}

	filtered := tracker.FilterStateForView(state, view)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                  true,
		"db":                  filtered.DB,
		"authorOverrides":     filtered.AuthorOverrides,
		"trackerOverrides":    filtered.TrackerOverrides,
		"callbacks":           filtered.Callbacks,
		"consultantSheetUrls": filtered.SheetURLs,
	})
}

func (s *Server) handleStateWrite(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":      "Database not configured",
			"configured": false,
		})
		return
	}
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	var envelope struct {
		Action string `json:"action"`
		View   string `json:"view"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &envelope); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
	}

	scope, ok := s.resolveWriteScope(r, envelope.View)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	result, err := tracker.Dispatch(s.store, s.roster, scope, envelope.Action, body)
	if err != nil {
		switch {
		case errors.Is(err, tracker.ErrUnauthorized):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, tracker.ErrUnsupportedAction):
			writeError(w, http.StatusBadRequest, "Unsupported action")
		case errors.Is(err, tracker.ErrScopeMismatch), errors.Is(err, tracker.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			// Anything else is a store connectivity failure.
			writeError(w, http.StatusServiceUnavailable, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// resolveWriteScope decides who is calling a mutating endpoint: admin via
// header, or a consultant named in the view query param / body field.
func (s *Server) resolveWriteScope(r *http.Request, bodyView string) (tracker.Scope, bool) {
	if s.isAdmin(r) {
		return tracker.AdminScope(), true
	}
	view := strings.TrimSpace(r.URL.Query().Get("view"))
	if view == "" {
		view = strings.TrimSpace(bodyView)
	}
	if s.roster.IsConsultant(view) {
		return tracker.ConsultantScope(view), true
	}
	return tracker.Scope{}, false
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func parseBoundedInt(raw string, fallback, min, max int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if parsed < min {
		return min
	}
	if parsed > max {
		return max
	}
	return parsed
}
