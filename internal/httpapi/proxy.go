package httpapi

import (
	"io"
	"net/http"
	"strings"
)

// Raw passthrough proxies. These exist so the single-page frontend can
// reach the Freshdesk and Razorpay APIs without shipping credentials to
// the browser or fighting CORS; nothing is cached or rewritten.

func (s *Server) handleFreshdeskProxy(w http.ResponseWriter, r *http.Request) {
	subPath := strings.TrimPrefix(r.URL.Path, "/api/fd")
	if subPath == "/config" || subPath == "/config/" {
		writeJSON(w, http.StatusOK, map[string]any{
			"configured": s.fdClient.Configured(),
			"domain":     s.cfg.FreshdeskDomain,
		})
		return
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		if !s.fdClient.Configured() {
			writeError(w, http.StatusUnauthorized, "Missing Authorization header and no server API key configured")
			return
		}
		auth = s.fdClient.AuthorizationHeader()
	}
	s.forwardUpstream(w, r, s.freshdeskProxyBase+subPath, auth)
}

func (s *Server) handleRazorpayProxy(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		writeError(w, http.StatusUnauthorized, "Missing Authorization header")
		return
	}
	subPath := strings.TrimPrefix(r.URL.Path, "/api/rp")
	s.forwardUpstream(w, r, s.razorpayProxyBase+subPath, auth)
}

func (s *Server) forwardUpstream(w http.ResponseWriter, r *http.Request, upstreamURL, auth string) {
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	var body io.Reader
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		raw, ok := s.readRequestBody(w, r)
		if !ok {
			return
		}
		body = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upstream request")
		return
	}
	req.Header.Set("Authorization", auth)
	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	} else if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.proxyClient.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Upstream request failed: "+err.Error())
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
