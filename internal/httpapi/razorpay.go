package httpapi

import (
	"encoding/json"
	"net/http"
)

// handleRazorpayWebhook verifies and records payment events. The body is
// never parsed beyond the event name; the buffer exists so an operator can
// confirm deliveries are arriving without digging through provider logs.
func (s *Server) handleRazorpayWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":         true,
			"configured": s.cfg.RazorpaySecret != "",
			"recent":     s.recentEvents.Recent(10),
		})
		return
	case http.MethodPost:
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.cfg.RazorpaySecret == "" {
		writeError(w, http.StatusInternalServerError, "Razorpay webhook secret not configured")
		return
	}
	signature := r.Header.Get("X-Razorpay-Signature")
	if signature == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Razorpay-Signature header")
		return
	}
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	if !razorpaySignatureValid(body, signature, s.cfg.RazorpaySecret) {
		writeError(w, http.StatusUnauthorized, "Invalid webhook signature")
		return
	}

	var payload struct {
		Event string `json:"event"`
	}
	_ = json.Unmarshal(body, &payload)
	eventName := payload.Event
	if eventName == "" {
		eventName = "unknown"
	}

	recorded := s.recentEvents.Append(eventName, len(body))
	s.logger.Printf("razorpay event %s id=%s bytes=%d", recorded.Event, recorded.ID, len(body))
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"event": recorded.Event,
	})
}
