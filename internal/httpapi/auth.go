package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/bookleafpub/outreach-tracker/internal/tracker"
)

// isAdmin checks the x-admin-password header against the configured admin
// password. Constant-time compare; an empty header never authenticates.
func (s *Server) isAdmin(r *http.Request) bool {
	supplied := strings.TrimSpace(r.Header.Get("x-admin-password"))
	return tracker.CheckAdminPassword(supplied, s.cfg.AdminPassword)
}

// syncAuthorized gates /fd-sync: Bearer cron secret, ?token= cron secret,
// or the admin header. With no cron secret configured the endpoint stays
// open so setup can be completed incrementally.
func (s *Server) syncAuthorized(r *http.Request) bool {
	secret := s.cfg.CronSecret
	if secret != "" {
		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if auth == "Bearer "+secret {
			return true
		}
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token != "" && secretEqual(token, secret) {
			return true
		}
	}
	if s.isAdmin(r) {
		return true
	}
	return secret == ""
}

// webhookAuthorized gates /fd-webhook via ?token= or the x-webhook-secret
// header. No secret configured means accept all requests.
func (s *Server) webhookAuthorized(r *http.Request) bool {
	secret := s.cfg.WebhookSecret
	if secret == "" {
		return true
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token != "" && secretEqual(token, secret) {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("x-webhook-secret"))
	return header != "" && secretEqual(header, secret)
}

func secretEqual(supplied, configured string) bool {
	return hmac.Equal([]byte(supplied), []byte(configured))
}

// razorpaySignatureValid verifies the hex HMAC-SHA256 body signature.
func razorpaySignatureValid(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
