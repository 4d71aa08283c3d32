package freshdesk

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// SyncMeta travels inside the cache document. Pull-sync fills the paging
// fields; webhook merges only touch LastWebhookAt.
type SyncMeta struct {
	PagesFetched  int    `json:"pagesFetched,omitempty"`
	MaxPages      int    `json:"maxPages,omitempty"`
	Source        string `json:"source,omitempty"`
	LastWebhookAt string `json:"lastWebhookAt,omitempty"`
}

// CachePayload is the versioned ticket snapshot. Tickets are ordered
// newest known update first; entries are never deleted once seen, only
// overwritten by the next pull-sync.
type CachePayload struct {
	OK            bool     `json:"ok"`
	Source        string   `json:"source"`
	Domain        string   `json:"domain"`
	FetchedAt     string   `json:"fetchedAt"`
	TicketCount   int      `json:"ticketCount"`
	AgentMapCount int      `json:"agentMapCount"`
	Meta          SyncMeta `json:"meta"`
	Tickets       []Ticket `json:"tickets"`
}

func nowISO() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

// MergeTicketIntoCache splices one normalized ticket into the snapshot:
// replace in place when the id is already present, otherwise insert at the
// front. A nil cache gets a minimal snapshot created around the ticket.
func MergeTicketIntoCache(cache *CachePayload, ticket Ticket, domain string) *CachePayload {
	if cache == nil {
		cache = &CachePayload{
			OK:     true,
			Source: "freshdesk-webhook",
			Domain: domain,
			Meta:   SyncMeta{Source: "webhook"},
		}
	}
	found := false
	for i := range cache.Tickets {
		if cache.Tickets[i].ID == ticket.ID {
			cache.Tickets[i] = ticket
			found = true
			break
		}
	}
	if !found {
		cache.Tickets = append([]Ticket{ticket}, cache.Tickets...)
	}
	now := nowISO()
	cache.TicketCount = len(cache.Tickets)
	cache.FetchedAt = now
	cache.Meta.LastWebhookAt = now
	return cache
}

// ExtractWebhookTicket pulls a raw ticket out of one of the three webhook
// payload shapes: a direct ticket object, the freshdesk_webhook automation
// wrapper, or a best-effort loose extraction. Returns false when no ticket
// id can be recovered.
func ExtractWebhookTicket(body []byte) (RawTicket, bool) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return RawTicket{}, false
	}

	if wrapped, ok := envelope["freshdesk_webhook"]; ok {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(wrapped, &fields); err != nil {
			return RawTicket{}, false
		}
		return ticketFromLooseFields(fields)
	}

	// A direct ticket object carries id plus at least subject or status.
	var direct RawTicket
	if err := json.Unmarshal(body, &direct); err == nil && direct.ID != 0 {
		if direct.Subject != "" || len(direct.Status) > 0 {
			return direct, true
		}
	}

	return ticketFromLooseFields(envelope)
}

func ticketFromLooseFields(fields map[string]json.RawMessage) (RawTicket, bool) {
	id := firstID(fields, "ticket_id", "id")
	if id == 0 {
		return RawTicket{}, false
	}
	subject := firstString(fields, "ticket_subject", "subject")
	if subject == "" {
		subject = "(No subject)"
	}
	email := firstString(fields, "ticket_requester_email", "requester_email", "email")
	updatedAt := firstString(fields, "ticket_updated_at", "updated_at")
	if updatedAt == "" {
		updatedAt = nowISO()
	}
	ticket := RawTicket{
		ID:        id,
		Subject:   subject,
		Status:    firstRaw(fields, "ticket_status", "status"),
		Requester: &RawRequester{Email: email},
		CreatedAt: firstString(fields, "ticket_created_at", "created_at"),
		UpdatedAt: updatedAt,
	}
	if responder := firstID(fields, "ticket_agent_id", "responder_id"); responder != 0 {
		ticket.ResponderID = &responder
	}
	return ticket, true
}

func firstRaw(fields map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, key := range keys {
		if raw, ok := fields[key]; ok && len(raw) > 0 && string(raw) != "null" {
			return raw
		}
	}
	return nil
}

func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func firstID(fields map[string]json.RawMessage, keys ...string) int64 {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var id int64
		if err := json.Unmarshal(raw, &id); err == nil && id != 0 {
			return id
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if parsed, parseErr := strconv.ParseInt(strings.TrimSpace(s), 10, 64); parseErr == nil && parsed != 0 {
				return parsed
			}
		}
	}
	return 0
}
