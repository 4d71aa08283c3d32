package freshdesk

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/bookleafpub/outreach-tracker/internal/tracker"
)

// Numeric status codes the helpdesk uses.
var statusLabels = map[int]string{
	2: "Open",
	3: "Pending",
	4: "Resolved",
	5: "Closed",
}

// Ticket is the normalized record stored in the cache snapshot.
type Ticket struct {
	ID                int64  `json:"id"`
	Subject           string `json:"subject"`
	RequesterEmail    string `json:"requesterEmail"`
	MatchedAuthor     string `json:"matchedAuthor"`
	MatchedConsultant string `json:"matchedConsultant"`
	CurrentAssignee   *int64 `json:"currentAssignee"`
	Status            string `json:"status"`
	StatusCode        int    `json:"statusCode"`
	IsMatched         bool   `json:"isMatched"`
	NeedsReassign     bool   `json:"needsReassign"`
	CreatedAt         string `json:"createdAt"`
	UpdatedAt         string `json:"updatedAt"`
}

// AuthorInfo is the per-email slice of the seed roster the normalizer
// cross-references tickets against.
type AuthorInfo struct {
	Name       string
	Consultant string
}

type AuthorIndex map[string]AuthorInfo

// BuildAuthorIndex maps lowercase seed-author emails to name/consultant.
func BuildAuthorIndex(authors []tracker.AuthorRecord) AuthorIndex {
	index := AuthorIndex{}
	for _, rec := range authors {
		email := strings.ToLower(strings.TrimSpace(authorField(rec, "e")))
		if email == "" {
			continue
		}
		index[email] = AuthorInfo{
			Name:       authorField(rec, "n"),
			Consultant: authorField(rec, "c"),
		}
	}
	return index
}

func authorField(rec tracker.AuthorRecord, key string) string {
	raw, ok := rec[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// NormalizeTickets cross-references raw tickets against the author index
// and the consultant agent map. With an empty agent map (webhook path) the
// reassignment flag always comes out false; the next pull-sync corrects it.
func NormalizeTickets(raw []RawTicket, authors AuthorIndex, agentMap map[string]int64) []Ticket {
	normalized := make([]Ticket, 0, len(raw))
	for _, t := range raw {
		email := ""
		if t.Requester != nil {
			email = t.Requester.Email
		}
		if email == "" {
			email = t.Email
		}
		email = strings.ToLower(strings.TrimSpace(email))

		author, matched := authors[email]
		statusCode := ParseStatusCode(t.Status)

		var expectedAgent int64
		hasExpected := false
		if matched && author.Consultant != "" {
			expectedAgent, hasExpected = agentMap[author.Consultant]
		}
		needsReassign := hasExpected && (t.ResponderID == nil || *t.ResponderID != expectedAgent)

		subject := t.Subject
		if subject == "" {
			subject = "(No subject)"
		}
		normalized = append(normalized, Ticket{
			ID:                t.ID,
			Subject:           subject,
			RequesterEmail:    email,
			MatchedAuthor:     author.Name,
			MatchedConsultant: author.Consultant,
			CurrentAssignee:   t.ResponderID,
			Status:            statusLabel(statusCode),
			StatusCode:        statusCode,
			IsMatched:         matched,
			NeedsReassign:     needsReassign,
			CreatedAt:         t.CreatedAt,
			UpdatedAt:         t.UpdatedAt,
		})
	}
	return normalized
}

func statusLabel(code int) string {
	if label, ok := statusLabels[code]; ok {
		return label
	}
	if code != 0 {
		return "Status " + strconv.Itoa(code)
	}
	return "Unknown"
}

// ParseStatusCode accepts a numeric code, a numeric string, or a status
// name (webhook automations send names).
func ParseStatusCode(raw json.RawMessage) int {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0
	}
	var code int
	if err := json.Unmarshal(raw, &code); err == nil {
		return code
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return 0
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "open":
		return 2
	case "pending":
		return 3
	case "resolved":
		return 4
	case "closed":
		return 5
	}
	if code, err := strconv.Atoi(strings.TrimSpace(name)); err == nil {
		return code
	}
	return 0
}
