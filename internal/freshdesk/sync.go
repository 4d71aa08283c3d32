package freshdesk

import (
	"context"
	"strings"

	"github.com/bookleafpub/outreach-tracker/internal/tracker"
)

const (
	DefaultMaxPages = 3
	MaxPagesLimit   = 10
)

type Logger interface {
	Printf(format string, args ...any)
}

// Syncer runs the pull path: page through the upstream ticket list, build
// the consultant agent map, normalize, and produce a wholesale snapshot.
type Syncer struct {
	client *Client
	roster tracker.Roster
	domain string
	logger Logger
}

func NewSyncer(client *Client, roster tracker.Roster, domain string, logger Logger) *Syncer {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		domain = DefaultDomain
	}
	return &Syncer{client: client, roster: roster, domain: domain, logger: logger}
}

// ClampMaxPages bounds a requested page count to 1..MaxPagesLimit.
func ClampMaxPages(maxPages int) int {
	if maxPages < 1 {
		return 1
	}
	if maxPages > MaxPagesLimit {
		return MaxPagesLimit
	}
	return maxPages
}

// BuildCachePayload fetches up to maxPages of tickets newest-first and
// normalizes them against the seed authors. An agent-directory failure
// degrades to an empty map rather than failing the sync.
func (s *Syncer) BuildCachePayload(ctx context.Context, authors AuthorIndex, maxPages int) (CachePayload, error) {
	maxPages = ClampMaxPages(maxPages)

	var raw []RawTicket
	pagesFetched := 0
	for page := 1; page <= maxPages; page++ {
		batch, err := s.client.ListTickets(ctx, page)
		if err != nil {
			return CachePayload{}, err
		}
		pagesFetched++
		raw = append(raw, batch...)
		if len(batch) < ticketsPerPage {
			break
		}
	}

	agentMap := s.consultantAgentMap(ctx)
	normalized := NormalizeTickets(raw, authors, agentMap)

	return CachePayload{
		OK:            true,
		Source:        "freshdesk-cron",
		Domain:        s.domain,
		FetchedAt:     nowISO(),
		TicketCount:   len(normalized),
		AgentMapCount: len(agentMap),
		Meta: SyncMeta{
			PagesFetched: pagesFetched,
			MaxPages:     maxPages,
		},
		Tickets: normalized,
	}, nil
}

// consultantAgentMap resolves roster emails against the upstream agent
// directory. The directory is fetched once per sync.
func (s *Syncer) consultantAgentMap(ctx context.Context) map[string]int64 {
	agents, err := s.client.ListAgents(ctx)
	if err != nil {
		s.logf("agent directory fetch failed, reassignment flags disabled: %v", err)
		return map[string]int64{}
	}
	emailToName := s.roster.EmailToName()
	agentMap := map[string]int64{}
	for _, agent := range agents {
		email := strings.ToLower(strings.TrimSpace(agent.Contact.Email))
		if email == "" {
			continue
		}
		if name, ok := emailToName[email]; ok && agent.ID != 0 {
			agentMap[name] = agent.ID
		}
	}
	return agentMap
}

func (s *Syncer) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

// FilterTicketsForView trims the snapshot to tickets matched to the given
// consultant; admin sees everything.
func FilterTicketsForView(tickets []Ticket, view string) []Ticket {
	if view == tracker.ViewAdmin {
		return tickets
	}
	filtered := make([]Ticket, 0)
	for _, t := range tickets {
		if t.MatchedConsultant == view {
			filtered = append(filtered, t)
		}
	}
	return filtered
}
