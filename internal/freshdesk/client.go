package freshdesk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultDomain = "bookleafpublishing.freshdesk.com"

	ticketsPerPage = 100
	agentsPerPage  = 100

	// Upstream error bodies are truncated to this many characters before
	// being passed back to callers.
	maxErrorDetail = 600
)

// APIError carries an upstream Freshdesk failure: the HTTP status, a
// bounded body excerpt and the Retry-After hint (seconds, 0 when absent).
// Callers must not retry more aggressively than the hint.
type APIError struct {
	Status     int
	Detail     string
	RetryAfter int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Freshdesk API error %d", e.Status)
}

// RawTicket is the upstream ticket shape. Status stays raw because the API
// sends numeric codes while webhook payloads may send status names.
type RawTicket struct {
	ID          int64           `json:"id"`
	Subject     string          `json:"subject"`
	Status      json.RawMessage `json:"status"`
	ResponderID *int64          `json:"responder_id"`
	Requester   *RawRequester   `json:"requester"`
	Email       string          `json:"email"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

type RawRequester struct {
	Email string `json:"email"`
}

type Agent struct {
	ID      int64 `json:"id"`
	Contact struct {
		Email string `json:"email"`
	} `json:"contact"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient talks to https://<domain>/api/v2. A nil httpClient gets a
// bounded-timeout default.
func NewClient(domain, apiKey string, httpClient *http.Client) *Client {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		domain = DefaultDomain
	}
	baseURL := domain
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	baseURL = strings.TrimRight(baseURL, "/") + "/api/v2"
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 25 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// AuthorizationHeader is the Basic header derived from the API key, also
// used by the raw passthrough proxy.
func (c *Client) AuthorizationHeader() string {
	return BasicAuthFromKey(c.apiKey)
}

func BasicAuthFromKey(key string) string {
	if strings.TrimSpace(key) == "" {
		return ""
	}
	token := base64.StdEncoding.EncodeToString([]byte(key + ":X"))
	return "Basic " + token
}

// ListTickets fetches one page of tickets, newest first.
func (c *Client) ListTickets(ctx context.Context, page int) ([]RawTicket, error) {
	path := fmt.Sprintf("tickets?per_page=%d&page=%d&include=requester&order_by=created_at&order_type=desc", ticketsPerPage, page)
	var tickets []RawTicket
	if err := c.getJSON(ctx, path, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	if err := c.getJSON(ctx, fmt.Sprintf("agents?per_page=%d", agentsPerPage), &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if !c.Configured() {
		return fmt.Errorf("freshdesk API key not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.AuthorizationHeader())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Status:     resp.StatusCode,
			Detail:     truncateDetail(string(body)),
			RetryAfter: retryAfterSeconds(resp.Header.Get("Retry-After")),
		}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func truncateDetail(detail string) string {
	if len(detail) > maxErrorDetail {
		return detail[:maxErrorDetail]
	}
	return detail
}

func retryAfterSeconds(header string) int {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return 0
	}
	return seconds
}
