package swarmsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Swarmline coordinator HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. The default timeout leaves room
// for a full coordinated fan-out to run to completion.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 90 * time.Second,
	}
}

// Section is one capability's contribution to an aggregated answer.
type Section struct {
	Capability string `json:"capability"`
	OK         bool   `json:"ok"`
	Content    string `json:"content,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Answer is the merged outcome of one coordinated request.
type Answer struct {
	ContextID string    `json:"context_id"`
	Success   bool      `json:"success"`
	Summary   string    `json:"summary"`
	Sections  []Section `json:"sections"`
}

// Exchange is one stored request/response round trip.
type Exchange struct {
	ID        string `json:"id"`
	Request   string `json:"request"`
	Success   bool   `json:"success"`
	Result    string `json:"result"`
	CreatedAt string `json:"created_at"`
}

// Context is a conversation context with its exchange history.
type Context struct {
	ContextID string     `json:"context_id"`
	Status    string     `json:"status"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
	Exchanges []Exchange `json:"exchanges"`
}

// AgentStatus reports one configured agent's reachability.
type AgentStatus struct {
	Capability string `json:"capability"`
	URL        string `json:"url"`
	Connected  bool   `json:"connected"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Ask submits a request and returns the aggregated answer. Pass an empty
// contextID to start a new conversation.
func (c *Client) Ask(ctx context.Context, message, contextID string, metadata map[string]any) (Answer, error) {
	body := map[string]any{
		"message": message,
	}
	if contextID != "" {
		body["context_id"] = contextID
	}
	if metadata != nil {
		body["metadata"] = metadata
	}
	var resp Answer
	err := c.do(ctx, http.MethodPost, "v0/requests", body, &resp)
	return resp, err
}

// Context fetches a conversation and its exchange history.
func (c *Client) Context(ctx context.Context, contextID string) (Context, error) {
	var resp Context
	endpoint := fmt.Sprintf("v0/contexts/%s", url.PathEscape(contextID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Agents lists configured agents and whether each answers its health probe.
func (c *Client) Agents(ctx context.Context) ([]AgentStatus, error) {
	var resp []AgentStatus
	err := c.do(ctx, http.MethodGet, "v0/agents", nil, &resp)
	return resp, err
}

// Health reports whether the coordinator answers its health probe.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
