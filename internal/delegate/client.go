package delegate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"swarmline/internal/domain"
)

// ResultKind is the outcome class of one delegation.
type ResultKind string

const (
	Completed ResultKind = "completed"
	Failed    ResultKind = "failed"
	TimedOut  ResultKind = "timed_out"
)

// Result is the terminal outcome of delegating one subtask.
type Result struct {
	Capability domain.Capability
	Kind       ResultKind
	Output     map[string]any
	Err        string
}

func failure(cap domain.Capability, format string, args ...any) Result {
	return Result{Capability: cap, Kind: Failed, Err: fmt.Sprintf(format, args...)}
}

// APIError wraps non-2xx responses from an agent endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Overhead is the fixed network allowance added on top of a caller-supplied
// wait budget when bounding the status long-poll request.
const Overhead = 2 * time.Second

// pollPause spaces consecutive status polls when the agent answers a
// long-poll early with a non-terminal state.
const pollPause = 50 * time.Millisecond

// Client submits tasks to remote agent endpoints and retrieves their
// results. It never blocks past the caller's time budget plus Overhead,
// and it never retries; retry policy belongs to the coordinator.
type Client struct {
	HTTPClient *http.Client
}

func New() *Client {
	return &Client{HTTPClient: &http.Client{}}
}

type submitResponse struct {
	TaskID string            `json:"task_id"`
	Status domain.TaskStatus `json:"status"`
}

type statusResponse struct {
	TaskID string            `json:"task_id"`
	Status domain.TaskStatus `json:"status"`
	Output map[string]any    `json:"output,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Delegate submits the input to the agent serving capability at baseURL and
// waits up to timeout for a terminal state. A transport or protocol failure
// on submission is a Failed delegation, distinct from a task the remote
// accepted but could not complete.
func (c *Client) Delegate(ctx context.Context, baseURL string, cap domain.Capability, input domain.Input, contextID string, timeout time.Duration) Result {
	deadline := time.Now().Add(timeout)

	var submitted submitResponse
	submitCtx, cancel := context.WithDeadline(ctx, deadline)
	err := c.do(submitCtx, http.MethodPost, baseURL, "a2a/tasks", map[string]any{
		"message":    input.Message,
		"metadata":   input.Metadata,
		"context_id": contextID,
	}, &submitted)
	cancel()
	if err != nil {
		return failure(cap, "delegation error: %v", err)
	}
	if submitted.TaskID == "" {
		return failure(cap, "delegation error: agent returned no task id")
	}

	// The agent may hold the long-poll for less than the remaining budget
	// (its wait cap is its own configuration). A non-terminal answer before
	// the deadline therefore means "poll again", not "timed out".
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Result{Capability: cap, Kind: TimedOut}
		}

		endpoint := fmt.Sprintf("a2a/tasks/%s?wait=true&wait_timeout_ms=%d",
			url.PathEscape(submitted.TaskID), remaining.Milliseconds())
		var status statusResponse
		statusCtx, cancel := context.WithDeadline(ctx, deadline.Add(Overhead))
		err := c.do(statusCtx, http.MethodGet, baseURL, endpoint, nil, &status)
		cancel()
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				return failure(cap, "delegation error: task not found")
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return Result{Capability: cap, Kind: TimedOut}
			}
			return failure(cap, "delegation error: %v", err)
		}

		switch status.Status {
		case domain.StatusCompleted:
			return Result{Capability: cap, Kind: Completed, Output: status.Output}
		case domain.StatusFailed:
			return Result{Capability: cap, Kind: Failed, Err: status.Error}
		case domain.StatusTimedOut:
			return Result{Capability: cap, Kind: TimedOut}
		}

		// Pace re-polls so an agent that answers instantly cannot turn the
		// loop into a busy wait.
		select {
		case <-ctx.Done():
			return Result{Capability: cap, Kind: TimedOut}
		case <-time.After(pollPause):
		}
	}
}

// Ping reports whether the agent endpoint answers its health probe.
func (c *Client) Ping(ctx context.Context, baseURL string) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := c.do(pingCtx, http.MethodGet, baseURL, "health", nil, nil)
	return err == nil
}

func (c *Client) do(ctx context.Context, method, baseURL, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	u := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
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
