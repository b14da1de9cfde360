package delegate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"swarmline/internal/domain"
)

func fakeAgent(t *testing.T, status domain.TaskStatus, output map[string]any, errMsg string, delay time.Duration) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/a2a/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"task_id": "task-1", "status": "pending"})
	})
	mux.HandleFunc("/a2a/tasks/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		json.NewEncoder(w).Encode(map[string]any{
			"task_id": "task-1",
			"status":  string(status),
			"output":  output,
			"error":   errMsg,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDelegateCompleted(t *testing.T) {
	srv := fakeAgent(t, domain.StatusCompleted, map[string]any{"findings": []any{"x"}}, "", 0)

	c := New()
	res := c.Delegate(context.Background(), srv.URL, domain.CapabilityResearch, domain.Input{Message: "m"}, "ctx", 5*time.Second)
	if res.Kind != Completed {
		t.Fatalf("expected completed, got %s (err %q)", res.Kind, res.Err)
	}
	if res.Capability != domain.CapabilityResearch {
		t.Fatalf("capability lost: %s", res.Capability)
	}
	if res.Output["findings"] == nil {
		t.Fatalf("output lost: %+v", res.Output)
	}
}

func TestDelegateRemoteFailure(t *testing.T) {
	srv := fakeAgent(t, domain.StatusFailed, nil, "syntax error in generated code", 0)

	c := New()
	res := c.Delegate(context.Background(), srv.URL, domain.CapabilityCode, domain.Input{Message: "m"}, "ctx", 5*time.Second)
	if res.Kind != Failed {
		t.Fatalf("expected failed, got %s", res.Kind)
	}
	if res.Err != "syntax error in generated code" {
		t.Fatalf("remote error lost: %q", res.Err)
	}
}

func TestDelegateRemoteTimeout(t *testing.T) {
	srv := fakeAgent(t, domain.StatusTimedOut, nil, "exceeded time budget", 0)

	c := New()
	res := c.Delegate(context.Background(), srv.URL, domain.CapabilityResearch, domain.Input{Message: "m"}, "ctx", 5*time.Second)
	if res.Kind != TimedOut {
		t.Fatalf("expected timed_out, got %s", res.Kind)
	}
}

func TestDelegateNonTerminalAfterWaitIsTimeout(t *testing.T) {
	srv := fakeAgent(t, domain.StatusInProgress, nil, "", 0)

	c := New()
	res := c.Delegate(context.Background(), srv.URL, domain.CapabilityResearch, domain.Input{Message: "m"}, "ctx", time.Second)
	if res.Kind != TimedOut {
		t.Fatalf("expected timed_out for non-terminal status, got %s", res.Kind)
	}
}

func TestDelegateRePollsPastAgentWaitCap(t *testing.T) {
	// The agent caps every long-poll at 200ms while the task completes only
	// after 700ms. The client owns a 5s budget, so it must keep polling and
	// observe the completion instead of reporting a premature timeout.
	const waitCap = 200 * time.Millisecond
	completeAt := time.Now().Add(700 * time.Millisecond)

	mux := http.NewServeMux()
	mux.HandleFunc("/a2a/tasks", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"task_id": "task-1", "status": "pending"})
	})
	mux.HandleFunc("/a2a/tasks/", func(w http.ResponseWriter, r *http.Request) {
		if wait := time.Until(completeAt); wait > waitCap {
			time.Sleep(waitCap)
			json.NewEncoder(w).Encode(map[string]any{"task_id": "task-1", "status": "in_progress"})
			return
		} else if wait > 0 {
			time.Sleep(wait)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"task_id": "task-1",
			"status":  "completed",
			"output":  map[string]any{"findings": "done"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New()
	res := c.Delegate(context.Background(), srv.URL, domain.CapabilityResearch, domain.Input{Message: "m"}, "ctx", 5*time.Second)
	if res.Kind != Completed {
		t.Fatalf("expected completed after re-polling, got %s (err %q)", res.Kind, res.Err)
	}
	if res.Output["findings"] != "done" {
		t.Fatalf("output lost across re-polls: %+v", res.Output)
	}
}

func TestDelegateUnreachableAgent(t *testing.T) {
	srv := httptest.NewServer(http.NewServeMux())
	url := srv.URL
	srv.Close()

	c := New()
	start := time.Now()
	res := c.Delegate(context.Background(), url, domain.CapabilityResearch, domain.Input{Message: "m"}, "ctx", 5*time.Second)
	if res.Kind != Failed {
		t.Fatalf("expected failed, got %s", res.Kind)
	}
	if !strings.HasPrefix(res.Err, "delegation error:") {
		t.Fatalf("expected delegation error prefix, got %q", res.Err)
	}
	// A refused connection must fail fast, not consume the time budget.
	if time.Since(start) > 2*time.Second {
		t.Fatal("submission failure consumed the time budget")
	}
}

func TestDelegateTaskVanished(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a2a/tasks", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"task_id": "gone", "status": "pending"})
	})
	mux.HandleFunc("/a2a/tasks/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": "not_found", "message": "task not found"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New()
	res := c.Delegate(context.Background(), srv.URL, domain.CapabilityResearch, domain.Input{Message: "m"}, "ctx", 5*time.Second)
	if res.Kind != Failed {
		t.Fatalf("expected failed, got %s", res.Kind)
	}
	if res.Err != "delegation error: task not found" {
		t.Fatalf("unexpected error: %q", res.Err)
	}
}

func TestDelegateEmptyTaskID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a2a/tasks", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "pending"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New()
	res := c.Delegate(context.Background(), srv.URL, domain.CapabilityResearch, domain.Input{Message: "m"}, "ctx", 5*time.Second)
	if res.Kind != Failed {
		t.Fatalf("expected failed, got %s", res.Kind)
	}
	if !strings.Contains(res.Err, "no task id") {
		t.Fatalf("unexpected error: %q", res.Err)
	}
}

func TestDelegateBoundedBySlowAgent(t *testing.T) {
	// The agent holds the long-poll far past the caller's budget; the client
	// must give up at timeout plus the fixed overhead.
	srv := fakeAgent(t, domain.StatusCompleted, nil, "", 10*time.Second)

	c := New()
	start := time.Now()
	res := c.Delegate(context.Background(), srv.URL, domain.CapabilityResearch, domain.Input{Message: "m"}, "ctx", 500*time.Millisecond)
	elapsed := time.Since(start)
	if res.Kind != TimedOut {
		t.Fatalf("expected timed_out, got %s (err %q)", res.Kind, res.Err)
	}
	if elapsed > 500*time.Millisecond+Overhead+time.Second {
		t.Fatalf("delegation ran %v, past budget plus overhead", elapsed)
	}
}

func TestPing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New()
	if !c.Ping(context.Background(), srv.URL) {
		t.Fatal("expected healthy agent to answer ping")
	}
	srv.Close()
	if c.Ping(context.Background(), srv.URL) {
		t.Fatal("expected closed agent to fail ping")
	}
}
