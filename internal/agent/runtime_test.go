package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"swarmline/internal/domain"
	"swarmline/internal/registry"
)

func newTestRuntime(t *testing.T, p Provider, maxExecution time.Duration) *Runtime {
	t.Helper()
	reg := registry.New()
	t.Cleanup(reg.Close)
	return NewRuntime(domain.CapabilityResearch, reg, p, maxExecution)
}

func TestSubmitReturnsPendingImmediately(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := ProviderFunc(func(ctx context.Context, input domain.Input) (map[string]any, error) {
		close(started)
		<-release
		return map[string]any{"ok": true}, nil
	})
	rt := newTestRuntime(t, p, time.Minute)

	task := rt.Submit(domain.Input{Message: "slow work"}, "ctx-1")
	if task.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", task.Status)
	}

	<-started
	got, err := rt.Status(context.Background(), task.ID, false, 0)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.Status != domain.StatusInProgress {
		t.Fatalf("expected in_progress while provider runs, got %s", got.Status)
	}
	close(release)
}

func TestWaitObservesCompletion(t *testing.T) {
	p := ProviderFunc(func(ctx context.Context, input domain.Input) (map[string]any, error) {
		return map[string]any{"findings": []any{"a"}}, nil
	})
	rt := newTestRuntime(t, p, time.Minute)

	task := rt.Submit(domain.Input{Message: "quick work"}, "")
	got, err := rt.Status(context.Background(), task.ID, true, 5*time.Second)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s (error %q)", got.Status, got.Error)
	}
	if got.Output == nil {
		t.Fatal("expected output on completed task")
	}
	if got.Error != "" {
		t.Fatalf("completed task carries error %q", got.Error)
	}
}

func TestProviderErrorFailsTask(t *testing.T) {
	p := ProviderFunc(func(ctx context.Context, input domain.Input) (map[string]any, error) {
		return nil, errors.New("upstream unavailable")
	})
	rt := newTestRuntime(t, p, time.Minute)

	task := rt.Submit(domain.Input{Message: "m"}, "")
	got, err := rt.Status(context.Background(), task.ID, true, 5*time.Second)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Error != "upstream unavailable" {
		t.Fatalf("unexpected error message: %q", got.Error)
	}
	if got.Output != nil {
		t.Fatal("failed task carries output")
	}
}

func TestProviderPanicFailsTask(t *testing.T) {
	p := ProviderFunc(func(ctx context.Context, input domain.Input) (map[string]any, error) {
		panic("nil map write")
	})
	rt := newTestRuntime(t, p, time.Minute)

	task := rt.Submit(domain.Input{Message: "m"}, "")
	got, err := rt.Status(context.Background(), task.ID, true, 5*time.Second)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if !strings.Contains(got.Error, "provider panic") {
		t.Fatalf("unexpected error message: %q", got.Error)
	}
}

func TestExecutionBudgetTimesOutTask(t *testing.T) {
	p := ProviderFunc(func(ctx context.Context, input domain.Input) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	rt := newTestRuntime(t, p, 20*time.Millisecond)

	task := rt.Submit(domain.Input{Message: "m"}, "")
	got, err := rt.Status(context.Background(), task.ID, true, 5*time.Second)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.Status != domain.StatusTimedOut {
		t.Fatalf("expected timed_out, got %s (error %q)", got.Status, got.Error)
	}
	if got.Error != "exceeded time budget" {
		t.Fatalf("unexpected error message: %q", got.Error)
	}
}

func TestBuiltinProviders(t *testing.T) {
	for _, cap := range []domain.Capability{
		domain.CapabilityResearch,
		domain.CapabilityCode,
		domain.CapabilityAnalytics,
	} {
		p, err := BuiltinProvider(cap)
		if err != nil {
			t.Fatalf("builtin provider %s: %v", cap, err)
		}
		out, err := p.Execute(context.Background(), domain.Input{Message: "sample request"})
		if err != nil {
			t.Fatalf("execute %s: %v", cap, err)
		}
		if len(out) == 0 {
			t.Fatalf("provider %s returned empty output", cap)
		}
	}
	if _, err := BuiltinProvider(domain.Capability("telepathy")); err == nil {
		t.Fatal("expected error for unknown capability")
	}
}
