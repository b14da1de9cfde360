package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"swarmline/internal/domain"
	"swarmline/internal/registry"
)

// Runtime is one agent process's task machinery: it accepts submissions,
// runs the provider in the background, and keeps registry bookkeeping
// correct around every execution outcome.
type Runtime struct {
	Capability   domain.Capability
	Registry     *registry.Registry
	Provider     Provider
	MaxExecution time.Duration
}

func NewRuntime(cap domain.Capability, reg *registry.Registry, p Provider, maxExecution time.Duration) *Runtime {
	if maxExecution <= 0 {
		maxExecution = 55 * time.Second
	}
	return &Runtime{
		Capability:   cap,
		Registry:     reg,
		Provider:     p,
		MaxExecution: maxExecution,
	}
}

// Submit accepts a task, records it as pending, and starts execution in the
// background. It returns immediately; completion is observed via Status.
func (rt *Runtime) Submit(input domain.Input, contextID string) domain.Task {
	t := rt.Registry.Create(rt.Capability, input, contextID)
	go rt.execute(t.ID, input)
	return t
}

// Status returns the task's current state. With wait set it blocks until the
// task is terminal or waitTimeout elapses, then reports whatever state holds.
func (rt *Runtime) Status(ctx context.Context, id string, wait bool, waitTimeout time.Duration) (domain.Task, error) {
	if !wait {
		return rt.Registry.Get(id)
	}
	return rt.Registry.Wait(ctx, id, waitTimeout)
}

// execute drives one task through its lifecycle. Any provider failure,
// including a panic or a blown execution budget, lands the task in a
// terminal state so a caller's wait always resolves.
func (rt *Runtime) execute(id string, input domain.Input) {
	defer func() {
		if rec := recover(); rec != nil {
			rt.Registry.Transition(id, domain.StatusFailed, nil, fmt.Sprintf("provider panic: %v", rec))
		}
	}()

	if _, err := rt.Registry.Transition(id, domain.StatusInProgress, nil, ""); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), rt.MaxExecution)
	defer cancel()

	output, err := rt.Provider.Execute(ctx, input)
	switch {
	case err == nil:
		rt.Registry.Transition(id, domain.StatusCompleted, output, "")
	case errors.Is(err, context.DeadlineExceeded):
		rt.Registry.Transition(id, domain.StatusTimedOut, nil, "exceeded time budget")
	default:
		rt.Registry.Transition(id, domain.StatusFailed, nil, err.Error())
	}
}
