package orchestrator

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"swarmline/internal/aggregate"
	"swarmline/internal/config"
	"swarmline/internal/delegate"
	"swarmline/internal/domain"
	"swarmline/internal/events"
	"swarmline/internal/repo"
)

// Coordinator decomposes one external request into subtasks, fans them out
// to capability agents, and merges the outcomes into a single response.
// One Handle call is self-contained; the only state shared across requests
// is the conversation store.
type Coordinator struct {
	Config *config.Config
	Client *delegate.Client
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
	// Logf receives storage failures that do not fail the request.
	Logf func(format string, args ...any)

	rules []Rule
}

func New(cfg *config.Config, client *delegate.Client, conn *sql.DB) *Coordinator {
	if client == nil {
		client = delegate.New()
	}
	return &Coordinator{
		Config: cfg,
		Client: client,
		DB:     conn,
		Repo:   repo.Repo{DB: conn},
		Events: events.Writer{DB: conn},
		Now:    time.Now,
		Logf:   log.Printf,
		rules:  RulesFromConfig(cfg),
	}
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Handle runs one request end to end. Subtask failures are contained and
// merged into the result; only an empty request propagates as an error.
func (c *Coordinator) Handle(ctx context.Context, message, contextID string, metadata map[string]any) (domain.AggregatedResult, error) {
	plan, err := Decompose(message, metadata, c.rules)
	if err != nil {
		return domain.AggregatedResult{}, err
	}
	if contextID == "" {
		contextID = uuid.NewString()
	}

	results := c.dispatch(ctx, plan, contextID)
	agg := aggregate.Aggregate(contextID, message, results)

	// Conversation persistence is best effort: a storage hiccup must not
	// turn an answered request into a failure, but it has to leave a trace.
	if c.DB != nil {
		if err := c.persist(ctx, contextID, message, plan, agg); err != nil {
			c.logf("persist exchange for context %s: %v", contextID, err)
		}
	}
	return agg, nil
}

func (c *Coordinator) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

// dispatch delegates every subtask concurrently and joins on all of them.
// Results keep plan order regardless of completion order, and the total
// wait is bounded by the largest per-capability timeout.
func (c *Coordinator) dispatch(ctx context.Context, plan domain.DecompositionPlan, contextID string) []delegate.Result {
	results := make([]delegate.Result, len(plan.Subtasks))
	var wg sync.WaitGroup
	for i, st := range plan.Subtasks {
		wg.Add(1)
		go func(i int, st domain.Subtask) {
			defer wg.Done()
			route := c.Config.Route(st.Capability)
			if route == nil || route.URL == "" {
				results[i] = delegate.Result{
					Capability: st.Capability,
					Kind:       delegate.Failed,
					Err:        "delegation error: no agent configured for capability",
				}
				return
			}
			results[i] = c.Client.Delegate(ctx, route.URL, st.Capability, st.Input, contextID, c.Config.Timeout(st.Capability))
		}(i, st)
	}
	wg.Wait()
	return results
}

func (c *Coordinator) persist(ctx context.Context, contextID, message string, plan domain.DecompositionPlan, agg domain.AggregatedResult) error {
	now := repo.Now(c.now())
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := c.Repo.EnsureContext(ctx, tx, contextID, now); err != nil {
		return err
	}
	exchange, err := c.Repo.AppendExchange(ctx, tx, contextID, message, agg, now)
	if err != nil {
		return err
	}
	caps := make([]any, 0, len(plan.Subtasks))
	for _, st := range plan.Subtasks {
		caps = append(caps, string(st.Capability))
	}
	if err := c.Events.Append(ctx, tx, "request.handled", contextID, "exchange", exchange.ID, events.EventPayload{
		"capabilities": caps,
		"success":      agg.Success,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// AgentStatus is one capability route's reachability snapshot.
type AgentStatus struct {
	Capability domain.Capability `json:"capability"`
	URL        string            `json:"url"`
	Connected  bool              `json:"connected"`
}

// Agents probes every configured agent endpoint's health route.
func (c *Coordinator) Agents(ctx context.Context) []AgentStatus {
	out := make([]AgentStatus, len(c.Config.Capabilities))
	var wg sync.WaitGroup
	for i, route := range c.Config.Capabilities {
		wg.Add(1)
		go func(i int, route config.CapabilityRoute) {
			defer wg.Done()
			status := AgentStatus{Capability: route.Name, URL: route.URL}
			if route.URL != "" {
				status.Connected = c.Client.Ping(ctx, route.URL)
			}
			out[i] = status
		}(i, route)
	}
	wg.Wait()
	return out
}
