package registry

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"swarmline/internal/domain"
)

var (
	ErrNotFound          = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

const shardCount = 16

// ArchiveFunc receives terminal tasks evicted by the janitor.
type ArchiveFunc func(domain.Task)

type record struct {
	task      domain.Task
	updatedAt time.Time
	done      chan struct{}
}

type shard struct {
	mu      sync.RWMutex
	records map[string]*record
}

// Registry is the per-process task store. One instance per agent process,
// passed by reference into the endpoint and execution callbacks.
type Registry struct {
	shards  [shardCount]*shard
	Now     func() time.Time
	archive ArchiveFunc

	janitorOnce sync.Once
	stop        chan struct{}
}

func New() *Registry {
	r := &Registry{
		Now:  time.Now,
		stop: make(chan struct{}),
	}
	for i := range r.shards {
		r.shards[i] = &shard{records: make(map[string]*record)}
	}
	return r
}

// SetArchive attaches a sink for evicted terminal tasks. Must be called
// before StartJanitor.
func (r *Registry) SetArchive(fn ArchiveFunc) {
	r.archive = fn
}

func (r *Registry) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return r.shards[h.Sum32()%shardCount]
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Create registers a new pending task and returns its immutable record.
func (r *Registry) Create(cap domain.Capability, input domain.Input, contextID string) domain.Task {
	now := r.now().UTC()
	t := domain.Task{
		ID:         uuid.NewString(),
		Capability: cap,
		Status:     domain.StatusPending,
		Input:      input,
		ContextID:  contextID,
		CreatedAt:  now.Format(time.RFC3339),
		UpdatedAt:  now.Format(time.RFC3339),
	}
	s := r.shardFor(t.ID)
	s.mu.Lock()
	s.records[t.ID] = &record{task: t, updatedAt: now, done: make(chan struct{})}
	s.mu.Unlock()
	return t
}

func statusRank(s domain.TaskStatus) int {
	switch s {
	case domain.StatusPending:
		return 0
	case domain.StatusInProgress:
		return 1
	case domain.StatusCompleted, domain.StatusFailed, domain.StatusTimedOut:
		return 2
	}
	return -1
}

// Transition advances a task to a later lifecycle state. It rejects unknown
// tasks, regressions, and repeated terminal transitions without touching the
// record, so a rejected call never leaves a partial write behind.
func (r *Registry) Transition(id string, status domain.TaskStatus, output map[string]any, errMsg string) (domain.Task, error) {
	newRank := statusRank(status)
	if newRank <= 0 {
		return domain.Task{}, ErrInvalidTransition
	}
	if status == domain.StatusCompleted && errMsg != "" {
		return domain.Task{}, ErrInvalidTransition
	}
	if status != domain.StatusCompleted && output != nil {
		return domain.Task{}, ErrInvalidTransition
	}
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	if newRank <= statusRank(rec.task.Status) {
		return domain.Task{}, ErrInvalidTransition
	}
	now := r.now().UTC()
	rec.task.Status = status
	rec.task.UpdatedAt = now.Format(time.RFC3339)
	rec.updatedAt = now
	switch status {
	case domain.StatusCompleted:
		rec.task.Output = output
	case domain.StatusFailed, domain.StatusTimedOut:
		rec.task.Error = errMsg
	}
	if status.Terminal() {
		close(rec.done)
	}
	return rec.task, nil
}

// Get returns a snapshot of the task. Reads never mutate the record.
func (r *Registry) Get(id string) (domain.Task, error) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return rec.task, nil
}

// Wait blocks until the task reaches a terminal state, the wait budget
// elapses, or ctx is done, then returns the current state regardless.
func (r *Registry) Wait(ctx context.Context, id string, d time.Duration) (domain.Task, error) {
	s := r.shardFor(id)
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-rec.done:
	case <-timer.C:
	case <-ctx.Done():
	}
	return r.Get(id)
}

// List returns a snapshot of all live records, unordered.
func (r *Registry) List() []domain.Task {
	var out []domain.Task
	for _, s := range r.shards {
		s.mu.RLock()
		for _, rec := range s.records {
			out = append(out, rec.task)
		}
		s.mu.RUnlock()
	}
	return out
}

// StartJanitor begins evicting terminal records older than ttl, checking
// every sweep interval. Evicted tasks are handed to the archive sink first.
func (r *Registry) StartJanitor(ttl, sweep time.Duration) {
	r.janitorOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(sweep)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					r.evictExpired(ttl)
				case <-r.stop:
					return
				}
			}
		}()
	})
}

// Close stops the janitor. Safe to call when it never started.
func (r *Registry) Close() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

func (r *Registry) evictExpired(ttl time.Duration) {
	cutoff := r.now().UTC().Add(-ttl)
	for _, s := range r.shards {
		var evicted []domain.Task
		s.mu.Lock()
		for id, rec := range s.records {
			if rec.task.Status.Terminal() && rec.updatedAt.Before(cutoff) {
				evicted = append(evicted, rec.task)
				delete(s.records, id)
			}
		}
		s.mu.Unlock()
		if r.archive != nil {
			for _, t := range evicted {
				r.archive(t)
			}
		}
	}
}
