package domain

// Capability names a category of work mapped to one agent type.
type Capability string

const (
	CapabilityResearch  Capability = "research"
	CapabilityCode      Capability = "code"
	CapabilityAnalytics Capability = "analytics"
)

// TaskStatus is the lifecycle state of a delegated task.
// The sequence pending -> in_progress -> {completed, failed, timed_out}
// is monotonic; there are no back-transitions.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusTimedOut   TaskStatus = "timed_out"
)

// Terminal reports whether no further transition can occur.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

// Input is the opaque payload handed to a capability agent.
type Input struct {
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Task struct {
	ID         string         `json:"task_id"`
	Capability Capability     `json:"capability"`
	Status     TaskStatus     `json:"status" enum:"pending,in_progress,completed,failed,timed_out"`
	Input      Input          `json:"input"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	ContextID  string         `json:"context_id,omitempty"`
	CreatedAt  string         `json:"created_at" format:"date-time"`
	UpdatedAt  string         `json:"updated_at" format:"date-time"`
}

// Subtask is one (capability, input) pair of a decomposition plan.
type Subtask struct {
	Capability Capability `json:"capability"`
	Input      Input      `json:"input"`
}

// DecompositionPlan is the ordered set of subtasks derived from one request.
// It is transient and never persisted.
type DecompositionPlan struct {
	Subtasks []Subtask `json:"subtasks"`
}

// Section is one per-capability slice of an aggregated response.
type Section struct {
	Capability Capability `json:"capability"`
	OK         bool       `json:"ok"`
	Content    string     `json:"content,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// AggregatedResult is the single response merged from all subtask outcomes.
// Success is true iff at least one subtask completed.
type AggregatedResult struct {
	ContextID string    `json:"context_id"`
	Success   bool      `json:"success"`
	Summary   string    `json:"summary"`
	Sections  []Section `json:"sections"`
}

// Exchange is one stored request/response round trip within a context.
type Exchange struct {
	ID        string `json:"id"`
	ContextID string `json:"context_id"`
	Request   string `json:"request"`
	Success   bool   `json:"success"`
	Result    string `json:"result_json"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Context groups exchanges belonging to one originating conversation.
type Context struct {
	ID        string `json:"context_id"`
	Status    string `json:"status" enum:"active,completed"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ContextID  string `json:"context_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
