package server

import (
	"swarmline/internal/domain"
)

// SubmitTaskRequest is the agent endpoint's task submission body.
type SubmitTaskRequest struct {
	Message   string         `json:"message" example:"research Go concurrency patterns"`
	ContextID string         `json:"context_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// SubmitTaskResponse acknowledges an accepted task.
type SubmitTaskResponse struct {
	TaskID string            `json:"task_id"`
	Status domain.TaskStatus `json:"status" enum:"pending,in_progress,completed,failed,timed_out"`
}

// TaskResponse is the full task record as exposed over HTTP.
type TaskResponse struct {
	TaskID     string            `json:"task_id"`
	Capability domain.Capability `json:"capability"`
	Status     domain.TaskStatus `json:"status" enum:"pending,in_progress,completed,failed,timed_out"`
	Output     map[string]any    `json:"output,omitempty" jsonschema:"type=object,additionalProperties=true"`
	Error      string            `json:"error,omitempty"`
	ContextID  string            `json:"context_id,omitempty"`
	CreatedAt  string            `json:"created_at" format:"date-time"`
	UpdatedAt  string            `json:"updated_at" format:"date-time"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		TaskID:     t.ID,
		Capability: t.Capability,
		Status:     t.Status,
		Output:     t.Output,
		Error:      t.Error,
		ContextID:  t.ContextID,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func toInput(message string, metadata map[string]any) domain.Input {
	return domain.Input{Message: message, Metadata: metadata}
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

// AskRequest is the coordinator's user-facing request body.
type AskRequest struct {
	Message   string         `json:"message" example:"research microservices and write code to parse JSON"`
	ContextID string         `json:"context_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// SectionResponse is one capability's contribution to an aggregated answer.
type SectionResponse struct {
	Capability domain.Capability `json:"capability"`
	OK         bool              `json:"ok"`
	Content    string            `json:"content,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// AskResponse is the merged outcome of one coordinated request.
type AskResponse struct {
	ContextID string            `json:"context_id"`
	Success   bool              `json:"success"`
	Summary   string            `json:"summary"`
	Sections  []SectionResponse `json:"sections"`
}

func askResponse(res domain.AggregatedResult) AskResponse {
	sections := make([]SectionResponse, 0, len(res.Sections))
	for _, s := range res.Sections {
		sections = append(sections, SectionResponse{
			Capability: s.Capability,
			OK:         s.OK,
			Content:    s.Content,
			Error:      s.Error,
		})
	}
	return AskResponse{
		ContextID: res.ContextID,
		Success:   res.Success,
		Summary:   res.Summary,
		Sections:  sections,
	}
}

// ExchangeResponse is one stored request/response round trip.
type ExchangeResponse struct {
	ID        string `json:"id"`
	Request   string `json:"request"`
	Success   bool   `json:"success"`
	Result    string `json:"result"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ContextResponse is a conversation context with its exchange history.
type ContextResponse struct {
	ContextID string             `json:"context_id"`
	Status    string             `json:"status"`
	CreatedAt string             `json:"created_at" format:"date-time"`
	UpdatedAt string             `json:"updated_at" format:"date-time"`
	Exchanges []ExchangeResponse `json:"exchanges"`
}

// AgentStatusResponse reports one configured agent's reachability.
type AgentStatusResponse struct {
	Capability domain.Capability `json:"capability"`
	URL        string            `json:"url"`
	Connected  bool              `json:"connected"`
}
