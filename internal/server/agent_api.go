package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"swarmline/internal/agent"
	"swarmline/internal/config"
)

// AgentConfig wires one capability agent's HTTP surface.
type AgentConfig struct {
	Runtime *agent.Runtime
	Config  *config.Config
}

// NewAgentAPI returns the handler an agent process serves: task submission
// and retrieval under /a2a plus a health probe at the root.
func NewAgentAPI(cfg AgentConfig) (http.Handler, error) {
	router, api := newRouter("Swarmline Agent API", "/a2a")
	registerHealth(api)
	group := huma.NewGroup(api, "/a2a")
	registerAgentTasks(group, cfg)
	return router, nil
}

func registerAgentTasks(api huma.API, cfg AgentConfig) {
	waitCap := cfg.Config.WaitCap()

	huma.Register(api, huma.Operation{
		OperationID:   "submit-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Submit task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SubmitTaskRequest `json:"body"`
	}) (*struct {
		Body SubmitTaskResponse `json:"body"`
	}, error) {
		if input.Body.Message == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "message is required", nil)
		}
		t := cfg.Runtime.Submit(toInput(input.Body.Message, input.Body.Metadata), input.Body.ContextID)
		return &struct {
			Body SubmitTaskResponse `json:"body"`
		}{Body: SubmitTaskResponse{TaskID: t.ID, Status: t.Status}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task status",
		Errors: []int{
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TaskID        string `path:"task_id"`
		Wait          bool   `query:"wait"`
		WaitTimeoutMS int64  `query:"wait_timeout_ms"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		waitTimeout := time.Duration(input.WaitTimeoutMS) * time.Millisecond
		if waitTimeout <= 0 || waitTimeout > waitCap {
			waitTimeout = waitCap
		}
		t, err := cfg.Runtime.Status(ctx, input.TaskID, input.Wait, waitTimeout)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List live tasks",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(cfg.Runtime.Registry.List())}, nil
	})
}
