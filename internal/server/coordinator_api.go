package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"swarmline/internal/orchestrator"
)

// CoordinatorConfig wires the coordinator's HTTP surface.
type CoordinatorConfig struct {
	Coordinator *orchestrator.Coordinator
	BasePath    string
}

// NewCoordinatorAPI returns the handler the coordinator process serves:
// request submission, conversation lookup, and agent reachability.
func NewCoordinatorAPI(cfg CoordinatorConfig) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	router, api := newRouter("Swarmline Coordinator API", basePath)
	registerHealth(api)
	group := huma.NewGroup(api, basePath)
	registerRequests(group, cfg.Coordinator)
	registerContexts(group, cfg.Coordinator)
	registerAgents(group, cfg.Coordinator)
	return router, nil
}

func registerRequests(api huma.API, c *orchestrator.Coordinator) {
	huma.Register(api, huma.Operation{
		OperationID: "ask",
		Method:      http.MethodPost,
		Path:        "/requests",
		Summary:     "Handle a request",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body AskRequest `json:"body"`
	}) (*struct {
		Body AskResponse `json:"body"`
	}, error) {
		res, err := c.Handle(ctx, input.Body.Message, input.Body.ContextID, input.Body.Metadata)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AskResponse `json:"body"`
		}{Body: askResponse(res)}, nil
	})
}

func registerContexts(api huma.API, c *orchestrator.Coordinator) {
	huma.Register(api, huma.Operation{
		OperationID: "get-context",
		Method:      http.MethodGet,
		Path:        "/contexts/{context_id}",
		Summary:     "Get conversation context",
		Errors: []int{
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ContextID string `path:"context_id"`
	}) (*struct {
		Body ContextResponse `json:"body"`
	}, error) {
		conv, err := c.Repo.GetContext(ctx, input.ContextID)
		if err != nil {
			return nil, handleError(err)
		}
		exchanges, err := c.Repo.ListExchanges(ctx, input.ContextID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := ContextResponse{
			ContextID: conv.ID,
			Status:    conv.Status,
			CreatedAt: conv.CreatedAt,
			UpdatedAt: conv.UpdatedAt,
			Exchanges: []ExchangeResponse{},
		}
		for _, e := range exchanges {
			resp.Exchanges = append(resp.Exchanges, ExchangeResponse{
				ID:        e.ID,
				Request:   e.Request,
				Success:   e.Success,
				Result:    e.Result,
				CreatedAt: e.CreatedAt,
			})
		}
		return &struct {
			Body ContextResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAgents(api huma.API, c *orchestrator.Coordinator) {
	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "List configured agents and reachability",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AgentStatusResponse `json:"body"`
	}, error) {
		statuses := c.Agents(ctx)
		out := make([]AgentStatusResponse, 0, len(statuses))
		for _, s := range statuses {
			out = append(out, AgentStatusResponse{
				Capability: s.Capability,
				URL:        s.URL,
				Connected:  s.Connected,
			})
		}
		return &struct {
			Body []AgentStatusResponse `json:"body"`
		}{Body: out}, nil
	})
}
