package agent

import (
	"context"
	"fmt"
	"strings"

	"swarmline/internal/domain"
)

// Provider executes one capability's work. Implementations are opaque to the
// task machinery; they receive the raw input and return a structured payload.
type Provider interface {
	Execute(ctx context.Context, input domain.Input) (map[string]any, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, input domain.Input) (map[string]any, error)

func (f ProviderFunc) Execute(ctx context.Context, input domain.Input) (map[string]any, error) {
	return f(ctx, input)
}

// BuiltinProvider returns the stock provider for a capability. These stand in
// for the real model/tool back-ends and answer with deterministic payloads in
// the shape the aggregator renders.
func BuiltinProvider(cap domain.Capability) (Provider, error) {
	switch cap {
	case domain.CapabilityResearch:
		return ProviderFunc(researchProvider), nil
	case domain.CapabilityCode:
		return ProviderFunc(codeProvider), nil
	case domain.CapabilityAnalytics:
		return ProviderFunc(analyticsProvider), nil
	}
	return nil, fmt.Errorf("no builtin provider for capability %s", cap)
}

func researchProvider(ctx context.Context, input domain.Input) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topic := strings.TrimSpace(input.Message)
	return map[string]any{
		"findings":   fmt.Sprintf("Collected background on: %s", topic),
		"sources":    []any{"swarmline knowledge base"},
		"confidence": "medium",
	}, nil
}

func codeProvider(ctx context.Context, input domain.Input) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]any{
		"code":        fmt.Sprintf("// generated for request: %s", strings.TrimSpace(input.Message)),
		"explanation": "Starting point generated without a model back-end.",
		"language":    "go",
	}, nil
}

func analyticsProvider(ctx context.Context, input domain.Input) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]any{
		"analysis": fmt.Sprintf("No data source attached for: %s", strings.TrimSpace(input.Message)),
		"metrics":  map[string]any{},
		"insights": []any{"connect a data source to compute real metrics"},
	}, nil
}
