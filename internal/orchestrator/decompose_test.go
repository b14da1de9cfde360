package orchestrator

import (
	"testing"

	"swarmline/internal/config"
	"swarmline/internal/domain"
)

func defaultRules() []Rule {
	return RulesFromConfig(config.Default())
}

func capabilities(plan domain.DecompositionPlan) []domain.Capability {
	out := make([]domain.Capability, 0, len(plan.Subtasks))
	for _, st := range plan.Subtasks {
		out = append(out, st.Capability)
	}
	return out
}

func TestDecomposeSingleCapability(t *testing.T) {
	plan, err := Decompose("please research distributed consensus", nil, defaultRules())
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	caps := capabilities(plan)
	if len(caps) != 1 || caps[0] != domain.CapabilityResearch {
		t.Fatalf("expected [research], got %v", caps)
	}
}

func TestDecomposeMultipleCapabilitiesInConfigOrder(t *testing.T) {
	plan, err := Decompose("analyze the data, then research options and implement code", nil, defaultRules())
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	caps := capabilities(plan)
	want := []domain.Capability{domain.CapabilityResearch, domain.CapabilityCode, domain.CapabilityAnalytics}
	if len(caps) != len(want) {
		t.Fatalf("expected %v, got %v", want, caps)
	}
	for i := range want {
		if caps[i] != want[i] {
			t.Fatalf("plan order wrong at %d: expected %v, got %v", i, want, caps)
		}
	}
}

func TestDecomposeMatchingIsCaseInsensitive(t *testing.T) {
	plan, err := Decompose("RESEARCH this topic", nil, defaultRules())
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if caps := capabilities(plan); len(caps) != 1 || caps[0] != domain.CapabilityResearch {
		t.Fatalf("expected [research], got %v", caps)
	}
}

func TestDecomposeFallsBackToDefault(t *testing.T) {
	plan, err := Decompose("tell me a story about turtles", nil, defaultRules())
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if caps := capabilities(plan); len(caps) != 1 || caps[0] != DefaultCapability {
		t.Fatalf("expected fallback to %s, got %v", DefaultCapability, caps)
	}
}

func TestDecomposeEmptyMessage(t *testing.T) {
	for _, message := range []string{"", "   ", "\n\t"} {
		if _, err := Decompose(message, nil, defaultRules()); err != ErrEmptyRequest {
			t.Fatalf("message %q: expected ErrEmptyRequest, got %v", message, err)
		}
	}
}

func TestDecomposeCarriesInput(t *testing.T) {
	metadata := map[string]any{"priority": "high"}
	plan, err := Decompose("research and code a thing", metadata, defaultRules())
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if len(plan.Subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(plan.Subtasks))
	}
	for _, st := range plan.Subtasks {
		if st.Input.Message != "research and code a thing" {
			t.Fatalf("message lost: %q", st.Input.Message)
		}
		if st.Input.Metadata["priority"] != "high" {
			t.Fatalf("metadata lost: %+v", st.Input.Metadata)
		}
	}
}
