package aggregate

import (
	"strings"
	"testing"

	"swarmline/internal/delegate"
	"swarmline/internal/domain"
)

func TestAggregatePartialFailureStillSucceeds(t *testing.T) {
	results := []delegate.Result{
		{
			Capability: domain.CapabilityResearch,
			Kind:       delegate.Completed,
			Output:     map[string]any{"findings": "Go has goroutines.", "confidence": "high"},
		},
		{
			Capability: domain.CapabilityCode,
			Kind:       delegate.Failed,
			Err:        "syntax error in generated code",
		},
	}
	agg := Aggregate("ctx-1", "research goroutines and write code", results)

	if !agg.Success {
		t.Fatal("one completed subtask must make the aggregate successful")
	}
	if len(agg.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(agg.Sections))
	}
	if !agg.Sections[0].OK || agg.Sections[1].OK {
		t.Fatalf("section flags wrong: %+v", agg.Sections)
	}
	if !strings.Contains(agg.Summary, "## Research Findings") {
		t.Fatalf("research section missing from summary:\n%s", agg.Summary)
	}
	if !strings.Contains(agg.Summary, "Some capabilities could not complete") {
		t.Fatalf("failure appendix missing from summary:\n%s", agg.Summary)
	}
	if !strings.Contains(agg.Summary, "syntax error in generated code") {
		t.Fatalf("failure reason missing from summary:\n%s", agg.Summary)
	}
}

func TestAggregateAllFailed(t *testing.T) {
	results := []delegate.Result{
		{Capability: domain.CapabilityResearch, Kind: delegate.Failed, Err: "delegation error: connection refused"},
		{Capability: domain.CapabilityCode, Kind: delegate.TimedOut},
	}
	agg := Aggregate("ctx-1", "research and code something", results)

	if agg.Success {
		t.Fatal("aggregate must not succeed when every subtask failed")
	}
	if !strings.HasPrefix(agg.Summary, "I encountered issues while processing your request:") {
		t.Fatalf("unexpected all-failure summary:\n%s", agg.Summary)
	}
	if !strings.Contains(agg.Summary, "Research: delegation error: connection refused") {
		t.Fatalf("research failure missing:\n%s", agg.Summary)
	}
	if !strings.Contains(agg.Summary, "Code: exceeded time budget") {
		t.Fatalf("timeout reason missing:\n%s", agg.Summary)
	}
	if !strings.Contains(agg.Summary, "Please try again or rephrase your request.") {
		t.Fatalf("retry hint missing:\n%s", agg.Summary)
	}
}

func TestAggregateSingleTimedOutSubtask(t *testing.T) {
	agg := Aggregate("ctx-1", "find the latest library for X", []delegate.Result{
		{Capability: domain.CapabilityResearch, Kind: delegate.TimedOut},
	})
	if agg.Success {
		t.Fatal("timed-out research must not succeed")
	}
	for _, s := range agg.Sections {
		if s.OK {
			t.Fatalf("unexpected success section: %+v", s)
		}
	}
	if !strings.Contains(agg.Summary, "Research: exceeded time budget") {
		t.Fatalf("research timeout not named:\n%s", agg.Summary)
	}
}

func TestAggregateEmptyResultsIsNonEmptyFailure(t *testing.T) {
	agg := Aggregate("ctx-1", "anything", nil)
	if agg.Success {
		t.Fatal("empty result set must not succeed")
	}
	if strings.TrimSpace(agg.Summary) == "" {
		t.Fatal("summary must never be empty")
	}
	if !strings.Contains(agg.Summary, "unable to process request due to system issues") {
		t.Fatalf("guard line missing:\n%s", agg.Summary)
	}
}

func TestAggregateTruncatesLongReasons(t *testing.T) {
	long := strings.Repeat("x", 500)
	agg := Aggregate("ctx-1", "request", []delegate.Result{
		{Capability: domain.CapabilityCode, Kind: delegate.Failed, Err: long},
	})
	reason := agg.Sections[0].Error
	if len(reason) != maxReasonLen+3 {
		t.Fatalf("expected reason truncated to %d+ellipsis, got len %d", maxReasonLen, len(reason))
	}
	if !strings.HasSuffix(reason, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", reason[len(reason)-10:])
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	results := []delegate.Result{
		{
			Capability: domain.CapabilityAnalytics,
			Kind:       delegate.Completed,
			Output: map[string]any{
				"analysis": "numbers looked at",
				"metrics":  map[string]any{"z_score": 1.2, "average": 4.5, "median": 4.0},
				"insights": []any{"rising trend"},
			},
		},
	}
	first := Aggregate("ctx-1", "analyze data", results)
	for i := 0; i < 10; i++ {
		again := Aggregate("ctx-1", "analyze data", results)
		if again.Summary != first.Summary {
			t.Fatalf("summary not deterministic:\n%s\nvs\n%s", first.Summary, again.Summary)
		}
	}
	// Metric keys render sorted.
	avg := strings.Index(first.Summary, "average")
	med := strings.Index(first.Summary, "median")
	z := strings.Index(first.Summary, "z_score")
	if avg < 0 || med < 0 || z < 0 || !(avg < med && med < z) {
		t.Fatalf("metrics not sorted:\n%s", first.Summary)
	}
}

func TestFormatResearchCapsSources(t *testing.T) {
	sources := make([]any, 8)
	for i := range sources {
		sources[i] = "https://example.com/" + strings.Repeat("a", i+1)
	}
	out := formatResearch(map[string]any{
		"findings":   "many results",
		"sources":    sources,
		"confidence": "medium",
	})
	if got := strings.Count(out, "- https://example.com/"); got != 5 {
		t.Fatalf("expected 5 sources rendered, got %d:\n%s", got, out)
	}
	if !strings.Contains(out, "*Confidence level: medium*") {
		t.Fatalf("confidence missing:\n%s", out)
	}
}

func TestFormatCodeFencesOutput(t *testing.T) {
	out := formatCode(map[string]any{
		"explanation": "a parser",
		"code":        "func Parse() {}",
		"language":    "go",
	})
	if !strings.Contains(out, "```go\nfunc Parse() {}\n```") {
		t.Fatalf("code fence wrong:\n%s", out)
	}

	// Fallback key and fallback language.
	out = formatCode(map[string]any{"output": "print(1)"})
	if !strings.Contains(out, "```text\nprint(1)\n```") {
		t.Fatalf("fallback fence wrong:\n%s", out)
	}
}

func TestFormatGenericUnknownCapability(t *testing.T) {
	out := formatSection(domain.Capability("summarize"), map[string]any{"output": "short version"})
	if !strings.Contains(out, "## Summarize Results") {
		t.Fatalf("generic header wrong:\n%s", out)
	}
	if !strings.Contains(out, "short version") {
		t.Fatalf("generic body missing:\n%s", out)
	}
}
