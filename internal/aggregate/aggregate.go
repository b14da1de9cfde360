package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"swarmline/internal/delegate"
	"swarmline/internal/domain"
)

// maxReasonLen bounds failure reasons surfaced to the end consumer so raw
// internal diagnostics are never forwarded verbatim.
const maxReasonLen = 200

const timedOutReason = "exceeded time budget"

// Aggregate merges the ordered subtask outcomes of one plan into a single
// response. Output is deterministic in the order of results, which the
// coordinator fixes to plan order before calling.
func Aggregate(contextID, request string, results []delegate.Result) domain.AggregatedResult {
	agg := domain.AggregatedResult{
		ContextID: contextID,
		Sections:  make([]domain.Section, 0, len(results)),
	}
	var failed []domain.Section
	for _, res := range results {
		switch res.Kind {
		case delegate.Completed:
			agg.Success = true
			agg.Sections = append(agg.Sections, domain.Section{
				Capability: res.Capability,
				OK:         true,
				Content:    formatSection(res.Capability, res.Output),
			})
		case delegate.TimedOut:
			s := domain.Section{Capability: res.Capability, Error: timedOutReason}
			agg.Sections = append(agg.Sections, s)
			failed = append(failed, s)
		default:
			s := domain.Section{Capability: res.Capability, Error: truncate(res.Err)}
			agg.Sections = append(agg.Sections, s)
			failed = append(failed, s)
		}
	}
	agg.Summary = renderSummary(request, agg.Sections, failed, agg.Success)
	return agg
}

func renderSummary(request string, sections, failed []domain.Section, success bool) string {
	if !success {
		var b strings.Builder
		b.WriteString("I encountered issues while processing your request:\n")
		if len(failed) == 0 {
			b.WriteString("- unable to process request due to system issues\n")
		}
		for _, s := range failed {
			fmt.Fprintf(&b, "- %s: %s\n", capitalize(string(s.Capability)), reasonOrUnknown(s.Error))
		}
		b.WriteString("\nPlease try again or rephrase your request.")
		return b.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on your request: %q, here's what I found:\n", request)
	for _, s := range sections {
		if !s.OK {
			continue
		}
		b.WriteString("\n")
		b.WriteString(s.Content)
		b.WriteString("\n")
	}
	if len(failed) > 0 {
		b.WriteString("\n---\nSome capabilities could not complete:\n")
		for _, s := range failed {
			fmt.Fprintf(&b, "- %s: %s\n", s.Capability, reasonOrUnknown(s.Error))
		}
	}
	return b.String()
}

func formatSection(cap domain.Capability, output map[string]any) string {
	switch cap {
	case domain.CapabilityResearch:
		return formatResearch(output)
	case domain.CapabilityCode:
		return formatCode(output)
	case domain.CapabilityAnalytics:
		return formatAnalytics(output)
	}
	return formatGeneric(cap, output)
}

func formatResearch(output map[string]any) string {
	var b strings.Builder
	b.WriteString("## Research Findings\n")
	if findings := str(output, "findings"); findings != "" {
		b.WriteString(findings)
		b.WriteString("\n")
	}
	if sources := list(output, "sources"); len(sources) > 0 {
		b.WriteString("\n**Sources:**\n")
		if len(sources) > 5 {
			sources = sources[:5]
		}
		for _, src := range sources {
			fmt.Fprintf(&b, "- %s\n", src)
		}
	}
	if confidence := str(output, "confidence"); confidence != "" {
		fmt.Fprintf(&b, "\n*Confidence level: %s*", confidence)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCode(output map[string]any) string {
	var b strings.Builder
	b.WriteString("## Code Solution\n")
	if explanation := str(output, "explanation"); explanation != "" {
		b.WriteString(explanation)
		b.WriteString("\n")
	}
	code := str(output, "code")
	if code == "" {
		code = str(output, "output")
	}
	if code != "" {
		language := str(output, "language")
		if language == "" {
			language = "text"
		}
		fmt.Fprintf(&b, "\n```%s\n%s\n```", language, code)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatAnalytics(output map[string]any) string {
	var b strings.Builder
	b.WriteString("## Data Analysis\n")
	if analysis := str(output, "analysis"); analysis != "" {
		b.WriteString(analysis)
		b.WriteString("\n")
	}
	if metrics, ok := output["metrics"].(map[string]any); ok && len(metrics) > 0 {
		b.WriteString("\n**Key Metrics:**\n")
		keys := make([]string, 0, len(metrics))
		for k := range metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, metrics[k])
		}
	}
	if insights := list(output, "insights"); len(insights) > 0 {
		b.WriteString("\n**Insights:**\n")
		for _, in := range insights {
			fmt.Fprintf(&b, "- %s\n", in)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatGeneric(cap domain.Capability, output map[string]any) string {
	body := str(output, "output")
	if body == "" {
		body = str(output, "response")
	}
	if body == "" {
		body = fmt.Sprintf("%v", output)
	}
	return fmt.Sprintf("## %s Results\n%s", capitalize(string(cap)), body)
}

func truncate(reason string) string {
	if reason == "" {
		return reason
	}
	if len(reason) > maxReasonLen {
		return reason[:maxReasonLen] + "..."
	}
	return reason
}

func reasonOrUnknown(reason string) string {
	if reason == "" {
		return "unknown error"
	}
	return reason
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func list(m map[string]any, key string) []string {
	var out []string
	switch v := m[key].(type) {
	case []any:
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
	case []string:
		out = v
	}
	return out
}
