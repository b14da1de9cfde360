package orchestrator

import (
	"errors"
	"strings"

	"swarmline/internal/config"
	"swarmline/internal/domain"
)

// DefaultCapability handles requests no trigger rule claims.
const DefaultCapability = domain.CapabilityResearch

var ErrEmptyRequest = errors.New("request message is required")

// Rule maps a capability to the phrases that route work to it.
type Rule struct {
	Capability domain.Capability
	Triggers   []string
}

// RulesFromConfig builds the classifier rule table in configured order.
func RulesFromConfig(cfg *config.Config) []Rule {
	rules := make([]Rule, 0, len(cfg.Capabilities))
	for _, route := range cfg.Capabilities {
		rules = append(rules, Rule{Capability: route.Name, Triggers: route.Triggers})
	}
	return rules
}

// Matches reports whether the rule claims the (already lowercased) message.
func (r Rule) Matches(lowered string) bool {
	for _, trig := range r.Triggers {
		if strings.Contains(lowered, strings.ToLower(trig)) {
			return true
		}
	}
	return false
}

// Decompose classifies a request into an ordered plan of subtasks. Rules are
// evaluated independently, so one request can fan out to several
// capabilities. A request no rule claims falls back to a single
// DefaultCapability subtask; only an empty request is an error.
func Decompose(message string, metadata map[string]any, rules []Rule) (domain.DecompositionPlan, error) {
	if strings.TrimSpace(message) == "" {
		return domain.DecompositionPlan{}, ErrEmptyRequest
	}
	lowered := strings.ToLower(message)
	input := domain.Input{Message: message, Metadata: metadata}

	var plan domain.DecompositionPlan
	for _, rule := range rules {
		if rule.Matches(lowered) {
			plan.Subtasks = append(plan.Subtasks, domain.Subtask{Capability: rule.Capability, Input: input})
		}
	}
	if len(plan.Subtasks) == 0 {
		plan.Subtasks = append(plan.Subtasks, domain.Subtask{Capability: DefaultCapability, Input: input})
	}
	return plan, nil
}
