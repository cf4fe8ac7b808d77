package governance

import (
	"context"
	"path"
	"strings"

	"github.com/tessellate/praxis/pkg/config"
)

// ActionType classifies what an agent is about to do.
type ActionType string

const (
	ActionTool  ActionType = "tool"
	ActionAgent ActionType = "agent"
	ActionMCP   ActionType = "mcp"
)

// Action is one evaluation target: a tool call, an agent invocation,
// or an MCP operation.
type Action struct {
	Type     ActionType
	Name     string
	Metadata map[string]string
}

// Decision is a policy verdict. Pending means the action needs a
// human decision before it may proceed.
type Decision struct {
	Allowed bool
	Reason  string
	RuleID  string
	Status  DecisionStatus
}

// DecisionStatus names the three verdicts.
type DecisionStatus string

const (
	DecisionStatusAllow   DecisionStatus = "allow"
	DecisionStatusDeny    DecisionStatus = "deny"
	DecisionStatusPending DecisionStatus = "pending"
)

// IsAllowed reports whether the action may proceed unattended.
func (d Decision) IsAllowed() bool {
	if d.Status == "" {
		return d.Allowed
	}
	return d.Status == DecisionStatusAllow
}

// IsPending reports whether the action is parked for approval.
func (d Decision) IsPending() bool { return d.Status == DecisionStatusPending }

// IsDenied reports whether the action is forbidden outright.
func (d Decision) IsDenied() bool {
	if d.Status == "" {
		return !d.Allowed
	}
	return d.Status == DecisionStatusDeny
}

// PolicyEngine evaluates actions against a policy.
type PolicyEngine interface {
	Evaluate(ctx context.Context, action Action) Decision
}

// Rule is one ordered policy entry. Name is a glob over the action
// name; an empty Type or Name matches everything.
type Rule struct {
	ID     string
	Effect string // allow, deny, or pending
	Type   ActionType
	Name   string
	Reason string
}

// matches reports whether the rule applies to the action.
func (r Rule) matches(action Action) bool {
	if r.Type != "" && r.Type != action.Type {
		return false
	}
	if r.Name == "" {
		return true
	}
	if ok, err := path.Match(r.Name, action.Name); err == nil && ok {
		return true
	}
	return r.Name == action.Name
}

// status maps the rule's effect string onto a verdict. Unknown
// effects read as allow.
func (r Rule) status() DecisionStatus {
	switch strings.ToLower(r.Effect) {
	case "deny":
		return DecisionStatusDeny
	case "pending":
		return DecisionStatusPending
	default:
		return DecisionStatusAllow
	}
}

// RuleSet is a first-match-wins policy engine.
type RuleSet struct {
	Rules           []Rule
	DefaultDecision Decision
}

// NewRuleSet copies the rules and defaults to allow when none match.
func NewRuleSet(rules []Rule) *RuleSet {
	return &RuleSet{
		Rules:           append([]Rule(nil), rules...),
		DefaultDecision: Decision{Allowed: true, Status: DecisionStatusAllow},
	}
}

// Evaluate returns the verdict of the first matching rule.
func (r *RuleSet) Evaluate(_ context.Context, action Action) Decision {
	for _, rule := range r.Rules {
		if !rule.matches(action) {
			continue
		}
		status := rule.status()
		return Decision{
			Allowed: status == DecisionStatusAllow,
			Reason:  rule.Reason,
			RuleID:  rule.ID,
			Status:  status,
		}
	}
	return r.DefaultDecision
}

// RuleSetFromConfig builds the engine from the governance config
// section. Rules without an ID get a placeholder so audit log entries
// always name something.
func RuleSetFromConfig(cfg config.GovernanceConfig) *RuleSet {
	rules := make([]Rule, 0, len(cfg.Policies))
	for _, rc := range cfg.Policies {
		id := strings.TrimSpace(rc.ID)
		if id == "" {
			id = "rule"
		}
		rules = append(rules, Rule{
			ID:     id,
			Effect: rc.Effect,
			Type:   ActionType(strings.ToLower(rc.Type)),
			Name:   rc.Name,
			Reason: rc.Reason,
		})
	}
	return NewRuleSet(rules)
}
