package governance

import (
	"context"
	"path"
	"strings"
)

// patternList holds tool name patterns. Entries are either exact
// names or path.Match globs such as "fs:*" or "Bash(*)".
type patternList []string

func newPatternList(entries []string) patternList {
	pl := make(patternList, 0, len(entries))
	for _, e := range entries {
		if e = strings.TrimSpace(e); e != "" {
			pl = append(pl, e)
		}
	}
	return pl
}

func (pl patternList) matches(name string) bool {
	for _, pattern := range pl {
		if pattern == name {
			return true
		}
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// ToolFilter decides which tools an agent may call. A denylist entry
// wins over everything else, a non-empty allowlist admits only its
// members, and an optional policy engine rules on whatever remains.
type ToolFilter struct {
	allow  patternList
	deny   patternList
	engine PolicyEngine
}

// ToolFilterOption configures a ToolFilter.
type ToolFilterOption func(*ToolFilter)

// WithAllowlist restricts the filter to the named tools.
func WithAllowlist(tools []string) ToolFilterOption {
	return func(tf *ToolFilter) {
		tf.allow = append(tf.allow, newPatternList(tools)...)
	}
}

// WithDenylist forbids the named tools unconditionally.
func WithDenylist(tools []string) ToolFilterOption {
	return func(tf *ToolFilter) {
		tf.deny = append(tf.deny, newPatternList(tools)...)
	}
}

// WithPolicyEngine attaches a rule engine consulted after the lists.
func WithPolicyEngine(engine PolicyEngine) ToolFilterOption {
	return func(tf *ToolFilter) {
		tf.engine = engine
	}
}

// NewToolFilter builds a filter. With no options it allows everything.
func NewToolFilter(opts ...ToolFilterOption) *ToolFilter {
	tf := &ToolFilter{}
	for _, opt := range opts {
		opt(tf)
	}
	return tf
}

// IsAllowed rules on a single tool name.
func (tf *ToolFilter) IsAllowed(ctx context.Context, toolName string) Decision {
	if tf.deny.matches(toolName) {
		return Decision{Status: DecisionStatusDeny, Reason: "tool is in denylist"}
	}
	if len(tf.allow) > 0 && !tf.allow.matches(toolName) {
		return Decision{Status: DecisionStatusDeny, Reason: "tool is not in allowlist"}
	}
	if tf.engine != nil {
		return tf.engine.Evaluate(ctx, Action{Type: ActionTool, Name: toolName})
	}
	return Decision{Allowed: true, Status: DecisionStatusAllow}
}

// FilterTools keeps only the names the filter allows, preserving
// their order.
func (tf *ToolFilter) FilterTools(ctx context.Context, toolNames []string) []string {
	if len(tf.allow) == 0 && len(tf.deny) == 0 && tf.engine == nil {
		return toolNames
	}
	kept := make([]string, 0, len(toolNames))
	for _, name := range toolNames {
		if tf.IsAllowed(ctx, name).IsAllowed() {
			kept = append(kept, name)
		}
	}
	return kept
}
