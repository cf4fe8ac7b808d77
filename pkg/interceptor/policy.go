package interceptor

import (
	"context"
	"fmt"

	praxiserrors "github.com/tessellate/praxis/pkg/errors"
	"github.com/tessellate/praxis/pkg/governance"
	"github.com/tessellate/praxis/pkg/hitl"
)

// Policy gates tool calls through a governance filter. Denied calls
// abort with a tool failure; calls whose rule asks for a human decision
// suspend the run the same way the approval interceptor does.
type Policy struct {
	Base
	Filter     *governance.ToolFilter
	ChainOrder int
}

// NewPolicy creates a policy interceptor around the given filter. It
// orders itself before the approval interceptor so hard denials never
// reach a human.
func NewPolicy(filter *governance.ToolFilter) *Policy {
	return &Policy{Filter: filter, ChainOrder: -10}
}

// Name implements Interceptor.
func (p *Policy) Name() string { return "policy" }

// Order implements Interceptor.
func (p *Policy) Order() int { return p.ChainOrder }

// PreInvoke implements Interceptor.
func (p *Policy) PreInvoke(ctx context.Context, inv *Invocation) (bool, error) {
	if p.Filter == nil {
		return true, nil
	}
	decision := p.Filter.IsAllowed(ctx, inv.ToolName)
	switch {
	case decision.IsAllowed():
		return true, nil
	case decision.IsPending():
		if approved, _ := inv.Values[ValueApproved].(bool); approved {
			return true, nil
		}
		comment := decision.Reason
		if comment == "" {
			comment = fmt.Sprintf("policy requires approval for %q", inv.ToolName)
		}
		inv.PendingTask = hitl.NewTask(inv.ToolName, inv.Args, comment)
		return false, nil
	default:
		reason := decision.Reason
		if reason == "" {
			reason = "denied by policy"
		}
		err := praxiserrors.New(praxiserrors.CodeToolFailure,
			fmt.Sprintf("tool %q rejected: %s", inv.ToolName, reason), nil).
			WithContext("tool", inv.ToolName)
		if decision.RuleID != "" {
			err = err.WithContext("rule", decision.RuleID)
		}
		return false, err
	}
}

// PolicyFromRules builds a policy interceptor from allow/deny lists and
// ordered rules, the shape the governance config section carries.
func PolicyFromRules(allowlist, denylist []string, rules []governance.Rule) *Policy {
	opts := []governance.ToolFilterOption{
		governance.WithAllowlist(allowlist),
		governance.WithDenylist(denylist),
	}
	if len(rules) > 0 {
		opts = append(opts, governance.WithPolicyEngine(governance.NewRuleSet(rules)))
	}
	return NewPolicy(governance.NewToolFilter(opts...))
}
