package interceptor

import (
	"context"
	"fmt"

	"github.com/tessellate/praxis/pkg/hitl"
)

// ValueApproved marks an invocation whose pending approval was already
// granted. The approval interceptor lets such calls through so a resumed
// run does not suspend on the same tool call twice.
const ValueApproved = "hitl.approved"

// ApprovalPredicate inspects a tool call and reports whether it needs
// human approval, with a comment explaining why.
type ApprovalPredicate func(toolName string, args map[string]any) (bool, string)

// Approval suspends the run for human approval whenever a tool call is
// classified as sensitive, either by fixed name or by predicate. It never
// executes the tool itself; it aborts pre-invoke and attaches the pending
// task for the loop to surface.
type Approval struct {
	Base
	SensitiveTools map[string]bool
	Predicate      ApprovalPredicate
	ChainOrder     int
}

// NewApproval creates an approval interceptor for the named tools.
func NewApproval(sensitiveTools ...string) *Approval {
	set := make(map[string]bool, len(sensitiveTools))
	for _, name := range sensitiveTools {
		set[name] = true
	}
	return &Approval{SensitiveTools: set}
}

// Name implements Interceptor.
func (a *Approval) Name() string { return "approval" }

// Order implements Interceptor.
func (a *Approval) Order() int { return a.ChainOrder }

// PreInvoke implements Interceptor.
func (a *Approval) PreInvoke(_ context.Context, inv *Invocation) (bool, error) {
	if approved, _ := inv.Values[ValueApproved].(bool); approved {
		return true, nil
	}
	if a.SensitiveTools[inv.ToolName] {
		comment := fmt.Sprintf("tool %q is classified as sensitive", inv.ToolName)
		inv.PendingTask = hitl.NewTask(inv.ToolName, inv.Args, comment)
		return false, nil
	}
	if a.Predicate != nil {
		if flagged, comment := a.Predicate(inv.ToolName, inv.Args); flagged {
			if comment == "" {
				comment = fmt.Sprintf("call to %q flagged for approval", inv.ToolName)
			}
			inv.PendingTask = hitl.NewTask(inv.ToolName, inv.Args, comment)
			return false, nil
		}
	}
	return true, nil
}
