// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package loop implements the reason/act/observe engine that drives a
// single agent: the model proposes a thought or tool call, interceptors
// screen the call, the tool runs, and its output feeds the next thought.
// A run is cooperative: it executes until it completes, fails, or
// suspends for a human decision, then returns control to the caller.
// Resumption is a fresh invocation against the persisted trace, never a
// continuation of an in-memory stack.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/tessellate/praxis/pkg/core"
	praxiserrors "github.com/tessellate/praxis/pkg/errors"
	"github.com/tessellate/praxis/pkg/hitl"
	"github.com/tessellate/praxis/pkg/interceptor"
	"github.com/tessellate/praxis/pkg/llm"
	"github.com/tessellate/praxis/pkg/resilience"
	"github.com/tessellate/praxis/pkg/session"
	"github.com/tessellate/praxis/pkg/telemetry"
	"github.com/tessellate/praxis/pkg/trace"
)

const (
	// ActionRevisePlan is the reserved action a planning-mode model emits
	// to atomically replace the current plan list.
	ActionRevisePlan = "revise_plan"

	// DefaultMaxSteps bounds a run's iterations unless overridden.
	DefaultMaxSteps = 10

	// DefaultStepDelta is the one-time budget increase granted when a
	// step-limit request is approved.
	DefaultStepDelta = 10
)

// Result is the outcome of one Run or Resume call.
type Result struct {
	Status  trace.Status
	Answer  string
	Trace   *trace.ExecutionTrace
	Pending *hitl.Task
}

// Loop drives one agent through reason/act/observe cycles.
type Loop struct {
	name         string
	provider     llm.Provider
	model        string
	systemPrompt string
	outputKey    string

	tools     map[string]core.Tool
	chain     *interceptor.Chain
	extraICs  []interceptor.Interceptor
	decisions hitl.Store
	emitter   core.EventEmitter
	log       *slog.Logger
	tracer    oteltrace.Tracer

	maxSteps  int
	stepDelta int
	feedback  bool
	planning  bool
	retry     resilience.RetryConfig
}

// Option configures a Loop.
type Option func(*Loop)

// WithModel sets the model identifier passed to the provider.
func WithModel(model string) Option {
	return func(l *Loop) { l.model = model }
}

// WithSystemPrompt sets the agent's system instruction.
func WithSystemPrompt(prompt string) Option {
	return func(l *Loop) { l.systemPrompt = prompt }
}

// WithOutputKey names the session variable that receives the final
// answer, making it visible to later agents via interpolation.
func WithOutputKey(key string) Option {
	return func(l *Loop) { l.outputKey = key }
}

// WithTools registers the tools the model may call.
func WithTools(tools ...core.Tool) Option {
	return func(l *Loop) {
		for _, t := range tools {
			l.tools[t.Name()] = t
		}
	}
}

// WithInterceptors installs cross-cutting handlers applied around every
// tool call, on top of the ambient audit and metrics interceptors.
func WithInterceptors(ics ...interceptor.Interceptor) Option {
	return func(l *Loop) { l.extraICs = append(l.extraICs, ics...) }
}

// WithDecisionStore sets the store for pending tasks and decisions.
func WithDecisionStore(store hitl.Store) Option {
	return func(l *Loop) { l.decisions = store }
}

// WithEmitter streams loop events to the given emitter.
func WithEmitter(emitter core.EventEmitter) Option {
	return func(l *Loop) { l.emitter = emitter }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.log = logger }
}

// WithMaxSteps sets the iteration budget.
func WithMaxSteps(n int) Option {
	return func(l *Loop) { l.maxSteps = n }
}

// WithStepDelta sets the one-time budget increase for approved
// step-limit requests.
func WithStepDelta(n int) Option {
	return func(l *Loop) { l.stepDelta = n }
}

// WithFeedback enables step-limit approval requests instead of silent
// failure at the budget edge.
func WithFeedback(enabled bool) Option {
	return func(l *Loop) { l.feedback = enabled }
}

// WithPlanning enables the optional plan-first refinement of reasoning.
func WithPlanning(enabled bool) Option {
	return func(l *Loop) { l.planning = enabled }
}

// WithRetry sets the retry policy for model calls.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(l *Loop) { l.retry = rc }
}

// New creates a loop for the named agent.
func New(name string, provider llm.Provider, opts ...Option) *Loop {
	l := &Loop{
		name:      name,
		provider:  provider,
		tools:     make(map[string]core.Tool),
		decisions: hitl.NewMemoryStore(),
		emitter:   core.NoopEventEmitter{},
		log:       slog.Default(),
		tracer:    otel.Tracer("praxis/loop"),
		maxSteps:  DefaultMaxSteps,
		stepDelta: DefaultStepDelta,
		retry:     resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(l)
	}
	ics := append([]interceptor.Interceptor{
		&interceptor.Audit{Logger: l.log, ChainOrder: -100},
		&interceptor.Metrics{ChainOrder: -90},
	}, l.extraICs...)
	l.chain = interceptor.NewChain(ics...)
	return l
}

// Name returns the agent name.
func (l *Loop) Name() string { return l.name }

// Run starts a fresh reason/act cycle for the prompt. The session keeps
// the resulting trace under the agent's name; if the run suspends for a
// human decision, persist the session and call Resume after submitting
// the decision.
func (l *Loop) Run(ctx context.Context, sess *session.Session, prompt string) (*Result, error) {
	if sess == nil {
		return nil, praxiserrors.New(praxiserrors.CodeInvalidInput, "session is required", nil)
	}
	ctx = core.WithSessionID(ctx, sess.ID)
	ctx, runID := core.EnsureRunID(ctx)

	ctx, span := l.tracer.Start(ctx, "Loop.Run", oteltrace.WithAttributes(
		telemetry.AgentAttributes(l.name, "", l.model, runID, 0, l.maxSteps)...,
	))
	defer span.End()

	log := l.runLogger(runID, sess.ID)

	prev := sess.Trace(l.name)
	if prev != nil && prev.Status == trace.StatusPending {
		return nil, praxiserrors.New(praxiserrors.CodeDecisionPending,
			"run is suspended awaiting a decision; submit one and call Resume", nil).
			WithContext("agent", l.name).
			WithContext("session_id", sess.ID)
	}

	tr := prev
	if tr == nil {
		tr = trace.NewExecutionTrace(l.maxSteps)
	} else {
		tr.ResetForPrompt(true)
		tr.MaxSteps = l.maxSteps
		tr.LimitExtended = false
	}
	sess.PutTrace(l.name, tr)

	prompt = sess.Interpolate(prompt)
	log.Info("loop.run.start",
		slog.Int("max_steps", tr.MaxSteps),
		slog.Bool("planning", l.planning),
	)

	if l.planning {
		l.draftPlan(ctx, log, tr, prompt)
	}

	sess.AppendMessage(llm.Message{Role: llm.RoleUser, Content: prompt})
	tr.WorkingMemory = append([]llm.Message(nil), sess.Messages...)

	return l.iterate(ctx, log, sess, tr)
}

// Resume re-enters a suspended run. Exactly one decision is consumed
// from the store; if none has been submitted yet the run stays PENDING
// and nothing happens.
func (l *Loop) Resume(ctx context.Context, sess *session.Session) (*Result, error) {
	if sess == nil {
		return nil, praxiserrors.New(praxiserrors.CodeInvalidInput, "session is required", nil)
	}
	tr := sess.Trace(l.name)
	if tr == nil || tr.Status != trace.StatusPending || tr.PendingTask == nil {
		return nil, praxiserrors.New(praxiserrors.CodeInvalidInput, "no suspended run to resume", nil).
			WithContext("agent", l.name).
			WithContext("session_id", sess.ID)
	}

	ctx = core.WithSessionID(ctx, sess.ID)
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := l.tracer.Start(ctx, "Loop.Resume", oteltrace.WithAttributes(
		telemetry.AgentAttributes(l.name, "", l.model, runID, tr.Iteration, tr.MaxSteps)...,
	))
	defer span.End()

	log := l.runLogger(runID, sess.ID)
	task := tr.PendingTask

	decision, ok, err := l.decisions.TakeDecision(ctx, sess.ID, task.ToolName)
	if err != nil {
		return nil, praxiserrors.New(praxiserrors.CodeInternal, "failed to read decision", err).
			WithContext("session_id", sess.ID)
	}
	if !ok {
		log.Info("loop.resume.no_decision", slog.String("tool", task.ToolName))
		return l.result(tr), nil
	}

	if err := l.decisions.ClearTask(ctx, sess.ID); err != nil {
		log.Warn("loop.resume.clear_task_failed", slog.String("error", err.Error()))
	}
	log.Info("loop.resume.start",
		slog.String("tool", task.ToolName),
		slog.String("outcome", string(decision.Outcome)),
	)
	l.emit(ctx, core.EventLoopResumed, map[string]any{
		"tool":    task.ToolName,
		"outcome": string(decision.Outcome),
	})

	if task.IsSentinel() {
		return l.resumeStepLimit(ctx, log, sess, tr, decision)
	}
	return l.resumeToolCall(ctx, log, sess, tr, task, decision)
}

func (l *Loop) resumeStepLimit(ctx context.Context, log *slog.Logger, sess *session.Session, tr *trace.ExecutionTrace, decision *hitl.Decision) (*Result, error) {
	if decision.Outcome != hitl.OutcomeApprove {
		tr.Fail("step limit extension declined")
		log.Warn("loop.step_limit.declined")
		l.emit(ctx, core.EventLoopFailed, map[string]any{"reason": "step limit extension declined"})
		return l.result(tr), praxiserrors.New(praxiserrors.CodeStepLimit,
			"step limit reached and extension declined", nil).
			WithContext("agent", l.name)
	}
	if !tr.LimitExtended {
		tr.MaxSteps += l.stepDelta
		tr.LimitExtended = true
	}
	tr.ClearPending()
	log.Info("loop.step_limit.extended", slog.Int("max_steps", tr.MaxSteps))
	return l.iterate(ctx, log, sess, tr)
}

func (l *Loop) resumeToolCall(ctx context.Context, log *slog.Logger, sess *session.Session, tr *trace.ExecutionTrace, task *hitl.Task, decision *hitl.Decision) (*Result, error) {
	tr.ClearPending()

	switch decision.Outcome {
	case hitl.OutcomeReject:
		observation := "tool call rejected by reviewer"
		if decision.Comment != "" {
			observation += ": " + decision.Comment
		}
		if suspended := l.observe(ctx, log, sess, tr, lastToolCallID(tr), observation); suspended {
			return l.result(tr), nil
		}
		return l.continueOrFail(ctx, log, sess, tr)

	case hitl.OutcomeSkip:
		observation := "tool call skipped for now"
		if decision.Comment != "" {
			observation += ": " + decision.Comment
		}
		if suspended := l.observe(ctx, log, sess, tr, lastToolCallID(tr), observation); suspended {
			return l.result(tr), nil
		}
		return l.continueOrFail(ctx, log, sess, tr)

	case hitl.OutcomeApprove:
		args := task.Args
		if decision.ModifiedArgs != nil {
			args = decision.ModifiedArgs
		}
		outcome := l.act(ctx, log, sess, tr, task.ToolName, lastToolCallID(tr), args, true)
		return l.afterAction(ctx, log, sess, tr, outcome)

	default:
		tr.Suspend(task, tr.InterruptReason)
		return l.result(tr), praxiserrors.New(praxiserrors.CodeInvalidInput,
			"unknown decision outcome", nil).
			WithContext("outcome", string(decision.Outcome))
	}
}

// iterate runs reason/act/observe cycles until the trace leaves RUNNING.
func (l *Loop) iterate(ctx context.Context, log *slog.Logger, sess *session.Session, tr *trace.ExecutionTrace) (*Result, error) {
	for tr.Status == trace.StatusRunning {
		resp, err := l.chat(ctx, tr)
		if err != nil {
			tr.Fail("model call failed: " + err.Error())
			log.Error("loop.reason.error", slog.String("error", err.Error()))
			l.emit(ctx, core.EventLoopFailed, map[string]any{"error": err.Error()})
			perr := praxiserrors.New(praxiserrors.CodeLLMError, "model call failed", err).
				WithContext("agent", l.name).
				WithContext("iteration", tr.Iteration)
			recordLoopError(ctx, perr)
			return l.result(tr), perr
		}

		if resp.IsFinish() {
			answer := strings.TrimSpace(resp.Content)
			tr.Append(trace.StepReason, answer)
			tr.WorkingMemory = append(tr.WorkingMemory, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
			tr.Complete(answer)
			l.finish(ctx, log, sess, tr, answer)
			return l.result(tr), nil
		}

		tc := resp.ToolCalls[0]
		thought := strings.TrimSpace(resp.Content)
		if thought == "" {
			thought = fmt.Sprintf("call %s", tc.Function.Name)
		}
		tr.Append(trace.StepReason, thought)
		tr.WorkingMemory = append(tr.WorkingMemory, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		l.emit(ctx, core.EventLoopThinking, map[string]any{
			"thought": thought,
			"tool":    tc.Function.Name,
		})

		args, argsErr := tc.Function.ArgsMap()
		if argsErr != nil {
			if suspended := l.observe(ctx, log, sess, tr, tc.ID, "invalid tool arguments: "+argsErr.Error()); suspended {
				return l.result(tr), nil
			}
			if res, err := l.failIfExhausted(ctx, log, tr); res != nil {
				return res, err
			}
			continue
		}

		if tc.Function.Name == ActionRevisePlan {
			tr.ReplacePlans(plansFromArgs(args))
			log.Info("loop.plan.revised", slog.Int("steps", len(tr.Plans)))
			if suspended := l.observe(ctx, log, sess, tr, tc.ID, "plan revised"); suspended {
				return l.result(tr), nil
			}
			if res, err := l.failIfExhausted(ctx, log, tr); res != nil {
				return res, err
			}
			continue
		}

		outcome := l.act(ctx, log, sess, tr, tc.Function.Name, tc.ID, args, false)
		if res, err := l.afterAction(ctx, log, sess, tr, outcome); res != nil {
			return res, err
		}
	}
	return l.result(tr), nil
}

// actionOutcome carries the result of the ACTING phase.
type actionOutcome struct {
	pending     bool
	direct      bool
	answer      string
	toolCallID  string
	observation string
}

// act applies the interceptor chain and executes the tool. approved marks
// a resume after an explicit APPROVE decision; the chain still runs for
// audit and metrics, but approval screening lets the call through.
func (l *Loop) act(ctx context.Context, log *slog.Logger, sess *session.Session, tr *trace.ExecutionTrace, toolName, toolCallID string, args map[string]any, approved bool) actionOutcome {
	tr.Append(trace.StepAct, fmt.Sprintf("%s(%v)", toolName, args))
	l.emit(ctx, core.EventLoopActing, map[string]any{"tool": toolName})

	inv := &interceptor.Invocation{
		SessionID: sess.ID,
		AgentName: l.name,
		ToolName:  toolName,
		Args:      args,
		Values:    map[string]any{},
	}
	if approved {
		inv.Values[interceptor.ValueApproved] = true
	}

	exec := l.chain.Begin(inv)
	proceed, err := exec.PreInvoke(ctx)
	if err != nil {
		return actionOutcome{toolCallID: toolCallID, observation: fmt.Sprintf("tool %s blocked: %v", toolName, err)}
	}
	if !proceed {
		task := inv.PendingTask
		if task == nil {
			task = hitl.NewTask(toolName, args, "tool call intercepted")
		}
		if putErr := l.decisions.PutTask(ctx, sess.ID, task); putErr != nil {
			log.Error("loop.hitl.store_task_failed", slog.String("error", putErr.Error()))
			return actionOutcome{toolCallID: toolCallID, observation: "failed to store approval request: " + putErr.Error()}
		}
		tr.Suspend(task, "awaiting human decision for "+toolName)
		log.Info("loop.interrupted",
			slog.String("tool", toolName),
			slog.String("comment", task.Comment),
		)
		l.emit(ctx, core.EventLoopInterrupted, map[string]any{
			"tool":    toolName,
			"comment": task.Comment,
		})
		return actionOutcome{pending: true}
	}

	tool, found := l.tools[toolName]
	if !found {
		exec.AfterCompletion(ctx, nil)
		return actionOutcome{toolCallID: toolCallID, observation: fmt.Sprintf("unknown tool %q", toolName)}
	}

	toolStart := time.Now()
	toolCtx, toolSpan := l.tracer.Start(ctx, "Loop.Tool.Call")
	result, callErr := tool.Call(toolCtx, args)
	durationMs := time.Since(toolStart).Seconds() * 1000
	toolSpan.SetAttributes(telemetry.ToolCallAttributes(toolName, toolCallID, "local", durationMs, callErr == nil)...)
	toolSpan.End()

	if callErr != nil {
		if replacement := exec.OnError(ctx, callErr); replacement != nil {
			result = replacement
			callErr = nil
		}
	}
	if callErr != nil {
		exec.AfterCompletion(ctx, callErr)
		log.Warn("loop.tool.error",
			slog.String("tool", toolName),
			slog.String("error", callErr.Error()),
		)
		// Tool failures become observations; the model decides what to
		// try next, up to the step limit.
		return actionOutcome{toolCallID: toolCallID, observation: fmt.Sprintf("tool %s failed: %v", toolName, callErr)}
	}

	result = exec.PostInvoke(ctx, result)
	exec.AfterCompletion(ctx, nil)

	if core.IsDirect(tool) {
		return actionOutcome{direct: true, answer: fmt.Sprint(result)}
	}
	return actionOutcome{toolCallID: toolCallID, observation: fmt.Sprint(result)}
}

// afterAction routes the ACTING outcome. A non-nil result means the run
// reached a suspension or terminal point and iterate must return it.
func (l *Loop) afterAction(ctx context.Context, log *slog.Logger, sess *session.Session, tr *trace.ExecutionTrace, outcome actionOutcome) (*Result, error) {
	if outcome.pending {
		return l.result(tr), nil
	}
	if outcome.direct {
		tr.Append(trace.StepObserve, outcome.answer)
		tr.Complete(outcome.answer)
		l.finish(ctx, log, sess, tr, outcome.answer)
		return l.result(tr), nil
	}
	if suspended := l.observe(ctx, log, sess, tr, outcome.toolCallID, outcome.observation); suspended {
		return l.result(tr), nil
	}
	return l.failIfExhausted(ctx, log, tr)
}

// continueOrFail re-enters the reasoning cycle after a resume observation
// unless the budget ran out.
func (l *Loop) continueOrFail(ctx context.Context, log *slog.Logger, sess *session.Session, tr *trace.ExecutionTrace) (*Result, error) {
	if res, err := l.failIfExhausted(ctx, log, tr); res != nil {
		return res, err
	}
	return l.iterate(ctx, log, sess, tr)
}

// observe records a tool observation and increments the iteration. When
// the budget edge is crossed with feedback enabled, it suspends the run
// with a step-limit approval request and reports true.
func (l *Loop) observe(ctx context.Context, log *slog.Logger, sess *session.Session, tr *trace.ExecutionTrace, toolCallID, observation string) bool {
	tr.Append(trace.StepObserve, observation)
	tr.WorkingMemory = append(tr.WorkingMemory, llm.Message{
		Role:       llm.RoleTool,
		Content:    observation,
		ToolCallID: toolCallID,
	})
	tr.Iteration++
	l.emit(ctx, core.EventLoopObserving, map[string]any{
		"observation": observation,
		"iteration":   tr.Iteration,
	})

	threshold := tr.MaxSteps - 1
	if threshold < 1 {
		threshold = 1
	}
	if tr.Iteration >= threshold && l.feedback && !tr.LimitExtended {
		task := hitl.NewTask(hitl.SentinelAskFeedback, map[string]any{
			"iteration": tr.Iteration,
			"max_steps": tr.MaxSteps,
		}, "step budget nearly exhausted; approve to continue")
		if err := l.decisions.PutTask(ctx, sess.ID, task); err != nil {
			log.Error("loop.hitl.store_task_failed", slog.String("error", err.Error()))
			return false
		}
		tr.Suspend(task, "step limit approval requested")
		log.Info("loop.step_limit.requested",
			slog.Int("iteration", tr.Iteration),
			slog.Int("max_steps", tr.MaxSteps),
		)
		l.emit(ctx, core.EventLoopInterrupted, map[string]any{
			"tool":      hitl.SentinelAskFeedback,
			"iteration": tr.Iteration,
		})
		return true
	}
	return false
}

// failIfExhausted fails the run when the hard step cap is reached. The
// returned result is nil while budget remains.
func (l *Loop) failIfExhausted(ctx context.Context, log *slog.Logger, tr *trace.ExecutionTrace) (*Result, error) {
	if tr.Iteration < tr.MaxSteps {
		return nil, nil
	}
	tr.Fail(fmt.Sprintf("step limit of %d reached", tr.MaxSteps))
	log.Warn("loop.step_limit.exceeded", slog.Int("max_steps", tr.MaxSteps))
	l.emit(ctx, core.EventLoopFailed, map[string]any{"reason": "step limit reached"})
	perr := praxiserrors.New(praxiserrors.CodeStepLimit, "step limit reached", nil).
		WithContext("agent", l.name).
		WithContext("max_steps", tr.MaxSteps)
	recordLoopError(ctx, perr)
	return l.result(tr), perr
}

// finish records the final answer in the session.
func (l *Loop) finish(ctx context.Context, log *slog.Logger, sess *session.Session, tr *trace.ExecutionTrace, answer string) {
	sess.AppendMessage(llm.Message{Role: llm.RoleAssistant, Content: answer})
	if l.outputKey != "" {
		sess.SetVariable(l.outputKey, answer)
	}
	sess.PutTrace(l.name, tr)
	log.Info("loop.run.complete", slog.Int("iterations", tr.Iteration))
	l.emit(ctx, core.EventLoopCompleted, map[string]any{
		"answer":     answer,
		"iterations": tr.Iteration,
	})
}

// chat issues one model call under the retry policy.
func (l *Loop) chat(ctx context.Context, tr *trace.ExecutionTrace) (*llm.ChatResponse, error) {
	req := llm.ChatRequest{
		Model:    l.model,
		Messages: l.requestMessages(tr),
		Tools:    l.toolSchemas(),
	}

	llmCtx, span := l.tracer.Start(ctx, "Loop.LLM.Chat", oteltrace.WithAttributes(
		telemetry.LLMAttributes(l.model, "", len(req.Messages), 0)...,
	))
	defer span.End()

	var resp *llm.ChatResponse
	err := l.retry.Do(llmCtx, func() error {
		r, chatErr := l.provider.Chat(llmCtx, req)
		if chatErr != nil {
			return chatErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(telemetry.LLMUsageAttributes(
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, len(resp.ToolCalls))...)
	return resp, nil
}

// requestMessages assembles the model input: system instruction, the
// current plan as grounding, then the working memory.
func (l *Loop) requestMessages(tr *trace.ExecutionTrace) []llm.Message {
	messages := make([]llm.Message, 0, len(tr.WorkingMemory)+2)
	if l.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: l.systemPrompt})
	}
	if len(tr.Plans) > 0 {
		var b strings.Builder
		b.WriteString("Current plan:\n")
		for i, step := range tr.Plans {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
		b.WriteString("Use the revise_plan action if an observation invalidates the plan.")
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: b.String()})
	}
	return append(messages, tr.WorkingMemory...)
}

// toolSchemas lists the callable tools for the model.
func (l *Loop) toolSchemas() []llm.Tool {
	schemas := make([]llm.Tool, 0, len(l.tools)+1)
	for name := range l.tools {
		schemas = append(schemas, llm.Tool{
			Type:     llm.ToolTypeFunction,
			Function: llm.FunctionDef{Name: name, Parameters: map[string]any{"type": "object"}},
		})
	}
	if l.planning {
		schemas = append(schemas, llm.Tool{
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionDef{
				Name:        ActionRevisePlan,
				Description: "Replace the current plan with a new ordered step list.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"plans": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
				},
			},
		})
	}
	return schemas
}

// draftPlan asks the model whether the prompt needs decomposition. A
// simple task clears any carried plan entirely; partial carry-over is
// never allowed.
func (l *Loop) draftPlan(ctx context.Context, log *slog.Logger, tr *trace.ExecutionTrace, prompt string) {
	resp, err := l.provider.Chat(ctx, llm.ChatRequest{
		Model: l.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: planningInstruction},
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		log.Warn("loop.plan.error", slog.String("error", err.Error()))
		tr.ReplacePlans(nil)
		return
	}
	plans := parsePlanLines(resp.Content)
	tr.ReplacePlans(plans)
	if len(plans) == 0 {
		log.Info("loop.plan.simple")
	} else {
		log.Info("loop.plan.drafted", slog.Int("steps", len(plans)))
	}
}

const planningInstruction = "Decide whether the task needs a multi-step plan. " +
	"Reply with the single word SIMPLE if it can be answered directly, " +
	"otherwise reply with one plan step per line."

// parsePlanLines extracts plan steps, stripping list markers. A SIMPLE
// verdict yields no plan.
func parsePlanLines(content string) []string {
	trimmed := strings.TrimSpace(content)
	if strings.EqualFold(trimmed, "SIMPLE") {
		return nil
	}
	var plans []string
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		if line != "" {
			plans = append(plans, line)
		}
	}
	return plans
}

// plansFromArgs reads the step list out of a revise_plan action.
func plansFromArgs(args map[string]any) []string {
	raw, ok := args["plans"].([]any)
	if !ok {
		return nil
	}
	plans := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			plans = append(plans, strings.TrimSpace(s))
		}
	}
	return plans
}

// lastToolCallID finds the tool-call id of the most recent assistant
// message so a resume observation threads back to the right call.
func lastToolCallID(tr *trace.ExecutionTrace) string {
	for i := len(tr.WorkingMemory) - 1; i >= 0; i-- {
		msg := tr.WorkingMemory[i]
		if msg.Role == llm.RoleAssistant && len(msg.ToolCalls) > 0 {
			return msg.ToolCalls[0].ID
		}
	}
	return ""
}

func (l *Loop) result(tr *trace.ExecutionTrace) *Result {
	return &Result{
		Status:  tr.Status,
		Answer:  tr.FinalAnswer,
		Trace:   tr,
		Pending: tr.PendingTask,
	}
}

func (l *Loop) runLogger(runID, sessionID string) *slog.Logger {
	return l.log.With(
		slog.String("agent", l.name),
		slog.String("run_id", runID),
		slog.String("session_id", sessionID),
	)
}

func (l *Loop) emit(ctx context.Context, eventType core.EventType, payload map[string]any) {
	runID, _ := core.RunID(ctx)
	l.emitter.Emit(ctx, core.NewEvent(eventType, l.name, runID, payload))
}

var (
	errorMetricsOnce sync.Once
	errorMetrics     *telemetry.ErrorMetrics
)

// recordLoopError counts a terminal run failure. RecordErrorMetric is
// nil-safe, so a failed meter setup degrades to a no-op.
func recordLoopError(ctx context.Context, err error) {
	errorMetricsOnce.Do(func() {
		errorMetrics, _ = telemetry.NewErrorMetrics(ctx)
	})
	errorMetrics.RecordErrorMetric(ctx, err, "loop")
}
