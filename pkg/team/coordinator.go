// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package team runs several loop-driven agents as one logical task. A
// coordinator selects the next member, either by asking a router model
// or by walking a fixed protocol, records every contribution in the
// shared TeamTrace, and consults the loop detector before each round so
// a circling conversation is stopped instead of burning tokens.
package team

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/tessellate/praxis/pkg/core"
	praxiserrors "github.com/tessellate/praxis/pkg/errors"
	"github.com/tessellate/praxis/pkg/graph"
	"github.com/tessellate/praxis/pkg/hitl"
	"github.com/tessellate/praxis/pkg/llm"
	"github.com/tessellate/praxis/pkg/loop"
	"github.com/tessellate/praxis/pkg/loopdetect"
	"github.com/tessellate/praxis/pkg/resilience"
	"github.com/tessellate/praxis/pkg/session"
	"github.com/tessellate/praxis/pkg/trace"
)

// Protocol selects how the coordinator picks the next member.
type Protocol string

const (
	// ProtocolRouter asks a dedicated model call to name the next member
	// or signal completion.
	ProtocolRouter Protocol = "router"
	// ProtocolSequential walks the members in registration order via the
	// graph scheduler.
	ProtocolSequential Protocol = "sequential"
	// ProtocolParallel fans out to every member at once and joins their
	// outputs at a barrier.
	ProtocolParallel Protocol = "parallel"
)

// RouteFinish is the router verdict that ends the team run.
const RouteFinish = "FINISH"

// DefaultMaxTotalIterations bounds member invocations per team run.
const DefaultMaxTotalIterations = 20

// errLoopDetected stops a walk when the detector flags repetition.
var errLoopDetected = errors.New("conversation loop detected")

// errBudgetExhausted stops a walk when the member-invocation budget is
// spent.
var errBudgetExhausted = errors.New("iteration budget exhausted")

// Result is the outcome of one team Run or Resume call.
type Result struct {
	Status       trace.Status
	FinalAnswer  string
	Trace        *trace.TeamTrace
	PendingAgent string
	Pending      *hitl.Task
}

// Coordinator drives a set of agents as one task.
type Coordinator struct {
	name     string
	protocol Protocol
	members  []*loop.Loop
	byName   map[string]*loop.Loop

	router      llm.Provider
	routerModel string

	detector *loopdetect.Detector
	audit    graph.AuditStore
	emitter  core.EventEmitter
	log      *slog.Logger
	tracer   oteltrace.Tracer

	maxTotalIterations int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMembers registers the team members in order.
func WithMembers(members ...*loop.Loop) Option {
	return func(c *Coordinator) {
		for _, m := range members {
			c.members = append(c.members, m)
			c.byName[m.Name()] = m
		}
	}
}

// WithProtocol sets the member-selection protocol.
func WithProtocol(p Protocol) Option {
	return func(c *Coordinator) { c.protocol = p }
}

// WithRouter sets the model that makes routing decisions.
func WithRouter(provider llm.Provider, model string) Option {
	return func(c *Coordinator) {
		c.router = provider
		c.routerModel = model
	}
}

// WithDetector sets the loop detector consulted between rounds.
func WithDetector(d *loopdetect.Detector) Option {
	return func(c *Coordinator) { c.detector = d }
}

// WithGraphAudit records sequential-protocol node executions.
func WithGraphAudit(store graph.AuditStore) Option {
	return func(c *Coordinator) { c.audit = store }
}

// WithEmitter streams team events to the given emitter.
func WithEmitter(emitter core.EventEmitter) Option {
	return func(c *Coordinator) { c.emitter = emitter }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.log = logger }
}

// WithMaxTotalIterations bounds member invocations regardless of loop
// detection.
func WithMaxTotalIterations(n int) Option {
	return func(c *Coordinator) { c.maxTotalIterations = n }
}

// New creates a coordinator. The default protocol is sequential.
func New(name string, opts ...Option) *Coordinator {
	c := &Coordinator{
		name:               name,
		protocol:           ProtocolSequential,
		byName:             make(map[string]*loop.Loop),
		detector:           loopdetect.New(loopdetect.DefaultConfig()),
		emitter:            core.NoopEventEmitter{},
		log:                slog.Default(),
		tracer:             otel.Tracer("praxis/team"),
		maxTotalIterations: DefaultMaxTotalIterations,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the team for the prompt. If a member suspends for a
// human decision the team suspends with it; persist the session, submit
// the decision, and call Resume.
func (c *Coordinator) Run(ctx context.Context, sess *session.Session, prompt string) (*Result, error) {
	if sess == nil {
		return nil, praxiserrors.New(praxiserrors.CodeInvalidInput, "session is required", nil)
	}
	if len(c.members) == 0 {
		return nil, praxiserrors.New(praxiserrors.CodeInvalidInput, "team has no members", nil)
	}
	ctx = core.WithSessionID(ctx, sess.ID)
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := c.tracer.Start(ctx, "Team.Run", oteltrace.WithAttributes(
		attribute.String("team.name", c.name),
		attribute.String("team.protocol", string(c.protocol)),
		attribute.Int("team.members", len(c.members)),
	))
	defer span.End()

	log := c.log.With(
		slog.String("team", c.name),
		slog.String("run_id", runID),
		slog.String("session_id", sess.ID),
	)
	log.Info("team.run.start", slog.String("protocol", string(c.protocol)))

	// Every top-level Run is a fresh team invocation. A prior run's trace
	// must not steer this one: its lastNodeId would skip the whole
	// sequence and its steps would count toward budget and loop checks.
	// Suspended runs continue through Resume, which keeps the trace.
	tt := trace.NewTeamTrace()
	sess.TeamTrace = tt
	sess.SetVariable(teamPromptKey, prompt)

	switch c.protocol {
	case ProtocolRouter:
		return c.runRouter(ctx, log, sess, tt, prompt)
	case ProtocolSequential:
		return c.runSequential(ctx, log, sess, tt, prompt)
	case ProtocolParallel:
		return c.runParallel(ctx, log, sess, tt, prompt)
	default:
		return nil, praxiserrors.New(praxiserrors.CodeInvalidInput, "unknown protocol", nil).
			WithContext("protocol", string(c.protocol))
	}
}

// teamPromptKey stores the original task so a resumed run can continue
// routing against it.
const teamPromptKey = "team.prompt"

// Resume re-enters a team run suspended on a member's pending decision.
func (c *Coordinator) Resume(ctx context.Context, sess *session.Session) (*Result, error) {
	if sess == nil || sess.TeamTrace == nil {
		return nil, praxiserrors.New(praxiserrors.CodeInvalidInput, "no suspended team run to resume", nil)
	}
	tt := sess.TeamTrace
	prompt, _ := sess.Variable(teamPromptKey)

	ctx = core.WithSessionID(ctx, sess.ID)
	ctx, runID := core.EnsureRunID(ctx)
	log := c.log.With(
		slog.String("team", c.name),
		slog.String("run_id", runID),
		slog.String("session_id", sess.ID),
	)

	member := c.pendingMember(sess)
	if member == nil {
		return nil, praxiserrors.New(praxiserrors.CodeInvalidInput, "no member is awaiting a decision", nil)
	}

	started := time.Now()
	res, err := member.Resume(ctx, sess)
	if err != nil {
		return c.failResult(tt), err
	}
	if res.Status == trace.StatusPending {
		return c.pendingResult(tt, member.Name(), res.Pending), nil
	}
	c.recordStep(ctx, tt, member.Name(), res.Answer, time.Since(started))
	log.Info("team.member.resumed", slog.String("member", member.Name()))

	if det := c.detector.Detect(tt); det != nil {
		return c.stopOnLoop(ctx, log, tt, det), nil
	}

	switch c.protocol {
	case ProtocolRouter:
		return c.runRouter(ctx, log, sess, tt, prompt)
	case ProtocolSequential:
		return c.resumeSequential(ctx, log, sess, tt, prompt)
	case ProtocolParallel:
		return c.finishParallel(ctx, log, sess, tt)
	default:
		return nil, praxiserrors.New(praxiserrors.CodeInvalidInput, "unknown protocol", nil)
	}
}

// pendingMember finds the member whose run is suspended in the session.
func (c *Coordinator) pendingMember(sess *session.Session) *loop.Loop {
	for _, m := range c.members {
		if tr := sess.Trace(m.Name()); tr != nil && tr.Status == trace.StatusPending {
			return m
		}
	}
	return nil
}

// runRouter repeatedly asks the router for the next member until it
// signals FINISH or a stop condition fires.
func (c *Coordinator) runRouter(ctx context.Context, log *slog.Logger, sess *session.Session, tt *trace.TeamTrace, prompt string) (*Result, error) {
	if c.router == nil {
		return nil, praxiserrors.New(praxiserrors.CodeInvalidInput, "router protocol requires a router model", nil)
	}

	for {
		if c.exhausted(tt) {
			log.Warn("team.iterations.exhausted", slog.Int("max", c.maxTotalIterations))
			return c.completeResult(ctx, log, tt, "iteration budget exhausted"), nil
		}

		next := c.route(ctx, log, sess, tt, prompt)
		if next == RouteFinish {
			return c.completeResult(ctx, log, tt, "router signalled completion"), nil
		}
		member, ok := c.byName[next]
		if !ok {
			log.Warn("team.route.unknown_member", slog.String("member", next))
			return c.completeResult(ctx, log, tt, "router named an unknown member"), nil
		}

		res, err := c.invokeMember(ctx, log, member, sess, tt, prompt)
		if err != nil {
			return c.failResult(tt), err
		}
		if res.Status == trace.StatusPending {
			tt.SetLastNodeID(member.Name())
			return c.pendingResult(tt, member.Name(), res.Pending), nil
		}
		if det := c.detector.Detect(tt); det != nil {
			return c.stopOnLoop(ctx, log, tt, det), nil
		}
	}
}

// route asks the router model to pick the next member. Router failures
// degrade to FINISH rather than aborting the run.
func (c *Coordinator) route(ctx context.Context, log *slog.Logger, sess *session.Session, tt *trace.TeamTrace, prompt string) string {
	verdict, _ := resilience.WithFallback(ctx, func() (interface{}, error) {
		resp, err := c.router.Chat(ctx, llm.ChatRequest{
			Model: c.routerModel,
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: c.routerInstruction()},
				{Role: llm.RoleUser, Content: c.routerContext(tt, prompt)},
			},
		})
		if err != nil {
			log.Warn("team.route.error", slog.String("error", err.Error()))
			return nil, err
		}
		return strings.TrimSpace(resp.Content), nil
	}, &resilience.StaticFallback{Value: RouteFinish})

	decision, _ := verdict.(string)
	decision = strings.TrimSpace(strings.Split(decision, "\n")[0])
	tt.Append(trace.TeamStep{AgentName: c.name, Content: "route: " + decision, IsAgent: false})
	log.Info("team.route.decision", slog.String("next", decision))
	return decision
}

func (c *Coordinator) routerInstruction() string {
	names := make([]string, 0, len(c.members))
	for _, m := range c.members {
		names = append(names, m.Name())
	}
	return fmt.Sprintf(
		"You coordinate a team of agents: %s. "+
			"Given the task and the conversation so far, reply with exactly "+
			"the name of the next agent to act, or %s when the task is done.",
		strings.Join(names, ", "), RouteFinish)
}

func (c *Coordinator) routerContext(tt *trace.TeamTrace, prompt string) string {
	var b strings.Builder
	b.WriteString("Task: " + prompt + "\n\nConversation so far:\n")
	steps := tt.AgentSteps()
	for _, s := range steps {
		fmt.Fprintf(&b, "[%s] %s\n", s.AgentName, s.Content)
	}
	if len(steps) == 0 {
		b.WriteString("(no contributions yet)\n")
	}
	return b.String()
}

// runSequential walks the members in order through the graph scheduler.
// The walker's position is persisted as the trace's lastNodeId so a
// suspended walk resumes mid-protocol.
func (c *Coordinator) runSequential(ctx context.Context, log *slog.Logger, sess *session.Session, tt *trace.TeamTrace, prompt string) (*Result, error) {
	exec, g, err := c.sequentialExecutor(log, sess, tt, prompt)
	if err != nil {
		return nil, err
	}

	final, err := exec.Execute(ctx, g, graph.NewState())
	return c.sequentialOutcome(ctx, log, sess, tt, final, err)
}

func (c *Coordinator) resumeSequential(ctx context.Context, log *slog.Logger, sess *session.Session, tt *trace.TeamTrace, prompt string) (*Result, error) {
	exec, g, err := c.sequentialExecutor(log, sess, tt, prompt)
	if err != nil {
		return nil, err
	}
	state := graph.NewState()
	state.LastNodeID = tt.LastNodeID()
	final, err := exec.Resume(ctx, g, state)
	return c.sequentialOutcome(ctx, log, sess, tt, final, err)
}

func (c *Coordinator) sequentialExecutor(log *slog.Logger, sess *session.Session, tt *trace.TeamTrace, prompt string) (*graph.Executor, *graph.Graph, error) {
	names := make([]string, 0, len(c.members))
	for _, m := range c.members {
		names = append(names, m.Name())
	}
	g, err := graph.Sequential(c.name, names...)
	if err != nil {
		return nil, nil, praxiserrors.New(praxiserrors.CodeInvalidInput, "failed to build team graph", err)
	}

	exec := graph.NewExecutor(map[string]graph.Handler{
		"agent": func(ctx context.Context, node graph.Node, state *graph.State) (any, error) {
			if c.exhausted(tt) {
				return nil, errBudgetExhausted
			}
			member := c.byName[node.Agent]
			res, err := c.invokeMember(ctx, log, member, sess, tt, prompt)
			if err != nil {
				return nil, err
			}
			if res.Status == trace.StatusPending {
				return nil, graph.Suspend(node.ID)
			}
			if det := c.detector.Detect(tt); det != nil {
				return res.Answer, errLoopDetected
			}
			return res.Answer, nil
		},
	})
	exec.Audit = c.audit
	return exec, g, nil
}

func (c *Coordinator) sequentialOutcome(ctx context.Context, log *slog.Logger, sess *session.Session, tt *trace.TeamTrace, state *graph.State, err error) (*Result, error) {
	if err != nil {
		if errors.Is(err, errBudgetExhausted) {
			log.Warn("team.iterations.exhausted", slog.Int("max", c.maxTotalIterations))
			return c.completeResult(ctx, log, tt, "iteration budget exhausted"), nil
		}
		if errors.Is(err, errLoopDetected) {
			return c.completeResult(ctx, log, tt, "loop detected"), nil
		}
		return c.failResult(tt), err
	}
	tt.SetLastNodeID(state.LastNodeID)

	if member := c.pendingMember(sess); member != nil {
		tr := sess.Trace(member.Name())
		return c.pendingResult(tt, member.Name(), tr.PendingTask), nil
	}
	return c.completeResult(ctx, log, tt, "sequence complete"), nil
}

// runParallel fans out every member on a cloned session, then joins at a
// barrier: team trace appends are serialized by the trace's own lock and
// session merges happen sequentially after the wait.
func (c *Coordinator) runParallel(ctx context.Context, log *slog.Logger, sess *session.Session, tt *trace.TeamTrace, prompt string) (*Result, error) {
	type memberOutcome struct {
		member *loop.Loop
		clone  *session.Session
		res    *loop.Result
		err    error
	}

	outcomes := make([]memberOutcome, len(c.members))
	var wg sync.WaitGroup
	for i, member := range c.members {
		clone, err := sess.Clone()
		if err != nil {
			return nil, err
		}
		outcomes[i] = memberOutcome{member: member, clone: clone}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started := time.Now()
			res, err := outcomes[i].member.Run(ctx, outcomes[i].clone, prompt)
			outcomes[i].res = res
			outcomes[i].err = err
			if res != nil && res.Status != trace.StatusPending {
				c.recordStep(ctx, tt, outcomes[i].member.Name(), res.Answer, time.Since(started))
			}
		}(i)
	}
	wg.Wait()

	// Barrier: merge member state back into the shared session one
	// member at a time.
	var firstErr error
	pendingAgent := ""
	var pendingTask *hitl.Task
	for _, out := range outcomes {
		if out.err != nil && firstErr == nil {
			firstErr = out.err
		}
		if out.res == nil {
			continue
		}
		sess.PutTrace(out.member.Name(), out.res.Trace)
		for k, v := range out.clone.Variables {
			sess.SetVariable(k, v)
		}
		if out.res.Status == trace.StatusDone {
			sess.AppendMessage(llm.Message{Role: llm.RoleAssistant, Content: out.res.Answer})
		}
		if out.res.Status == trace.StatusPending && pendingAgent == "" {
			pendingAgent = out.member.Name()
			pendingTask = out.res.Pending
		}
	}
	if firstErr != nil {
		return c.failResult(tt), firstErr
	}
	if pendingAgent != "" {
		tt.SetLastNodeID(pendingAgent)
		log.Info("team.parallel.pending", slog.String("member", pendingAgent))
		return c.pendingResult(tt, pendingAgent, pendingTask), nil
	}
	return c.finishParallel(ctx, log, sess, tt)
}

// finishParallel joins completed parallel outputs into the final answer.
func (c *Coordinator) finishParallel(ctx context.Context, log *slog.Logger, sess *session.Session, tt *trace.TeamTrace) (*Result, error) {
	if member := c.pendingMember(sess); member != nil {
		tr := sess.Trace(member.Name())
		return c.pendingResult(tt, member.Name(), tr.PendingTask), nil
	}
	var parts []string
	for _, m := range c.members {
		if tr := sess.Trace(m.Name()); tr != nil && tr.FinalAnswer != "" {
			parts = append(parts, fmt.Sprintf("[%s] %s", m.Name(), tr.FinalAnswer))
		}
	}
	tt.SetFinalAnswer(strings.Join(parts, "\n\n"))
	return c.completeResult(ctx, log, tt, "parallel join complete"), nil
}

// invokeMember runs one member and records its contribution. A member
// whose run is already suspended is resumed instead.
func (c *Coordinator) invokeMember(ctx context.Context, log *slog.Logger, member *loop.Loop, sess *session.Session, tt *trace.TeamTrace, prompt string) (*loop.Result, error) {
	started := time.Now()

	var res *loop.Result
	var err error
	if tr := sess.Trace(member.Name()); tr != nil && tr.Status == trace.StatusPending {
		res, err = member.Resume(ctx, sess)
	} else {
		res, err = member.Run(ctx, sess, prompt)
	}
	if err != nil {
		log.Error("team.member.error",
			slog.String("member", member.Name()),
			slog.String("error", err.Error()),
		)
		return res, err
	}
	if res.Status == trace.StatusPending {
		log.Info("team.member.pending", slog.String("member", member.Name()))
		return res, nil
	}

	c.recordStep(ctx, tt, member.Name(), res.Answer, time.Since(started))
	log.Info("team.member.complete",
		slog.String("member", member.Name()),
		slog.Int("steps", tt.Len()),
	)
	return res, nil
}

func (c *Coordinator) recordStep(ctx context.Context, tt *trace.TeamTrace, agentName, content string, elapsed time.Duration) {
	tt.Append(trace.TeamStep{
		AgentName:  agentName,
		Content:    content,
		DurationMs: elapsed.Milliseconds(),
		IsAgent:    true,
	})
	c.emit(ctx, core.EventTeamStep, map[string]any{
		"member":  agentName,
		"content": content,
	})
}

// exhausted reports whether the member-invocation budget is spent.
func (c *Coordinator) exhausted(tt *trace.TeamTrace) bool {
	return c.maxTotalIterations > 0 && len(tt.AgentSteps()) >= c.maxTotalIterations
}

// stopOnLoop forcibly completes the run when repetition is detected,
// keeping whatever answer is available.
func (c *Coordinator) stopOnLoop(ctx context.Context, log *slog.Logger, tt *trace.TeamTrace, det *loopdetect.Detection) *Result {
	tt.Append(trace.TeamStep{
		AgentName: c.name,
		Content:   fmt.Sprintf("stopping: %s detected", det.Kind),
		IsAgent:   false,
	})
	log.Warn("team.loop.detected",
		slog.String("kind", string(det.Kind)),
		slog.String("agent", det.AgentName),
	)
	c.emit(ctx, core.EventTeamStopped, map[string]any{"reason": string(det.Kind)})
	return c.completeResult(ctx, log, tt, "loop detected")
}

// completeResult finalizes the trace and builds the DONE result.
func (c *Coordinator) completeResult(ctx context.Context, log *slog.Logger, tt *trace.TeamTrace, reason string) *Result {
	if tt.FinalAnswer() == "" {
		if steps := tt.AgentSteps(); len(steps) > 0 {
			tt.SetFinalAnswer(steps[len(steps)-1].Content)
		}
	}
	log.Info("team.run.complete",
		slog.String("reason", reason),
		slog.Int("steps", tt.Len()),
	)
	c.emit(ctx, core.EventTeamStopped, map[string]any{"reason": reason})
	return &Result{
		Status:      trace.StatusDone,
		FinalAnswer: tt.FinalAnswer(),
		Trace:       tt,
	}
}

func (c *Coordinator) pendingResult(tt *trace.TeamTrace, agent string, task *hitl.Task) *Result {
	return &Result{
		Status:       trace.StatusPending,
		FinalAnswer:  tt.FinalAnswer(),
		Trace:        tt,
		PendingAgent: agent,
		Pending:      task,
	}
}

func (c *Coordinator) failResult(tt *trace.TeamTrace) *Result {
	return &Result{
		Status:      trace.StatusFailed,
		FinalAnswer: tt.FinalAnswer(),
		Trace:       tt,
	}
}

func (c *Coordinator) emit(ctx context.Context, eventType core.EventType, payload map[string]any) {
	runID, _ := core.RunID(ctx)
	c.emitter.Emit(ctx, core.NewEvent(eventType, c.name, runID, payload))
}
