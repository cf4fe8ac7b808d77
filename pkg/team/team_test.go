// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tessellate/praxis/pkg/core"
	"github.com/tessellate/praxis/pkg/hitl"
	"github.com/tessellate/praxis/pkg/interceptor"
	"github.com/tessellate/praxis/pkg/llm"
	"github.com/tessellate/praxis/pkg/loop"
	"github.com/tessellate/praxis/pkg/loopdetect"
	"github.com/tessellate/praxis/pkg/resilience"
	"github.com/tessellate/praxis/pkg/session"
	"github.com/tessellate/praxis/pkg/trace"
)

func fastRetry() resilience.RetryConfig {
	return resilience.DefaultRetryConfig().
		WithMaxAttempts(1).
		WithInitialDelay(time.Millisecond).
		WithMaxDelay(time.Millisecond)
}

func member(name string, provider llm.Provider, opts ...loop.Option) *loop.Loop {
	opts = append(opts, loop.WithRetry(fastRetry()))
	return loop.New(name, provider, opts...)
}

func agentContents(tt *trace.TeamTrace) []string {
	var out []string
	for _, s := range tt.AgentSteps() {
		out = append(out, s.Content)
	}
	return out
}

func TestSequentialRunsMembersInOrder(t *testing.T) {
	researcher := member("researcher",
		llm.NewScriptedResponseProvider().AddFinish("three sources found"))
	writer := member("writer",
		llm.NewScriptedResponseProvider().AddFinish("draft complete"))

	c := New("newsroom",
		WithMembers(researcher, writer),
		WithProtocol(ProtocolSequential),
	)

	sess := session.New("t1")
	res, err := c.Run(context.Background(), sess, "write a briefing")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != trace.StatusDone {
		t.Fatalf("want DONE, got %s", res.Status)
	}

	got := agentContents(res.Trace)
	want := []string{"three sources found", "draft complete"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("steps: %v", got)
	}
	if res.FinalAnswer != "draft complete" {
		t.Fatalf("final answer: %q", res.FinalAnswer)
	}
	if res.Trace.LastNodeID() != "writer" {
		t.Fatalf("last node: %q", res.Trace.LastNodeID())
	}
}

func TestSequentialSuspendsAndResumesAtPosition(t *testing.T) {
	planner := member("planner",
		llm.NewScriptedResponseProvider().AddFinish("plan ready"))
	bankerProvider := llm.NewScriptedResponseProvider().
		AddToolCall("transfer_funds", `{"amount":5000}`).
		AddFinish("transfer complete")
	decisions := hitl.NewMemoryStore()
	banker := member("banker", bankerProvider,
		loop.WithTools(core.ToolFunc{
			ToolName: "transfer_funds",
			Fn: func(_ context.Context, args map[string]any) (any, error) {
				return fmt.Sprintf("sent %v", args["amount"]), nil
			},
		}),
		loop.WithInterceptors(interceptor.NewApproval("transfer_funds")),
		loop.WithDecisionStore(decisions),
	)
	auditorProvider := llm.NewScriptedResponseProvider().AddFinish("books balanced")
	auditor := member("auditor", auditorProvider)

	c := New("finance",
		WithMembers(planner, banker, auditor),
		WithProtocol(ProtocolSequential),
	)

	sess := session.New("t2")
	res, err := c.Run(context.Background(), sess, "pay the invoice")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != trace.StatusPending {
		t.Fatalf("want PENDING, got %s", res.Status)
	}
	if res.PendingAgent != "banker" {
		t.Fatalf("pending agent: %q", res.PendingAgent)
	}
	if res.Trace.LastNodeID() != "banker" {
		t.Fatalf("last node: %q", res.Trace.LastNodeID())
	}
	// The auditor must not have been consulted yet.
	if auditorProvider.CallCount != 0 {
		t.Fatalf("auditor ran before approval")
	}

	// Round-trip the session to prove the suspended walk survives storage.
	store := session.NewMemoryStore()
	ctx := context.Background()
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	restored, err := store.Load(ctx, sess.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	svc := hitl.NewService(decisions)
	if err := svc.Approve(ctx, restored.ID, "transfer_funds", nil, "go ahead"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	res, err = c.Resume(ctx, restored)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if res.Status != trace.StatusDone {
		t.Fatalf("want DONE, got %s", res.Status)
	}
	got := agentContents(res.Trace)
	want := []string{"plan ready", "transfer complete", "books balanced"}
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("steps: %v", got)
	}
	// The planner completed before the suspension and must not rerun.
	if tr := restored.Trace("planner"); tr == nil || tr.Status != trace.StatusDone {
		t.Fatalf("planner trace: %+v", tr)
	}
	if auditorProvider.CallCount != 1 {
		t.Fatalf("auditor calls: %d", auditorProvider.CallCount)
	}
}

func TestRouterDelegatesThenFinishes(t *testing.T) {
	router := llm.NewScriptedResponseProvider().
		AddFinish("summarizer").
		AddFinish(RouteFinish)
	summarizer := member("summarizer",
		llm.NewScriptedResponseProvider().AddFinish("summary: all good"))

	c := New("desk",
		WithMembers(summarizer),
		WithProtocol(ProtocolRouter),
		WithRouter(router, "router-model"),
	)

	sess := session.New("t3")
	res, err := c.Run(context.Background(), sess, "summarize the report")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != trace.StatusDone {
		t.Fatalf("want DONE, got %s", res.Status)
	}
	if res.FinalAnswer != "summary: all good" {
		t.Fatalf("final answer: %q", res.FinalAnswer)
	}
	if router.CallCount != 2 {
		t.Fatalf("router calls: %d", router.CallCount)
	}
	// The routing prompt must carry the task and prior contributions.
	second := router.Requests[1].Messages
	ctxMsg := second[len(second)-1].Content
	if !strings.Contains(ctxMsg, "summarize the report") || !strings.Contains(ctxMsg, "summary: all good") {
		t.Fatalf("router context: %q", ctxMsg)
	}
}

func TestRouterFailureDegradesToFinish(t *testing.T) {
	router := llm.NewScriptedResponseProvider().
		AddError(fmt.Errorf("router model unavailable"))
	workerProvider := llm.NewScriptedResponseProvider().AddFinish("unused")

	c := New("desk",
		WithMembers(member("worker", workerProvider)),
		WithProtocol(ProtocolRouter),
		WithRouter(router, "router-model"),
	)

	sess := session.New("t4")
	res, err := c.Run(context.Background(), sess, "do the thing")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != trace.StatusDone {
		t.Fatalf("want DONE, got %s", res.Status)
	}
	if workerProvider.CallCount != 0 {
		t.Fatalf("worker ran despite router failure")
	}
}

func TestRouterStopsOnSelfLoop(t *testing.T) {
	router := llm.NewScriptedResponseProvider()
	echo := llm.NewScriptedResponseProvider()
	for i := 0; i < 6; i++ {
		router.AddFinish("echoer")
		echo.AddFinish("I keep saying the exact same thing.")
	}

	c := New("circle",
		WithMembers(member("echoer", echo)),
		WithProtocol(ProtocolRouter),
		WithRouter(router, "router-model"),
	)

	sess := session.New("t5")
	res, err := c.Run(context.Background(), sess, "loop forever")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// The detector forcibly completes the run, it never fails it.
	if res.Status != trace.StatusDone {
		t.Fatalf("want DONE, got %s", res.Status)
	}
	steps := res.Trace.AgentSteps()
	if len(steps) != 4 {
		t.Fatalf("agent steps before stop: %d", len(steps))
	}
	if res.FinalAnswer != "I keep saying the exact same thing." {
		t.Fatalf("final answer: %q", res.FinalAnswer)
	}
	// A coordinator step explains why the run stopped.
	var stopped bool
	for _, s := range res.Trace.Steps() {
		if !s.IsAgent && strings.Contains(s.Content, "self_loop") {
			stopped = true
		}
	}
	if !stopped {
		t.Fatalf("missing stop marker in trace")
	}
}

func TestRouterRespectsIterationBudget(t *testing.T) {
	router := llm.NewScriptedResponseProvider()
	poet := llm.NewScriptedResponseProvider()
	for i := 0; i < 5; i++ {
		router.AddFinish("poet")
		poet.AddFinish(fmt.Sprintf("stanza number %d, completely fresh", i))
	}

	c := New("verse",
		WithMembers(member("poet", poet)),
		WithProtocol(ProtocolRouter),
		WithRouter(router, "router-model"),
		WithMaxTotalIterations(2),
	)

	sess := session.New("t6")
	res, err := c.Run(context.Background(), sess, "write an epic")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != trace.StatusDone {
		t.Fatalf("want DONE, got %s", res.Status)
	}
	if got := len(res.Trace.AgentSteps()); got != 2 {
		t.Fatalf("agent steps: %d", got)
	}
}

func TestSequentialSecondRunStartsFresh(t *testing.T) {
	researcher := llm.NewScriptedResponseProvider().
		AddFinish("sources for the budget story").
		AddFinish("sources for the election story")
	writer := llm.NewScriptedResponseProvider().
		AddFinish("budget draft done").
		AddFinish("election draft done")

	c := New("newsroom",
		WithMembers(member("researcher", researcher), member("writer", writer)),
		WithProtocol(ProtocolSequential),
	)

	sess := session.New("t6b")
	if _, err := c.Run(context.Background(), sess, "cover the budget"); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// A finished trace on the session must not short-circuit a new prompt.
	res, err := c.Run(context.Background(), sess, "cover the election")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if researcher.CallCount != 2 || writer.CallCount != 2 {
		t.Fatalf("members not re-invoked: researcher=%d writer=%d",
			researcher.CallCount, writer.CallCount)
	}
	got := agentContents(res.Trace)
	want := []string{"sources for the election story", "election draft done"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("second run trace: %v", got)
	}
	if res.FinalAnswer != "election draft done" {
		t.Fatalf("final answer: %q", res.FinalAnswer)
	}
}

func TestSequentialBudgetStopIsNotALoopStop(t *testing.T) {
	first := member("first",
		llm.NewScriptedResponseProvider().AddFinish("completely unique opening move"))
	second := member("second",
		llm.NewScriptedResponseProvider().AddFinish("a different closing move entirely"))

	emitter := core.NewChannelEmitter(8)
	c := New("duo",
		WithMembers(first, second),
		WithProtocol(ProtocolSequential),
		WithMaxTotalIterations(1),
		WithEmitter(emitter),
	)

	sess := session.New("t6c")
	res, err := c.Run(context.Background(), sess, "play the game")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != trace.StatusDone {
		t.Fatalf("want DONE, got %s", res.Status)
	}
	if got := len(res.Trace.AgentSteps()); got != 1 {
		t.Fatalf("agent steps: %d", got)
	}
	emitter.Close()
	reason := ""
	for ev := range emitter.Events() {
		if ev.Type == core.EventTeamStopped {
			reason, _ = ev.Payload["reason"].(string)
		}
	}
	if reason != "iteration budget exhausted" {
		t.Fatalf("stop reason: %q", reason)
	}
	for _, s := range res.Trace.Steps() {
		if !s.IsAgent && strings.Contains(s.Content, "loop") {
			t.Fatalf("budget stop recorded as loop detection: %q", s.Content)
		}
	}
}

func TestRouterUnknownMemberEndsRun(t *testing.T) {
	router := llm.NewScriptedResponseProvider().AddFinish("nobody")
	c := New("desk",
		WithMembers(member("worker", llm.NewScriptedResponseProvider().AddFinish("x"))),
		WithProtocol(ProtocolRouter),
		WithRouter(router, "router-model"),
	)

	res, err := c.Run(context.Background(), session.New("t7"), "task")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != trace.StatusDone {
		t.Fatalf("want DONE, got %s", res.Status)
	}
}

func TestParallelJoinsAllMembers(t *testing.T) {
	north := member("north",
		llm.NewScriptedResponseProvider().AddFinish("north region nominal"),
		loop.WithOutputKey("north_report"))
	south := member("south",
		llm.NewScriptedResponseProvider().AddFinish("south region nominal"),
		loop.WithOutputKey("south_report"))

	c := New("survey",
		WithMembers(north, south),
		WithProtocol(ProtocolParallel),
	)

	sess := session.New("t8")
	res, err := c.Run(context.Background(), sess, "report regional status")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != trace.StatusDone {
		t.Fatalf("want DONE, got %s", res.Status)
	}
	if !strings.Contains(res.FinalAnswer, "[north] north region nominal") ||
		!strings.Contains(res.FinalAnswer, "[south] south region nominal") {
		t.Fatalf("joined answer: %q", res.FinalAnswer)
	}
	// Variables written on the clones are merged into the shared session.
	if v, ok := sess.Variable("north_report"); !ok || v != "north region nominal" {
		t.Fatalf("north variable: %q ok=%v", v, ok)
	}
	if v, ok := sess.Variable("south_report"); !ok || v != "south region nominal" {
		t.Fatalf("south variable: %q ok=%v", v, ok)
	}
	if len(res.Trace.AgentSteps()) != 2 {
		t.Fatalf("agent steps: %d", len(res.Trace.AgentSteps()))
	}
}

func TestParallelSuspendsOnPendingMember(t *testing.T) {
	decisions := hitl.NewMemoryStore()
	scout := member("scout",
		llm.NewScriptedResponseProvider().AddFinish("area mapped"))
	strikerProvider := llm.NewScriptedResponseProvider().
		AddToolCall("launch", `{"target":"alpha"}`).
		AddFinish("launch confirmed")
	striker := member("striker", strikerProvider,
		loop.WithTools(core.ToolFunc{
			ToolName: "launch",
			Fn: func(_ context.Context, args map[string]any) (any, error) {
				return fmt.Sprintf("launched at %v", args["target"]), nil
			},
		}),
		loop.WithInterceptors(interceptor.NewApproval("launch")),
		loop.WithDecisionStore(decisions),
	)

	c := New("ops",
		WithMembers(scout, striker),
		WithProtocol(ProtocolParallel),
	)

	sess := session.New("t9")
	res, err := c.Run(context.Background(), sess, "run the operation")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != trace.StatusPending {
		t.Fatalf("want PENDING, got %s", res.Status)
	}
	if res.PendingAgent != "striker" {
		t.Fatalf("pending agent: %q", res.PendingAgent)
	}
	// The non-sensitive member already finished.
	if tr := sess.Trace("scout"); tr == nil || tr.Status != trace.StatusDone {
		t.Fatalf("scout trace: %+v", tr)
	}

	svc := hitl.NewService(decisions)
	if err := svc.Approve(context.Background(), sess.ID, "launch", nil, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	res, err = c.Resume(context.Background(), sess)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if res.Status != trace.StatusDone {
		t.Fatalf("want DONE, got %s", res.Status)
	}
	if !strings.Contains(res.FinalAnswer, "[scout] area mapped") ||
		!strings.Contains(res.FinalAnswer, "[striker] launch confirmed") {
		t.Fatalf("joined answer: %q", res.FinalAnswer)
	}
}

func TestRunRequiresMembers(t *testing.T) {
	c := New("empty")
	if _, err := c.Run(context.Background(), session.New("t10"), "task"); err == nil {
		t.Fatal("want error for empty team")
	}
}

func TestEventsStreamDuringTeamRun(t *testing.T) {
	emitter := core.NewChannelEmitter(32)
	c := New("newsroom",
		WithMembers(member("writer", llm.NewScriptedResponseProvider().AddFinish("done"))),
		WithProtocol(ProtocolSequential),
		WithEmitter(emitter),
	)

	if _, err := c.Run(context.Background(), session.New("t11"), "write"); err != nil {
		t.Fatalf("run: %v", err)
	}
	emitter.Close()

	seen := map[core.EventType]bool{}
	for ev := range emitter.Events() {
		seen[ev.Type] = true
	}
	if !seen[core.EventTeamStep] || !seen[core.EventTeamStopped] {
		t.Fatalf("events seen: %v", seen)
	}
}

func TestDetectorConfigurable(t *testing.T) {
	router := llm.NewScriptedResponseProvider()
	echo := llm.NewScriptedResponseProvider()
	for i := 0; i < 6; i++ {
		router.AddFinish("echoer")
		echo.AddFinish("the very same reply every time")
	}
	router.AddFinish(RouteFinish)

	// Replies shorter than 200 bytes never qualify, so the repetition
	// above is invisible to the detector and the router decides the end.
	blind := loopdetect.New(loopdetect.Config{
		Window:           10,
		Threshold:        0.95,
		MinContentLength: 200,
	})
	c := New("circle",
		WithMembers(member("echoer", echo)),
		WithProtocol(ProtocolRouter),
		WithRouter(router, "router-model"),
		WithDetector(blind),
	)

	res, err := c.Run(context.Background(), session.New("t12"), "repeat yourself")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != trace.StatusDone {
		t.Fatalf("want DONE, got %s", res.Status)
	}
	if got := len(res.Trace.AgentSteps()); got != 6 {
		t.Fatalf("agent steps: %d", got)
	}
}
