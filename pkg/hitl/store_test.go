package hitl

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqliteStore, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestTaskLifecycle(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			task := NewTask("transfer_funds", map[string]any{"amount": float64(5000)}, "large transfer")

			if err := store.PutTask(ctx, "sess-1", task); err != nil {
				t.Fatalf("put task: %v", err)
			}
			got, err := store.PendingTask(ctx, "sess-1")
			if err != nil {
				t.Fatalf("pending task: %v", err)
			}
			if got == nil || got.ToolName != "transfer_funds" {
				t.Fatalf("unexpected task: %+v", got)
			}
			if got.Args["amount"].(float64) != 5000 {
				t.Fatalf("unexpected args: %v", got.Args)
			}

			if err := store.ClearTask(ctx, "sess-1"); err != nil {
				t.Fatalf("clear task: %v", err)
			}
			got, err = store.PendingTask(ctx, "sess-1")
			if err != nil {
				t.Fatalf("pending after clear: %v", err)
			}
			if got != nil {
				t.Fatalf("expected no pending task, got %+v", got)
			}
		})
	}
}

func TestDecisionTakeClears(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := store.PutDecision(ctx, "sess-1", "transfer_funds", Decision{
				Outcome:      OutcomeApprove,
				ModifiedArgs: map[string]any{"amount": float64(800)},
			}); err != nil {
				t.Fatalf("put decision: %v", err)
			}

			decision, ok, err := store.TakeDecision(ctx, "sess-1", "transfer_funds")
			if err != nil {
				t.Fatalf("take decision: %v", err)
			}
			if !ok {
				t.Fatal("expected decision present")
			}
			if decision.Outcome != OutcomeApprove {
				t.Fatalf("unexpected outcome: %s", decision.Outcome)
			}
			if decision.ModifiedArgs["amount"].(float64) != 800 {
				t.Fatalf("unexpected modified args: %v", decision.ModifiedArgs)
			}

			// Second take is a no-op, not an error.
			_, ok, err = store.TakeDecision(ctx, "sess-1", "transfer_funds")
			if err != nil {
				t.Fatalf("second take: %v", err)
			}
			if ok {
				t.Fatal("expected decision consumed")
			}
		})
	}
}

func TestDecisionLastWriteWins(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.PutDecision(ctx, "s", "tool", Decision{Outcome: OutcomeReject}); err != nil {
				t.Fatalf("first put: %v", err)
			}
			if err := store.PutDecision(ctx, "s", "tool", Decision{Outcome: OutcomeSkip, Comment: "later"}); err != nil {
				t.Fatalf("second put: %v", err)
			}
			decision, ok, err := store.TakeDecision(ctx, "s", "tool")
			if err != nil || !ok {
				t.Fatalf("take: ok=%v err=%v", ok, err)
			}
			if decision.Outcome != OutcomeSkip || decision.Comment != "later" {
				t.Fatalf("expected last write, got %+v", decision)
			}
		})
	}
}

func TestServiceAccessors(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(store)
	ctx := context.Background()

	if err := store.PutTask(ctx, "sess-1", NewTask("send_email", nil, "external side effect")); err != nil {
		t.Fatalf("put task: %v", err)
	}
	task, err := service.GetPendingTask(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if task == nil || task.ToolName != "send_email" {
		t.Fatalf("unexpected task: %+v", task)
	}

	if err := service.Approve(ctx, "sess-1", "send_email", map[string]any{"to": "ops@example.com"}, "ok"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	decision, ok, err := store.TakeDecision(ctx, "sess-1", "send_email")
	if err != nil || !ok {
		t.Fatalf("take: ok=%v err=%v", ok, err)
	}
	if decision.Outcome != OutcomeApprove || decision.ModifiedArgs["to"] != "ops@example.com" {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}

func TestSweeperExpiresOldTasks(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(store)
	ctx := context.Background()

	old := NewTask("transfer_funds", nil, "stale")
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	if err := store.PutTask(ctx, "stale-sess", old); err != nil {
		t.Fatalf("put stale: %v", err)
	}
	if err := store.PutTask(ctx, "fresh-sess", NewTask("send_email", nil, "fresh")); err != nil {
		t.Fatalf("put fresh: %v", err)
	}

	sweeper := NewSweeper(service, store, 30*time.Minute, time.Minute)
	expired, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired, got %d", expired)
	}

	decision, ok, err := store.TakeDecision(ctx, "stale-sess", "transfer_funds")
	if err != nil || !ok {
		t.Fatalf("take stale decision: ok=%v err=%v", ok, err)
	}
	if decision.Outcome != OutcomeReject {
		t.Fatalf("expected reject, got %s", decision.Outcome)
	}
	if _, ok, _ := store.TakeDecision(ctx, "fresh-sess", "send_email"); ok {
		t.Fatal("fresh task must not be expired")
	}
}

func TestSentinelTask(t *testing.T) {
	task := NewTask(SentinelAskFeedback, nil, "step limit reached")
	if !task.IsSentinel() {
		t.Fatal("expected sentinel")
	}
	if NewTask("search", nil, "").IsSentinel() {
		t.Fatal("regular task must not be sentinel")
	}
}
