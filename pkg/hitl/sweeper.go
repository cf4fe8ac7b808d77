package hitl

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Lister is implemented by stores that can enumerate sessions with an
// outstanding task. Both built-in stores satisfy it.
type Lister interface {
	ListPending(ctx context.Context) (map[string]*Task, error)
}

// Sweeper is a supervisory process that rejects tasks left pending longer
// than a TTL. The store itself holds no automatic timeout; expiry is an
// external policy surfaced as an ordinary REJECT decision.
type Sweeper struct {
	service  *Service
	lister   Lister
	ttl      time.Duration
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper over the given service and lister.
func NewSweeper(service *Service, lister Lister, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{service: service, lister: lister, ttl: ttl, interval: interval}
}

// Start launches the sweep goroutine. It is a no-op when ttl or interval
// is not positive.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttl <= 0 || s.interval <= 0 || s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	log := slog.Default()
	log.Info("hitl.sweeper.start",
		slog.Duration("ttl", s.ttl),
		slog.Duration("interval", s.interval),
	)
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info("hitl.sweeper.stop")
				return
			case <-ticker.C:
				expired, err := s.Sweep(ctx)
				if err != nil {
					log.Warn("hitl.sweeper.error", slog.String("error", err.Error()))
					continue
				}
				if expired > 0 {
					log.Info("hitl.sweeper.expired", slog.Int("count", expired))
				}
			}
		}
	}()
}

// Stop terminates the sweep goroutine and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sweep rejects every task pending longer than the TTL. Returns the number
// of decisions written.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	pending, err := s.lister.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-s.ttl)
	expired := 0
	for sessionID, task := range pending {
		if task == nil || task.CreatedAt.After(cutoff) {
			continue
		}
		if err := s.service.Reject(ctx, sessionID, task.ToolName, "approval request expired"); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// ListPending implements Lister for MemoryStore.
func (s *MemoryStore) ListPending(_ context.Context) (map[string]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Task, len(s.tasks))
	for id, task := range s.tasks {
		copied := *task
		out[id] = &copied
	}
	return out, nil
}

// ListPending implements Lister for SQLiteStore.
func (s *SQLiteStore) ListPending(ctx context.Context) (map[string]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, tool_name, args_json, comment, created_at
		FROM hitl_pending_tasks
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*Task)
	for rows.Next() {
		var sessionID, argsJSON string
		var task Task
		if err := rows.Scan(&sessionID, &task.ToolName, &argsJSON, &task.Comment, &task.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(argsJSON), &task.Args); err != nil {
			return nil, err
		}
		out[sessionID] = &task
	}
	return out, rows.Err()
}
