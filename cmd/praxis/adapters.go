// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/tessellate/praxis/pkg/config"
	"github.com/tessellate/praxis/pkg/core"
	"github.com/tessellate/praxis/pkg/governance"
	"github.com/tessellate/praxis/pkg/guardrails"
	"github.com/tessellate/praxis/pkg/hitl"
	"github.com/tessellate/praxis/pkg/interceptor"
	"github.com/tessellate/praxis/pkg/llm"
	"github.com/tessellate/praxis/pkg/loop"
	"github.com/tessellate/praxis/pkg/mcp"
	"github.com/tessellate/praxis/pkg/mcp/pool"
	"github.com/tessellate/praxis/pkg/resilience"
	"github.com/tessellate/praxis/pkg/session"
)

// environment bundles the stores a CLI command works against. Sessions
// and decisions share a backend so a suspended run and its pending task
// survive the process together.
type environment struct {
	Sessions  session.Store
	Decisions hitl.Store

	db      *sql.DB
	mcpPool *pool.Pool
}

func (e *environment) Close() {
	if e.mcpPool != nil {
		_ = e.mcpPool.Close()
	}
	if e.db != nil {
		_ = e.db.Close()
	}
}

func openEnvironment(ctx context.Context, cfg *config.Config) (*environment, error) {
	env := &environment{}
	switch cfg.Session.Store {
	case "", "memory":
		env.Sessions = session.NewMemoryStore()
		env.Decisions = hitl.NewMemoryStore()
	case "file":
		dir := cfg.Session.Path
		if dir == "" {
			dir = ".praxis/sessions"
		}
		store, err := session.NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		env.Sessions = store
		// Decisions still need SQL durability next to the JSON files.
		db, err := sql.Open("sqlite", filepath.Join(dir, "decisions.db"))
		if err != nil {
			return nil, err
		}
		decisions, err := hitl.NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		env.db = db
		env.Decisions = decisions
	case "sqlite":
		dsn := cfg.Session.Path
		if dsn == "" {
			dsn = "praxis.db"
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		sessions, err := session.NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		decisions, err := hitl.NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		env.db = db
		env.Sessions = sessions
		env.Decisions = decisions
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
	return env, nil
}

// buildProvider selects the chat backend from config. Hosted vendor
// APIs are out of scope; the CLI speaks to local backends directly.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "", "ollama":
		return llm.NewOllama(cfg.LLM.BaseURL), nil
	case "mock":
		return llm.NewScriptedMockProvider(cfg.LLM.Model, "mock response"), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q (supported: ollama, mock)", cfg.LLM.Provider)
	}
}

func buildLoop(ctx context.Context, name string, cfg *config.Config, env *environment, sensitive, mcpHTTP []string) (*loop.Loop, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	var tools []core.Tool
	if len(mcpHTTP) > 0 && env.mcpPool == nil {
		env.mcpPool = pool.New()
	}
	for _, url := range mcpHTTP {
		if err := env.mcpPool.RegisterHTTP(url, url,
			mcp.WithCircuitBreaker(resilience.CircuitBreakerConfig{Name: url})); err != nil {
			return nil, fmt.Errorf("mcp server %s: %w", url, err)
		}
		client, err := env.mcpPool.Get(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("mcp server %s: %w", url, err)
		}
		remote, err := mcp.AgentTools(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("mcp server %s: %w", url, err)
		}
		tools = append(tools, remote...)
	}

	opts := []loop.Option{
		loop.WithModel(cfg.LLM.Model),
		loop.WithDecisionStore(env.Decisions),
		loop.WithMaxSteps(cfg.Loop.MaxSteps),
		loop.WithStepDelta(cfg.Loop.StepDelta),
		loop.WithFeedback(cfg.Loop.Feedback),
		loop.WithPlanning(cfg.Loop.Planning),
	}
	if len(tools) > 0 {
		opts = append(opts, loop.WithTools(tools...))
	}
	var ics []interceptor.Interceptor
	gov := cfg.Governance
	if len(gov.Allowlist) > 0 || len(gov.Denylist) > 0 || len(gov.Policies) > 0 {
		rules := make([]governance.Rule, 0, len(gov.Policies))
		for _, rc := range gov.Policies {
			rules = append(rules, governance.Rule{
				ID:     rc.ID,
				Effect: rc.Effect,
				Type:   governance.ActionType(rc.Type),
				Name:   rc.Name,
				Reason: rc.Reason,
			})
		}
		ics = append(ics, interceptor.PolicyFromRules(gov.Allowlist, gov.Denylist, rules))
	}
	if len(sensitive) > 0 {
		ics = append(ics, interceptor.NewApproval(sensitive...))
	}
	if gopts := guardrailOptions(cfg.Guardrails); len(gopts) > 0 {
		ics = append(ics, interceptor.NewGuardrail(guardrails.New(gopts...)))
	}
	if len(ics) > 0 {
		opts = append(opts, loop.WithInterceptors(ics...))
	}

	if instructions, err := governance.LoadAGENTS("."); err == nil && instructions != nil {
		opts = append(opts, loop.WithSystemPrompt(instructions.Raw))
	}
	return loop.New(name, provider, opts...), nil
}

// guardrailOptions maps the guardrails config section onto concrete
// checkers and filters.
func guardrailOptions(cfg config.GuardrailsConfig) []guardrails.Option {
	var gopts []guardrails.Option
	if cfg.BlockInjection {
		gopts = append(gopts, guardrails.WithInputChecker(guardrails.NewInjectionChecker()))
	}
	if len(cfg.DenyTerms) > 0 {
		gopts = append(gopts, guardrails.WithInputChecker(guardrails.NewDenyTermsChecker(cfg.DenyTerms...)))
	}
	if cfg.RedactSecrets {
		gopts = append(gopts, guardrails.WithOutputFilter(guardrails.NewSecretRedactor()))
	}
	if cfg.RedactPII {
		gopts = append(gopts, guardrails.WithOutputFilter(guardrails.NewPIIRedactor()))
	}
	return gopts
}
