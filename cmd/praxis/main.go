// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the Praxis CLI: run agents, inspect sessions
// and resolve pending human decisions from the terminal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"log/slog"

	"github.com/tessellate/praxis/pkg/config"
	"github.com/tessellate/praxis/pkg/hitl"
	"github.com/tessellate/praxis/pkg/loop"
	"github.com/tessellate/praxis/pkg/session"
	"github.com/tessellate/praxis/pkg/telemetry"
	"github.com/tessellate/praxis/pkg/trace"
)

const version = "dev"

type globalFlags struct {
	ConfigArgs []string
	Timeout    time.Duration
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		fatal(NewConfigError(err, configPathFromArgs(global.ConfigArgs)))
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cfg.Telemetry.Exporter != "" && cfg.Telemetry.Exporter != "none" {
		shutdown, err := telemetry.InitWithConfig("praxis", version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			fatal(err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	cmd := args[0]
	switch cmd {
	case "run":
		runRun(ctx, global, cfg, args[1:])
	case "resume":
		runResume(ctx, global, cfg, args[1:])
	case "pending":
		runPending(ctx, global, cfg, args[1:])
	case "approve":
		runDecision(ctx, global, cfg, hitl.OutcomeApprove, args[1:])
	case "reject":
		runDecision(ctx, global, cfg, hitl.OutcomeReject, args[1:])
	case "skip":
		runDecision(ctx, global, cfg, hitl.OutcomeSkip, args[1:])
	case "sessions":
		runSessions(ctx, global, cfg, args[1:])
	case "version":
		fmt.Printf("praxis %s\n", version)
	case "help":
		printUsage()
	default:
		fatal(fmt.Errorf("unknown command %q", cmd))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{
		Timeout: 5 * time.Minute,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config" || arg == "--set" || arg == "--profile" || arg == "--env":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for %s", arg)
			}
			flags.ConfigArgs = append(flags.ConfigArgs, arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--config=") || strings.HasPrefix(arg, "--set=") ||
			strings.HasPrefix(arg, "--profile=") || strings.HasPrefix(arg, "--env="):
			flags.ConfigArgs = append(flags.ConfigArgs, arg)
		case arg == "--timeout":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --timeout")
			}
			value, err := time.ParseDuration(args[i+1])
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
			i++
		case strings.HasPrefix(arg, "--timeout="):
			value, err := time.ParseDuration(strings.TrimPrefix(arg, "--timeout="))
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func configPathFromArgs(configArgs []string) string {
	for i, arg := range configArgs {
		if arg == "--config" && i+1 < len(configArgs) {
			return configArgs[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

func runRun(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	agentName := cmd.String("agent", "praxis", "agent name")
	sessionID := cmd.String("session", "", "session id (new session when empty)")
	prompt := cmd.String("prompt", "", "user prompt")
	var sensitive multiFlag
	cmd.Var(&sensitive, "sensitive", "tool requiring human approval (repeatable)")
	var mcpHTTP multiFlag
	cmd.Var(&mcpHTTP, "mcp-http", "streamable HTTP MCP server URL (repeatable)")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *prompt == "" && cmd.NArg() > 0 {
		*prompt = strings.Join(cmd.Args(), " ")
	}
	if *prompt == "" {
		fatal(NewInvalidArgumentError("--prompt", "a prompt is required"))
	}

	env, err := openEnvironment(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer env.Close()

	sess, err := env.Sessions.Load(ctx, *sessionID)
	if err != nil {
		sess = session.New(*sessionID)
	}

	l, err := buildLoop(ctx, *agentName, cfg, env, sensitive, mcpHTTP)
	if err != nil {
		fatal(err)
	}

	runCtx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()

	res, runErr := l.Run(runCtx, sess, *prompt)
	if saveErr := env.Sessions.Save(ctx, sess); saveErr != nil {
		slog.Warn("failed to save session", "error", saveErr)
	}
	if runErr != nil {
		fatal(runErr)
	}
	printRunResult(global.JSON, sess.ID, res)
}

func runResume(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	cmd := flag.NewFlagSet("resume", flag.ContinueOnError)
	agentName := cmd.String("agent", "praxis", "agent name")
	sessionID := cmd.String("session", "", "session id")
	var sensitive multiFlag
	cmd.Var(&sensitive, "sensitive", "tool requiring human approval (repeatable)")
	var mcpHTTP multiFlag
	cmd.Var(&mcpHTTP, "mcp-http", "streamable HTTP MCP server URL (repeatable)")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *sessionID == "" {
		fatal(NewInvalidArgumentError("--session", "a session id is required"))
	}

	env, err := openEnvironment(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer env.Close()

	sess, err := env.Sessions.Load(ctx, *sessionID)
	if err != nil {
		fatal(NewNotFoundError("session", *sessionID))
	}

	l, err := buildLoop(ctx, *agentName, cfg, env, sensitive, mcpHTTP)
	if err != nil {
		fatal(err)
	}

	runCtx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()

	res, runErr := l.Resume(runCtx, sess)
	if saveErr := env.Sessions.Save(ctx, sess); saveErr != nil {
		slog.Warn("failed to save session", "error", saveErr)
	}
	if runErr != nil {
		fatal(runErr)
	}
	printRunResult(global.JSON, sess.ID, res)
}

func runPending(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	cmd := flag.NewFlagSet("pending", flag.ContinueOnError)
	sessionID := cmd.String("session", "", "session id")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *sessionID == "" {
		fatal(NewInvalidArgumentError("--session", "a session id is required"))
	}

	env, err := openEnvironment(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer env.Close()

	task, err := env.Decisions.PendingTask(ctx, *sessionID)
	if err != nil {
		fatal(err)
	}
	if task == nil {
		if global.JSON {
			fmt.Println("null")
			return
		}
		fmt.Println("no pending decision")
		return
	}
	if global.JSON {
		printJSON(task)
		return
	}
	argsJSON, _ := json.Marshal(task.Args)
	fmt.Printf("tool:    %s\n", task.ToolName)
	fmt.Printf("args:    %s\n", argsJSON)
	fmt.Printf("comment: %s\n", task.Comment)
	fmt.Printf("asked:   %s\n", task.CreatedAt.Format(time.RFC3339))
}

func runDecision(ctx context.Context, global globalFlags, cfg *config.Config, outcome hitl.Outcome, args []string) {
	cmd := flag.NewFlagSet(strings.ToLower(string(outcome)), flag.ContinueOnError)
	sessionID := cmd.String("session", "", "session id")
	toolName := cmd.String("tool", "", "tool name awaiting the decision")
	comment := cmd.String("comment", "", "reviewer comment")
	var argOverrides multiFlag
	cmd.Var(&argOverrides, "arg", "override tool argument as key=value (approve only, repeatable)")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *sessionID == "" || *toolName == "" {
		fatal(NewInvalidArgumentError("--session/--tool", "session id and tool name are required"))
	}

	env, err := openEnvironment(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer env.Close()

	svc := hitl.NewService(env.Decisions)
	switch outcome {
	case hitl.OutcomeApprove:
		var modified map[string]any
		if len(argOverrides) > 0 {
			modified = make(map[string]any, len(argOverrides))
			for _, kv := range argOverrides {
				key, value, ok := strings.Cut(kv, "=")
				if !ok {
					fatal(NewInvalidArgumentError("--arg", fmt.Sprintf("%q is not key=value", kv)))
				}
				modified[key] = value
			}
		}
		err = svc.Approve(ctx, *sessionID, *toolName, modified, *comment)
	case hitl.OutcomeReject:
		err = svc.Reject(ctx, *sessionID, *toolName, *comment)
	case hitl.OutcomeSkip:
		err = svc.Skip(ctx, *sessionID, *toolName, *comment)
	}
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(map[string]string{"session": *sessionID, "tool": *toolName, "outcome": string(outcome)})
		return
	}
	fmt.Printf("%s recorded for %s in session %s\n", outcome, *toolName, *sessionID)
	fmt.Printf("run 'praxis resume --session %s' to continue\n", *sessionID)
}

func runSessions(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	if len(args) == 0 {
		fatal(fmt.Errorf("usage: praxis sessions <list|show|delete> [id]"))
	}

	env, err := openEnvironment(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer env.Close()

	switch args[0] {
	case "list":
		ids, err := env.Sessions.List(ctx)
		if err != nil {
			fatal(err)
		}
		if global.JSON {
			printJSON(ids)
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tMESSAGES\tSTATUS")
		for _, id := range ids {
			sess, err := env.Sessions.Load(ctx, id)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", id, len(sess.Messages), sessionStatus(sess))
		}
		w.Flush()
	case "show":
		if len(args) < 2 {
			fatal(NewInvalidArgumentError("id", "session id is required"))
		}
		sess, err := env.Sessions.Load(ctx, args[1])
		if err != nil {
			fatal(NewNotFoundError("session", args[1]))
		}
		printJSON(sess)
	case "delete":
		if len(args) < 2 {
			fatal(NewInvalidArgumentError("id", "session id is required"))
		}
		if err := env.Sessions.Delete(ctx, args[1]); err != nil {
			fatal(err)
		}
		fmt.Printf("deleted session %s\n", args[1])
	default:
		fatal(fmt.Errorf("unknown sessions subcommand %q", args[0]))
	}
}

// sessionStatus summarizes a session across its stored traces.
func sessionStatus(sess *session.Session) string {
	status := "idle"
	for _, tr := range sess.Traces {
		switch tr.Status {
		case trace.StatusPending:
			return string(trace.StatusPending)
		case trace.StatusFailed:
			status = string(trace.StatusFailed)
		case trace.StatusDone:
			if status == "idle" {
				status = string(trace.StatusDone)
			}
		}
	}
	return status
}

func printRunResult(asJSON bool, sessionID string, res *loop.Result) {
	if asJSON {
		printJSON(map[string]any{
			"session": sessionID,
			"status":  res.Status,
			"answer":  res.Answer,
			"pending": res.Pending,
		})
		return
	}
	switch res.Status {
	case trace.StatusPending:
		fmt.Printf("run suspended: %s requires approval\n", res.Pending.ToolName)
		fmt.Printf("session: %s\n", sessionID)
		fmt.Printf("resolve with 'praxis approve --session %s --tool %s' (or reject/skip), then 'praxis resume --session %s'\n",
			sessionID, res.Pending.ToolName, sessionID)
	case trace.StatusDone:
		fmt.Println(res.Answer)
	default:
		fmt.Printf("run ended with status %s\n", res.Status)
	}
}

type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func printUsage() {
	fmt.Print(`praxis - agent runner

Usage:
  praxis [global flags] <command> [command flags]

Commands:
  run       run an agent loop: praxis run --prompt "..." [--session id] [--sensitive tool] [--mcp-http url]
  resume    resume a suspended run: praxis resume --session <id>
  pending   show the pending decision for a session
  approve   approve a pending tool call: praxis approve --session <id> --tool <name> [--arg k=v]
  reject    reject a pending tool call
  skip      skip a pending tool call
  sessions  manage stored sessions: list | show <id> | delete <id>
  version   print version
  help      this text

Global flags:
  --config <path>   configuration file
  --profile <name>  layer config.<name>.yaml over the base file (alias --env)
  --set key=value   override a config key (repeatable)
  --timeout <dur>   command timeout (default 5m)
  --json            machine-readable output
`)
}

func fatal(err error) {
	var cliErr *CLIError
	if e, ok := err.(*CLIError); ok {
		cliErr = e
	}
	if cliErr != nil {
		cliErr.PrintError(false)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
	}
	os.Exit(1)
}
