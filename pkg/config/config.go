// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Praxis configuration from YAML files, the
// environment and CLI flags. Precedence is defaults < file < profile
// file < PRAXIS_* env vars < --set overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log        LogConfig        `koanf:"log"`
	LLM        LLMConfig        `koanf:"llm"`
	Loop       LoopConfig       `koanf:"loop"`
	Detector   DetectorConfig   `koanf:"detector"`
	Team       TeamConfig       `koanf:"team"`
	Session    SessionConfig    `koanf:"session"`
	Governance GovernanceConfig `koanf:"governance"`
	Guardrails GuardrailsConfig `koanf:"guardrails"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // ollama, mock
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

// LoopConfig tunes the reason/act cycle of a single agent.
type LoopConfig struct {
	MaxSteps  int  `koanf:"max_steps"`
	StepDelta int  `koanf:"step_delta"`
	Feedback  bool `koanf:"feedback"`
	Planning  bool `koanf:"planning"`
}

// DetectorConfig tunes repetition detection in team runs.
type DetectorConfig struct {
	Window           int     `koanf:"window"`
	Threshold        float64 `koanf:"threshold"`
	MaxRepeatAllowed int     `koanf:"max_repeat_allowed"`
	MinContentLength int     `koanf:"min_content_length"`
}

type TeamConfig struct {
	Protocol           string `koanf:"protocol"` // router, sequential, parallel
	MaxTotalIterations int    `koanf:"max_total_iterations"`
	RouterModel        string `koanf:"router_model"`
}

// SessionConfig selects where sessions are persisted. Store is one of
// memory, file or sqlite; Path is the directory for the file store and
// the DSN for the sqlite store.
type SessionConfig struct {
	Store string `koanf:"store"`
	Path  string `koanf:"path"`
}

// GovernanceConfig declares tool access rules evaluated before every
// tool invocation.
type GovernanceConfig struct {
	Allowlist []string           `koanf:"allowlist"`
	Denylist  []string           `koanf:"denylist"`
	Policies  []PolicyRuleConfig `koanf:"policies"`
}

// PolicyRuleConfig is a single ordered policy rule. Effect is one of
// allow, deny or pending.
type PolicyRuleConfig struct {
	ID     string `koanf:"id"`
	Effect string `koanf:"effect"`
	Type   string `koanf:"type"`
	Name   string `koanf:"name"`
	Reason string `koanf:"reason"`
}

// GuardrailsConfig screens tool arguments and results. DenyTerms
// blocks arguments containing any listed term; the redact flags mask
// secrets and PII in tool output before the model sees it.
type GuardrailsConfig struct {
	BlockInjection bool     `koanf:"block_injection"`
	DenyTerms      []string `koanf:"deny_terms"`
	RedactSecrets  bool     `koanf:"redact_secrets"`
	RedactPII      bool     `koanf:"redact_pii"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

func Load(path string) (*Config, error) {
	var paths []string
	if path != "" {
		paths = append(paths, path)
	}
	return load(paths, nil)
}

// LoadWithProfile layers a profile-specific file (config.<profile>.yaml
// next to the base file) over the base configuration. A missing profile
// file falls back to the base silently.
func LoadWithProfile(path, profile string) (*Config, error) {
	var paths []string
	if path != "" {
		paths = append(paths, path)
	}
	if pp := profileConfigPath(path, profile); pp != "" {
		paths = append(paths, pp)
	}
	return load(paths, nil)
}

// profileConfigPath resolves the profile variant of a base config path,
// returning "" when no such file exists.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	dir := filepath.Dir(base)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(filepath.Base(base), ext)
	p := filepath.Join(dir, name+"."+profile+ext)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// LoadWithCLI parses --config, --profile (alias --env) and repeated
// --set key=value flags and loads accordingly. --set overrides have the
// highest precedence.
func LoadWithCLI(args []string) (*Config, error) {
	path, profile, overrides, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	var paths []string
	if path != "" {
		paths = append(paths, path)
	}
	if pp := profileConfigPath(path, profile); pp != "" {
		paths = append(paths, pp)
	}
	return load(paths, overrides)
}

func parseCLIOverrides(args []string) (path, profile string, overrides map[string]string, err error) {
	overrides = make(map[string]string)
	take := func(i int, flag string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("missing value for %s", flag)
		}
		return args[i+1], nil
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config":
			if path, err = take(i, arg); err != nil {
				return "", "", nil, err
			}
			i++
		case strings.HasPrefix(arg, "--config="):
			path = strings.TrimPrefix(arg, "--config=")
		case arg == "--profile" || arg == "--env":
			if profile, err = take(i, arg); err != nil {
				return "", "", nil, err
			}
			i++
		case strings.HasPrefix(arg, "--profile="):
			profile = strings.TrimPrefix(arg, "--profile=")
		case strings.HasPrefix(arg, "--env="):
			profile = strings.TrimPrefix(arg, "--env=")
		case arg == "--set":
			v, err := take(i, arg)
			if err != nil {
				return "", "", nil, err
			}
			key, value, ok := strings.Cut(v, "=")
			if !ok || key == "" {
				return "", "", nil, fmt.Errorf("invalid --set %q, want key=value", v)
			}
			overrides[key] = value
			i++
		case strings.HasPrefix(arg, "--set="):
			v := strings.TrimPrefix(arg, "--set=")
			key, value, ok := strings.Cut(v, "=")
			if !ok || key == "" {
				return "", "", nil, fmt.Errorf("invalid --set %q, want key=value", v)
			}
			overrides[key] = value
		}
	}
	return path, profile, overrides, nil
}

func load(paths []string, overrides map[string]string) (*Config, error) {
	k := koanf.New(".")

	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "qwen2.5-coder:7b-instruct-q5_K_M")
	k.Set("llm.base_url", "http://localhost:11434")

	k.Set("loop.max_steps", 10)
	k.Set("loop.step_delta", 10)
	k.Set("loop.feedback", false)
	k.Set("loop.planning", false)

	k.Set("detector.window", 10)
	k.Set("detector.threshold", 0.95)
	k.Set("detector.max_repeat_allowed", 0)
	k.Set("detector.min_content_length", 1)

	k.Set("team.protocol", "sequential")
	k.Set("team.max_total_iterations", 20)

	// File-backed sessions by default so a suspended run and its later
	// resume can live in different processes.
	k.Set("session.store", "file")
	k.Set("session.path", ".praxis/sessions")

	k.Set("guardrails.block_injection", true)
	k.Set("guardrails.redact_secrets", true)
	k.Set("telemetry.exporter", "none")

	// 1. Files, in layering order
	for _, path := range paths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. ENV (PRAXIS_LLM_PROVIDER -> llm.provider)
	if err := k.Load(env.Provider("PRAXIS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "PRAXIS_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// 3. CLI --set overrides
	for key, value := range overrides {
		k.Set(key, value)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
