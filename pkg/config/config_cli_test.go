package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWithCLIOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
llm:
  provider: "ollama"
  model: "model-a"
telemetry:
  exporter: "stdout"
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.Setenv("PRAXIS_LLM_PROVIDER", "openai"); err != nil {
		t.Fatalf("set env: %v", err)
	}
	defer os.Unsetenv("PRAXIS_LLM_PROVIDER")

	cfg, err := LoadWithCLI([]string{
		"--config", path,
		"--set", "llm.provider=anthropic",
		"--set", "loop.feedback=true",
		"--set", "detector.max_repeat_allowed=2",
		"--set", "session.store=file",
	})
	if err != nil {
		t.Fatalf("LoadWithCLI failed: %v", err)
	}
	// --set beats both the file and the env var.
	if cfg.LLM.Provider != "anthropic" {
		t.Fatalf("expected cli override provider, got %s", cfg.LLM.Provider)
	}
	if !cfg.Loop.Feedback {
		t.Fatalf("expected loop.feedback=true")
	}
	if cfg.Detector.MaxRepeatAllowed != 2 {
		t.Fatalf("expected detector override, got %d", cfg.Detector.MaxRepeatAllowed)
	}
	if cfg.Session.Store != "file" {
		t.Fatalf("expected session store override, got %s", cfg.Session.Store)
	}
	if cfg.Telemetry.Exporter != "stdout" {
		t.Fatalf("expected telemetry exporter from file, got %s", cfg.Telemetry.Exporter)
	}
}

func TestLoadWithCLIProfile(t *testing.T) {
	tmpDir := t.TempDir()

	baseConfig := `
llm:
  provider: "ollama"
`
	basePath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(basePath, []byte(baseConfig), 0644); err != nil {
		t.Fatalf("failed to write base config: %v", err)
	}

	devConfig := `
llm:
  provider: "mock"
`
	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	if err := os.WriteFile(devPath, []byte(devConfig), 0644); err != nil {
		t.Fatalf("failed to write dev config: %v", err)
	}

	tests := []struct {
		name         string
		args         []string
		wantProvider string
	}{
		{
			name:         "profile flag",
			args:         []string{"--config", basePath, "--profile", "dev"},
			wantProvider: "mock",
		},
		{
			name:         "env flag alias",
			args:         []string{"--config", basePath, "--env", "dev"},
			wantProvider: "mock",
		},
		{
			name:         "profile with equals",
			args:         []string{"--config=" + basePath, "--profile=dev"},
			wantProvider: "mock",
		},
		{
			name:         "env with equals",
			args:         []string{"--config=" + basePath, "--env=dev"},
			wantProvider: "mock",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithCLI(tc.args)
			if err != nil {
				t.Fatalf("LoadWithCLI failed: %v", err)
			}

			if cfg.LLM.Provider != tc.wantProvider {
				t.Errorf("provider: got %s, want %s", cfg.LLM.Provider, tc.wantProvider)
			}
		})
	}
}

func TestParseCLIOverridesErrors(t *testing.T) {
	if _, _, _, err := parseCLIOverrides([]string{"--config"}); err == nil {
		t.Fatalf("expected error for missing --config value")
	}
	if _, _, _, err := parseCLIOverrides([]string{"--set"}); err == nil {
		t.Fatalf("expected error for missing --set value")
	}
	if _, _, _, err := parseCLIOverrides([]string{"--set", "invalid"}); err == nil {
		t.Fatalf("expected error for invalid --set value")
	}
}
