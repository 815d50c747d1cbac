package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"dhgen/internal/config"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"DHGEN_SERVER", "DHGEN_CHARACTERS_DIR", "DHGEN_OUTPUT_DIR", "DHGEN_WORKFLOW", "DHGEN_LOG_LEVEL", "AWS_REGION"} {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())
	return home
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	home := isolateEnv(t)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(home, ".local", "state", "dhgen")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if !filepath.IsAbs(cfg.Paths.CharactersDir) || filepath.Base(cfg.Paths.CharactersDir) != "characters" {
		t.Fatalf("unexpected characters dir: %q", cfg.Paths.CharactersDir)
	}
	if cfg.Server.Address != "127.0.0.1:6006" {
		t.Fatalf("unexpected server address: %q", cfg.Server.Address)
	}
	if cfg.ServerURL() != "http://127.0.0.1:6006" {
		t.Fatalf("unexpected server url: %q", cfg.ServerURL())
	}
	if cfg.CacheTTL() != 300*time.Second {
		t.Fatalf("unexpected cache ttl: %s", cfg.CacheTTL())
	}
	if cfg.MonitorTimeout() != 600*time.Second || cfg.PollInterval() != 5*time.Second || cfg.ReceiveTimeout() != time.Second {
		t.Fatalf("unexpected monitor timings: %+v", cfg.Monitor)
	}
	if len(cfg.Workflow.Bindings) != len(config.DefaultBindings()) {
		t.Fatalf("expected default bindings, got %d", len(cfg.Workflow.Bindings))
	}
	if cfg.Prompts.Positive != "A person talking naturally" {
		t.Fatalf("unexpected default positive prompt: %q", cfg.Prompts.Positive)
	}
	if !cfg.Journal.Enabled {
		t.Fatal("expected journal enabled by default")
	}
	if cfg.Mirror.Enabled {
		t.Fatal("expected mirror disabled by default")
	}
	if cfg.JournalPath() != filepath.Join(wantState, "journal.db") {
		t.Fatalf("unexpected journal path: %q", cfg.JournalPath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "dhgen.toml")
	content := `
[paths]
characters_dir = "` + filepath.ToSlash(filepath.Join(dir, "chars")) + `"

[server]
address = "https://gpu.example:8443/"

[monitor]
poll_interval = 2

[[workflow.bindings]]
slot = "Audio"
node = " 7 "
path = ".inputs.clip."

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.CharactersDir != filepath.Join(dir, "chars") {
		t.Fatalf("unexpected characters dir: %q", cfg.Paths.CharactersDir)
	}
	if cfg.ServerURL() != "https://gpu.example:8443" {
		t.Fatalf("unexpected server url: %q", cfg.ServerURL())
	}
	if cfg.Monitor.PollInterval != 2 || cfg.Monitor.Timeout != 600 {
		t.Fatalf("unexpected monitor: %+v", cfg.Monitor)
	}
	if len(cfg.Workflow.Bindings) != 1 {
		t.Fatalf("expected file bindings to replace defaults, got %d", len(cfg.Workflow.Bindings))
	}
	got := cfg.Workflow.Bindings[0]
	if got.Slot != "audio" || got.Node != "7" || got.Path != "inputs.clip" {
		t.Fatalf("unexpected normalized binding: %+v", got)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
}

func TestEnvironmentOverridesServerAddress(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(configPath, []byte("[server]\naddress = \"10.0.0.1:6006\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DHGEN_SERVER", "gpu-box:7000")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Address != "gpu-box:7000" {
		t.Fatalf("expected env override, got %q", cfg.Server.Address)
	}
}

func TestCreateSample(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded map[string]any
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if !strings.Contains(string(data), "[[workflow.bindings]]") {
		t.Fatal("sample should document the binding table")
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if len(cfg.Workflow.Bindings) != len(config.DefaultBindings()) {
		t.Fatalf("sample bindings mismatch: %d", len(cfg.Workflow.Bindings))
	}
	if !cfg.Workflow.Bindings[1].AllowEmpty {
		t.Fatal("audio_ui binding should allow empty values")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero poll interval", func(c *config.Config) { c.Monitor.PollInterval = 0 }, "monitor.poll_interval"},
		{"negative ttl", func(c *config.Config) { c.Cache.TTL = -1 }, "cache.ttl"},
		{"no bindings", func(c *config.Config) { c.Workflow.Bindings = nil }, "at least one binding"},
		{"duplicate slot", func(c *config.Config) {
			c.Workflow.Bindings = append(c.Workflow.Bindings, config.Binding{Slot: "audio", Node: "9", Path: "inputs.x"})
		}, "more than once"},
		{"binding without node", func(c *config.Config) {
			c.Workflow.Bindings = []config.Binding{{Slot: "audio", Path: "inputs.audio"}}
		}, "node must be set"},
		{"mirror without bucket", func(c *config.Config) { c.Mirror.Enabled = true }, "mirror.bucket"},
		{"websocket address", func(c *config.Config) { c.Server.Address = "ws://host:1" }, "server.address"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.StateDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s", dir)
		}
	}
}
