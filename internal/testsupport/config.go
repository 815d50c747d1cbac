package testsupport

import (
	"path/filepath"
	"testing"

	"dhgen/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Monitoring timings are shortened so fallback paths finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.CharactersDir = filepath.Join(base, "characters")
	cfgVal.Paths.OutputDir = filepath.Join(base, "outputs")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Server.WorkflowPath = filepath.Join(base, "workflow.json")
	cfgVal.Monitor.Timeout = 5
	cfgVal.Monitor.PollInterval = 1
	cfgVal.Monitor.ReceiveTimeout = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithServer points the config at a (fake) workflow server.
func WithServer(address string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.Address = address
	}
}

// WithJournal toggles the submission journal.
func WithJournal(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Journal.Enabled = enabled
	}
}

// WithWorkflow writes template to the configured workflow path.
func WithWorkflow(template string) ConfigOption {
	return func(b *configBuilder) {
		WriteText(b.t, b.cfg.Server.WorkflowPath, template)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
