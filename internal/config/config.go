package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	CharactersDir string `toml:"characters_dir"`
	OutputDir     string `toml:"output_dir"`
	LogDir        string `toml:"log_dir"`
	StateDir      string `toml:"state_dir"`
}

// Server describes the remote workflow server.
type Server struct {
	Address        string `toml:"address"`
	WorkflowPath   string `toml:"workflow_path"`
	RequestTimeout int    `toml:"request_timeout"`
	UploadTimeout  int    `toml:"upload_timeout"`
}

// Monitor contains timing for job monitoring, all in seconds.
type Monitor struct {
	Timeout        int `toml:"timeout"`
	PollInterval   int `toml:"poll_interval"`
	ReceiveTimeout int `toml:"receive_timeout"`
}

// Cache configures the character resolver cache.
type Cache struct {
	TTL int `toml:"ttl"`
}

// Binding maps a symbolic slot onto a node field of the workflow template.
// Path is dot separated and relative to the node, e.g. "inputs.audio".
type Binding struct {
	Slot       string `toml:"slot"`
	Node       string `toml:"node"`
	Path       string `toml:"path"`
	AllowEmpty bool   `toml:"allow_empty"`
}

// Workflow holds the template binding table.
type Workflow struct {
	Bindings []Binding `toml:"bindings"`
}

// Prompts supplies fallback prompts when neither the caller nor the
// character bag provides one.
type Prompts struct {
	Positive string `toml:"positive"`
	Negative string `toml:"negative"`
}

// Journal toggles the local submission journal.
type Journal struct {
	Enabled bool `toml:"enabled"`
}

// Mirror configures optional S3 publication of downloaded artifacts.
type Mirror struct {
	Enabled   bool   `toml:"enabled"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Region    string `toml:"region"`
	Profile   string `toml:"profile"`
	PathStyle bool   `toml:"path_style"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for dhgen.
//
// Configuration sections by subsystem:
//   - Paths: character library, download, log and state directories
//   - Server: workflow server address, template path and HTTP timeouts
//   - Monitor: job monitoring deadline and polling cadence
//   - Cache: character resolver TTL
//   - Workflow: template binding table
//   - Prompts: default positive/negative prompts
//   - Journal: local submission journal
//   - Mirror: S3 publication of downloaded artifacts
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Server   Server   `toml:"server"`
	Monitor  Monitor  `toml:"monitor"`
	Cache    Cache    `toml:"cache"`
	Workflow Workflow `toml:"workflow"`
	Prompts  Prompts  `toml:"prompts"`
	Journal  Journal  `toml:"journal"`
	Mirror   Mirror   `toml:"mirror"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dhgen/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		// A file that declares bindings replaces the default table wholesale.
		cfg.Workflow.Bindings = nil
		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
		if len(cfg.Workflow.Bindings) == 0 {
			cfg.Workflow.Bindings = DefaultBindings()
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dhgen.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the CLI writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ServerURL returns the HTTP base URL of the workflow server.
func (c *Config) ServerURL() string {
	addr := strings.TrimRight(strings.TrimSpace(c.Server.Address), "/")
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

// JournalPath returns the SQLite journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// CacheTTL returns the resolver cache time-to-live.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTL) * time.Second
}

// MonitorTimeout returns the default wall-clock deadline for monitoring.
func (c *Config) MonitorTimeout() time.Duration {
	return time.Duration(c.Monitor.Timeout) * time.Second
}

// PollInterval returns the fallback polling cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollInterval) * time.Second
}

// ReceiveTimeout returns the per-message event channel receive timeout.
func (c *Config) ReceiveTimeout() time.Duration {
	return time.Duration(c.Monitor.ReceiveTimeout) * time.Second
}

// RequestTimeout returns the timeout for small HTTP calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}

// UploadTimeout returns the timeout for file transfers.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Server.UploadTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
