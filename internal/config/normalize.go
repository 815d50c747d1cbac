package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnvironment()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeServer(); err != nil {
		return err
	}
	c.normalizeBindings()
	c.normalizePrompts()
	c.normalizeMirror()
	c.normalizeLogging()
	return nil
}

// applyEnvironment lets deployment environments override file settings.
func (c *Config) applyEnvironment() {
	if value, ok := lookupEnv("DHGEN_SERVER"); ok {
		c.Server.Address = value
	}
	if value, ok := lookupEnv("DHGEN_CHARACTERS_DIR"); ok {
		c.Paths.CharactersDir = value
	}
	if value, ok := lookupEnv("DHGEN_OUTPUT_DIR"); ok {
		c.Paths.OutputDir = value
	}
	if value, ok := lookupEnv("DHGEN_WORKFLOW"); ok {
		c.Server.WorkflowPath = value
	}
	if value, ok := lookupEnv("DHGEN_LOG_LEVEL"); ok {
		c.Logging.Level = value
	}
	if c.Mirror.Region == "" {
		if value, ok := lookupEnv("AWS_REGION"); ok {
			c.Mirror.Region = value
		}
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CharactersDir) == "" {
		c.Paths.CharactersDir = defaultCharactersDir
	}
	if c.Paths.CharactersDir, err = expandPath(c.Paths.CharactersDir); err != nil {
		return fmt.Errorf("paths.characters_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() error {
	c.Server.Address = strings.TrimRight(strings.TrimSpace(c.Server.Address), "/")
	if c.Server.Address == "" {
		c.Server.Address = defaultServerAddress
	}
	if strings.TrimSpace(c.Server.WorkflowPath) == "" {
		c.Server.WorkflowPath = defaultWorkflowPath
	}
	var err error
	if c.Server.WorkflowPath, err = expandPath(c.Server.WorkflowPath); err != nil {
		return fmt.Errorf("server.workflow_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeBindings() {
	for i := range c.Workflow.Bindings {
		b := &c.Workflow.Bindings[i]
		b.Slot = strings.ToLower(strings.TrimSpace(b.Slot))
		b.Node = strings.TrimSpace(b.Node)
		b.Path = strings.Trim(strings.TrimSpace(b.Path), ".")
	}
}

func (c *Config) normalizePrompts() {
	c.Prompts.Positive = strings.TrimSpace(c.Prompts.Positive)
	if c.Prompts.Positive == "" {
		c.Prompts.Positive = DefaultPositivePrompt
	}
	c.Prompts.Negative = strings.TrimSpace(c.Prompts.Negative)
	if c.Prompts.Negative == "" {
		c.Prompts.Negative = DefaultNegativePrompt
	}
}

func (c *Config) normalizeMirror() {
	c.Mirror.Bucket = strings.TrimSpace(c.Mirror.Bucket)
	c.Mirror.Prefix = strings.Trim(strings.TrimSpace(c.Mirror.Prefix), "/")
	c.Mirror.Region = strings.TrimSpace(c.Mirror.Region)
	c.Mirror.Profile = strings.TrimSpace(c.Mirror.Profile)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
