package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateBindings(); err != nil {
		return err
	}
	if err := c.validateMirror(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if strings.ContainsAny(c.Server.Address, " \t") {
		return fmt.Errorf("server.address %q must not contain whitespace", c.Server.Address)
	}
	if strings.HasPrefix(c.Server.Address, "ws://") || strings.HasPrefix(c.Server.Address, "wss://") {
		return errors.New("server.address must be host:port or an http(s) URL")
	}
	return nil
}

func (c *Config) validateTimings() error {
	return ensurePositiveMap(map[string]int{
		"server.request_timeout":  c.Server.RequestTimeout,
		"server.upload_timeout":   c.Server.UploadTimeout,
		"monitor.timeout":         c.Monitor.Timeout,
		"monitor.poll_interval":   c.Monitor.PollInterval,
		"monitor.receive_timeout": c.Monitor.ReceiveTimeout,
		"cache.ttl":               c.Cache.TTL,
	})
}

func (c *Config) validateBindings() error {
	if len(c.Workflow.Bindings) == 0 {
		return errors.New("workflow.bindings must declare at least one binding")
	}
	seen := make(map[string]struct{}, len(c.Workflow.Bindings))
	for i, b := range c.Workflow.Bindings {
		if b.Slot == "" {
			return fmt.Errorf("workflow.bindings[%d].slot must be set", i)
		}
		if b.Node == "" {
			return fmt.Errorf("workflow.bindings[%d].node must be set (slot %q)", i, b.Slot)
		}
		if b.Path == "" {
			return fmt.Errorf("workflow.bindings[%d].path must be set (slot %q)", i, b.Slot)
		}
		if _, dup := seen[b.Slot]; dup {
			return fmt.Errorf("workflow.bindings slot %q declared more than once", b.Slot)
		}
		seen[b.Slot] = struct{}{}
	}
	return nil
}

func (c *Config) validateMirror() error {
	if !c.Mirror.Enabled {
		return nil
	}
	if c.Mirror.Bucket == "" {
		return errors.New("mirror.bucket must be set when mirror.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
