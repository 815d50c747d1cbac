package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"dhgen/internal/character"
	"dhgen/internal/config"
	"dhgen/internal/generation"
	"dhgen/internal/journal"
	"dhgen/internal/logging"
	"dhgen/internal/mirror"
	"dhgen/internal/services"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	resolverOnce sync.Once
	resolver     *character.Resolver

	journalOnce sync.Once
	journal     *journal.Journal
	journalErr  error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		// A missing .env is the normal case.
		_ = godotenv.Load()

		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "cli", "load config", "", err)
			return
		}
		if c.verbose != nil && *c.verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "cli", "ensure directories", "", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) loggerValue() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) resolverValue() (*character.Resolver, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.loggerValue()
	if err != nil {
		return nil, err
	}
	c.resolverOnce.Do(func() {
		c.resolver = character.NewResolver(cfg.Paths.CharactersDir, cfg.CacheTTL(), logger)
	})
	return c.resolver, nil
}

// journalValue opens the submission journal. It returns nil without error
// when the journal is disabled.
func (c *commandContext) journalValue() (*journal.Journal, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Journal.Enabled {
		return nil, nil
	}
	c.journalOnce.Do(func() {
		c.journal, c.journalErr = journal.Open(cfg)
	})
	return c.journal, c.journalErr
}

// orchestrator wires the generation flows. A journal that cannot be opened is
// reported and skipped; a mirror that cannot be configured is an error
// because the user asked for it explicitly.
func (c *commandContext) orchestrator(ctx context.Context) (*generation.Orchestrator, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.loggerValue()
	if err != nil {
		return nil, err
	}
	resolver, err := c.resolverValue()
	if err != nil {
		return nil, err
	}
	orch, err := generation.NewFromConfig(cfg, resolver, logger)
	if err != nil {
		return nil, err
	}

	j, err := c.journalValue()
	switch {
	case err != nil:
		logging.WarnWithContext(logger, "journal unavailable", "journal_open_failed",
			logging.Error(err),
			logging.String("path", cfg.JournalPath()),
			logging.String(logging.FieldErrorHint, "check permissions on paths.state_dir or set journal.enabled = false"),
			logging.String(logging.FieldImpact, "this submission will not appear in dhgen jobs"))
	case j != nil:
		orch.SetJournal(j)
	}

	if cfg.Mirror.Enabled {
		m, err := mirror.New(ctx, cfg.Mirror, logger)
		if err != nil {
			return nil, err
		}
		orch.SetMirror(m)
	}
	return orch, nil
}

func (c *commandContext) close() {
	if c.journal != nil {
		_ = c.journal.Close()
		c.journal = nil
	}
}

// withSuggestions appends close character names to a not-found error.
func (c *commandContext) withSuggestions(name string, err error) error {
	if !errors.Is(err, services.ErrNotFound) {
		return err
	}
	resolver, rerr := c.resolverValue()
	if rerr != nil {
		return err
	}
	suggestions := resolver.Suggest(name)
	if len(suggestions) == 0 {
		return err
	}
	return fmt.Errorf("%w (did you mean: %s?)", err, strings.Join(suggestions, ", "))
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
