package preflight

import (
	"context"

	"dhgen/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckReadableDirectory("Characters directory", cfg.Paths.CharactersDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckWorkflowTemplate(cfg.Server.WorkflowPath, cfg.Workflow.Bindings),
		CheckServer(ctx, cfg.ServerURL(), cfg.RequestTimeout()),
	}
	if cfg.Journal.Enabled {
		results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	}
	results = append(results, CheckMirrorFromConfig(cfg))
	return results
}

// Failed counts results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}
