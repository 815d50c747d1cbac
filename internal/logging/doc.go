// Package logging assembles structured slog loggers and formatting helpers used
// across dhgen.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context-aware helpers so orchestration code can tag log lines with
// job IDs, character names, and correlation IDs. A no-op logger is provided
// for tests and wiring code that cannot fail.
package logging
