// Package main hosts the dhgen CLI entrypoint and command graph.
//
// The Cobra command tree inspects character bundles, submits generation jobs
// to a workflow server, reattaches to jobs submitted earlier and downloads
// their artifacts. Configuration resolution, logger construction and the
// orchestrator wiring live in commandContext so subcommands only translate
// flags into calls on the internal packages.
package main
