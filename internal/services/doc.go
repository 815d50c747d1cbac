// Package services defines shared utilities consumed by the character
// resolver, the workflow client and the generation orchestrator.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, character names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper, and the typed errors
//     (validation, submission, partial download) that carry details callers
//     need to report.
//   - ExitCode, which translates the error taxonomy into CLI exit statuses.
//
// Use these helpers when wiring new components so error classification and
// observability stay uniform across the tool.
package services
