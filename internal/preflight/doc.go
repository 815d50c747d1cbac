// Package preflight provides readiness checks for the workflow server and
// the filesystem paths dhgen depends on.
//
// The CLI "dhgen doctor" command runs RunAll and renders each Result. The
// individual check functions are exported so other commands can reuse them
// (for example "generate" may verify the template before uploading).
//
// Each optional feature check is gated by its config toggle.
package preflight
