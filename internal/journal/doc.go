// Package journal keeps a local SQLite record of submitted generation jobs.
//
// The journal is informational: it lets `dhgen jobs` list what was submitted
// from this machine and the last state observed for each job. Nothing reads it
// to decide control flow; the workflow server stays the source of truth for
// job state. Schema changes bump schemaVersion in schema.go and users delete
// the database to adopt them.
package journal
