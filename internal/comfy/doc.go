// Package comfy talks to a remote node-graph workflow server.
//
// A Client uploads reference media, binds values into a workflow template via
// a declarative binding table, submits the resulting graph and tracks the job
// to a terminal state. Monitoring prefers the server's WebSocket event stream
// and falls back to polling history and queue endpoints when the stream is
// unavailable, silent or broken; both strategies share one deadline.
// Completed jobs are turned into artifact descriptors and downloaded with
// per-file failure isolation.
//
// The remote server owns job state. Nothing here persists it or cancels
// remote work; abandoning a wait only releases the local event channel.
package comfy
