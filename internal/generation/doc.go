// Package generation composes the character resolver and the workflow
// server client into the end-to-end flows exposed by the CLI.
//
// RunSync resolves a character, uploads its references, submits the bound
// workflow, waits for a terminal state and downloads the artifacts. RunAsync
// stops after submission. MonitorOnly and FetchResult reattach to a job by
// id from a later process, since all job state lives on the server.
//
// Every flow that opens an event channel releases it on all exit paths. The
// optional journal and mirror collaborators never influence control flow:
// their failures are logged and the flow continues.
package generation
