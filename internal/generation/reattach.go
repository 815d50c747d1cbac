package generation

import (
	"context"
	"fmt"
	"time"

	"dhgen/internal/comfy"
	"dhgen/internal/journal"
	"dhgen/internal/logging"
	"dhgen/internal/services"
)

// MonitorOptions configures MonitorOnly.
type MonitorOptions struct {
	Timeout      time.Duration
	AutoDownload bool
	OutputDir    string
	Progress     comfy.ProgressFunc
}

// MonitorOnly reattaches to jobID. The job is first classified with a
// direct status query; only RUNNING or PENDING jobs are waited on, by
// polling history and queue.
func (o *Orchestrator) MonitorOnly(ctx context.Context, jobID string, opts MonitorOptions) (*Result, error) {
	start := time.Now()
	client, err := o.newClient()
	if err != nil {
		return nil, err
	}
	defer o.release(client)

	ctx = services.WithJobID(ctx, jobID)
	logger := logging.WithContext(ctx, o.logger)
	dest := o.destination(opts.OutputDir)

	state, err := client.QueryStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	res := &Result{JobID: jobID, State: state}
	defer func() { res.Elapsed = time.Since(start) }()

	switch state {
	case comfy.StateCompleted:
		o.note(ctx, jobID, state, "")
		if !opts.AutoDownload {
			return res, nil
		}
		return res, o.collect(ctx, client, jobID, dest, res)
	case comfy.StateNotFound:
		o.note(ctx, jobID, state, "")
		return res, terminalError(jobID, state, "")
	}

	// The server only streams a job's events to the client that submitted
	// it, so a reattached client polls.
	logger.Info("job still in progress, polling", logging.String("state", string(state)))
	job := &comfy.Job{ID: jobID, State: state}
	return res, o.await(ctx, client, job, o.timeout(opts.Timeout), opts.Progress, opts.AutoDownload, dest, res)
}

// FetchResult downloads the artifacts of a finished job without waiting.
// A job the server has no history for yields an ErrNotFound error.
func (o *Orchestrator) FetchResult(ctx context.Context, jobID, outputDir string) (*Result, error) {
	start := time.Now()
	client, err := o.newClient()
	if err != nil {
		return nil, err
	}
	defer o.release(client)

	ctx = services.WithJobID(ctx, jobID)
	res := &Result{JobID: jobID, State: comfy.StateCompleted}
	err = o.collect(ctx, client, jobID, o.destination(outputDir), res)
	res.Elapsed = time.Since(start)
	if err != nil && !isPartial(err) {
		return nil, err
	}
	o.note(ctx, jobID, comfy.StateCompleted, "")
	return res, err
}

// await monitors job and, on COMPLETED, optionally collects its artifacts.
func (o *Orchestrator) await(ctx context.Context, client JobClient, job *comfy.Job, timeout time.Duration,
	progress comfy.ProgressFunc, download bool, dest string, res *Result) error {
	state, err := client.Monitor(ctx, job, timeout, progress)
	res.State = job.State
	if err != nil {
		return err
	}
	res.State = state
	res.Failure = job.Failure
	o.note(ctx, job.ID, state, job.Failure)

	if state != comfy.StateCompleted {
		return terminalError(job.ID, state, job.Failure)
	}
	if !download {
		return nil
	}
	return o.collect(ctx, client, job.ID, dest, res)
}

// collect fetches the history record, downloads every artifact into dest and
// mirrors what arrived. A partial batch returns the PartialDownloadError
// after recording the files that succeeded.
func (o *Orchestrator) collect(ctx context.Context, client JobClient, jobID, dest string, res *Result) error {
	logger := logging.WithContext(ctx, o.logger)

	raw, err := client.FetchResult(ctx, jobID)
	if err != nil {
		return err
	}
	artifacts := client.ExtractArtifacts(raw)
	res.OutputDir = dest
	if len(artifacts) == 0 {
		logging.WarnWithContext(logger, "job finished without downloadable outputs", "no_artifacts",
			logging.String(logging.FieldErrorHint, "check the workflow's save nodes"),
			logging.String(logging.FieldImpact, "nothing was downloaded"))
		return nil
	}

	report, err := client.DownloadAll(ctx, artifacts, dest)
	if report != nil {
		res.Files = report.Files
	}
	if err != nil && !isPartial(err) {
		return err
	}
	logger.Info("artifacts downloaded",
		logging.Int("saved", len(res.Files)),
		logging.Int("requested", len(artifacts)),
		logging.String("dest", dest))

	if o.journal != nil {
		if jerr := o.journal.RecordDownload(context.WithoutCancel(ctx), jobID, dest, len(res.Files)); jerr != nil {
			logger.Debug("journal download update failed", logging.Error(jerr))
		}
	}
	o.publish(ctx, jobID, res)
	return err
}

func (o *Orchestrator) publish(ctx context.Context, jobID string, res *Result) {
	if o.mirror == nil || len(res.Files) == 0 {
		return
	}
	paths := make([]string, 0, len(res.Files))
	for _, f := range res.Files {
		paths = append(paths, f.Path)
	}
	objects, err := o.mirror.Publish(ctx, jobID, paths)
	for _, obj := range objects {
		res.Mirrored = append(res.Mirrored, obj.URI)
	}
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "artifact mirror incomplete", "mirror_incomplete",
			logging.Error(err),
			logging.String(logging.FieldImpact, fmt.Sprintf("%d of %d files mirrored", len(objects), len(paths))))
	}
}

func (o *Orchestrator) record(ctx context.Context, entry journal.Entry) {
	if o.journal == nil {
		return
	}
	if err := o.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "journal write failed", "journal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory"),
			logging.String(logging.FieldImpact, "job is not listed by `dhgen jobs`"))
	}
}

func (o *Orchestrator) note(ctx context.Context, jobID string, state comfy.State, failure string) {
	if o.journal == nil {
		return
	}
	if err := o.journal.UpdateState(context.WithoutCancel(ctx), jobID, string(state), failure); err != nil {
		o.logger.Debug("journal state update failed", logging.String(logging.FieldJobID, jobID), logging.Error(err))
	}
}
