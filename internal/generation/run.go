package generation

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"dhgen/internal/character"
	"dhgen/internal/comfy"
	"dhgen/internal/config"
	"dhgen/internal/journal"
	"dhgen/internal/logging"
	"dhgen/internal/services"
)

const (
	audioAdvisoryBytes  = 100 << 20
	visualAdvisoryBytes = 50 << 20
)

// RunSync submits a generation and waits for it. On COMPLETED the artifacts
// are downloaded; other terminal states return the Result together with a
// classified error. The event channel is released on every path.
func (o *Orchestrator) RunSync(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	client, err := o.newClient()
	if err != nil {
		return nil, err
	}
	defer o.release(client)

	ctx = services.WithCharacter(ctx, req.Character)
	job, res, err := o.submit(ctx, client, req)
	if err != nil {
		return nil, err
	}
	ctx = services.WithJobID(ctx, job.ID)

	err = o.await(ctx, client, job, o.timeout(req.Timeout), req.Progress, true, o.destination(req.OutputDir), res)
	res.Elapsed = time.Since(start)
	return res, err
}

// RunAsync submits a generation and returns as soon as the server accepts it.
func (o *Orchestrator) RunAsync(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	client, err := o.newClient()
	if err != nil {
		return nil, err
	}
	defer o.release(client)

	ctx = services.WithCharacter(ctx, req.Character)
	_, res, err := o.submit(ctx, client, req)
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// submit runs resolve, file checks, connect, upload, bind and submit. The
// caller owns releasing client.
func (o *Orchestrator) submit(ctx context.Context, client JobClient, req Request) (*comfy.Job, *Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, nil, services.Wrap(services.ErrValidation, component, "submit", "text to speak is empty", nil)
	}

	asset, err := o.resolver.Resolve(req.Character)
	if err != nil {
		return nil, nil, err
	}
	ctx = services.WithCharacter(ctx, asset.Name)
	logger := logging.WithContext(ctx, o.logger)

	if err := o.checkFiles(logger, asset); err != nil {
		return nil, nil, err
	}
	template, err := comfy.LoadTemplate(o.workflowPath)
	if err != nil {
		return nil, nil, err
	}

	if err := client.Connect(ctx); err != nil {
		return nil, nil, err
	}
	audioRef, err := client.UploadAsset(ctx, asset.AudioPath, comfy.UploadAudio)
	if err != nil {
		return nil, nil, err
	}
	visualRef, err := client.UploadAsset(ctx, asset.VisualPath, comfy.UploadVisual)
	if err != nil {
		return nil, nil, err
	}

	graph, skipped := comfy.Bind(template, o.bindings, o.values(asset, req.Overrides, text, audioRef, visualRef))
	if len(skipped) > 0 {
		logger.Debug("binding slots left at template values", logging.String("slots", strings.Join(skipped, ",")))
	}

	job, err := client.Submit(ctx, graph)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("audio", audioRef),
		logging.String("visual", visualRef))

	o.record(ctx, journal.Entry{
		JobID:       job.ID,
		Character:   asset.Name,
		TextExcerpt: text,
		Server:      client.BaseURL(),
		State:       string(job.State),
		SubmittedAt: job.StartedAt,
	})
	return job, &Result{JobID: job.ID, Character: asset.Name, State: job.State, Skipped: skipped}, nil
}

// checkFiles confirms the bundle still exists on disk and logs a size
// advisory for large references.
func (o *Orchestrator) checkFiles(logger *slog.Logger, asset *character.Asset) error {
	for _, ref := range []struct {
		path  string
		label string
		limit int64
	}{
		{asset.AudioPath, "audio", audioAdvisoryBytes},
		{asset.VisualPath, "visual", visualAdvisoryBytes},
	} {
		info, err := os.Stat(ref.path)
		if err != nil {
			return services.Wrap(services.ErrFile, component, "pre-flight", ref.label+" reference is gone: "+ref.path, err)
		}
		if info.Size() > ref.limit {
			logging.WarnWithContext(logger, "large reference file may slow the upload", "reference_size_advisory",
				logging.String("kind", ref.label),
				logging.String("path", ref.path),
				logging.String("size", humanize.IBytes(uint64(info.Size()))),
				logging.String(logging.FieldErrorHint, "trim or re-encode the reference"),
				logging.String(logging.FieldImpact, "generation continues"))
		}
	}
	return nil
}

// values builds the slot map. Prompts follow override, then character bag,
// then configuration.
func (o *Orchestrator) values(asset *character.Asset, overrides Overrides, text, audioRef, visualRef string) map[string]string {
	values := make(map[string]string, len(overrides.Slots)+5)
	for slot, value := range overrides.Slots {
		values[slot] = value
	}
	values[config.SlotAudio] = audioRef
	values[config.SlotVisual] = visualRef
	values[config.SlotText] = text
	values[config.SlotPositivePrompt] = firstNonEmpty(overrides.PositivePrompt, asset.Config.PositivePrompt(), o.prompts.Positive)
	values[config.SlotNegativePrompt] = firstNonEmpty(overrides.NegativePrompt, asset.Config.NegativePrompt(), o.prompts.Negative)
	return values
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (o *Orchestrator) timeout(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	return o.monitorTimeout
}

func (o *Orchestrator) destination(requested string) string {
	if strings.TrimSpace(requested) != "" {
		return requested
	}
	return o.outputDir
}
