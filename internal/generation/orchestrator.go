package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dhgen/internal/character"
	"dhgen/internal/comfy"
	"dhgen/internal/config"
	"dhgen/internal/journal"
	"dhgen/internal/logging"
	"dhgen/internal/mirror"
	"dhgen/internal/services"
)

const component = "generation"

// Resolver supplies validated character bundles.
type Resolver interface {
	Resolve(name string) (*character.Asset, error)
}

// JobClient is the workflow server surface the orchestrator drives.
type JobClient interface {
	ClientID() string
	BaseURL() string
	Connect(ctx context.Context) error
	Disconnect() error
	UploadAsset(ctx context.Context, localPath string, kind comfy.UploadKind) (string, error)
	Submit(ctx context.Context, graph comfy.Graph) (*comfy.Job, error)
	Monitor(ctx context.Context, job *comfy.Job, timeout time.Duration, progress comfy.ProgressFunc) (comfy.State, error)
	QueryStatus(ctx context.Context, jobID string) (comfy.State, error)
	FetchResult(ctx context.Context, jobID string) (*comfy.RawResult, error)
	ExtractArtifacts(result *comfy.RawResult) []comfy.Artifact
	DownloadAll(ctx context.Context, artifacts []comfy.Artifact, destDir string) (*comfy.DownloadReport, error)
}

// ClientFactory returns a fresh client, with its own client id, per flow.
type ClientFactory func() (JobClient, error)

// Journal records submissions. Implemented by *journal.Journal.
type Journal interface {
	Record(ctx context.Context, entry journal.Entry) error
	UpdateState(ctx context.Context, jobID, state, failure string) error
	RecordDownload(ctx context.Context, jobID, outputDir string, artifacts int) error
}

// Publisher mirrors downloaded files. Implemented by *mirror.Mirror.
type Publisher interface {
	Publish(ctx context.Context, jobID string, paths []string) ([]mirror.Object, error)
}

// Options configures an Orchestrator. Journal and Mirror are optional.
type Options struct {
	Resolver       Resolver
	NewClient      ClientFactory
	WorkflowPath   string
	Bindings       []config.Binding
	Prompts        config.Prompts
	OutputDir      string
	MonitorTimeout time.Duration
	Journal        Journal
	Mirror         Publisher
	Logger         *slog.Logger
}

// Orchestrator runs generation flows.
type Orchestrator struct {
	resolver       Resolver
	newClient      ClientFactory
	workflowPath   string
	bindings       []config.Binding
	prompts        config.Prompts
	outputDir      string
	monitorTimeout time.Duration
	journal        Journal
	mirror         Publisher
	logger         *slog.Logger
}

// New validates opts and returns an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Resolver == nil:
		return nil, services.Wrap(services.ErrConfiguration, component, "new", "resolver is required", nil)
	case opts.NewClient == nil:
		return nil, services.Wrap(services.ErrConfiguration, component, "new", "client factory is required", nil)
	case opts.OutputDir == "":
		return nil, services.Wrap(services.ErrConfiguration, component, "new", "output directory is required", nil)
	}
	bindings := opts.Bindings
	if len(bindings) == 0 {
		bindings = config.DefaultBindings()
	}
	prompts := opts.Prompts
	if prompts.Positive == "" {
		prompts.Positive = config.DefaultPositivePrompt
	}
	if prompts.Negative == "" {
		prompts.Negative = config.DefaultNegativePrompt
	}
	timeout := opts.MonitorTimeout
	if timeout <= 0 {
		timeout = comfy.DefaultMonitorTimeout
	}
	return &Orchestrator{
		resolver:       opts.Resolver,
		newClient:      opts.NewClient,
		workflowPath:   opts.WorkflowPath,
		bindings:       bindings,
		prompts:        prompts,
		outputDir:      opts.OutputDir,
		monitorTimeout: timeout,
		journal:        opts.Journal,
		mirror:         opts.Mirror,
		logger:         logging.NewComponentLogger(opts.Logger, component),
	}, nil
}

// ClientFactoryFromConfig builds clients for the configured server.
func ClientFactoryFromConfig(cfg *config.Config, logger *slog.Logger) ClientFactory {
	return func() (JobClient, error) {
		client, err := comfy.New(comfy.Options{
			BaseURL:        cfg.ServerURL(),
			RequestTimeout: cfg.RequestTimeout(),
			UploadTimeout:  cfg.UploadTimeout(),
			PollInterval:   cfg.PollInterval(),
			ReceiveTimeout: cfg.ReceiveTimeout(),
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// NewFromConfig wires an Orchestrator from configuration. Journal and mirror
// are attached by the caller because they own resources that need closing.
func NewFromConfig(cfg *config.Config, resolver Resolver, logger *slog.Logger) (*Orchestrator, error) {
	return New(Options{
		Resolver:       resolver,
		NewClient:      ClientFactoryFromConfig(cfg, logger),
		WorkflowPath:   cfg.Server.WorkflowPath,
		Bindings:       cfg.Workflow.Bindings,
		Prompts:        cfg.Prompts,
		OutputDir:      cfg.Paths.OutputDir,
		MonitorTimeout: cfg.MonitorTimeout(),
		Logger:         logger,
	})
}

// SetJournal attaches a submission journal.
func (o *Orchestrator) SetJournal(j Journal) { o.journal = j }

// SetMirror attaches an artifact publisher.
func (o *Orchestrator) SetMirror(p Publisher) { o.mirror = p }

// OutputDir returns the default download directory.
func (o *Orchestrator) OutputDir() string { return o.outputDir }

// Overrides replaces values that would otherwise come from the character
// bag or configuration. Slots sets arbitrary binding slots by name.
type Overrides struct {
	PositivePrompt string
	NegativePrompt string
	Slots          map[string]string
}

// Request describes one generation.
type Request struct {
	Character string
	Text      string
	Overrides Overrides
	// Timeout bounds monitoring; zero uses the configured timeout.
	Timeout time.Duration
	// OutputDir overrides the configured download directory.
	OutputDir string
	Progress  comfy.ProgressFunc
}

// Result describes the outcome of a flow.
type Result struct {
	JobID     string                 `json:"job_id"`
	Character string                 `json:"character,omitempty"`
	State     comfy.State            `json:"state"`
	Failure   string                 `json:"failure,omitempty"`
	OutputDir string                 `json:"output_dir,omitempty"`
	Files     []comfy.DownloadedFile `json:"files,omitempty"`
	Mirrored  []string               `json:"mirrored,omitempty"`
	Skipped   []string               `json:"skipped_slots,omitempty"`
	Elapsed   time.Duration          `json:"elapsed"`
}

// release disconnects client and logs instead of masking the flow's error.
func (o *Orchestrator) release(client JobClient) {
	if err := client.Disconnect(); err != nil {
		o.logger.Debug("disconnect failed", logging.Error(err))
	}
}

// terminalError maps a non-successful terminal state onto the error taxonomy.
func terminalError(jobID string, state comfy.State, failure string) error {
	switch state {
	case comfy.StateCompleted:
		return nil
	case comfy.StateTimedOut:
		return services.Wrap(services.ErrTimeout, component, "monitor", "job "+jobID+" did not finish before the deadline", nil)
	case comfy.StateNotFound:
		return services.Wrap(services.ErrNotFound, component, "monitor", "job "+jobID+" is not known to the server", nil)
	case comfy.StateFailed:
		msg := "job " + jobID + " failed"
		if failure != "" {
			msg += ": " + failure
		}
		return services.Wrap(services.ErrJobFailed, component, "monitor", msg, nil)
	default:
		return services.Wrap(services.ErrConnection, component, "monitor", "job "+jobID+" ended in state "+string(state), nil)
	}
}

func isPartial(err error) bool {
	var partial *services.PartialDownloadError
	return errors.As(err, &partial)
}
