package config

const (
	defaultCharactersDir    = "characters"
	defaultOutputDir        = "outputs"
	defaultLogDir           = "~/.local/state/dhgen/logs"
	defaultStateDir         = "~/.local/state/dhgen"
	defaultServerAddress    = "127.0.0.1:6006"
	defaultWorkflowPath     = "voice-video-04-api.json"
	defaultRequestTimeout   = 30
	defaultUploadTimeout    = 300
	defaultMonitorTimeout   = 600
	defaultPollInterval     = 5
	defaultReceiveTimeout   = 1
	defaultCacheTTL         = 300
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultMirrorPrefixRoot = "dhgen"
)

// Prompt fallbacks used when neither the caller nor the character bag
// supplies one.
const (
	DefaultPositivePrompt = "A person talking naturally"
	DefaultNegativePrompt = "bright tones, overexposed, static, blurred details, subtitles, style, works, paintings, images, static, overall gray, worst quality, low quality, JPEG compression residue, ugly, incomplete, extra fingers, poorly drawn hands, poorly drawn faces, deformed, disfigured, misshapen limbs, fused fingers, still picture, messy background"
)

// Slot names understood by the generation orchestrator.
const (
	SlotAudio          = "audio"
	SlotAudioUI        = "audio_ui"
	SlotVisual         = "visual"
	SlotText           = "text"
	SlotPositivePrompt = "positive_prompt"
	SlotNegativePrompt = "negative_prompt"
	SlotSaveAudioUI    = "save_audio_ui"
)

// DefaultBindings returns the binding table for the reference talking-head
// template: node 1 loads audio, node 5 the visual reference, node 3 the spoken
// text, node 21 both prompts and node 4 saves the generated audio.
func DefaultBindings() []Binding {
	return []Binding{
		{Slot: SlotAudio, Node: "1", Path: "inputs.audio"},
		{Slot: SlotAudioUI, Node: "1", Path: "inputs.audioUI", AllowEmpty: true},
		{Slot: SlotVisual, Node: "5", Path: "inputs.video"},
		{Slot: SlotText, Node: "3", Path: "inputs.multi_line_prompt"},
		{Slot: SlotPositivePrompt, Node: "21", Path: "inputs.positive_prompt"},
		{Slot: SlotNegativePrompt, Node: "21", Path: "inputs.negative_prompt"},
		{Slot: SlotSaveAudioUI, Node: "4", Path: "inputs.audioUI", AllowEmpty: true},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CharactersDir: defaultCharactersDir,
			OutputDir:     defaultOutputDir,
			LogDir:        defaultLogDir,
			StateDir:      defaultStateDir,
		},
		Server: Server{
			Address:        defaultServerAddress,
			WorkflowPath:   defaultWorkflowPath,
			RequestTimeout: defaultRequestTimeout,
			UploadTimeout:  defaultUploadTimeout,
		},
		Monitor: Monitor{
			Timeout:        defaultMonitorTimeout,
			PollInterval:   defaultPollInterval,
			ReceiveTimeout: defaultReceiveTimeout,
		},
		Cache: Cache{TTL: defaultCacheTTL},
		Workflow: Workflow{
			Bindings: DefaultBindings(),
		},
		Prompts: Prompts{
			Positive: DefaultPositivePrompt,
			Negative: DefaultNegativePrompt,
		},
		Journal: Journal{Enabled: true},
		Mirror: Mirror{
			Prefix: defaultMirrorPrefixRoot,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
