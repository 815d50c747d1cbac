package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"dhgen/internal/character"
	"dhgen/internal/comfy/comfytest"
	"dhgen/internal/config"
	"dhgen/internal/testsupport"
)

const workflowTemplate = `{
  "1": {"class_type": "LoadAudio", "inputs": {"audio": "placeholder.wav", "audioUI": "preview"}},
  "3": {"class_type": "Text", "inputs": {"multi_line_prompt": "placeholder"}},
  "4": {"class_type": "SaveAudio", "inputs": {"audioUI": "preview"}},
  "5": {"class_type": "LoadVideo", "inputs": {"video": "placeholder.png"}},
  "21": {"class_type": "Prompt", "inputs": {"positive_prompt": "", "negative_prompt": ""}}
}`

type cliTestEnv struct {
	srv        *comfytest.Server
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	srv := comfytest.New(t)
	opts = append([]testsupport.ConfigOption{
		testsupport.WithServer(srv.URL),
		testsupport.WithWorkflow(workflowTemplate),
		testsupport.WithJournal(true),
	}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "warn"
	base := testsupport.BaseDir(cfg)

	t.Setenv("HOME", base)
	for _, key := range []string{"DHGEN_SERVER", "DHGEN_CHARACTERS_DIR", "DHGEN_OUTPUT_DIR", "DHGEN_WORKFLOW", "DHGEN_LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	testsupport.NewCharacter(t, cfg.Paths.CharactersDir, "alice", "voice.wav", "face.png")
	testsupport.WriteText(t, filepath.Join(cfg.Paths.CharactersDir, "alice", character.BagFile),
		`{"positivePrompt": "a cheerful presenter", "description": "Morning news", "tags": ["news", "studio"]}`)

	configPath := filepath.Join(base, "dhgen.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{srv: srv, cfg: cfg, configPath: configPath, baseDir: base}
}

func (env *cliTestEnv) completeOnSubmit(name, content string) {
	env.srv.OnSubmit = func(s *comfytest.Server, jobID string) {
		s.AddFile(name, []byte(content))
		s.Complete(jobID, map[string]any{"9": comfytest.Output("videos", name)})
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	return runCLIWithInput(t, args, configPath, strings.NewReader(""))
}

func runCLIWithInput(t *testing.T, args []string, configPath string, stdin io.Reader) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(stdin)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
