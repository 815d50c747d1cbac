package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dhgen/internal/config"
	"dhgen/internal/testsupport"
)

const template = `{
  "1": {"inputs": {"audio": ""}},
  "3": {"inputs": {"multi_line_prompt": ""}},
  "4": {"inputs": {"audioUI": ""}},
  "5": {"inputs": {"video": ""}},
  "21": {"inputs": {"positive_prompt": "", "negative_prompt": ""}}
}`

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckReadableDirectory("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckServer_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/queue" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"queue_running": [[0, "a", {}, {}, []]], "queue_pending": []}`))
	}))
	defer srv.Close()

	result := CheckServer(context.Background(), srv.URL, time.Second)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "1 running") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckServer_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	result := CheckServer(context.Background(), srv.URL, time.Second)
	if result.Passed || !strings.Contains(result.Detail, "502") {
		t.Fatalf("expected failure with status, got %+v", result)
	}
}

func TestCheckServer_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if result := CheckServer(context.Background(), url, time.Second); result.Passed {
		t.Fatal("expected failure for closed server")
	}
	if result := CheckServer(context.Background(), "", time.Second); result.Passed {
		t.Fatal("expected failure for missing address")
	}
}

func TestCheckWorkflowTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.json")
	testsupport.WriteText(t, path, template)
	if result := CheckWorkflowTemplate(path, config.DefaultBindings()); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}

	testsupport.WriteText(t, path, `{"1": {"inputs": {}}}`)
	result := CheckWorkflowTemplate(path, config.DefaultBindings())
	if result.Passed || !strings.Contains(result.Detail, "21, 3, 4, 5") {
		t.Fatalf("expected missing node list, got %+v", result)
	}
}

func TestCheckMirrorFromConfig(t *testing.T) {
	cfg := config.Default()
	if result := CheckMirrorFromConfig(&cfg); !result.Passed || result.Detail != "Disabled" {
		t.Fatalf("disabled mirror should pass, got %+v", result)
	}
	cfg.Mirror.Enabled = true
	if result := CheckMirrorFromConfig(&cfg); result.Passed {
		t.Fatal("expected failure without bucket")
	}
	cfg.Mirror.Bucket = "media"
	cfg.Mirror.Prefix = "/renders/"
	if result := CheckMirrorFromConfig(&cfg); !result.Passed || result.Detail != "s3://media/renders" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_HealthyConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"queue_running": [], "queue_pending": []}`))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithServer(srv.URL), testsupport.WithWorkflow(template))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.Paths.CharactersDir, 0o755); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
	if Failed(results) != 0 {
		t.Fatal("Failed should count zero")
	}
}
