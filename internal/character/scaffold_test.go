package character

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"dhgen/internal/config"
)

func TestScaffoldCreatesBagAndReadme(t *testing.T) {
	root := filepath.Join(t.TempDir(), "characters")

	dir, err := Scaffold(root, "Demo/Host")
	if err != nil {
		t.Fatalf("Scaffold: %v", err)
	}
	if filepath.Base(dir) != "Demo_Host" {
		t.Fatalf("expected sanitized directory, got %s", dir)
	}

	data, err := os.ReadFile(filepath.Join(dir, BagFile))
	if err != nil {
		t.Fatalf("read bag: %v", err)
	}
	var bag Bag
	if err := json.Unmarshal(data, &bag); err != nil {
		t.Fatalf("decode bag: %v", err)
	}
	if bag.PositivePrompt() != config.DefaultPositivePrompt {
		t.Fatalf("unexpected positive prompt %q", bag.PositivePrompt())
	}
	if bag.WorkflowParams()["num_beams"] != float64(3) {
		t.Fatalf("unexpected workflow params %v", bag.WorkflowParams())
	}
	if _, err := os.Stat(filepath.Join(dir, "README.txt")); err != nil {
		t.Fatalf("expected README: %v", err)
	}
}

func TestScaffoldKeepsExistingBag(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "host")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, BagFile), []byte(`{"description":"mine"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Scaffold(root, "host"); err != nil {
		t.Fatalf("Scaffold: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, BagFile))
	if string(data) != `{"description":"mine"}` {
		t.Fatalf("existing bag overwritten: %s", data)
	}
}
