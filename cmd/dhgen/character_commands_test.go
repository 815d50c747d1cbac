package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dhgen/internal/character"
	"dhgen/internal/services"
	"dhgen/internal/testsupport"
)

func TestListShowsReadyAndInvalidCharacters(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewCharacter(t, env.cfg.Paths.CharactersDir, "mute", "face.png")

	out, _, err := runCLI(t, []string{"list"}, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "alice")
	requireContains(t, out, "ready")
	requireContains(t, out, "face.png (image)")
	requireContains(t, out, "Morning news")
	requireContains(t, out, "mute: ")
	requireContains(t, out, character.ReasonMissingAudio)
}

func TestListJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("list --json: %v", err)
	}
	var views []characterView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(views) != 1 || views[0].Name != "alice" || !views[0].Valid || views[0].Audio != "voice.wav" {
		t.Fatalf("unexpected views %+v", views)
	}
	if len(views[0].Tags) != 2 {
		t.Fatalf("expected tags, got %+v", views[0].Tags)
	}
}

func TestListEmptyRootHintsInit(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.RemoveAll(env.cfg.Paths.CharactersDir); err != nil {
		t.Fatalf("remove characters dir: %v", err)
	}

	out, _, err := runCLI(t, []string{"list"}, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "No characters found")
	requireContains(t, out, "dhgen init")
}

func TestInfoShowsResolvedFiles(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"info", "alice"}, env.configPath)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	requireContains(t, out, "voice.wav (16 B)")
	requireContains(t, out, "[image]")
	requireContains(t, out, "news, studio")
	requireContains(t, out, "a cheerful presenter")
}

func TestInfoSuggestsCloseNames(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"info", "ali"}, env.configPath)
	if err == nil {
		t.Fatal("expected not found error")
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	requireContains(t, err.Error(), "did you mean: alice?")
	if code := services.ExitCode(err); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestValidateReportsInvalidCharacter(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewCharacter(t, env.cfg.Paths.CharactersDir, "mute", "face.png")

	out, _, err := runCLI(t, []string{"validate", "mute"}, env.configPath)
	var verr *services.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Name != "mute" {
		t.Fatalf("unexpected name %q", verr.Name)
	}
	requireContains(t, out, "is invalid")
	requireContains(t, out, "image: face.png")

	out, _, err = runCLI(t, []string{"validate", "alice"}, env.configPath)
	if err != nil {
		t.Fatalf("validate alice: %v", err)
	}
	requireContains(t, out, `character "alice" is valid`)
}

func TestValidateMissingCharacterIsNotFound(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"validate", "Alic"}, env.configPath)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInitScaffoldsCharacter(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"init", "bob"}, env.configPath)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	requireContains(t, out, "dhgen validate bob")
	bag := filepath.Join(env.cfg.Paths.CharactersDir, "bob", character.BagFile)
	if _, err := os.Stat(bag); err != nil {
		t.Fatalf("expected %s: %v", bag, err)
	}
}

func TestCacheReportsEntries(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"cache"}, env.configPath)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	requireContains(t, out, "ENTRIES")
	requireContains(t, out, "5m0s")

	out, _, err = runCLI(t, []string{"cache", "--clear"}, env.configPath)
	if err != nil {
		t.Fatalf("cache --clear: %v", err)
	}
	requireContains(t, out, "Cache cleared")
}
