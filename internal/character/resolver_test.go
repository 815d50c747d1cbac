package character

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dhgen/internal/services"
	"dhgen/internal/testsupport"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestResolver(t *testing.T, ttl time.Duration) (*Resolver, string, *fakeClock) {
	t.Helper()
	root := t.TempDir()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := NewResolver(root, ttl, nil)
	r.now = clock.Now
	return r, root, clock
}

func TestValidateOnlyAudioReportsMissingVisual(t *testing.T) {
	r, root, _ := newTestResolver(t, 0)
	testsupport.NewCharacter(t, root, "alice", "voice.wav")

	result, err := r.Validate("alice")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.IsValid {
		t.Fatal("expected invalid result")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "visual") {
		t.Fatalf("expected one missing-visual error, got %v", result.Errors)
	}
}

func TestValidateLargeAudioWarnsOnce(t *testing.T) {
	r, root, _ := newTestResolver(t, 0)
	dir := testsupport.NewCharacter(t, root, "alice", "face.png")
	testsupport.WriteSparseFile(t, filepath.Join(dir, "voice.wav"), 60*1024*1024)

	result, err := r.Validate("alice")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("expected valid result, errors=%v", result.Errors)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "audio") {
		t.Fatalf("expected one oversize audio warning, got %v", result.Warnings)
	}
}

func TestValidateMissingDirectoryFailsFast(t *testing.T) {
	r, root, _ := newTestResolver(t, 0)

	result, err := r.Validate("ghost")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.IsValid || len(result.Errors) != 1 || result.Errors[0] != ReasonMissingDirectory {
		t.Fatalf("unexpected result: %+v", result)
	}

	testsupport.WriteFile(t, filepath.Join(root, "file-not-dir"), 4)
	result, err = r.Validate("file-not-dir")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0] != ReasonNotDirectory {
		t.Fatalf("expected not-a-directory error, got %v", result.Errors)
	}
}

func TestValidateClassifiesAndSorts(t *testing.T) {
	r, root, _ := newTestResolver(t, 0)
	testsupport.NewCharacter(t, root, "alice", "b.MP3", "a.wav", "notes.txt", "z.mp4", "y.JPG", "x.png")

	result, err := r.Validate("alice")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("expected valid, got %v", result.Errors)
	}
	bases := func(paths []string) []string {
		out := make([]string, len(paths))
		for i, p := range paths {
			out[i] = filepath.Base(p)
		}
		return out
	}
	if got := strings.Join(bases(result.FoundFiles[CategoryAudio]), ","); got != "a.wav,b.MP3" {
		t.Fatalf("audio order: %s", got)
	}
	if got := strings.Join(bases(result.FoundFiles[CategoryImage]), ","); got != "x.png,y.JPG" {
		t.Fatalf("image order: %s", got)
	}
	if got := strings.Join(bases(result.FoundFiles[CategoryVideo]), ","); got != "z.mp4" {
		t.Fatalf("video order: %s", got)
	}
}

func TestResolvePrefersImageOverVideo(t *testing.T) {
	r, root, _ := newTestResolver(t, 0)
	testsupport.NewCharacter(t, root, "alice", "voice.wav", "clip.mp4", "still.webp")
	testsupport.NewCharacter(t, root, "bob", "voice.flac", "clip.mov")

	alice, err := r.Resolve("alice")
	if err != nil {
		t.Fatalf("Resolve alice: %v", err)
	}
	if alice.VisualKind != VisualImage || alice.VisualFile() != "still.webp" {
		t.Fatalf("expected image visual, got %s %s", alice.VisualKind, alice.VisualFile())
	}
	bob, err := r.Resolve("bob")
	if err != nil {
		t.Fatalf("Resolve bob: %v", err)
	}
	if bob.VisualKind != VisualVideo || bob.VisualFile() != "clip.mov" {
		t.Fatalf("expected video visual, got %s %s", bob.VisualKind, bob.VisualFile())
	}
	if bob.AudioFile() != "voice.flac" {
		t.Fatalf("unexpected audio %s", bob.AudioFile())
	}
}

func TestResolveErrors(t *testing.T) {
	r, root, _ := newTestResolver(t, 0)
	testsupport.NewCharacter(t, root, "mute", "face.png")

	_, err := r.Resolve("ghost")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = r.Resolve("mute")
	var vErr *services.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(vErr.Reasons) != 1 || vErr.Reasons[0] != ReasonMissingAudio {
		t.Fatalf("unexpected reasons: %v", vErr.Reasons)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatal("ValidationError should match ErrValidation")
	}
}

func TestResolveCachesByIdentity(t *testing.T) {
	r, root, _ := newTestResolver(t, time.Minute)
	testsupport.NewCharacter(t, root, "alice", "voice.wav", "face.png")

	first, err := r.Resolve("alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := r.Resolve("alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first != second {
		t.Fatal("expected identical cached asset")
	}
	if n := r.scans.Load(); n != 1 {
		t.Fatalf("expected exactly one scan, got %d", n)
	}
}

func TestResolveRescansAfterTTL(t *testing.T) {
	r, root, clock := newTestResolver(t, time.Minute)
	testsupport.NewCharacter(t, root, "alice", "voice.wav", "face.png")

	first, err := r.Resolve("alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	clock.Advance(time.Minute + time.Second)

	stats := r.Stats()
	if stats.Total != 1 || stats.Expired != 1 || stats.Active != 0 {
		t.Fatalf("unexpected stats after expiry: %+v", stats)
	}

	second, err := r.Resolve("alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first == second {
		t.Fatal("expected a fresh asset after TTL expiry")
	}
	if n := r.scans.Load(); n != 2 {
		t.Fatalf("expected exactly one additional scan, got %d total", n)
	}
	if stats := r.Stats(); stats.Active != 1 || stats.Expired != 0 {
		t.Fatalf("expired entry not replaced: %+v", stats)
	}
}

func TestResolveRescansAfterDirectoryChange(t *testing.T) {
	r, root, _ := newTestResolver(t, time.Hour)
	dir := testsupport.NewCharacter(t, root, "alice", "voice.wav", "face.png")

	first, err := r.Resolve("alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	later := time.Now().Add(2 * time.Hour)
	if err := os.Chtimes(dir, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	second, err := r.Resolve("alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first == second {
		t.Fatal("expected a fresh asset after directory change")
	}
	if n := r.scans.Load(); n != 2 {
		t.Fatalf("expected exactly one additional scan, got %d total", n)
	}
}

func TestClearAndStats(t *testing.T) {
	r, root, _ := newTestResolver(t, time.Minute)
	testsupport.NewCharacter(t, root, "alice", "voice.wav", "face.png")
	testsupport.NewCharacter(t, root, "bob", "voice.wav", "face.png")

	for _, name := range []string{"alice", "bob"} {
		if _, err := r.Resolve(name); err != nil {
			t.Fatalf("Resolve %s: %v", name, err)
		}
	}
	if stats := r.Stats(); stats.Total != 2 || stats.Active != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	r.Clear()
	if stats := r.Stats(); stats.Total != 0 {
		t.Fatalf("expected empty cache, got %+v", stats)
	}
}

func TestResolveConcurrent(t *testing.T) {
	r, root, _ := newTestResolver(t, time.Minute)
	testsupport.NewCharacter(t, root, "alice", "voice.wav", "face.png")

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve("alice"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Resolve: %v", err)
	}
	if stats := r.Stats(); stats.Total != 1 {
		t.Fatalf("expected one entry, got %+v", stats)
	}
}

func TestResolveMalformedBagDegrades(t *testing.T) {
	r, root, _ := newTestResolver(t, 0)
	dir := testsupport.NewCharacter(t, root, "alice", "voice.wav", "face.png")
	testsupport.WriteText(t, filepath.Join(dir, BagFile), "{not json")

	asset, err := r.Resolve("alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(asset.Config) != 0 {
		t.Fatalf("expected empty bag, got %v", asset.Config)
	}
	if len(asset.Validation.Warnings) != 1 || !strings.Contains(asset.Validation.Warnings[0], BagFile) {
		t.Fatalf("expected bag warning, got %v", asset.Validation.Warnings)
	}
}

func TestResolveBagAliases(t *testing.T) {
	r, root, _ := newTestResolver(t, 0)
	dir := testsupport.NewCharacter(t, root, "alice", "voice.wav", "face.png")
	testsupport.WriteText(t, filepath.Join(dir, BagFile), `{
  "positive_prompt": "smiling anchor",
  "negativePrompt": "blur",
  "negative_prompt": "ignored",
  "description": " News host ",
  "tags": ["news", 3, "studio"],
  "workflow_params": {"temperature": 0.5},
  "custom": true
}`)

	asset, err := r.Resolve("alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	bag := asset.Config
	if bag.PositivePrompt() != "smiling anchor" || bag.NegativePrompt() != "blur" {
		t.Fatalf("unexpected prompts: %q / %q", bag.PositivePrompt(), bag.NegativePrompt())
	}
	if bag.Description() != "News host" {
		t.Fatalf("unexpected description %q", bag.Description())
	}
	if got := strings.Join(bag.Tags(), ","); got != "news,studio" {
		t.Fatalf("unexpected tags %q", got)
	}
	if bag.WorkflowParams()["temperature"] != 0.5 {
		t.Fatalf("unexpected params %v", bag.WorkflowParams())
	}
	if bag["custom"] != true {
		t.Fatal("unknown keys should pass through")
	}
}

func TestListAndSuggest(t *testing.T) {
	r, root, _ := newTestResolver(t, 0)
	testsupport.NewCharacter(t, root, "Office Lady", "voice.wav", "face.png")
	testsupport.NewCharacter(t, root, "anchor", "voice.wav", "clip.mp4")
	testsupport.NewCharacter(t, root, "broken", "voice.wav")
	testsupport.NewCharacter(t, root, ".hidden", "voice.wav", "face.png")

	assets, failures, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(assets) != 2 || assets[0].Name != "Office Lady" || assets[1].Name != "anchor" {
		t.Fatalf("unexpected assets: %+v", assets)
	}
	if _, ok := failures["broken"]; !ok || len(failures) != 1 {
		t.Fatalf("unexpected failures: %v", failures)
	}

	if got := r.Suggest("LADY"); len(got) != 1 || got[0] != "Office Lady" {
		t.Fatalf("unexpected suggestions: %v", got)
	}
	if got := r.Suggest("zzz"); len(got) != 0 {
		t.Fatalf("expected no suggestions, got %v", got)
	}
}

func TestListMissingRoot(t *testing.T) {
	r := NewResolver(filepath.Join(t.TempDir(), "absent"), 0, nil)
	assets, failures, err := r.List()
	if err != nil || len(assets) != 0 || len(failures) != 0 {
		t.Fatalf("expected empty listing, got %v %v %v", assets, failures, err)
	}
}
