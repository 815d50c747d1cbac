package journal_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"dhgen/internal/journal"
	"dhgen/internal/testsupport"
)

func TestRecordAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	j := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	submitted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := j.Record(ctx, journal.Entry{
		JobID:       "job-1",
		Character:   "alice",
		TextExcerpt: "Hello\nthere,   world",
		Server:      "127.0.0.1:6006",
		State:       "SUBMITTED",
		SubmittedAt: submitted,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entry, err := j.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry == nil {
		t.Fatal("expected entry")
	}
	if entry.Character != "alice" || entry.State != "SUBMITTED" || entry.TextExcerpt != "Hello there, world" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if !entry.SubmittedAt.Equal(submitted) {
		t.Fatalf("submitted_at = %s, want %s", entry.SubmittedAt, submitted)
	}

	missing, err := j.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil entry for unknown id, got %+v err=%v", missing, err)
	}
}

func TestRecordRequiresJobID(t *testing.T) {
	j := testsupport.MustOpenJournal(t, testsupport.NewConfig(t))
	if err := j.Record(context.Background(), journal.Entry{Character: "alice"}); err == nil {
		t.Fatal("expected error for blank job id")
	}
}

func TestUpdateStateAndDownload(t *testing.T) {
	j := testsupport.MustOpenJournal(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.RecordJob(t, j, "job-1", "alice")

	if err := j.UpdateState(ctx, "job-1", "FAILED", "CUDA out of memory"); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	if err := j.RecordDownload(ctx, "job-1", "/tmp/out/job-1", 3); err != nil {
		t.Fatalf("RecordDownload: %v", err)
	}
	if err := j.UpdateState(ctx, "unknown", "COMPLETED", ""); err != nil {
		t.Fatalf("UpdateState on unknown job should be a no-op: %v", err)
	}

	entry, err := j.Get(ctx, "job-1")
	if err != nil || entry == nil {
		t.Fatalf("Get: %+v %v", entry, err)
	}
	if entry.State != "FAILED" || entry.Failure != "CUDA out of memory" {
		t.Fatalf("state not updated: %+v", entry)
	}
	if entry.OutputDir != "/tmp/out/job-1" || entry.Artifacts != 3 {
		t.Fatalf("download not recorded: %+v", entry)
	}
	if entry.UpdatedAt.Before(entry.SubmittedAt) {
		t.Fatalf("updated_at %s before submitted_at %s", entry.UpdatedAt, entry.SubmittedAt)
	}
}

func TestListNewestFirstWithLimit(t *testing.T) {
	j := testsupport.MustOpenJournal(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := j.Record(ctx, journal.Entry{
			JobID:       id,
			Character:   "alice",
			State:       "SUBMITTED",
			SubmittedAt: base.Add(time.Duration(i) * 500 * time.Millisecond),
		}); err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}

	all, err := j.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, e := range all {
		ids = append(ids, e.JobID)
	}
	if strings.Join(ids, ",") != "c,b,a" {
		t.Fatalf("order = %v, want c,b,a", ids)
	}

	limited, err := j.List(ctx, 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("limited list = %d entries err=%v", len(limited), err)
	}

	removed, err := j.Prune(ctx, base.Add(time.Second))
	if err != nil || removed != 2 {
		t.Fatalf("Prune removed %d err=%v, want 2", removed, err)
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("word ", 40)
	got := journal.Excerpt(long)
	if len([]rune(got)) != 80 || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected excerpt %q", got)
	}
	if journal.Excerpt("  short  ") != "short" {
		t.Fatal("short text should only be trimmed")
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	j := testsupport.MustOpenJournal(t, cfg)
	path := j.Path()
	j.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	if _, err := journal.OpenPath(path); !errors.Is(err, journal.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
