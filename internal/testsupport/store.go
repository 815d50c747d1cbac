package testsupport

import (
	"context"
	"testing"

	"dhgen/internal/config"
	"dhgen/internal/journal"
)

// MustOpenJournal opens a journal.Journal for tests and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Journal {
	t.Helper()

	j, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		j.Close()
	})
	return j
}

// RecordJob journals a submitted job for tests.
func RecordJob(t testing.TB, j *journal.Journal, jobID, character string) {
	t.Helper()

	if err := j.Record(context.Background(), journal.Entry{
		JobID:     jobID,
		Character: character,
		State:     "SUBMITTED",
	}); err != nil {
		t.Fatalf("journal.Record: %v", err)
	}
}
