package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"dhgen/internal/config"
)

// Journal records submissions in a SQLite database.
type Journal struct {
	db   *sql.DB
	path string
}

// Entry is one journaled submission.
type Entry struct {
	JobID       string    `json:"job_id"`
	Character   string    `json:"character"`
	TextExcerpt string    `json:"text_excerpt"`
	Server      string    `json:"server"`
	State       string    `json:"state"`
	Failure     string    `json:"failure,omitempty"`
	OutputDir   string    `json:"output_dir,omitempty"`
	Artifacts   int       `json:"artifacts"`
	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	excerptRunes = 80

	// timeLayout has a fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy retries op while another dhgen process holds the write lock.
func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (j *Journal) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = j.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the journal database under the state dir.
func Open(cfg *config.Config) (*Journal, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.JournalPath())
}

// OpenPath opens the journal at an explicit location.
func OpenPath(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	j := &Journal{db: db, path: path}
	if err := j.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the database location.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Excerpt shortens text to a single line of at most 80 runes.
func Excerpt(text string) string {
	line := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(line) <= excerptRunes {
		return line
	}
	runes := []rune(line)
	return string(runes[:excerptRunes-3]) + "..."
}

// Record inserts a submission. Recording the same job id again replaces it.
func (j *Journal) Record(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.JobID) == "" {
		return errors.New("journal entry requires a job id")
	}
	submitted := entry.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}
	stamp := submitted.UTC().Format(timeLayout)
	_, err := j.exec(ctx,
		`INSERT OR REPLACE INTO jobs (
            job_id, character, text_excerpt, server, state, failure,
            output_dir, artifacts, submitted_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.JobID,
		entry.Character,
		Excerpt(entry.TextExcerpt),
		entry.Server,
		entry.State,
		nullableString(entry.Failure),
		nullableString(entry.OutputDir),
		entry.Artifacts,
		stamp,
		stamp,
	)
	if err != nil {
		return fmt.Errorf("record job %s: %w", entry.JobID, err)
	}
	return nil
}

// UpdateState stores the last observed state for jobID. Unknown ids are
// ignored so monitoring jobs submitted elsewhere needs no journal entry.
func (j *Journal) UpdateState(ctx context.Context, jobID, state, failure string) error {
	_, err := j.exec(ctx,
		`UPDATE jobs SET state = ?, failure = ?, updated_at = ? WHERE job_id = ?`,
		state, nullableString(failure), time.Now().UTC().Format(timeLayout), jobID)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	return nil
}

// RecordDownload stores where a job's artifacts were written.
func (j *Journal) RecordDownload(ctx context.Context, jobID, outputDir string, artifacts int) error {
	_, err := j.exec(ctx,
		`UPDATE jobs SET output_dir = ?, artifacts = ?, updated_at = ? WHERE job_id = ?`,
		nullableString(outputDir), artifacts, time.Now().UTC().Format(timeLayout), jobID)
	if err != nil {
		return fmt.Errorf("record download for %s: %w", jobID, err)
	}
	return nil
}

const selectColumns = `job_id, character, text_excerpt, server, state, failure,
    output_dir, artifacts, submitted_at, updated_at`

// Get returns the entry for jobID, or nil when none exists.
func (j *Journal) Get(ctx context.Context, jobID string) (*Entry, error) {
	row := j.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM jobs WHERE job_id = ?", jobID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return entry, nil
}

// List returns the most recent submissions first. A non-positive limit
// returns everything.
func (j *Journal) List(ctx context.Context, limit int) ([]*Entry, error) {
	query := "SELECT " + selectColumns + " FROM jobs ORDER BY submitted_at DESC, job_id"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Prune removes entries submitted before cutoff and returns how many went.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.exec(ctx, "DELETE FROM jobs WHERE submitted_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		entry              Entry
		failure, outputDir sql.NullString
		submitted, updated string
	)
	if err := s.Scan(
		&entry.JobID,
		&entry.Character,
		&entry.TextExcerpt,
		&entry.Server,
		&entry.State,
		&failure,
		&outputDir,
		&entry.Artifacts,
		&submitted,
		&updated,
	); err != nil {
		return nil, err
	}
	entry.Failure = failure.String
	entry.OutputDir = outputDir.String
	entry.SubmittedAt = parseTime(submitted)
	entry.UpdatedAt = parseTime(updated)
	return &entry, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
