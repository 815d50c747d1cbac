package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrFile            = errors.New("file error")
	ErrBoundary        = errors.New("path outside root")
	ErrConnection      = errors.New("connection error")
	ErrUpload          = errors.New("upload error")
	ErrSubmission      = errors.New("submission error")
	ErrJobFailed       = errors.New("job failed")
	ErrTimeout         = errors.New("timeout")
	ErrPartialDownload = errors.New("partial download")
	ErrConfiguration   = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrConnection
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ValidationError reports an incomplete character bundle together with every
// reason collected during validation.
type ValidationError struct {
	Name    string
	Reasons []string
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("character %q failed validation", e.Name)
	}
	return fmt.Sprintf("character %q failed validation: %s", e.Name, strings.Join(e.Reasons, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// SubmissionError reports a graph the server rejected. JobID may be set when
// the server assigned one despite reporting node errors.
type SubmissionError struct {
	JobID      string
	NodeErrors map[string]any
	Message    string
}

func (e *SubmissionError) Error() string {
	var b strings.Builder
	b.WriteString("workflow submission rejected")
	if e.JobID != "" {
		fmt.Fprintf(&b, " (job %s)", e.JobID)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if n := len(e.NodeErrors); n > 0 {
		fmt.Fprintf(&b, ": %d node error(s)", n)
	}
	return b.String()
}

func (e *SubmissionError) Unwrap() error { return ErrSubmission }

// DownloadFailure records one artifact that could not be transferred.
type DownloadFailure struct {
	Filename string
	Err      error
}

// PartialDownloadError is returned when some artifacts of a batch failed while
// the others were still attempted.
type PartialDownloadError struct {
	Succeeded []string
	Failed    []DownloadFailure
}

func (e *PartialDownloadError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		names = append(names, fmt.Sprintf("%s (%v)", f.Filename, f.Err))
	}
	return fmt.Sprintf("%d of %d artifact downloads failed: %s",
		len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(names, ", "))
}

func (e *PartialDownloadError) Unwrap() error { return ErrPartialDownload }

// ExitCode maps an error to the process exit status used by the CLI.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrBoundary):
		return 2
	case errors.Is(err, ErrTimeout):
		return 3
	case errors.Is(err, ErrPartialDownload):
		return 4
	default:
		return 1
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
