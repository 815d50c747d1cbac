package character

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// Category groups reference files by media type.
type Category string

const (
	CategoryAudio Category = "audio"
	CategoryImage Category = "image"
	CategoryVideo Category = "video"
)

const megabyte = 1024 * 1024

var (
	audioExtensions = extensionSet(".mp3", ".wav", ".m4a", ".flac", ".aac", ".ogg")
	imageExtensions = extensionSet(".jpg", ".jpeg", ".png", ".webp", ".bmp", ".tiff", ".gif")
	videoExtensions = extensionSet(".mp4", ".avi", ".mov", ".mkv", ".flv", ".webm")

	// sizeWarnings are per-category thresholds in bytes above which a
	// reference file is flagged but still accepted.
	sizeWarnings = map[Category]int64{
		CategoryAudio: 50 * megabyte,
		CategoryImage: 10 * megabyte,
		CategoryVideo: 100 * megabyte,
	}
)

func extensionSet(exts ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		set[ext] = struct{}{}
	}
	return set
}

// Classify maps a file name to its category by lower-cased extension.
func Classify(name string) (Category, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := audioExtensions[ext]; ok {
		return CategoryAudio, true
	}
	if _, ok := imageExtensions[ext]; ok {
		return CategoryImage, true
	}
	if _, ok := videoExtensions[ext]; ok {
		return CategoryVideo, true
	}
	return "", false
}

// Error messages recorded by validation.
const (
	ReasonMissingDirectory = "character directory does not exist"
	ReasonNotDirectory     = "character path is not a directory"
	ReasonMissingAudio     = "missing reference audio"
	ReasonMissingVisual    = "missing reference visual"
)

// ValidationResult collects the outcome of validating a character directory.
// IsValid is false exactly when Errors is non-empty.
type ValidationResult struct {
	Name       string
	IsValid    bool
	Errors     []string
	Warnings   []string
	FoundFiles map[Category][]string
}

func newValidationResult(name string) *ValidationResult {
	return &ValidationResult{
		Name:    name,
		IsValid: true,
		FoundFiles: map[Category][]string{
			CategoryAudio: {},
			CategoryImage: {},
			CategoryVideo: {},
		},
	}
}

// AddError records a failure and marks the result invalid.
func (r *ValidationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
}

// AddWarning records a non-fatal finding.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

func (r *ValidationResult) addFound(cat Category, path string) {
	r.FoundFiles[cat] = append(r.FoundFiles[cat], path)
}

// HasAudio reports whether any audio reference was found.
func (r *ValidationResult) HasAudio() bool {
	return len(r.FoundFiles[CategoryAudio]) > 0
}

// HasVisual reports whether any image or video reference was found.
func (r *ValidationResult) HasVisual() bool {
	return len(r.FoundFiles[CategoryImage]) > 0 || len(r.FoundFiles[CategoryVideo]) > 0
}

// Summary returns a one-line verdict.
func (r *ValidationResult) Summary() string {
	if r.IsValid {
		if len(r.Warnings) > 0 {
			return fmt.Sprintf("character %q is valid (%d warning(s))", r.Name, len(r.Warnings))
		}
		return fmt.Sprintf("character %q is valid", r.Name)
	}
	return fmt.Sprintf("character %q is invalid: %s", r.Name, strings.Join(r.Errors, "; "))
}

// DetailedSummary lists the verdict followed by found files, errors and
// warnings, one per line.
func (r *ValidationResult) DetailedSummary() string {
	var b strings.Builder
	b.WriteString(r.Summary())
	for _, cat := range []Category{CategoryAudio, CategoryImage, CategoryVideo} {
		files := r.FoundFiles[cat]
		if len(files) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n  %s:", cat)
		for _, f := range files {
			b.WriteString(" ")
			b.WriteString(filepath.Base(f))
		}
	}
	for _, e := range r.Errors {
		b.WriteString("\n  error: ")
		b.WriteString(e)
	}
	for _, w := range r.Warnings {
		b.WriteString("\n  warning: ")
		b.WriteString(w)
	}
	return b.String()
}

func oversizeWarning(cat Category, path string, size int64) (string, bool) {
	limit := sizeWarnings[cat]
	if size <= limit {
		return "", false
	}
	return fmt.Sprintf("large %s file %s: %.1fMB (%s) exceeds %dMB",
		cat, filepath.Base(path), float64(size)/megabyte, humanize.IBytes(uint64(size)), limit/megabyte), true
}
