package character

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"dhgen/internal/services"
)

// DefaultName replaces names that sanitize to nothing.
const DefaultName = "unnamed_character"

var unsafeNameChars = strings.NewReplacer(
	"/", "_",
	`\`, "_",
	":", "_",
	"*", "_",
	"?", "_",
	`"`, "_",
	"<", "_",
	">", "_",
	"|", "_",
	"\x00", "_",
)

// SanitizeName turns an untrusted character name into a safe directory name.
// The result is NFC normalized, never empty, and stable under reapplication.
func SanitizeName(name string) string {
	cleaned := unsafeNameChars.Replace(norm.NFC.String(name))
	cleaned = strings.Trim(cleaned, " .")
	if cleaned == "" {
		return DefaultName
	}
	return cleaned
}

// SanitizePath resolves requested relative to root and returns its canonical
// absolute form. Anything that does not land strictly below root fails with
// services.ErrBoundary. Backslashes count as separators on every platform.
func SanitizePath(root, requested string) (string, error) {
	canonicalRoot, err := canonical(root)
	if err != nil {
		return "", services.Wrap(services.ErrFile, "character", "sanitize path", "resolve root "+root, err)
	}

	rel := strings.ReplaceAll(requested, `\`, "/")
	var candidate string
	if filepath.IsAbs(rel) {
		candidate = rel
	} else {
		candidate = filepath.Join(canonicalRoot, rel)
	}
	resolved, err := canonical(candidate)
	if err != nil {
		return "", services.Wrap(services.ErrFile, "character", "sanitize path", "resolve "+requested, err)
	}

	inside, err := filepath.Rel(canonicalRoot, resolved)
	if err != nil || inside == "." || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", services.Wrap(services.ErrBoundary, "character", "sanitize path", "path escapes character root: "+requested, nil)
	}
	return resolved, nil
}

// canonical makes path absolute and resolves symlinks when the path exists.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if evaluated, err := filepath.EvalSymlinks(abs); err == nil {
		return evaluated, nil
	}
	return filepath.Clean(abs), nil
}
