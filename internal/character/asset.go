package character

import (
	"path/filepath"
)

// VisualKind distinguishes still image references from video references.
type VisualKind string

const (
	VisualImage VisualKind = "image"
	VisualVideo VisualKind = "video"
)

// Asset is a resolved character bundle. Assets are shared through the
// resolver cache and must be treated as read-only.
type Asset struct {
	Name       string
	AudioPath  string
	VisualPath string
	VisualKind VisualKind
	Config     Bag
	RootDir    string
	Validation *ValidationResult
}

// Dir returns the character directory.
func (a *Asset) Dir() string {
	return filepath.Join(a.RootDir, a.Name)
}

// AudioFile returns the base name of the selected audio clip.
func (a *Asset) AudioFile() string {
	return filepath.Base(a.AudioPath)
}

// VisualFile returns the base name of the selected visual reference.
func (a *Asset) VisualFile() string {
	return filepath.Base(a.VisualPath)
}
