package character

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"dhgen/internal/config"
	"dhgen/internal/fileutil"
	"dhgen/internal/services"
)

const readmeTemplate = `%s
%s

Place the reference files for this character in this directory:

  - one reference audio clip (.mp3 .wav .m4a .flac .aac .ogg)
  - one or more reference visuals, images preferred over videos
    (.jpg .jpeg .png .webp .bmp .tiff .gif / .mp4 .avi .mov .mkv .flv .webm)
  - config.json (optional) with positivePrompt, negativePrompt,
    workflowParams, description and tags

When several files of a kind exist the first in lexical order is used.
`

// DefaultBag returns the settings written for new characters.
func DefaultBag() Bag {
	return Bag{
		"positivePrompt": config.DefaultPositivePrompt,
		"negativePrompt": config.DefaultNegativePrompt,
		"workflowParams": map[string]any{
			"temperature": 0.8,
			"top_k":       30,
			"top_p":       0.8,
			"num_beams":   3,
		},
		"description": "",
		"tags":        []any{},
	}
}

// Scaffold creates root and an empty character directory named name with a
// default config.json and README. Existing files are left untouched. It
// returns the character directory.
func Scaffold(root, name string) (string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", services.Wrap(services.ErrFile, "character", "scaffold", "create "+root, err)
	}
	dir, err := SanitizePath(root, SanitizeName(name))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrFile, "character", "scaffold", "create "+dir, err)
	}

	bagPath := filepath.Join(dir, BagFile)
	if _, err := os.Stat(bagPath); errors.Is(err, fs.ErrNotExist) {
		data, err := json.MarshalIndent(DefaultBag(), "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode default bag: %w", err)
		}
		if err := fileutil.WriteFileAtomic(bagPath, append(data, '\n'), 0o644); err != nil {
			return "", services.Wrap(services.ErrFile, "character", "scaffold", "write "+bagPath, err)
		}
	}

	readmePath := filepath.Join(dir, "README.txt")
	if _, err := os.Stat(readmePath); errors.Is(err, fs.ErrNotExist) {
		title := filepath.Base(dir)
		underline := make([]byte, len(title))
		for i := range underline {
			underline[i] = '='
		}
		body := fmt.Sprintf(readmeTemplate, title, underline)
		if err := fileutil.WriteFileAtomic(readmePath, []byte(body), 0o644); err != nil {
			return "", services.Wrap(services.ErrFile, "character", "scaffold", "write "+readmePath, err)
		}
	}
	return dir, nil
}
