package character

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// BagFile is the optional per-character settings file.
const BagFile = "config.json"

// Bag is the opaque per-character settings map. Only a handful of keys are
// interpreted; everything else passes through untouched.
type Bag map[string]any

var bagAliases = map[string]string{
	"positive_prompt": "positivePrompt",
	"negative_prompt": "negativePrompt",
	"workflow_params": "workflowParams",
}

// loadBag reads dir/config.json. A missing file yields an empty bag and no
// error; unreadable or malformed files yield an empty bag and the error.
func loadBag(dir string) (Bag, error) {
	data, err := os.ReadFile(filepath.Join(dir, BagFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Bag{}, nil
		}
		return Bag{}, fmt.Errorf("read %s: %w", BagFile, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Bag{}, fmt.Errorf("parse %s: %w", BagFile, err)
	}
	bag := make(Bag, len(raw))
	for key, value := range raw {
		if canonicalKey, ok := bagAliases[key]; ok {
			if _, exists := raw[canonicalKey]; exists {
				continue
			}
			key = canonicalKey
		}
		bag[key] = value
	}
	return bag, nil
}

func (b Bag) str(key string) string {
	value, _ := b[key].(string)
	return strings.TrimSpace(value)
}

// PositivePrompt returns the bag's positive prompt, or "".
func (b Bag) PositivePrompt() string { return b.str("positivePrompt") }

// NegativePrompt returns the bag's negative prompt, or "".
func (b Bag) NegativePrompt() string { return b.str("negativePrompt") }

// Description returns the free-form description, or "".
func (b Bag) Description() string { return b.str("description") }

// Tags returns the string tags in declaration order.
func (b Bag) Tags() []string {
	raw, _ := b["tags"].([]any)
	tags := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			tags = append(tags, strings.TrimSpace(s))
		}
	}
	return tags
}

// WorkflowParams returns the nested parameter map, or nil.
func (b Bag) WorkflowParams() map[string]any {
	params, _ := b["workflowParams"].(map[string]any)
	return params
}
