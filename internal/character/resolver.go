package character

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dhgen/internal/logging"
	"dhgen/internal/services"
)

// DefaultTTL bounds how long a resolved asset is served from cache.
const DefaultTTL = 300 * time.Second

// Resolver validates and resolves characters below a root directory.
// It is safe for concurrent use.
type Resolver struct {
	root   string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry

	scans atomic.Int64
}

// dirStamp captures the modification times that key a cache entry. Any
// change to either directory makes the entry unreachable.
type dirStamp struct {
	root int64
	dir  int64
}

type cacheEntry struct {
	asset     *Asset
	stamp     dirStamp
	createdAt time.Time
	ttl       time.Duration
}

func (e cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// CacheStats summarizes cache occupancy.
type CacheStats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Expired int `json:"expired"`
}

// NewResolver creates a resolver rooted at root. A non-positive ttl selects
// DefaultTTL.
func NewResolver(root string, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{
		root:    root,
		ttl:     ttl,
		logger:  logging.NewComponentLogger(logger, "character"),
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Root returns the characters directory.
func (r *Resolver) Root() string {
	return r.root
}

// Validate inspects the named character directory without consulting or
// filling the cache. The returned error is non-nil only when the name cannot
// be mapped to a directory under the root.
func (r *Resolver) Validate(name string) (*ValidationResult, error) {
	safe := r.sanitize(name)
	dir, err := SanitizePath(r.root, safe)
	if err != nil {
		return nil, err
	}
	scan := r.inspect(safe, dir)
	return scan.result, nil
}

// Resolve returns the asset bundle for name, serving it from cache while the
// entry is younger than the TTL and neither the root nor the character
// directory has been modified since it was stored.
func (r *Resolver) Resolve(name string) (*Asset, error) {
	safe := r.sanitize(name)
	dir, err := SanitizePath(r.root, safe)
	if err != nil {
		return nil, err
	}
	stamp := r.stamp(dir)

	r.mu.Lock()
	entry, ok := r.entries[safe]
	now := r.now()
	if ok && entry.stamp == stamp && !entry.expired(now) {
		r.mu.Unlock()
		r.logger.Debug("character cache hit", logging.String(logging.FieldCharacter, safe))
		return entry.asset, nil
	}
	r.mu.Unlock()

	if ok {
		r.logger.Debug("character cache entry stale",
			logging.String(logging.FieldCharacter, safe),
			logging.Bool("expired", entry.expired(now)),
			logging.Bool("modified", entry.stamp != stamp))
	}

	scan := r.inspect(safe, dir)
	if !scan.exists {
		return nil, services.Wrap(services.ErrNotFound, "character", "resolve",
			fmt.Sprintf("character %q not found in %s", safe, r.root), nil)
	}
	if !scan.result.IsValid {
		return nil, &services.ValidationError{Name: safe, Reasons: append([]string(nil), scan.result.Errors...)}
	}
	if scan.bagErr != nil {
		logging.WarnWithContext(r.logger, "character config ignored", "character_config_invalid",
			logging.String(logging.FieldCharacter, safe),
			logging.Error(scan.bagErr),
			logging.String(logging.FieldErrorHint, "fix or remove "+filepath.Join(dir, BagFile)),
			logging.String(logging.FieldImpact, "configured prompt defaults are used for this character"))
	}

	asset := &Asset{
		Name:       safe,
		AudioPath:  scan.result.FoundFiles[CategoryAudio][0],
		Config:     scan.bag,
		RootDir:    filepath.Dir(dir),
		Validation: scan.result,
	}
	if images := scan.result.FoundFiles[CategoryImage]; len(images) > 0 {
		asset.VisualPath, asset.VisualKind = images[0], VisualImage
	} else {
		asset.VisualPath, asset.VisualKind = scan.result.FoundFiles[CategoryVideo][0], VisualVideo
	}

	r.mu.Lock()
	r.entries[safe] = cacheEntry{asset: asset, stamp: stamp, createdAt: r.now(), ttl: r.ttl}
	r.mu.Unlock()

	r.logger.Debug("character resolved",
		logging.String(logging.FieldCharacter, safe),
		logging.String("audio", asset.AudioFile()),
		logging.String("visual", asset.VisualFile()),
		logging.String("visual_kind", string(asset.VisualKind)))
	return asset, nil
}

// Clear drops every cached entry.
func (r *Resolver) Clear() {
	r.mu.Lock()
	n := len(r.entries)
	r.entries = make(map[string]cacheEntry)
	r.mu.Unlock()
	r.logger.Debug("character cache cleared", logging.Int("entries", n))
}

// Stats reports how many cached entries are still usable.
func (r *Resolver) Stats() CacheStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	stats := CacheStats{Total: len(r.entries)}
	for _, entry := range r.entries {
		if entry.expired(now) {
			stats.Expired++
		}
	}
	stats.Active = stats.Total - stats.Expired
	return stats
}

// Names lists candidate character directories in lexical order, skipping
// hidden ones. A missing root yields no names.
func (r *Resolver) Names() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrFile, "character", "list", "read "+r.root, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// List resolves every candidate directory. Valid assets are returned in name
// order; failures are keyed by directory name.
func (r *Resolver) List() ([]*Asset, map[string]error, error) {
	names, err := r.Names()
	if err != nil {
		return nil, nil, err
	}
	if names == nil {
		logging.WarnWithContext(r.logger, "characters directory missing", "characters_dir_missing",
			logging.String("path", r.root),
			logging.String(logging.FieldErrorHint, "run dhgen init to create it"),
			logging.String(logging.FieldImpact, "no characters available"))
	}
	var assets []*Asset
	failures := make(map[string]error)
	for _, name := range names {
		asset, err := r.Resolve(name)
		if err != nil {
			failures[name] = err
			continue
		}
		assets = append(assets, asset)
	}
	return assets, failures, nil
}

// Suggest returns directory names containing partial, case-insensitively.
func (r *Resolver) Suggest(partial string) []string {
	names, err := r.Names()
	if err != nil {
		return nil
	}
	needle := strings.ToLower(strings.TrimSpace(partial))
	var matches []string
	for _, name := range names {
		if needle == "" || strings.Contains(strings.ToLower(name), needle) {
			matches = append(matches, name)
		}
	}
	return matches
}

func (r *Resolver) sanitize(name string) string {
	safe := SanitizeName(name)
	if safe != name {
		r.logger.Warn("character name sanitized",
			logging.String("requested", name),
			logging.String(logging.FieldCharacter, safe))
	}
	return safe
}

func (r *Resolver) stamp(dir string) dirStamp {
	var s dirStamp
	if info, err := os.Stat(r.root); err == nil {
		s.root = info.ModTime().UnixNano()
	}
	if info, err := os.Stat(dir); err == nil {
		s.dir = info.ModTime().UnixNano()
	}
	return s
}

type scanOutcome struct {
	result *ValidationResult
	exists bool
	bag    Bag
	bagErr error
}

// inspect performs the filesystem scan of one character directory.
func (r *Resolver) inspect(name, dir string) scanOutcome {
	out := scanOutcome{result: newValidationResult(name), bag: Bag{}}

	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			out.result.AddError(ReasonMissingDirectory)
			return out
		}
		out.exists = true
		out.result.AddError(fmt.Sprintf("stat character directory: %v", err))
		return out
	}
	out.exists = true
	if !info.IsDir() {
		out.result.AddError(ReasonNotDirectory)
		return out
	}

	r.scans.Add(1)
	entries, err := os.ReadDir(dir)
	if err != nil {
		out.result.AddError(fmt.Sprintf("read character directory: %v", err))
		return out
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		cat, ok := Classify(entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		fileInfo, err := os.Stat(path)
		if err != nil || !fileInfo.Mode().IsRegular() {
			continue
		}
		out.result.addFound(cat, path)
		if msg, over := oversizeWarning(cat, path, fileInfo.Size()); over {
			out.result.AddWarning(msg)
		}
	}

	if !out.result.HasAudio() {
		out.result.AddError(ReasonMissingAudio)
	}
	if !out.result.HasVisual() {
		out.result.AddError(ReasonMissingVisual)
	}

	out.bag, out.bagErr = loadBag(dir)
	if out.bagErr != nil {
		out.result.AddWarning(fmt.Sprintf("ignoring %s: %v", BagFile, out.bagErr))
	}
	return out
}
