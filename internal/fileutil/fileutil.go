package fileutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteResult describes a completed streaming write.
type WriteResult struct {
	Path    string
	Written int64
	SHA256  string
}

// WriteFileAtomic writes data to a temporary sibling of path and renames it
// into place, so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	_, err := WriteStreamAtomic(path, bytes.NewReader(data), int64(len(data)), mode)
	return err
}

// WriteStreamAtomic streams r into path via a temporary sibling file. When
// expected is non-negative the byte count must match it exactly; on any
// failure the temporary file is removed and path is left untouched.
func WriteStreamAtomic(path string, r io.Reader, expected int64, mode os.FileMode) (WriteResult, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WriteResult{}, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return WriteResult{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		return WriteResult{}, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if expected >= 0 && written != expected {
		return WriteResult{}, fmt.Errorf("size mismatch: expected %d bytes, received %d bytes", expected, written)
	}
	if err := tmp.Sync(); err != nil {
		return WriteResult{}, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return WriteResult{}, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return WriteResult{}, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return WriteResult{}, fmt.Errorf("rename into place: %w", err)
	}
	committed = true

	return WriteResult{Path: path, Written: written, SHA256: hex.EncodeToString(hasher.Sum(nil))}, nil
}
