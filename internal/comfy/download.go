package comfy

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"

	"dhgen/internal/fileutil"
	"dhgen/internal/logging"
	"dhgen/internal/services"
)

const downloadLockName = ".dhgen-download.lock"

// DownloadedFile records one artifact written to disk.
type DownloadedFile struct {
	Artifact Artifact `json:"artifact"`
	Path     string   `json:"path"`
	Bytes    int64    `json:"bytes"`
	SHA256   string   `json:"sha256"`
}

// DownloadReport summarizes a batch download.
type DownloadReport struct {
	Files  []DownloadedFile           `json:"files"`
	Failed []services.DownloadFailure `json:"-"`
}

// localName maps a server-supplied filename onto a plain base name.
func localName(filename string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		return "", fmt.Errorf("unusable artifact filename %q", filename)
	}
	return name, nil
}

// Download fetches one artifact into destDir/<filename>. The file appears
// only after the whole body has been received.
func (c *Client) Download(ctx context.Context, artifact Artifact, destDir string) (DownloadedFile, error) {
	name, err := localName(artifact.Filename)
	if err != nil {
		return DownloadedFile{}, services.Wrap(services.ErrFile, component, "download", "", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifact.DownloadURL, nil)
	if err != nil {
		return DownloadedFile{}, services.Wrap(services.ErrConnection, component, "download", "build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return DownloadedFile{}, services.Wrap(services.ErrConnection, component, "download", "GET "+name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return DownloadedFile{}, services.Wrap(services.ErrConnection, component, "download",
			fmt.Sprintf("GET %s returned %d", name, resp.StatusCode), nil)
	}

	res, err := fileutil.WriteStreamAtomic(filepath.Join(destDir, name), resp.Body, resp.ContentLength, 0o644)
	if err != nil {
		return DownloadedFile{}, services.Wrap(services.ErrFile, component, "download", "save "+name, err)
	}
	return DownloadedFile{Artifact: artifact, Path: res.Path, Bytes: res.Written, SHA256: res.SHA256}, nil
}

// DownloadAll fetches artifacts one after another into destDir while holding
// an advisory lock on it. A failed transfer is recorded and the rest are
// still attempted; any failure yields a *services.PartialDownloadError
// alongside the report.
func (c *Client) DownloadAll(ctx context.Context, artifacts []Artifact, destDir string) (*DownloadReport, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrFile, component, "download", "create "+destDir, err)
	}
	lock := flock.New(filepath.Join(destDir, downloadLockName))
	locked, err := lock.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil || !locked {
		return nil, services.Wrap(services.ErrFile, component, "download", "lock "+destDir, err)
	}
	defer func() { _ = lock.Unlock() }()

	report := &DownloadReport{}
	for _, artifact := range artifacts {
		file, err := c.Download(ctx, artifact, destDir)
		if err != nil {
			report.Failed = append(report.Failed, services.DownloadFailure{Filename: artifact.Filename, Err: err})
			logging.WarnWithContext(c.logger, "artifact download failed", "artifact_download_failed",
				logging.String("filename", artifact.Filename),
				logging.String("kind", string(artifact.Kind)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "retry with dhgen result <job-id>"),
				logging.String(logging.FieldImpact, "remaining artifacts are still downloaded"))
			continue
		}
		report.Files = append(report.Files, file)
		c.logger.Info("artifact saved",
			logging.String("path", file.Path),
			logging.String("kind", string(artifact.Kind)),
			logging.String("size", humanize.IBytes(uint64(file.Bytes))))
	}

	if len(report.Failed) > 0 {
		succeeded := make([]string, 0, len(report.Files))
		for _, f := range report.Files {
			succeeded = append(succeeded, f.Path)
		}
		return report, &services.PartialDownloadError{Succeeded: succeeded, Failed: report.Failed}
	}
	return report, nil
}
