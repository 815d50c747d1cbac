package comfy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"dhgen/internal/logging"
	"dhgen/internal/services"
)

// UploadKind labels what an upload is for.
type UploadKind string

const (
	UploadAudio  UploadKind = "audio"
	UploadVisual UploadKind = "visual"
)

// UploadAsset streams localPath to the server's input store and returns the
// reference to use in a graph. A non-2xx status or a response without a name
// fails with services.ErrUpload.
func (c *Client) UploadAsset(ctx context.Context, localPath string, kind UploadKind) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", services.Wrap(services.ErrFile, component, "upload", "open "+localPath, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return "", services.Wrap(services.ErrFile, component, "upload", "stat "+localPath, err)
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		defer file.Close()
		pw.CloseWithError(writeUploadForm(form, file, filepath.Base(localPath)))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/upload/image", nil), pr)
	if err != nil {
		pr.Close()
		return "", services.Wrap(services.ErrUpload, component, "upload", "build request", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	started := c.logger.With(
		logging.String("file", filepath.Base(localPath)),
		logging.String("kind", string(kind)),
		logging.String("size", humanize.IBytes(uint64(info.Size()))))
	started.Debug("uploading asset")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrUpload, component, "upload", "POST /upload/image", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", services.Wrap(services.ErrUpload, component, "upload",
			fmt.Sprintf("server returned %d: %s", resp.StatusCode, snippet(resp.Body)), nil)
	}

	var payload struct {
		Name      string `json:"name"`
		Subfolder string `json:"subfolder"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", services.Wrap(services.ErrUpload, component, "upload", "decode response", err)
	}
	if payload.Name == "" {
		return "", services.Wrap(services.ErrUpload, component, "upload", "response has no name for "+filepath.Base(localPath), nil)
	}
	ref := payload.Name
	if payload.Subfolder != "" {
		ref = payload.Subfolder + "/" + payload.Name
	}
	started.Info("asset uploaded", logging.String("remote_ref", ref))
	return ref, nil
}

func writeUploadForm(form *multipart.Writer, src io.Reader, name string) error {
	if err := form.WriteField("type", "input"); err != nil {
		return err
	}
	if err := form.WriteField("subfolder", ""); err != nil {
		return err
	}
	part, err := form.CreateFormFile("image", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return form.Close()
}
