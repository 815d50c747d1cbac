package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"dhgen/internal/logging"
	"dhgen/internal/services"
)

type submitRequest struct {
	Prompt   Graph  `json:"prompt"`
	ClientID string `json:"client_id"`
	PromptID string `json:"prompt_id"`
}

type submitResponse struct {
	PromptID   string         `json:"prompt_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors"`
	Error      any            `json:"error"`
}

// Submit posts graph under a fresh job id and returns the accepted job. Any
// node error in the response fails with a *services.SubmissionError, even
// when the server also returned a job id.
func (c *Client) Submit(ctx context.Context, graph Graph) (*Job, error) {
	requested := uuid.NewString()
	body, err := json.Marshal(submitRequest{Prompt: graph, ClientID: c.clientID, PromptID: requested})
	if err != nil {
		return nil, services.Wrap(services.ErrSubmission, component, "submit", "encode graph", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/prompt", nil), bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrConnection, component, "submit", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrConnection, component, "submit", "POST /prompt", err)
	}
	defer resp.Body.Close()

	var accepted submitResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&accepted)

	if resp.StatusCode >= http.StatusMultipleChoices {
		msg := describeServerError(accepted.Error)
		if msg == "" {
			msg = fmt.Sprintf("server returned %d", resp.StatusCode)
		}
		return nil, &services.SubmissionError{JobID: accepted.PromptID, NodeErrors: accepted.NodeErrors, Message: msg}
	}
	if decodeErr != nil {
		return nil, services.Wrap(services.ErrSubmission, component, "submit", "decode response", decodeErr)
	}
	if len(accepted.NodeErrors) > 0 {
		return nil, &services.SubmissionError{
			JobID:      accepted.PromptID,
			NodeErrors: accepted.NodeErrors,
			Message:    describeServerError(accepted.Error),
		}
	}
	if accepted.PromptID == "" {
		return nil, &services.SubmissionError{Message: "response has no prompt_id"}
	}

	job := &Job{ID: accepted.PromptID, State: StateSubmitted, StartedAt: time.Now()}
	c.logger.Info("workflow submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("queue_number", accepted.Number))
	return job, nil
}

// describeServerError flattens the server's {type, message, details} error
// object, or a bare string, into one line.
func describeServerError(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		var parts []string
		for _, key := range []string{"message", "details"} {
			if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		return strings.Join(parts, ": ")
	default:
		return ""
	}
}
