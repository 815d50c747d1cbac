package comfy

import (
	"context"
	"encoding/json"
	"net/url"

	"dhgen/internal/services"
)

// RawResult is one job's history record.
type RawResult struct {
	JobID   string                                `json:"-"`
	Outputs map[string]map[string]json.RawMessage `json:"outputs"`
	Status  struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
}

type queueSnapshot struct {
	Running []json.RawMessage `json:"queue_running"`
	Pending []json.RawMessage `json:"queue_pending"`
}

// queueContains reports whether jobID is the second element of any entry.
func queueContains(entries []json.RawMessage, jobID string) bool {
	for _, entry := range entries {
		var fields []json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil || len(fields) < 2 {
			continue
		}
		var id string
		if err := json.Unmarshal(fields[1], &id); err == nil && id == jobID {
			return true
		}
	}
	return false
}

func (c *Client) history(ctx context.Context, jobID string) (*RawResult, bool, error) {
	var history map[string]*RawResult
	if err := c.getJSON(ctx, "history", "/history/"+url.PathEscape(jobID), &history); err != nil {
		return nil, false, err
	}
	result, ok := history[jobID]
	if !ok || result == nil {
		return nil, false, nil
	}
	result.JobID = jobID
	return result, true, nil
}

// QueryStatus classifies a job with one history lookup followed, if needed,
// by one queue lookup. It never blocks waiting for progress and needs no
// event channel.
func (c *Client) QueryStatus(ctx context.Context, jobID string) (State, error) {
	if _, done, err := c.history(ctx, jobID); err != nil {
		return "", err
	} else if done {
		return StateCompleted, nil
	}

	var queue queueSnapshot
	if err := c.getJSON(ctx, "queue", "/queue", &queue); err != nil {
		return "", err
	}
	switch {
	case queueContains(queue.Running, jobID):
		return StateRunning, nil
	case queueContains(queue.Pending, jobID):
		return StatePending, nil
	default:
		return StateNotFound, nil
	}
}

// FetchResult returns the job's history record, or an ErrNotFound error if
// the server has none. It does not wait for completion.
func (c *Client) FetchResult(ctx context.Context, jobID string) (*RawResult, error) {
	result, ok, err := c.history(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, component, "fetch result", "no history for job "+jobID, nil)
	}
	return result, nil
}
