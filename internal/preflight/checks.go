package preflight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"dhgen/internal/comfy"
	"dhgen/internal/config"
)

const defaultServerTimeout = 5 * time.Second

// CheckServer verifies the workflow server answers GET /queue with a queue
// document. A single attempt is made.
func CheckServer(ctx context.Context, baseURL string, timeout time.Duration) Result {
	const name = "Workflow server"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing address"}
	}
	if timeout <= 0 || timeout > defaultServerTimeout {
		timeout = defaultServerTimeout
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/queue", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", base, err)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", base, summarizeNetError(err))}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("%s (status %d)", base, resp.StatusCode)}
	}

	var queue struct {
		Running []json.RawMessage `json:"queue_running"`
		Pending []json.RawMessage `json:"queue_pending"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&queue); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (unexpected response: %v)", base, err)}
	}
	return Result{Name: name, Passed: true,
		Detail: fmt.Sprintf("%s (%d running, %d pending)", base, len(queue.Running), len(queue.Pending))}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "readable")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckWorkflowTemplate verifies the template parses and contains every node
// the binding table targets.
func CheckWorkflowTemplate(path string, bindings []config.Binding) Result {
	const name = "Workflow template"

	graph, err := comfy.LoadTemplate(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	missing := map[string]struct{}{}
	for _, b := range bindings {
		if _, ok := graph[b.Node]; !ok {
			missing[b.Node] = struct{}{}
		}
	}
	if len(missing) > 0 {
		nodes := make([]string, 0, len(missing))
		for node := range missing {
			nodes = append(nodes, node)
		}
		sort.Strings(nodes)
		return Result{Name: name, Detail: fmt.Sprintf("%s (bound nodes missing: %s)", path, strings.Join(nodes, ", "))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d nodes)", path, len(graph))}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "unreachable: " + opErr.Err.Error()
	}
	return err.Error()
}
