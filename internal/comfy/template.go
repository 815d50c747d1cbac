package comfy

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"dhgen/internal/config"
	"dhgen/internal/services"
)

// Graph is a workflow in the server's API format: node id to node object.
type Graph map[string]any

// LoadTemplate reads a workflow template. Numbers are kept as json.Number
// so large integer inputs such as seeds survive a round trip.
func LoadTemplate(path string) (Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrFile, component, "load template", "read "+path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var graph Graph
	if err := dec.Decode(&graph); err != nil {
		return nil, services.Wrap(services.ErrFile, component, "load template", "parse "+path, err)
	}
	if len(graph) == 0 {
		return nil, services.Wrap(services.ErrFile, component, "load template", path+" contains no nodes", nil)
	}
	return graph, nil
}

// Bind returns a copy of template with values written at the locations named
// by table. Slots without a value (or with an empty value unless the binding
// allows it) are left alone, as are bindings whose node is absent or whose
// path crosses a non-object; their slot names are returned. Values for slots
// the table does not mention are ignored. Missing intermediate objects inside
// an existing node are created.
func Bind(template Graph, table []config.Binding, values map[string]string) (Graph, []string) {
	graph := deepCopy(template).(map[string]any)
	var skipped []string
	for _, b := range table {
		value, ok := values[b.Slot]
		if (!ok || value == "") && !b.AllowEmpty {
			skipped = append(skipped, b.Slot)
			continue
		}
		node, ok := graph[b.Node].(map[string]any)
		if !ok {
			skipped = append(skipped, b.Slot)
			continue
		}
		if !setPath(node, strings.Split(b.Path, "."), value) {
			skipped = append(skipped, b.Slot)
		}
	}
	return Graph(graph), skipped
}

func setPath(target map[string]any, segments []string, value string) bool {
	cur := target
	for _, seg := range segments[:len(segments)-1] {
		next, exists := cur[seg]
		if !exists {
			created := make(map[string]any)
			cur[seg] = created
			cur = created
			continue
		}
		obj, ok := next.(map[string]any)
		if !ok {
			return false
		}
		cur = obj
	}
	cur[segments[len(segments)-1]] = value
	return true
}

func deepCopy(value any) any {
	switch v := value.(type) {
	case Graph:
		return deepCopy(map[string]any(v))
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
