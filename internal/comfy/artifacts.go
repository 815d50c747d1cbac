package comfy

import (
	"encoding/json"
	"net/url"
	"sort"
)

// ArtifactKind classifies a produced file by its output container.
type ArtifactKind string

const (
	ArtifactVideo     ArtifactKind = "video"
	ArtifactAudio     ArtifactKind = "audio"
	ArtifactImage     ArtifactKind = "image"
	ArtifactAnimation ArtifactKind = "animation"
)

// containerKinds lists recognized output containers in extraction order.
var containerKinds = []struct {
	key  string
	kind ArtifactKind
}{
	{"videos", ArtifactVideo},
	{"audios", ArtifactAudio},
	{"images", ArtifactImage},
	{"gifs", ArtifactAnimation},
}

// Artifact describes one downloadable output file.
type Artifact struct {
	Kind        ArtifactKind `json:"kind"`
	Node        string       `json:"node"`
	Filename    string       `json:"filename"`
	Subfolder   string       `json:"subfolder"`
	Type        string       `json:"type"`
	DownloadURL string       `json:"download_url"`
}

type fileRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// ExtractArtifacts flattens a history record into artifacts ordered by node
// id then container. Unknown containers and entries without a filename are
// ignored.
func (c *Client) ExtractArtifacts(result *RawResult) []Artifact {
	if result == nil {
		return nil
	}
	nodes := make([]string, 0, len(result.Outputs))
	for node := range result.Outputs {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	var artifacts []Artifact
	for _, node := range nodes {
		output := result.Outputs[node]
		for _, container := range containerKinds {
			raw, ok := output[container.key]
			if !ok {
				continue
			}
			var refs []fileRef
			if err := json.Unmarshal(raw, &refs); err != nil {
				continue
			}
			for _, ref := range refs {
				if ref.Filename == "" {
					continue
				}
				artifacts = append(artifacts, Artifact{
					Kind:        container.kind,
					Node:        node,
					Filename:    ref.Filename,
					Subfolder:   ref.Subfolder,
					Type:        ref.Type,
					DownloadURL: c.viewURL(ref),
				})
			}
		}
	}
	return artifacts
}

func (c *Client) viewURL(ref fileRef) string {
	query := url.Values{"filename": {ref.Filename}}
	if ref.Type != "" {
		query.Set("type", ref.Type)
	}
	if ref.Subfolder != "" {
		query.Set("subfolder", ref.Subfolder)
	}
	return c.endpoint("/view", query)
}
