// Package comfytest provides an in-process fake of the workflow server's
// REST and WebSocket surface for tests.
package comfytest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Upload records one received upload.
type Upload struct {
	Name      string
	Type      string
	Subfolder string
	Size      int64
}

// Submission records one received graph.
type Submission struct {
	ClientID string
	PromptID string
	Prompt   map[string]any
}

// Server is a scriptable fake workflow server. All setters are safe to call
// while requests are in flight.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	history     map[string]map[string]any
	running     []string
	pending     []string
	files       map[string][]byte
	uploads     []Upload
	submissions []Submission
	queueCalls  int
	wsAccepts   int
	conns       map[string]*wsConn

	// NodeErrors, when set, is returned with the next submission.
	NodeErrors map[string]any
	// UploadStatus overrides the upload response status when non-zero.
	UploadStatus int
	// UploadOmitName drops the name field from successful upload responses.
	UploadOmitName bool
	// RejectWebSocket makes the event endpoint refuse upgrades.
	RejectWebSocket bool
	// OnSubmit runs after a submission is accepted.
	OnSubmit func(s *Server, jobID string)
}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// New starts a fake server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		history: make(map[string]map[string]any),
		files:   make(map[string][]byte),
		conns:   make(map[string]*wsConn),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(func() {
		s.DropConnections()
		s.Close()
	})
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/prompt", s.handlePrompt)
	r.Get("/history/{jobID}", s.handleHistory)
	r.Get("/queue", s.handleQueue)
	r.Post("/upload/image", s.handleUpload)
	r.Get("/view", s.handleView)
	r.Get("/ws", s.handleWS)
	return r
}

// SetRunning replaces the running queue.
func (s *Server) SetRunning(ids ...string) {
	s.mu.Lock()
	s.running = append([]string(nil), ids...)
	s.mu.Unlock()
}

// SetPending replaces the pending queue.
func (s *Server) SetPending(ids ...string) {
	s.mu.Lock()
	s.pending = append([]string(nil), ids...)
	s.mu.Unlock()
}

// Complete moves jobID out of the queues and into history with outputs.
func (s *Server) Complete(jobID string, outputs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = without(s.running, jobID)
	s.pending = without(s.pending, jobID)
	if outputs == nil {
		outputs = map[string]any{}
	}
	s.history[jobID] = map[string]any{
		"prompt":  []any{0, jobID, map[string]any{}, map[string]any{}, []any{}},
		"outputs": outputs,
		"status":  map[string]any{"status_str": "success", "completed": true, "messages": []any{}},
	}
}

// AddFile makes content downloadable through /view?filename=name.
func (s *Server) AddFile(name string, content []byte) {
	s.mu.Lock()
	s.files[name] = content
	s.mu.Unlock()
}

// Uploads returns the uploads received so far.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Submissions returns the graphs received so far.
func (s *Server) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

// QueueCalls counts GET /queue requests.
func (s *Server) QueueCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueCalls
}

// Output builds one node's output map with files under container
// ("videos", "audios", "images" or "gifs").
func Output(container string, filenames ...string) map[string]any {
	refs := make([]any, 0, len(filenames))
	for _, name := range filenames {
		refs = append(refs, map[string]any{"filename": name, "subfolder": "", "type": "output"})
	}
	return map[string]any{container: refs}
}

// Emit sends one event to the client's event channel.
func (s *Server) Emit(clientID, eventType string, data map[string]any) error {
	s.mu.Lock()
	c, ok := s.conns[clientID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("client %s not connected", clientID)
	}
	payload, err := json.Marshal(map[string]any{"type": eventType, "data": data})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// WaitForClient blocks until clientID has an open event channel.
func (s *Server) WaitForClient(clientID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		_, ok := s.conns[clientID]
		s.mu.Unlock()
		if ok {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// Connected reports whether clientID has an open event channel.
func (s *Server) Connected(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conns[clientID]
	return ok
}

// EventChannels counts event channel upgrades accepted so far.
func (s *Server) EventChannels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wsAccepts
}

// DropConnections closes every event channel abruptly.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[string]*wsConn)
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.conn.Close()
	}
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt   map[string]any `json:"prompt"`
		ClientID string         `json:"client_id"`
		PromptID string         `json:"prompt_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       map[string]any{"type": "invalid_prompt", "message": err.Error()},
			"node_errors": map[string]any{},
		})
		return
	}

	s.mu.Lock()
	s.submissions = append(s.submissions, Submission{ClientID: req.ClientID, PromptID: req.PromptID, Prompt: req.Prompt})
	nodeErrors := s.NodeErrors
	number := len(s.submissions)
	hook := s.OnSubmit
	s.mu.Unlock()

	if len(nodeErrors) > 0 {
		writeJSON(w, http.StatusOK, map[string]any{"prompt_id": req.PromptID, "number": number, "node_errors": nodeErrors})
		return
	}
	if hook != nil {
		hook(s, req.PromptID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompt_id": req.PromptID, "number": number, "node_errors": map[string]any{}})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	s.mu.Lock()
	record, ok := s.history[jobID]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{jobID: record})
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.queueCalls++
	running := queueEntries(s.running, 0)
	pending := queueEntries(s.pending, len(s.running))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"queue_running": running, "queue_pending": pending})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "missing image field", http.StatusBadRequest)
		return
	}
	defer file.Close()
	size, _ := io.Copy(io.Discard, file)

	s.mu.Lock()
	s.uploads = append(s.uploads, Upload{
		Name:      header.Filename,
		Type:      r.FormValue("type"),
		Subfolder: r.FormValue("subfolder"),
		Size:      size,
	})
	status := s.UploadStatus
	omit := s.UploadOmitName
	s.mu.Unlock()

	switch {
	case status != 0:
		writeJSON(w, status, map[string]any{"error": "upload rejected"})
	case omit:
		writeJSON(w, http.StatusOK, map[string]any{"error": "no name assigned"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"name": header.Filename, "subfolder": "", "type": "input"})
	}
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("filename")
	s.mu.Lock()
	content, ok := s.files[name]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(content)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reject := s.RejectWebSocket
	s.mu.Unlock()
	if reject {
		http.Error(w, "event channel disabled", http.StatusServiceUnavailable)
		return
	}
	clientID := r.URL.Query().Get("clientId")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsConn{conn: conn}
	s.mu.Lock()
	s.wsAccepts++
	s.conns[clientID] = c
	s.mu.Unlock()

	_ = s.Emit(clientID, "status", map[string]any{"sid": clientID, "status": map[string]any{"exec_info": map[string]any{"queue_remaining": 0}}})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.mu.Lock()
	if s.conns[clientID] == c {
		delete(s.conns, clientID)
	}
	s.mu.Unlock()
	_ = conn.Close()
}

func queueEntries(ids []string, offset int) []any {
	entries := make([]any, 0, len(ids))
	for i, id := range ids {
		entries = append(entries, []any{offset + i, id, map[string]any{}, map[string]any{}, []any{}})
	}
	return entries
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
