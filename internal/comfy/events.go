package comfy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dhgen/internal/logging"
	"dhgen/internal/services"
)

// eventStream owns the WebSocket connection. A single reader goroutine pumps
// text frames into messages so receive timeouts never touch the connection's
// read deadline, which gorilla/websocket cannot recover from.
type eventStream struct {
	conn     *websocket.Conn
	messages chan []byte
	quit     chan struct{}
	dead     chan struct{}
	err      error
	once     sync.Once
}

func newEventStream(conn *websocket.Conn) *eventStream {
	s := &eventStream{
		conn:     conn,
		messages: make(chan []byte, 64),
		quit:     make(chan struct{}),
		dead:     make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *eventStream) pump() {
	defer func() {
		close(s.messages)
		close(s.dead)
	}()
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			s.err = err
			return
		}
		if kind != websocket.TextMessage {
			// binary frames carry preview images
			continue
		}
		select {
		case s.messages <- data:
		case <-s.quit:
			return
		}
	}
}

func (s *eventStream) close() {
	s.once.Do(func() {
		close(s.quit)
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = s.conn.Close()
	})
}

// Connect opens the event channel. Calling it while connected is a no-op; a
// channel that has failed is replaced. Failures are not retried.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		select {
		case <-c.stream.dead:
			c.stream.close()
			c.stream = nil
		default:
			return nil
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	conn, resp, err := c.dialer.DialContext(dialCtx, c.wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return services.Wrap(services.ErrConnection, component, "connect", "open event channel "+c.wsURL, err)
	}
	c.stream = newEventStream(conn)
	c.logger.Info("connected to workflow server",
		logging.String("server", c.base.Host),
		logging.String("client_id", c.clientID))
	return nil
}

// Connected reports whether an event channel is open and still alive.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return false
	}
	select {
	case <-c.stream.dead:
		return false
	default:
		return true
	}
}

// Disconnect releases the event channel. It is safe to call repeatedly.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	if stream == nil {
		return nil
	}
	stream.close()
	c.logger.Debug("event channel closed", logging.String("client_id", c.clientID))
	return nil
}

func (c *Client) currentStream() *eventStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

// Event is a decoded server push message. Only fields used for monitoring
// are extracted.
type Event struct {
	Type  string
	JobID string
	Node  string
	// Idle is true for an executing event whose node is explicitly null,
	// which the server sends once a job has finished.
	Idle    bool
	Value   float64
	Max     float64
	Message string
}

func parseEvent(raw []byte) (Event, error) {
	var envelope struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	ev := Event{Type: envelope.Type}
	data := envelope.Data
	if data == nil {
		return ev, nil
	}
	ev.JobID, _ = data["prompt_id"].(string)
	if node, present := data["node"]; present {
		if node == nil {
			ev.Idle = true
		} else {
			ev.Node = fmt.Sprint(node)
		}
	}
	if ev.Node == "" {
		if id, ok := data["node_id"].(string); ok {
			ev.Node = id
		}
	}
	ev.Value, _ = data["value"].(float64)
	ev.Max, _ = data["max"].(float64)
	if msg, ok := data["exception_message"].(string); ok {
		ev.Message = msg
	} else if msg, ok := data["message"].(string); ok {
		ev.Message = msg
	}
	return ev, nil
}
