package comfy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dhgen/internal/logging"
	"dhgen/internal/services"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultUploadTimeout  = 300 * time.Second
	defaultPollInterval   = 5 * time.Second
	defaultReceiveTimeout = time.Second

	component = "comfy"
)

// HTTPDoer describes the HTTP client used for REST calls.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the server's HTTP root, e.g. http://127.0.0.1:6006.
	BaseURL        string
	HTTPClient     HTTPDoer
	Dialer         *websocket.Dialer
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	PollInterval   time.Duration
	ReceiveTimeout time.Duration
	Logger         *slog.Logger
}

// Client is a session with one workflow server. REST operations are safe for
// concurrent use; the event channel serves one monitor at a time.
type Client struct {
	base     *url.URL
	wsURL    string
	clientID string
	http     HTTPDoer
	dialer   *websocket.Dialer
	logger   *slog.Logger

	requestTimeout time.Duration
	uploadTimeout  time.Duration
	pollInterval   time.Duration
	receiveTimeout time.Duration

	mu     sync.Mutex
	stream *eventStream
}

// New validates opts and returns a disconnected client with a fresh client id.
func New(opts Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "new client", "server url is empty", nil)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, component, "new client", "parse server url", err)
	}
	wsScheme := "ws"
	switch base.Scheme {
	case "http":
	case "https":
		wsScheme = "wss"
	default:
		return nil, services.Wrap(services.ErrConfiguration, component, "new client",
			fmt.Sprintf("unsupported scheme %q", base.Scheme), nil)
	}

	c := &Client{
		base:           base,
		clientID:       uuid.NewString(),
		http:           opts.HTTPClient,
		dialer:         opts.Dialer,
		logger:         logging.NewComponentLogger(opts.Logger, component),
		requestTimeout: durationOr(opts.RequestTimeout, defaultRequestTimeout),
		uploadTimeout:  durationOr(opts.UploadTimeout, defaultUploadTimeout),
		pollInterval:   durationOr(opts.PollInterval, defaultPollInterval),
		receiveTimeout: durationOr(opts.ReceiveTimeout, defaultReceiveTimeout),
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.dialer == nil {
		c.dialer = websocket.DefaultDialer
	}
	wsURL := *base
	wsURL.Scheme = wsScheme
	wsURL.Path = strings.TrimRight(base.Path, "/") + "/ws"
	wsURL.RawQuery = url.Values{"clientId": {c.clientID}}.Encode()
	c.wsURL = wsURL.String()
	return c, nil
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

// ClientID returns the identifier that tags this session's event channel.
func (c *Client) ClientID() string {
	return c.clientID
}

// BaseURL returns the server's HTTP root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// getJSON performs a bounded GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, operation, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, nil), nil)
	if err != nil {
		return services.Wrap(services.ErrConnection, component, operation, "build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrConnection, component, operation, "GET "+path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return services.Wrap(services.ErrConnection, component, operation,
			fmt.Sprintf("GET %s returned %d: %s", path, resp.StatusCode, snippet(resp.Body)), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrConnection, component, operation, "decode "+path+" response", err)
	}
	return nil
}

func snippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(data))
}
