package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nugget/mcpgw-cli/internal/buildinfo"
	"github.com/nugget/mcpgw-cli/internal/config"
	"github.com/nugget/mcpgw-cli/internal/httpkit"
)

// Header names used on the wire.
const (
	// SessionHeader carries the gateway-issued session identifier.
	SessionHeader = "Mcp-Session-Id"

	// GatewayAuthHeader carries the ingress (gateway-scoped) token.
	// The standard Authorization header is left for the backend token,
	// which the gateway forwards to the target server.
	GatewayAuthHeader = "X-Authorization"

	acceptHeader = "application/json, text/event-stream"
)

const (
	// DefaultTimeout bounds each request when HTTPConfig.Timeout is zero.
	DefaultTimeout = 30 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 10 << 20

	// streamNoPayloadMessage is the diagnostic carried by the synthetic
	// error envelope for an event stream without a parseable data line.
	streamNoPayloadMessage = "no valid JSON-RPC payload in event stream"
)

// HTTPConfig configures an HTTP transport for one gateway endpoint.
type HTTPConfig struct {
	// URL is the gateway MCP endpoint.
	URL string

	// GatewayToken is sent as "X-Authorization: Bearer <token>".
	GatewayToken string

	// BackendToken is sent as "Authorization: Bearer <token>".
	BackendToken string

	// Timeout bounds every request; zero means DefaultTimeout.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS verification.
	InsecureSkipVerify bool

	// HTTPClient overrides the httpkit-built client (tests).
	HTTPClient *http.Client

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// HTTPTransport speaks JSON-RPC over HTTP POST. Each request is a
// single attempt bounded by the configured timeout.
type HTTPTransport struct {
	url          string
	gatewayToken string
	backendToken string
	timeout      time.Duration
	httpClient   *http.Client
	logger       *slog.Logger

	mu        sync.RWMutex
	sessionID string
}

// NewHTTPTransport creates an HTTP transport for the given config.
// The underlying HTTP client is constructed via httpkit with no
// client-level timeout; deadlines come from the request context.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		opts := []httpkit.ClientOption{httpkit.WithTimeout(0)}
		if cfg.InsecureSkipVerify {
			opts = append(opts, httpkit.WithTLSInsecureSkipVerify())
		}
		client = httpkit.NewClient(opts...)
	}

	return &HTTPTransport{
		url:          cfg.URL,
		gatewayToken: cfg.GatewayToken,
		backendToken: cfg.BackendToken,
		timeout:      timeout,
		httpClient:   client,
		logger:       logger.With("gateway", cfg.URL),
	}
}

// URL returns the gateway endpoint this transport posts to.
func (t *HTTPTransport) URL() string {
	return t.url
}

// SessionID returns the most recent session identifier issued by the
// gateway, or "" if none has been seen yet.
func (t *HTTPTransport) SessionID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionID
}

// Send posts a JSON-RPC request and returns the decoded envelope.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	return t.post(ctx, req)
}

// Notify posts a JSON-RPC notification. Every failure, including
// timeouts and unreachable gateways, degrades to an empty envelope.
func (t *HTTPTransport) Notify(ctx context.Context, notif *Notification) NotifyOutcome {
	resp, err := t.post(ctx, notif)
	if err != nil {
		return NotifyOutcome{Response: emptyResponse(), Dropped: err}
	}
	return NotifyOutcome{Response: resp}
}

// post performs one bounded HTTP exchange and decodes the body.
func (t *HTTPTransport) post(ctx context.Context, msg any) (*Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	t.setHeaders(httpReq)

	t.logger.Log(ctx, config.LevelTrace, "jsonrpc request", "json", string(body))

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, t.transportError(ctx, reqCtx, err)
	}
	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)

	// Session capture happens before any status check so that error
	// responses can still establish the session. The first id learned
	// is kept for the life of the transport.
	if sid := httpResp.Header.Get(SessionHeader); sid != "" {
		t.mu.Lock()
		switch t.sessionID {
		case "":
			t.sessionID = sid
			t.logger.Debug("session established", "session_id", sid)
		case sid:
		default:
			t.logger.Debug("ignoring changed session id", "session_id", t.sessionID, "received", sid)
		}
		t.mu.Unlock()
	}

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, t.transportError(ctx, reqCtx, fmt.Errorf("read response body: %w", err))
	}

	t.logger.Log(ctx, config.LevelTrace, "jsonrpc response",
		"status", httpResp.StatusCode,
		"content_type", httpResp.Header.Get("Content-Type"),
		"body", string(respBody),
	)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, newHTTPError(httpResp.StatusCode, respBody)
	}

	return decodeBody(httpResp.Header.Get("Content-Type"), respBody)
}

func (t *HTTPTransport) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	if t.gatewayToken != "" {
		req.Header.Set(GatewayAuthHeader, "Bearer "+t.gatewayToken)
	}
	if t.backendToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.backendToken)
	}
	if sid := t.SessionID(); sid != "" {
		req.Header.Set(SessionHeader, sid)
	}
}

// transportError maps an expired request deadline to a TimeoutError.
// A deadline or cancellation that came from the caller's context is
// reported as-is.
func (t *HTTPTransport) transportError(parent, reqCtx context.Context, err error) error {
	if parent.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{URL: t.url, Timeout: t.timeout}
	}
	return fmt.Errorf("request to %s failed: %w", t.url, err)
}

// decodeBody turns a successful response body into an envelope.
func decodeBody(contentType string, body []byte) (*Response, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return emptyResponse(), nil
	}

	if strings.Contains(strings.ToLower(contentType), "text/event-stream") {
		return decodeEventStream(body), nil
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	return &resp, nil
}

// decodeEventStream returns the envelope carried by the first data line
// that parses as JSON. A stream with no such line yields a synthetic
// error envelope rather than a decode error.
func decodeEventStream(body []byte) *Response {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseBytes)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var resp Response
		if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &resp); err != nil {
			continue
		}
		return &resp
	}

	return &Response{
		JSONRPC: jsonrpcVersion,
		Error: &RPCError{
			Code:    -32700,
			Message: streamNoPayloadMessage,
		},
	}
}
