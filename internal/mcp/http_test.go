package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nugget/mcpgw-cli/internal/buildinfo"
)

// gatewayRecorder captures what the fake gateway received.
type gatewayRecorder struct {
	mu       sync.Mutex
	headers  []http.Header
	bodies   []map[string]any
	requests int
}

func (g *gatewayRecorder) record(r *http.Request) map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	var body map[string]any
	data, _ := io.ReadAll(r.Body)
	json.Unmarshal(data, &body)
	g.headers = append(g.headers, r.Header.Clone())
	g.bodies = append(g.bodies, body)
	g.requests++
	return body
}

func (g *gatewayRecorder) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests
}

func jsonReply(w http.ResponseWriter, body map[string]any, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      body["id"],
		"result":  result,
	})
}

func TestHTTPTransport_SessionEcho(t *testing.T) {
	rec := &gatewayRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := rec.record(r)
		if body["method"] == "initialize" {
			w.Header().Set(SessionHeader, "sess-abc123")
		}
		if _, hasID := body["id"]; !hasID {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		jsonReply(w, body, map[string]any{})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL})
	client := NewClient(tr, nil)
	ctx := context.Background()

	if _, err := client.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := client.ListTools(ctx); err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if _, err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	if got := client.SessionID(); got != "sess-abc123" {
		t.Errorf("SessionID() = %q, want sess-abc123", got)
	}

	// initialize, notification, tools/list, ping
	if len(rec.headers) != 4 {
		t.Fatalf("gateway saw %d requests, want 4", len(rec.headers))
	}
	if sid := rec.headers[0].Get(SessionHeader); sid != "" {
		t.Errorf("initialize carried session %q before one was issued", sid)
	}
	for i, h := range rec.headers[1:] {
		if sid := h.Get(SessionHeader); sid != "sess-abc123" {
			t.Errorf("request %d session header = %q, want sess-abc123", i+1, sid)
		}
	}
}

func TestHTTPTransport_FirstSessionIDWins(t *testing.T) {
	rec := &gatewayRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := rec.record(r)
		switch body["method"] {
		case "initialize":
			w.Header().Set(SessionHeader, "first")
		case "ping":
			w.Header().Set(SessionHeader, "second")
		}
		if _, hasID := body["id"]; !hasID {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		jsonReply(w, body, map[string]any{})
	}))
	defer srv.Close()

	client := NewClient(NewHTTPTransport(HTTPConfig{URL: srv.URL}), nil)
	ctx := context.Background()

	if _, err := client.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, err := client.ListTools(ctx); err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	if got := client.SessionID(); got != "first" {
		t.Errorf("SessionID() = %q, want first", got)
	}
	// initialize, notification, ping, tools/list
	want := []string{"", "first", "first", "first"}
	if len(rec.headers) != len(want) {
		t.Fatalf("gateway saw %d requests, want %d", len(rec.headers), len(want))
	}
	for i, h := range rec.headers {
		if sid := h.Get(SessionHeader); sid != want[i] {
			t.Errorf("request %d session header = %q, want %q", i, sid, want[i])
		}
	}
}

func TestHTTPTransport_SessionCapturedFromErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(SessionHeader, "sess-from-error")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad"}}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL})
	if _, err := tr.Send(context.Background(), NewRequest(1, "ping", nil)); err == nil {
		t.Fatal("expected HTTP error")
	}
	if tr.SessionID() != "sess-from-error" {
		t.Errorf("SessionID() = %q, want sess-from-error", tr.SessionID())
	}
}

func TestHTTPTransport_Headers(t *testing.T) {
	rec := &gatewayRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonReply(w, rec.record(r), map[string]any{})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{
		URL:          srv.URL,
		GatewayToken: "ingress-tok",
		BackendToken: "backend-tok",
	})
	if _, err := tr.Send(context.Background(), NewRequest(1, "ping", nil)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	h := rec.headers[0]
	checks := map[string]string{
		"Content-Type":    "application/json",
		"Accept":          "application/json, text/event-stream",
		"User-Agent":      buildinfo.UserAgent(),
		"X-Authorization": "Bearer ingress-tok",
		"Authorization":   "Bearer backend-tok",
	}
	for k, want := range checks {
		if got := h.Get(k); got != want {
			t.Errorf("header %s = %q, want %q", k, got, want)
		}
	}
	if rec.bodies[0]["jsonrpc"] != "2.0" || rec.bodies[0]["method"] != "ping" {
		t.Errorf("body = %v", rec.bodies[0])
	}
}

func TestHTTPTransport_NoTokensNoAuthHeaders(t *testing.T) {
	rec := &gatewayRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonReply(w, rec.record(r), map[string]any{})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL, BackendToken: "only-backend"})
	tr.Send(context.Background(), NewRequest(1, "ping", nil))

	h := rec.headers[0]
	if h.Get("X-Authorization") != "" {
		t.Errorf("X-Authorization = %q, want absent", h.Get("X-Authorization"))
	}
	if h.Get("Authorization") != "Bearer only-backend" {
		t.Errorf("Authorization = %q", h.Get("Authorization"))
	}
}

func TestHTTPTransport_EventStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"jsonrpc\":\"2.0\",\"result\":{\"ok\":true}}\n\n"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL})
	resp, err := tr.Send(context.Background(), NewRequest(1, "ping", nil))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.JSONRPC != "2.0" || resp.Error != nil {
		t.Fatalf("resp = %+v", resp)
	}
	if string(resp.Result) != `{"ok":true}` {
		t.Errorf("Result = %s, want {\"ok\":true}", resp.Result)
	}
}

func TestDecodeEventStream(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantResult string
		wantErr    bool
	}{
		{
			name:       "single data line",
			body:       "data: {\"jsonrpc\":\"2.0\",\"result\":{\"ok\":true}}\n\n",
			wantResult: `{"ok":true}`,
		},
		{
			name:       "event line and CRLF",
			body:       "event: message\r\ndata: {\"jsonrpc\":\"2.0\",\"id\":3,\"result\":{}}\r\n\r\n",
			wantResult: `{}`,
		},
		{
			name:       "skips unparseable data",
			body:       "data: [not json\ndata:{\"jsonrpc\":\"2.0\",\"result\":1}\n",
			wantResult: `1`,
		},
		{
			name:    "no data line",
			body:    "event: ping\n: keepalive\n\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := decodeEventStream([]byte(tt.body))
			if resp == nil {
				t.Fatal("decodeEventStream returned nil")
			}
			if tt.wantErr {
				if resp.Error == nil || resp.Error.Message != streamNoPayloadMessage {
					t.Errorf("resp = %+v, want synthetic error envelope", resp)
				}
				if resp.JSONRPC != "2.0" {
					t.Errorf("JSONRPC = %q", resp.JSONRPC)
				}
				return
			}
			if string(resp.Result) != tt.wantResult {
				t.Errorf("Result = %s, want %s", resp.Result, tt.wantResult)
			}
		})
	}
}

func TestHTTPTransport_EventStreamWithoutData_IsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.Write([]byte("event: endpoint\n\n"))
	}))
	defer srv.Close()

	client := NewClient(NewHTTPTransport(HTTPConfig{URL: srv.URL}), nil)
	_, err := client.Ping(context.Background())
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Message != streamNoPayloadMessage {
		t.Errorf("err = %v, want synthetic stream error", err)
	}
}

func TestHTTPTransport_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL})
	resp, err := tr.Send(context.Background(), NewRequest(1, "ping", nil))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.JSONRPC != "2.0" || resp.Result != nil || resp.Error != nil {
		t.Errorf("resp = %+v, want bare {jsonrpc:2.0}", resp)
	}
}

func TestHTTPTransport_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL})
	_, err := tr.Send(context.Background(), NewRequest(1, "ping", nil))
	if err == nil || !strings.Contains(err.Error(), "invalid JSON response") {
		t.Errorf("err = %v, want invalid JSON error", err)
	}
}

func TestHTTPTransport_HTTPErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"forbidden"}}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL})
	_, err := tr.Send(context.Background(), NewRequest(1, "tools/list", nil))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "forbidden") {
		t.Errorf("err = %q, want status and message", err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusForbidden {
		t.Errorf("err = %v, want *HTTPError 403", err)
	}
}

func TestHTTPTransport_HTTPErrorRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL})
	_, err := tr.Send(context.Background(), NewRequest(1, "ping", nil))
	if err == nil || err.Error() != "HTTP 502: upstream exploded" {
		t.Errorf("err = %v, want %q", err, "HTTP 502: upstream exploded")
	}
}

func TestHTTPTransport_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["method"] == "slow" {
			select {
			case <-release:
			case <-r.Context().Done():
			}
			return
		}
		jsonReply(w, body, map[string]any{})
	}))
	defer srv.Close()
	defer close(release)

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL, Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := tr.Send(context.Background(), NewRequest(1, "slow", nil))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("err = %v (%T), want *TimeoutError", err, err)
	}
	if !strings.Contains(err.Error(), srv.URL) || !strings.Contains(err.Error(), "50ms") {
		t.Errorf("err = %q, want URL and duration", err)
	}

	// The transport is still usable afterwards.
	if _, err := tr.Send(context.Background(), NewRequest(2, "ping", nil)); err != nil {
		t.Errorf("request after timeout failed: %v", err)
	}
}

func TestHTTPTransport_CallerCancellationIsNotTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL, Timeout: time.Minute})
	_, err := tr.Send(ctx, NewRequest(1, "ping", nil))
	var timeoutErr *TimeoutError
	if err == nil || errors.As(err, &timeoutErr) {
		t.Errorf("err = %v, want plain cancellation error", err)
	}
}

func TestHTTPTransport_NotifySwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"unexpected notification"}}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL})
	out := tr.Notify(context.Background(), NewNotification("notifications/initialized", nil))
	if out.Response == nil || out.Response.JSONRPC != "2.0" || out.Response.Error != nil {
		t.Errorf("Response = %+v, want empty success envelope", out.Response)
	}
	if out.Dropped == nil {
		t.Error("Dropped = nil, want the swallowed HTTP error")
	}
}

func TestHTTPTransport_NotifyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: url})
	out := tr.Notify(context.Background(), NewNotification("notifications/initialized", nil))
	if out.Response == nil || out.Dropped == nil {
		t.Errorf("outcome = %+v, want envelope plus dropped cause", out)
	}
}

func TestClient_CallTool_EmptyNameMakesNoHTTPRequest(t *testing.T) {
	rec := &gatewayRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonReply(w, rec.record(r), map[string]any{})
	}))
	defer srv.Close()

	client := NewClient(NewHTTPTransport(HTTPConfig{URL: srv.URL}), nil)
	if _, err := client.CallTool(context.Background(), "", map[string]any{"a": 1}); !errors.Is(err, ErrEmptyToolName) {
		t.Fatalf("err = %v, want ErrEmptyToolName", err)
	}
	if rec.count() != 0 {
		t.Errorf("gateway saw %d requests, want 0", rec.count())
	}
}
