package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// mockTransport is a test double for the Transport interface.
type mockTransport struct {
	mu        sync.Mutex
	responses map[string]*Response // method -> canned response
	sent      []Request            // captured requests
	notifs    []Notification       // captured notifications
	dropNotif error                // reported as NotifyOutcome.Dropped
	session   string
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		responses: make(map[string]*Response),
	}
}

func (m *mockTransport) addResponse(method string, result any) {
	data, _ := json.Marshal(result)
	m.responses[method] = &Response{
		JSONRPC: jsonrpcVersion,
		Result:  json.RawMessage(data),
	}
}

func (m *mockTransport) addError(method string, code int, msg string) {
	m.responses[method] = &Response{
		JSONRPC: jsonrpcVersion,
		Error:   &RPCError{Code: code, Message: msg},
	}
}

func (m *mockTransport) Send(_ context.Context, req *Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, *req)
	resp, ok := m.responses[req.Method]
	if !ok {
		return nil, fmt.Errorf("unexpected method: %s", req.Method)
	}
	// Copy response and set matching ID.
	out := *resp
	id := req.ID
	out.ID = &id
	return &out, nil
}

func (m *mockTransport) Notify(_ context.Context, notif *Notification) NotifyOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifs = append(m.notifs, *notif)
	return NotifyOutcome{Response: emptyResponse(), Dropped: m.dropNotif}
}

func (m *mockTransport) SessionID() string {
	return m.session
}

func TestClient_Initialize(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initializeResult{
		ProtocolVersion: "2024-11-05",
		ServerInfo:      serverInfo{Name: "mcpgw", Version: "1.0.0"},
	})

	client := NewClient(mt, nil)
	resp, err := client.Initialize(context.Background())
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if resp == nil || len(resp.Result) == 0 {
		t.Fatal("Initialize returned no envelope")
	}

	if len(mt.sent) != 1 {
		t.Fatalf("sent %d requests, want 1", len(mt.sent))
	}
	if mt.sent[0].Method != "initialize" {
		t.Errorf("method = %q, want %q", mt.sent[0].Method, "initialize")
	}
	params, _ := mt.sent[0].Params.(map[string]any)
	if params["protocolVersion"] != protocolVersion {
		t.Errorf("protocolVersion = %v, want %q", params["protocolVersion"], protocolVersion)
	}
	info, _ := params["clientInfo"].(map[string]any)
	if info["name"] != "mcpgw-cli" {
		t.Errorf("clientInfo.name = %v, want mcpgw-cli", info["name"])
	}

	if len(mt.notifs) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(mt.notifs))
	}
	if mt.notifs[0].Method != "notifications/initialized" {
		t.Errorf("notification method = %q, want %q", mt.notifs[0].Method, "notifications/initialized")
	}
}

func TestClient_Initialize_DroppedNotificationIsNotAnError(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", map[string]any{})
	mt.dropNotif = errors.New("HTTP 400: notifications not supported")

	client := NewClient(mt, nil)
	if _, err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize should swallow notification failures, got %v", err)
	}
}

func TestClient_Initialize_RPCError(t *testing.T) {
	mt := newMockTransport()
	mt.addError("initialize", -32600, "Invalid Request")

	client := NewClient(mt, nil)
	_, err := client.Initialize(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("error %v is not an *RPCError", err)
	}
	if len(mt.notifs) != 0 {
		t.Errorf("notification sent after failed initialize")
	}
}

func TestClient_RequestIDsIncrease(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", map[string]any{})
	mt.addResponse("ping", map[string]any{})
	mt.addResponse("tools/list", map[string]any{"tools": []any{}})

	client := NewClient(mt, nil)
	ctx := context.Background()
	client.Initialize(ctx)
	client.Ping(ctx)
	client.ListTools(ctx)
	client.Ping(ctx)

	for i, req := range mt.sent {
		if req.ID != int64(i+1) {
			t.Errorf("request %d (%s) id = %d, want %d", i, req.Method, req.ID, i+1)
		}
	}

	// A fresh client starts over.
	mt2 := newMockTransport()
	mt2.addResponse("ping", map[string]any{})
	NewClient(mt2, nil).Ping(ctx)
	if mt2.sent[0].ID != 1 {
		t.Errorf("fresh client first id = %d, want 1", mt2.sent[0].ID)
	}
}

func TestClient_CallTool(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("tools/call", CallToolResult{
		Content: []ContentBlock{{Type: "text", Text: "12:00 in New York"}},
	})

	client := NewClient(mt, nil)
	resp, err := client.CallTool(context.Background(), "current_time_by_timezone", map[string]any{
		"tz_name": "America/New_York",
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}

	params, _ := mt.sent[0].Params.(map[string]any)
	if params["name"] != "current_time_by_timezone" {
		t.Errorf("params.name = %v", params["name"])
	}
	args, _ := params["arguments"].(map[string]any)
	if args["tz_name"] != "America/New_York" {
		t.Errorf("params.arguments = %v", params["arguments"])
	}

	result, err := DecodeCallToolResult(resp)
	if err != nil {
		t.Fatalf("DecodeCallToolResult: %v", err)
	}
	if result.IsError || len(result.Content) != 1 || result.Content[0].Text != "12:00 in New York" {
		t.Errorf("result = %+v", result)
	}
}

func TestClient_CallTool_NilArgsSentAsObject(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("tools/call", CallToolResult{})

	client := NewClient(mt, nil)
	if _, err := client.CallTool(context.Background(), "noargs", nil); err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	params, _ := mt.sent[0].Params.(map[string]any)
	args, ok := params["arguments"].(map[string]any)
	if !ok || args == nil {
		t.Errorf("arguments = %#v, want empty object", params["arguments"])
	}
}

func TestClient_CallTool_EmptyName(t *testing.T) {
	mt := newMockTransport()
	client := NewClient(mt, nil)

	_, err := client.CallTool(context.Background(), "", nil)
	if !errors.Is(err, ErrEmptyToolName) {
		t.Fatalf("err = %v, want ErrEmptyToolName", err)
	}
	if len(mt.sent) != 0 {
		t.Errorf("sent %d requests, want 0", len(mt.sent))
	}
}

func TestClient_RPCErrorSurfacesServerMessage(t *testing.T) {
	mt := newMockTransport()
	mt.addError("tools/call", -32602, "Unknown tool: nope")

	client := NewClient(mt, nil)
	_, err := client.CallTool(context.Background(), "nope", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Message != "Unknown tool: nope" {
		t.Errorf("err = %v, want RPCError with server message", err)
	}
}

func TestDecodeCallToolResult_NoResult(t *testing.T) {
	got, err := DecodeCallToolResult(emptyResponse())
	if err != nil || got != nil {
		t.Errorf("DecodeCallToolResult(empty) = %v, %v; want nil, nil", got, err)
	}
}
