package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nugget/mcpgw-cli/internal/buildinfo"
)

// protocolVersion is the MCP protocol version we advertise during initialization.
const protocolVersion = "2024-11-05"

// serverInfo is returned in the initialize response.
type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// initializeResult is the subset of the initialize result we log.
type initializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      serverInfo `json:"serverInfo"`
}

// CallToolResult is the result payload of a tools/call response.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock is a single content item in a tools/call response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// DecodeCallToolResult extracts the tools/call payload from resp. It
// returns nil when the envelope carries no result.
func DecodeCallToolResult(resp *Response) (*CallToolResult, error) {
	if resp == nil || len(resp.Result) == 0 {
		return nil, nil
	}
	var result CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("unmarshal tools/call result: %w", err)
	}
	return &result, nil
}

// Client issues gateway protocol requests over a Transport. Request ids
// are unique and increasing per Client; a fresh Client starts again
// at 1. The client does not enforce that Initialize runs first.
type Client struct {
	transport Transport
	logger    *slog.Logger
	nextID    atomic.Int64
}

// NewClient creates a protocol client on the given transport.
func NewClient(transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: transport,
		logger:    logger,
	}
}

// SessionID returns the session identifier learned by the transport.
func (c *Client) SessionID() string {
	return c.transport.SessionID()
}

// Initialize performs the MCP handshake: it sends an initialize request
// and then, best-effort, the notifications/initialized notification.
// The initialize response envelope is returned; the notification never
// causes Initialize to fail.
func (c *Client) Initialize(ctx context.Context) (*Response, error) {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    buildinfo.ClientName,
			"version": buildinfo.Version,
		},
	}

	resp, err := c.send(ctx, "initialize", params)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	var result initializeResult
	if len(resp.Result) > 0 && json.Unmarshal(resp.Result, &result) == nil {
		c.logger.Info("gateway initialized",
			"server_name", result.ServerInfo.Name,
			"server_version", result.ServerInfo.Version,
			"protocol_version", result.ProtocolVersion,
			"session_id", c.SessionID(),
		)
	}

	outcome := c.transport.Notify(ctx, NewNotification("notifications/initialized", nil))
	if outcome.Dropped != nil {
		c.logger.Debug("initialized notification not acknowledged", "error", outcome.Dropped)
	}

	return resp, nil
}

// Ping checks whether the gateway is responsive.
func (c *Client) Ping(ctx context.Context) (*Response, error) {
	resp, err := c.send(ctx, "ping", nil)
	if err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return resp, nil
}

// ListTools calls tools/list and returns the response envelope.
func (c *Client) ListTools(ctx context.Context) (*Response, error) {
	resp, err := c.send(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	return resp, nil
}

// CallTool invokes a tool by name. A nil args map is sent as {}. An
// empty name fails with ErrEmptyToolName without touching the network.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*Response, error) {
	if name == "" {
		return nil, ErrEmptyToolName
	}
	if args == nil {
		args = map[string]any{}
	}

	params := map[string]any{
		"name":      name,
		"arguments": args,
	}

	resp, err := c.send(ctx, "tools/call", params)
	if err != nil {
		return nil, fmt.Errorf("tools/call %s: %w", name, err)
	}
	return resp, nil
}

// send issues a JSON-RPC request and checks for protocol-level errors.
func (c *Client) send(ctx context.Context, method string, params any) (*Response, error) {
	id := c.nextID.Add(1)
	req := NewRequest(id, method, params)

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, resp.Error
	}

	return resp, nil
}
