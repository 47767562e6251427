// Package mcp implements the client side of the gateway's JSON-RPC
// dialect of MCP (Model Context Protocol) over HTTP.
//
// Only the handshake (initialize plus the notifications/initialized
// notification), ping, tools/list and tools/call are supported. Each
// [Client] owns its request-id counter, and its [HTTPTransport] owns
// the session identifier learned from the gateway; nothing is shared
// between client instances.
//
// Responses may arrive as plain JSON or as an event stream whose first
// data line carries the JSON-RPC envelope. Both are decoded into a
// [Response].
package mcp
