package mcp

import "context"

// Transport carries JSON-RPC messages to one gateway endpoint and owns
// the session identifier for that endpoint.
type Transport interface {
	// Send sends a JSON-RPC request and returns the decoded response
	// envelope. Transport failures (timeout, network, non-2xx status)
	// are returned as errors; a JSON-RPC error object is not.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Notify sends a JSON-RPC notification. It never fails: the outcome
	// always carries an envelope, and Dropped records why the gateway
	// response was discarded, if it was.
	Notify(ctx context.Context, notif *Notification) NotifyOutcome

	// SessionID returns the session identifier most recently issued by
	// the gateway, or "" if none has been seen.
	SessionID() string
}

// NotifyOutcome is the result of a best-effort notification. Response
// is never nil. Dropped is informational only: servers that do not
// expect the notification answer it with an error, and an unreachable
// server is reported by the next real request instead.
type NotifyOutcome struct {
	Response *Response
	Dropped  error
}
