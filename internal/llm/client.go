// Package llm provides the language-model provider used by the agent.
package llm

import "context"

// Client is the interface a language-model provider implements.
type Client interface {
	// Chat sends a request and returns the complete response.
	Chat(ctx context.Context, req *Request) (*ChatResponse, error)

	// ChatStream sends a streaming request. If callback is non-nil, text
	// tokens are delivered to it as they arrive.
	ChatStream(ctx context.Context, req *Request, callback StreamCallback) (*ChatResponse, error)
}

// Request is one model turn.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}
