package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrEmptyToolName is returned by [Client.CallTool] before any request
// is made when no tool name is given.
var ErrEmptyToolName = errors.New("tool name is required")

// HTTPError reports a non-2xx response from the gateway.
type HTTPError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, msg)
}

// TimeoutError reports a request that did not complete within the
// configured timeout. The in-flight request has been aborted.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.URL, e.Timeout)
}

// newHTTPError builds an HTTPError, preferring a message field from a
// JSON error body over the raw body text.
func newHTTPError(status int, body []byte) *HTTPError {
	return &HTTPError{Status: status, Message: errorMessage(body)}
}

// maxErrorMessageRunes caps error text pulled from a response body.
// Proxies tend to answer with whole HTML pages.
const maxErrorMessageRunes = 200

// errorMessage extracts a human-readable message from an error body
// and flattens it to a single line of bounded length.
func errorMessage(body []byte) string {
	msg := strings.Join(strings.Fields(bodyMessage(body)), " ")
	if utf8.RuneCountInString(msg) <= maxErrorMessageRunes {
		return msg
	}
	return string([]rune(msg)[:maxErrorMessageRunes]) + "..."
}

// bodyMessage checks, in order: error.message, message, error (string),
// detail. Non-JSON bodies are returned as-is.
func bodyMessage(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return text
	}

	switch e := doc["error"].(type) {
	case map[string]any:
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg
		}
	case string:
		if msg, ok := doc["message"].(string); ok && msg != "" {
			return msg
		}
		if e != "" {
			return e
		}
	}
	if msg, ok := doc["message"].(string); ok && msg != "" {
		return msg
	}
	switch d := doc["detail"].(type) {
	case string:
		if d != "" {
			return d
		}
	case nil:
	default:
		if b, err := json.Marshal(d); err == nil {
			return string(b)
		}
	}
	return text
}
