package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nugget/mcpgw-cli/internal/mcp"
)

// Result is the normalized outcome of any invocation. Every execution
// path, gateway or task, produces one of these.
type Result struct {
	Lines   []string `json:"lines"`
	IsError bool     `json:"isError"`
}

// Text joins the lines with newlines.
func (r Result) Text() string {
	return strings.Join(r.Lines, "\n")
}

// success renders v as indented JSON, one element per line.
func success(v any) Result {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return failure(fmt.Errorf("format response: %w", err))
	}
	return Result{Lines: strings.Split(string(data), "\n")}
}

// failure renders err as a single line. Gateway protocol errors keep the
// server's code and message.
func failure(err error) Result {
	var rpcErr *mcp.RPCError
	if errors.As(err, &rpcErr) {
		return Result{
			Lines:   []string{fmt.Sprintf("gateway error %d: %s", rpcErr.Code, rpcErr.Message)},
			IsError: true,
		}
	}
	return Result{Lines: []string{"Error: " + err.Error()}, IsError: true}
}
