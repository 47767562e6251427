// Package dispatch executes resolved invocations against the gateway or
// the task runner and normalizes every outcome to a Result. It is the
// single execution path for operator commands and model tool calls
// alike; errors never escape it.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/mcpgw-cli/internal/command"
	"github.com/nugget/mcpgw-cli/internal/mcp"
	"github.com/nugget/mcpgw-cli/internal/taskrun"
)

// TaskRunner executes a task's external command.
type TaskRunner interface {
	Run(ctx context.Context, req taskrun.Request) (*taskrun.Result, error)
}

// Config configures a Dispatcher.
type Config struct {
	// Gateway is the template for the transport created per invocation.
	Gateway mcp.HTTPConfig

	// NewTransport overrides transport construction. When nil an HTTP
	// transport is built from Gateway.
	NewTransport func() mcp.Transport

	// Catalog is the task catalog. Nil uses command.DefaultCatalog.
	Catalog *command.Catalog

	Runner TaskRunner
	Logger *slog.Logger
}

// Dispatcher executes invocations.
type Dispatcher struct {
	newTransport func() mcp.Transport
	catalog      *command.Catalog
	runner       TaskRunner
	logger       *slog.Logger
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = command.DefaultCatalog()
	}
	newTransport := cfg.NewTransport
	if newTransport == nil {
		gw := cfg.Gateway
		if gw.Logger == nil {
			gw.Logger = logger
		}
		newTransport = func() mcp.Transport { return mcp.NewHTTPTransport(gw) }
	}
	return &Dispatcher{
		newTransport: newTransport,
		catalog:      catalog,
		runner:       cfg.Runner,
		logger:       logger.With("component", "dispatch"),
	}
}

// Catalog returns the dispatcher's task catalog.
func (d *Dispatcher) Catalog() *command.Catalog {
	return d.catalog
}

// Execute runs inv and returns its normalized result.
func (d *Dispatcher) Execute(ctx context.Context, inv command.Invocation) Result {
	start := time.Now()

	var res Result
	switch inv := inv.(type) {
	case command.Ping, command.List, command.Init, command.Call:
		res = d.gateway(ctx, inv)
	case command.Task:
		res = d.task(ctx, inv)
	case command.Help:
		res = d.help(inv.Topic)
	case command.Unknown:
		res = Result{Lines: []string{inv.Message}, IsError: true}
	default:
		res = failure(fmt.Errorf("unsupported invocation %T", inv))
	}

	d.logger.Debug("invocation executed",
		"kind", command.Kind(inv),
		"elapsed", time.Since(start).Round(time.Millisecond),
		"is_error", res.IsError,
	)
	return res
}

// gateway runs a protocol invocation on a fresh client. The handshake
// always comes first so every invocation has its own session.
func (d *Dispatcher) gateway(ctx context.Context, inv command.Invocation) Result {
	var (
		call command.Call
		args map[string]any
	)
	if c, ok := inv.(command.Call); ok {
		call = c
		if strings.TrimSpace(call.Tool) == "" {
			return failure(mcp.ErrEmptyToolName)
		}
		var err error
		if args, err = ParseArgs(call.ArgsJSON); err != nil {
			return failure(err)
		}
	}

	client := mcp.NewClient(d.newTransport(), d.logger)

	handshake, err := client.Initialize(ctx)
	if err != nil {
		return failure(err)
	}

	switch inv.(type) {
	case command.Init:
		res := success(handshake)
		if sid := client.SessionID(); sid != "" {
			res.Lines = append(res.Lines, "session: "+sid)
		}
		return res

	case command.Ping:
		resp, err := client.Ping(ctx)
		if err != nil {
			return failure(err)
		}
		return success(resp)

	case command.List:
		resp, err := client.ListTools(ctx)
		if err != nil {
			return failure(err)
		}
		return success(resp)

	default:
		resp, err := client.CallTool(ctx, call.Tool, args)
		if err != nil {
			return failure(err)
		}
		res := success(resp)
		if result, err := mcp.DecodeCallToolResult(resp); err == nil && result != nil && result.IsError {
			res.IsError = true
		}
		return res
	}
}

// ParseArgs parses a tool argument payload. An empty payload yields nil;
// anything else must be a JSON object.
func ParseArgs(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}
	args, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("invalid JSON arguments: expected an object")
	}
	return args, nil
}

// task validates a catalog task, runs it, and shapes its output.
func (d *Dispatcher) task(ctx context.Context, t command.Task) Result {
	prep, err := d.catalog.Prepare(t)
	if err != nil {
		return failure(err)
	}
	if d.runner == nil {
		return failure(errors.New("task execution is not configured"))
	}

	argv := append([]string{prep.Command.Program}, prep.Command.Args...)
	display := taskrun.Quote(argv)

	out, err := d.runner.Run(ctx, taskrun.Request{
		Program:     prep.Command.Program,
		Args:        prep.Command.Args,
		Category:    prep.Category,
		FieldValues: prep.Values,
	})
	if err != nil {
		return Result{Lines: []string{"$ " + display, "Error: " + err.Error()}, IsError: true}
	}
	if out.Command != "" {
		display = out.Command
	}

	lines := []string{"$ " + display}
	if stdout := strings.TrimSpace(out.Stdout); stdout != "" {
		lines = append(lines, strings.Split(stdout, "\n")...)
	}
	if stderr := strings.TrimSpace(out.Stderr); stderr != "" {
		lines = append(lines, "stderr: "+stderr)
	}
	lines = append(lines, fmt.Sprintf("exit code: %d", out.ExitCode))

	return Result{Lines: lines, IsError: out.ExitCode != 0}
}
