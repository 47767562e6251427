// Package agent implements the bounded model/tool loop behind free-text
// operator input. Each turn alternates model requests and tool
// executions until the model answers without tools or the iteration
// cap is reached.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/mcpgw-cli/internal/command"
	"github.com/nugget/mcpgw-cli/internal/dispatch"
	"github.com/nugget/mcpgw-cli/internal/llm"
	"github.com/nugget/mcpgw-cli/internal/prompts"
	"github.com/nugget/mcpgw-cli/internal/usage"
)

// DefaultMaxIterations is the number of model round-trips per turn.
const DefaultMaxIterations = 5

// Executor runs a resolved invocation.
type Executor interface {
	Execute(ctx context.Context, inv command.Invocation) dispatch.Result
}

// UsageRecorder persists token usage.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// Config configures a Loop.
type Config struct {
	LLM       llm.Client
	Model     string
	MaxTokens int

	// System is the system prompt sent with every request.
	System string

	Executor Executor

	// Resolver parses registry_task command lines. Nil uses a resolver
	// over the default catalog.
	Resolver *command.Resolver

	// Usage, when set, receives one record per model call.
	Usage UsageRecorder
	Role  string

	// MaxIterations defaults to DefaultMaxIterations.
	MaxIterations int

	Logger *slog.Logger
}

// Loop runs agent turns. It keeps no conversation state between turns.
type Loop struct {
	llm           llm.Client
	model         string
	maxTokens     int
	system        string
	executor      Executor
	resolver      *command.Resolver
	usage         UsageRecorder
	role          string
	maxIterations int
	logger        *slog.Logger
}

// NewLoop creates an agent loop.
func NewLoop(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = command.NewResolver(nil)
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	role := cfg.Role
	if role == "" {
		role = usage.RoleInteractive
	}
	return &Loop{
		llm:           cfg.LLM,
		model:         cfg.Model,
		maxTokens:     cfg.MaxTokens,
		system:        cfg.System,
		executor:      cfg.Executor,
		resolver:      resolver,
		usage:         cfg.Usage,
		role:          role,
		maxIterations: maxIter,
		logger:        logger.With("component", "agent"),
	}
}

// Response is the outcome of one turn.
type Response struct {
	Content string `json:"content"`
	TurnID  string `json:"turnId"`

	// Iterations is the number of model calls made.
	Iterations int `json:"iterations"`

	// ToolCalls is the number of tool executions.
	ToolCalls int `json:"toolCalls"`

	// LimitReached is true when the turn ended on the iteration cap.
	LimitReached bool `json:"limitReached,omitempty"`

	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`

	// History is the caller's history plus this turn's user message and
	// final answer, ready to pass to the next Run.
	History []llm.Message `json:"-"`
}

// Run executes one turn for userText on top of history. If callback is
// non-nil the model is streamed and tool progress is reported to it.
// Tool failures are fed back to the model; only a failed model request
// ends the turn with an error.
func (l *Loop) Run(ctx context.Context, history []llm.Message, userText string, callback llm.StreamCallback) (*Response, error) {
	turnID := newTurnID()
	log := l.logger.With("turn_id", turnID)

	user := llm.Message{Role: llm.RoleUser, Content: userText}
	messages := append(slices.Clone(history), user)
	resp := &Response{TurnID: turnID}

	log.Info("agent turn started", "history", len(history), "model", l.model)

	for i := 0; i < l.maxIterations; i++ {
		req := &llm.Request{
			Model:     l.model,
			System:    l.system,
			Messages:  messages,
			Tools:     ToolSpecs(),
			MaxTokens: l.maxTokens,
		}

		start := time.Now()
		var (
			out *llm.ChatResponse
			err error
		)
		if callback != nil {
			out, err = l.llm.ChatStream(ctx, req, callback)
		} else {
			out, err = l.llm.Chat(ctx, req)
		}
		if err != nil {
			log.Error("model request failed", "iteration", i, "error", err)
			return nil, fmt.Errorf("model request: %w", err)
		}

		resp.Iterations++
		resp.InputTokens += out.InputTokens
		resp.OutputTokens += out.OutputTokens
		l.recordUsage(ctx, turnID, i, out)

		log.Debug("model responded",
			"iteration", i,
			"tool_calls", len(out.Message.ToolCalls),
			"stop_reason", out.StopReason,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)

		if len(out.Message.ToolCalls) == 0 {
			resp.Content = out.Message.Content
			if strings.TrimSpace(resp.Content) == "" {
				resp.Content = prompts.EmptyResponseFallback
			}
			resp.History = append(slices.Clone(history), user,
				llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
			if callback != nil {
				callback(llm.StreamEvent{Kind: llm.KindDone, Response: out})
			}
			log.Info("agent turn completed", "iterations", resp.Iterations, "tool_calls", resp.ToolCalls)
			return resp, nil
		}

		assistant := out.Message
		assistant.Role = llm.RoleAssistant
		messages = append(messages, assistant)

		// Tool calls run in the order the model issued them.
		for _, tc := range assistant.ToolCalls {
			messages = append(messages, l.executeTool(ctx, log, tc, callback))
			resp.ToolCalls++
		}
	}

	log.Warn("agent turn hit iteration limit", "iterations", resp.Iterations, "tool_calls", resp.ToolCalls)

	resp.Content = prompts.IterationLimitMessage
	resp.LimitReached = true
	resp.History = append(slices.Clone(history), user,
		llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
	if callback != nil {
		callback(llm.StreamEvent{Kind: llm.KindDone})
	}
	return resp, nil
}

// executeTool runs one tool call and returns its correlated result.
func (l *Loop) executeTool(ctx context.Context, log *slog.Logger, tc llm.ToolCall, callback llm.StreamCallback) llm.Message {
	if callback != nil {
		callback(llm.StreamEvent{Kind: llm.KindToolCallStart, ToolCall: &tc})
	}

	var result dispatch.Result
	inv, err := l.toInvocation(tc)
	if err != nil {
		result = dispatch.Result{Lines: []string{"Error: " + err.Error()}, IsError: true}
	} else {
		result = l.executor.Execute(ctx, inv)
	}

	log.Debug("tool executed",
		"tool", tc.Name,
		"tool_call_id", tc.ID,
		"kind", command.Kind(inv),
		"is_error", result.IsError,
	)

	text := result.Text()
	if callback != nil {
		callback(llm.StreamEvent{
			Kind:       llm.KindToolCallDone,
			ToolName:   tc.Name,
			ToolResult: text,
			ToolError:  result.IsError,
		})
	}

	return llm.Message{
		Role:       llm.RoleTool,
		ToolCallID: tc.ID,
		Content:    text,
		IsError:    result.IsError,
	}
}

func (l *Loop) recordUsage(ctx context.Context, turnID string, iteration int, out *llm.ChatResponse) {
	if l.usage == nil {
		return
	}
	model := out.Model
	if model == "" {
		model = l.model
	}
	err := l.usage.Record(ctx, usage.Record{
		TurnID:       turnID,
		Iteration:    iteration,
		Model:        model,
		Provider:     "anthropic",
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
		Role:         l.role,
	})
	if err != nil {
		l.logger.Warn("failed to record usage", "turn_id", turnID, "error", err)
	}
}

func newTurnID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
