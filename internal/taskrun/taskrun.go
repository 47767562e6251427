// Package taskrun executes external task commands and captures their
// output.
package taskrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Config configures a Runner.
type Config struct {
	// WorkingDir is the directory tasks run in. Relative program paths
	// are resolved against it. Empty means the current directory.
	WorkingDir string

	// Timeout bounds each run.
	Timeout time.Duration

	// MaxOutputBytes caps each of stdout and stderr.
	MaxOutputBytes int

	Logger *slog.Logger
}

// DefaultConfig returns the runner defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:        5 * time.Minute,
		MaxOutputBytes: 100 * 1024, // 100KB
	}
}

// Runner executes programs directly, without a shell.
type Runner struct {
	workingDir     string
	timeout        time.Duration
	maxOutputBytes int
	logger         *slog.Logger
}

// NewRunner creates a task runner.
func NewRunner(cfg Config) *Runner {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = def.MaxOutputBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		workingDir:     cfg.WorkingDir,
		timeout:        cfg.Timeout,
		maxOutputBytes: cfg.MaxOutputBytes,
		logger:         cfg.Logger,
	}
}

// Request describes one task execution. FieldValues are exported to the
// child as MCPGW_FIELD_<NAME> environment variables.
type Request struct {
	Program     string
	Args        []string
	Category    string
	FieldValues map[string]string
}

// Result contains the outcome of a run.
type Result struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	Command  string `json:"command"`
	TimedOut bool   `json:"timedOut,omitempty"`
}

// Run executes req and waits for it to finish. A non-zero exit is not an
// error; it is reported in Result.ExitCode. An error is returned only
// when the program could not be started.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Program == "" {
		return nil, errors.New("no program to run")
	}

	display := Quote(append([]string{req.Program}, req.Args...))

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, req.Program, req.Args...)
	if r.workingDir != "" {
		cmd.Dir = r.workingDir
	}
	cmd.Env = append(os.Environ(), taskEnv(req)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stdout:  truncateOutput(stdout.String(), r.maxOutputBytes),
		Stderr:  truncateOutput(stderr.String(), r.maxOutputBytes),
		Command: display,
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.ExitCode = -1
		note := fmt.Sprintf("task timed out after %s", r.timeout)
		if prev := strings.TrimRight(result.Stderr, "\n"); prev != "" {
			note = prev + "\n" + note
		}
		result.Stderr = note
	case err != nil:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run %s: %w", req.Program, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	r.logger.Debug("task finished",
		"category", req.Category,
		"command", display,
		"exit_code", result.ExitCode,
		"timed_out", result.TimedOut,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return result, nil
}

// taskEnv renders field values as sorted environment entries.
func taskEnv(req Request) []string {
	env := make([]string, 0, len(req.FieldValues)+1)
	if req.Category != "" {
		env = append(env, "MCPGW_TASK_CATEGORY="+req.Category)
	}
	names := make([]string, 0, len(req.FieldValues))
	for name := range req.FieldValues {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		env = append(env, "MCPGW_FIELD_"+key+"="+req.FieldValues[name])
	}
	return env
}

// truncateOutput truncates output to at most maxBytes on a rune
// boundary, adding a note if truncated.
func truncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n\n[... output truncated ...]"
}
