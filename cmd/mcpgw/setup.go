package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/nugget/mcpgw-cli/internal/agent"
	"github.com/nugget/mcpgw-cli/internal/command"
	"github.com/nugget/mcpgw-cli/internal/config"
	"github.com/nugget/mcpgw-cli/internal/credentials"
	"github.com/nugget/mcpgw-cli/internal/dispatch"
	"github.com/nugget/mcpgw-cli/internal/httpkit"
	"github.com/nugget/mcpgw-cli/internal/llm"
	"github.com/nugget/mcpgw-cli/internal/mcp"
	"github.com/nugget/mcpgw-cli/internal/paths"
	"github.com/nugget/mcpgw-cli/internal/prompts"
	"github.com/nugget/mcpgw-cli/internal/taskrun"
	"github.com/nugget/mcpgw-cli/internal/usage"
)

// env is everything a command needs, built once per invocation.
type env struct {
	cfg        *config.Config
	logger     *slog.Logger
	creds      *credentials.Set
	dispatcher *dispatch.Dispatcher

	// agent is nil when no model API key is configured.
	agent *agent.Loop

	// usage is nil when the ledger is disabled.
	usage *usage.Store

	closers []func() error
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("close failed", "error", err)
		}
	}
}

// setup loads configuration, applies flag overrides, resolves
// credentials, and wires the dispatcher and agent. interactive routes
// logs away from the terminal the shell is drawing on.
func (a *app) setup(ctx context.Context, interactive bool) (*env, error) {
	cfgPath, err := config.FindConfig(a.opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if a.opts.url != "" {
		cfg.Gateway.URL = a.opts.url
	}
	if a.opts.tokenFile != "" {
		cfg.Auth.TokenFile = paths.ExpandHome(a.opts.tokenFile)
	}
	if a.opts.logLevel != "" {
		cfg.LogLevel = a.opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &env{cfg: cfg}
	logger, closeLog, err := a.newLogger(cfg, interactive)
	if err != nil {
		return nil, err
	}
	e.logger = logger
	if closeLog != nil {
		e.closers = append(e.closers, closeLog)
	}
	logger.Debug("config loaded", "path", cfgPath, "gateway", cfg.Gateway.URL)

	creds, err := credentials.Resolve(ctx, credentials.Options{
		TokenFile:        cfg.Auth.TokenFile,
		IngressTokenFile: paths.Resolve(cfg.Tasks.WorkingDir, cfg.Auth.IngressTokenFile),
		TokenEnv:         cfg.Auth.TokenEnv,
		HTTPClient:       httpkit.NewClient(httpkit.WithTimeout(cfg.Gateway.Timeout())),
		Logger:           logger,
	})
	if err != nil {
		e.close()
		return nil, fmt.Errorf("resolve credentials: %w", err)
	}
	e.creds = creds
	if !interactive {
		for _, w := range creds.Warnings() {
			logger.Warn("credential warning", "detail", w)
		}
	}

	runner := taskrun.NewRunner(taskrun.Config{
		WorkingDir:     cfg.Tasks.WorkingDir,
		Timeout:        time.Duration(cfg.Tasks.TimeoutSec) * time.Second,
		MaxOutputBytes: cfg.Tasks.MaxOutputBytes,
		Logger:         logger,
	})

	e.dispatcher = dispatch.New(dispatch.Config{
		Gateway: mcp.HTTPConfig{
			URL:                cfg.Gateway.URL,
			GatewayToken:       creds.GatewayToken,
			BackendToken:       creds.BackendToken,
			Timeout:            cfg.Gateway.Timeout(),
			InsecureSkipVerify: cfg.Gateway.InsecureSkipVerify,
			Logger:             logger,
		},
		Runner: runner,
		Logger: logger,
	})

	if cfg.Usage.DBPath != "" {
		store, err := usage.NewStore(cfg.Usage.DBPath)
		if err != nil {
			e.close()
			return nil, fmt.Errorf("open usage ledger: %w", err)
		}
		e.usage = store
		e.closers = append(e.closers, store.Close)
	}

	if cfg.Anthropic.APIKey != "" {
		e.agent = a.newAgent(e, interactive)
	}

	return e, nil
}

func (a *app) newAgent(e *env, interactive bool) *agent.Loop {
	catalog := e.dispatcher.Catalog()
	role := usage.RoleOneShot
	if interactive {
		role = usage.RoleInteractive
	}

	cfg := agent.Config{
		LLM: llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:    e.cfg.Anthropic.APIKey,
			BaseURL:   e.cfg.Anthropic.BaseURL,
			MaxTokens: e.cfg.Anthropic.MaxTokens,
			Logger:    e.logger,
		}),
		Model:     e.cfg.Anthropic.Model,
		MaxTokens: e.cfg.Anthropic.MaxTokens,
		System:    prompts.SystemPrompt(e.cfg.Gateway.URL, dispatch.CatalogSummary(catalog)),
		Executor:  e.dispatcher,
		Resolver:  command.NewResolver(catalog),
		Role:      role,
		Logger:    e.logger,
	}
	if e.usage != nil {
		cfg.Usage = e.usage
	}
	return agent.NewLoop(cfg)
}

// newLogger builds the process logger. Command mode logs to stderr at
// the configured level. The shell logs to log_file when one is set and
// otherwise keeps only errors.
func (a *app) newLogger(cfg *config.Config, interactive bool) (*slog.Logger, func() error, error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	var (
		w       io.Writer = a.stderr
		closeFn func() error
	)
	if interactive {
		if cfg.LogFile != "" {
			f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, nil, fmt.Errorf("open log file: %w", err)
			}
			w, closeFn = f, f.Close
		} else {
			level = max(level, slog.LevelError)
		}
	}

	logger := config.NewLogger(w, level)
	slog.SetDefault(logger)
	return logger, closeFn, nil
}
