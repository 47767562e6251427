package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nugget/mcpgw-cli/internal/buildinfo"
	"github.com/nugget/mcpgw-cli/internal/command"
	"github.com/nugget/mcpgw-cli/internal/shell"
)

// options holds the values of the global flags.
type options struct {
	configPath    string
	url           string
	tool          string
	args          string
	tokenFile     string
	logLevel      string
	json          bool
	interactive   bool
	noInteractive bool
}

// app carries the process streams and parsed flags through the command
// tree. It replaces package-level flag variables so run can be called
// repeatedly from tests.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	opts   options
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "mcpgw",
		Short: "Operator console for an MCP gateway and registry",
		Long: "mcpgw drives an MCP gateway over JSON-RPC, runs registry administration\n" +
			"tasks, and answers free-text questions with a tool-using model.\n" +
			"Run without a command on a terminal to open the interactive shell.",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.wantInteractive() {
				return errors.New("no command given and not running interactively; try \"mcpgw --help\"")
			}
			return a.runShell(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.opts.configPath, "config", "", "path to config file (default: auto-discover)")
	f.StringVar(&a.opts.url, "url", "", "gateway MCP endpoint URL")
	f.StringVar(&a.opts.tool, "tool", "", "tool name for call")
	f.StringVar(&a.opts.args, "args", "", "JSON object of tool arguments for call")
	f.StringVar(&a.opts.tokenFile, "token-file", "", "file holding the backend access token")
	f.StringVar(&a.opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	f.BoolVar(&a.opts.json, "json", false, "print results as JSON")
	f.BoolVar(&a.opts.interactive, "interactive", false, "force the interactive shell")
	f.BoolVar(&a.opts.noInteractive, "no-interactive", false, "never start the interactive shell")
	root.MarkFlagsMutuallyExclusive("interactive", "no-interactive")

	root.AddCommand(
		a.gatewayCmd("ping", "Ping the gateway", command.Ping{}),
		a.gatewayCmd("list", "List the tools the gateway exposes", command.List{}),
		a.gatewayCmd("init", "Perform the initialize handshake and print the session", command.Init{}),
		a.callCmd(),
		a.taskCmd(),
		a.askCmd(),
		a.usageCmd(),
		a.configCmd(),
		a.versionCmd(),
	)
	return root
}

// wantInteractive decides whether a bare invocation opens the shell.
func (a *app) wantInteractive() bool {
	switch {
	case a.opts.noInteractive:
		return false
	case a.opts.interactive:
		return true
	}
	return isTerminal(a.stdin) && isTerminal(a.stdout)
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (a *app) gatewayCmd(name, short string, inv command.Invocation) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := a.setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer env.close()
			return a.printResult(env.dispatcher.Execute(cmd.Context(), inv))
		},
	}
}

func (a *app) callCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call [tool] [json-args]",
		Short: "Call a gateway tool",
		Long: "Call a gateway tool. The tool and its arguments come from --tool and\n" +
			"--args, or positionally.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			call := command.Call{Tool: a.opts.tool, ArgsJSON: a.opts.args}
			if len(args) > 0 {
				call.Tool = args[0]
			}
			if len(args) > 1 {
				call.ArgsJSON = args[1]
			}

			env, err := a.setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer env.close()
			return a.printResult(env.dispatcher.Execute(cmd.Context(), call))
		},
	}
}

func (a *app) taskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task <category> <task> [key=value...]",
		Short: "Run a registry administration task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := a.setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer env.close()

			resolver := command.NewResolver(env.dispatcher.Catalog())
			inv, _ := resolver.Resolve(command.Prefix + strings.Join(args, " "))
			return a.printResult(env.dispatcher.Execute(cmd.Context(), inv))
		},
	}
}

func (a *app) askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer one question with the tool-using agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := a.setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer env.close()

			if env.agent == nil {
				return errors.New("ask requires an Anthropic API key (set ANTHROPIC_API_KEY or anthropic.api_key)")
			}

			resp, err := env.agent.Run(cmd.Context(), nil, strings.Join(args, " "), nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			if a.opts.json {
				return writeJSON(a.stdout, resp)
			}
			fmt.Fprintln(a.stdout, resp.Content)
			return nil
		},
	}
}

func (a *app) usageCmd() *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Summarize recorded model token usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := a.setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer env.close()

			if env.usage == nil {
				return errors.New("usage ledger is disabled; set usage.db_path in the config")
			}

			// Ledger timestamps have second resolution; include the current second.
			end := time.Now().Truncate(time.Second).Add(time.Second)
			start := end.Add(-since)
			total, err := env.usage.Summary(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			byModel, err := env.usage.SummaryByModel(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			return a.printUsage(since, total, byModel)
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "summarize usage over this window")
	return cmd
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			info := buildinfo.Info()
			if a.opts.json {
				return writeJSON(a.stdout, info)
			}
			fmt.Fprintln(a.stdout, buildinfo.String())
			for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
				fmt.Fprintf(a.stdout, "  %-12s %s\n", k+":", info[k])
			}
			return nil
		},
	}
}

func (a *app) runShell(cmd *cobra.Command) error {
	env, err := a.setup(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer env.close()

	var agent shell.Agent
	if env.agent != nil {
		agent = env.agent
	}

	banner := append([]string{buildinfo.String(), "gateway: " + env.cfg.Gateway.URL}, env.creds.Status()...)
	if agent == nil {
		banner = append(banner, "agent: disabled (no Anthropic API key)")
	} else {
		banner = append(banner, "agent: "+env.cfg.Anthropic.Model)
	}

	return shell.Run(cmd.Context(), a.stdin, a.stdout, shell.Config{
		Resolver:   command.NewResolver(env.dispatcher.Catalog()),
		Dispatcher: env.dispatcher,
		Agent:      agent,
		Banner:     banner,
		Logger:     env.logger,
	})
}
