// Mcpgw is an operator console for an MCP gateway and its registry.
//
// It speaks the gateway's JSON-RPC dialect directly for ping, list, call,
// and init, runs registry administration tasks, and answers free-text
// questions by letting a model drive those same commands. With no
// command on a terminal it opens an interactive shell.
//
// Usage:
//
//	mcpgw                        Start the interactive shell
//	mcpgw ping                   Ping the gateway
//	mcpgw list                   List gateway tools
//	mcpgw call --tool x --args '{"k":"v"}'
//	mcpgw init                   Perform the handshake and print the session
//	mcpgw task service list      Run a registry task
//	mcpgw ask <question>         Answer one question with the agent
//	mcpgw usage                  Summarize recorded model usage
//	mcpgw version                Print version and build information
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// errFailed reports a command whose result was already printed as an
// error. main exits non-zero without printing it again.
var errFailed = errors.New("command failed")

// main only builds the OS-level environment and hands off to [run], so
// the whole command surface can be driven from tests.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:])
	stop()

	if err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		os.Exit(1)
	}
}

// run is the real entry point. It returns nil on success and a non-nil
// error for any failure, including a command whose result is an error.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	root := newRootCmd(&app{stdin: stdin, stdout: stdout, stderr: stderr})
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}
