package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nugget/mcpgw-cli/internal/config"
	"github.com/nugget/mcpgw-cli/internal/defaults"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or bootstrap configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "example [path]",
		Short: "Print the example config, or write it to path if absent",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				_, err := a.stdout.Write(defaults.ConfigYAML)
				return err
			}
			path := args[0]
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err := os.WriteFile(path, defaults.ConfigYAML, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "wrote %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			path, err := config.FindConfig(a.opts.configPath)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if a.opts.url != "" {
				cfg.Gateway.URL = a.opts.url
			}
			if cfg.Anthropic.APIKey != "" {
				cfg.Anthropic.APIKey = "[redacted]"
			}

			if path == "" {
				path = "(none, defaults only)"
			}
			if a.opts.json {
				return writeJSON(a.stdout, map[string]any{"source": path, "config": cfg})
			}
			fmt.Fprintf(a.stdout, "# source: %s\n", path)
			enc := yaml.NewEncoder(a.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	})

	return cmd
}
