// Package config handles mcpgw configuration loading.
//
// Configuration is optional: every field has a working default, so the
// CLI runs against a local gateway with no file at all. A file, when
// present, is YAML with ${ENV} expansion.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nugget/mcpgw-cli/internal/paths"
)

// Defaults applied by [Config.applyDefaults].
const (
	DefaultGatewayURL       = "http://localhost/mcpgw/mcp"
	DefaultTimeoutMS        = 30000
	DefaultIngressTokenFile = ".oauth-tokens/ingress.json"
	DefaultTokenEnv         = "MCP_AUTH_TOKEN"
	DefaultModel            = "claude-sonnet-4-20250514"
	DefaultMaxTokens        = 4096
	DefaultTaskTimeoutSec   = 300
	DefaultMaxOutputBytes   = 100 * 1024
)

// DefaultSearchPaths returns the config file search order used when no
// explicit path is given: ./mcpgw.yaml, ~/.config/mcpgw/config.yaml,
// /etc/mcpgw/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"mcpgw.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mcpgw", "config.yaml"))
	}

	paths = append(paths, "/etc/mcpgw/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise DefaultSearchPaths is searched and the first hit is
// returned. An empty path with a nil error means no file was found and
// defaults should be used.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", nil
}

// Config holds all mcpgw configuration.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Auth      AuthConfig      `yaml:"auth"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Usage     UsageConfig     `yaml:"usage"`
	LogLevel  string          `yaml:"log_level"`
	// LogFile receives logs while the interactive shell owns the terminal.
	LogFile string `yaml:"log_file"`
}

// GatewayConfig defines the JSON-RPC gateway endpoint.
type GatewayConfig struct {
	URL       string `yaml:"url"`
	TimeoutMS int    `yaml:"timeout_ms"`
	// InsecureSkipVerify disables TLS verification for self-signed
	// development gateways.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Timeout returns the per-request timeout as a duration.
func (g GatewayConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutMS) * time.Millisecond
}

// AuthConfig defines where credentials are discovered.
type AuthConfig struct {
	// TokenFile holds the backend token forwarded as Authorization.
	TokenFile string `yaml:"token_file"`
	// IngressTokenFile holds the gateway token forwarded as X-Authorization.
	IngressTokenFile string `yaml:"ingress_token_file"`
	// TokenEnv names the environment variable checked for the gateway token.
	TokenEnv string `yaml:"token_env"`
}

// AnthropicConfig defines Anthropic API settings for the agent loop.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	// BaseURL overrides the Messages API endpoint (proxies, tests).
	BaseURL string `yaml:"base_url"`
}

// TasksConfig defines how registry tasks are executed.
type TasksConfig struct {
	// WorkingDir is the registry checkout the task scripts live in.
	WorkingDir     string `yaml:"working_dir"`
	TimeoutSec     int    `yaml:"timeout_sec"`
	MaxOutputBytes int    `yaml:"max_output_bytes"`
}

// UsageConfig defines the token usage ledger. An empty DBPath disables it.
type UsageConfig struct {
	DBPath string `yaml:"db_path"`
}

// Load reads the YAML file at path, expands environment variables, and
// applies defaults. An empty path yields [Default].
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values and environment overrides.
func (c *Config) applyDefaults() {
	if v := os.Getenv("MCPGW_URL"); v != "" {
		c.Gateway.URL = v
	}
	if c.Gateway.URL == "" {
		c.Gateway.URL = DefaultGatewayURL
	}
	if c.Gateway.TimeoutMS == 0 {
		c.Gateway.TimeoutMS = DefaultTimeoutMS
	}
	if c.Auth.IngressTokenFile == "" {
		c.Auth.IngressTokenFile = DefaultIngressTokenFile
	}
	if c.Auth.TokenEnv == "" {
		c.Auth.TokenEnv = DefaultTokenEnv
	}
	if c.Anthropic.APIKey == "" {
		c.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = DefaultModel
	}
	if c.Anthropic.MaxTokens == 0 {
		c.Anthropic.MaxTokens = DefaultMaxTokens
	}
	if c.Tasks.WorkingDir == "" {
		c.Tasks.WorkingDir = "."
	}
	if c.Tasks.TimeoutSec == 0 {
		c.Tasks.TimeoutSec = DefaultTaskTimeoutSec
	}
	if c.Tasks.MaxOutputBytes == 0 {
		c.Tasks.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}

	c.Auth.TokenFile = paths.ExpandHome(c.Auth.TokenFile)
	c.Tasks.WorkingDir = paths.ExpandHome(c.Tasks.WorkingDir)
	c.Usage.DBPath = paths.ExpandHome(c.Usage.DBPath)
	c.LogFile = paths.ExpandHome(c.LogFile)
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	if c.Gateway.TimeoutMS < 0 {
		return fmt.Errorf("gateway.timeout_ms must not be negative (got %d)", c.Gateway.TimeoutMS)
	}
	if c.Tasks.TimeoutSec < 0 {
		return fmt.Errorf("tasks.timeout_sec must not be negative (got %d)", c.Tasks.TimeoutSec)
	}
	if c.Anthropic.MaxTokens < 0 {
		return fmt.Errorf("anthropic.max_tokens must not be negative (got %d)", c.Anthropic.MaxTokens)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
