// Package config provides configuration for the proxy server. All options
// are environment variables (optionally seeded from a .env file by the
// entrypoint); there is no configuration file schema.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every recognized option. Each option affects exactly one
// documented behavior.
type Config struct {
	// Port is the local listen port.
	Port int `env:"CODEX_PROXY_PORT" envDefault:"8111"`

	// Host is the local listen address.
	Host string `env:"CODEX_PROXY_HOST" envDefault:"127.0.0.1"`

	// AuthFile is the path of the persisted credential record.
	AuthFile string `env:"CODEX_AUTH_FILE"`

	// ErrorLogFile receives one JSON line per upstream error response.
	ErrorLogFile string `env:"CODEX_ERROR_LOG_FILE"`

	// ForceJSON consolidates every upstream stream into a single JSON
	// document even when the caller asked for a stream.
	ForceJSON bool `env:"CODEX_FORCE_JSON" envDefault:"false"`

	// ToolProfile selects the tool-environment guidance prepended to the
	// input ("opencode", "cline", "generic").
	ToolProfile string `env:"CODEX_TOOL_PROFILE" envDefault:"opencode"`

	// Verbose enables debug logging and request/response previews.
	Verbose bool `env:"CODEX_VERBOSE" envDefault:"false"`

	// PreviewHead and PreviewTail bound how much of a prompt body is shown
	// in verbose previews.
	PreviewHead int `env:"CODEX_PREVIEW_HEAD" envDefault:"400"`
	PreviewTail int `env:"CODEX_PREVIEW_TAIL" envDefault:"200"`

	// LogSeparator joins the head and tail of a truncated preview.
	LogSeparator string `env:"CODEX_LOG_SEPARATOR" envDefault:"----"`

	// DisableInstructions skips base-instruction injection when the caller
	// supplied none.
	DisableInstructions bool `env:"CODEX_DISABLE_INSTRUCTIONS" envDefault:"false"`

	// DisableToolGuidance skips the prepended tool-environment item.
	DisableToolGuidance bool `env:"CODEX_DISABLE_TOOL_GUIDANCE" envDefault:"false"`

	// InstructionsFile optionally overrides the embedded base instructions.
	InstructionsFile string `env:"CODEX_INSTRUCTIONS_FILE"`

	// ReasoningEffort / ReasoningSummary / TextVerbosity are global
	// overrides applied to every request.
	ReasoningEffort  string `env:"CODEX_REASONING_EFFORT"`
	ReasoningSummary string `env:"CODEX_REASONING_SUMMARY"`
	TextVerbosity    string `env:"CODEX_TEXT_VERBOSITY"`

	// ModelReasoningEffort and friends are per-model overrides, parsed from
	// "model=value" pairs, e.g. "gpt-5-codex=high,gpt-5=low".
	ModelReasoningEffort  map[string]string `env:"CODEX_MODEL_REASONING_EFFORT" envKeyValSeparator:"="`
	ModelReasoningSummary map[string]string `env:"CODEX_MODEL_REASONING_SUMMARY" envKeyValSeparator:"="`
	ModelTextVerbosity    map[string]string `env:"CODEX_MODEL_TEXT_VERBOSITY" envKeyValSeparator:"="`

	// UpstreamTimeout bounds a single upstream call. Zero means no timeout;
	// the client disconnect still cancels the upstream request through the
	// request context.
	UpstreamTimeout time.Duration `env:"CODEX_UPSTREAM_TIMEOUT" envDefault:"0"`

	// UpstreamBaseURL exists for tests and self-hosted gateways.
	UpstreamBaseURL string `env:"CODEX_UPSTREAM_BASE_URL" envDefault:"https://chatgpt.com"`
}

// Load parses the environment into a Config and fills path defaults that
// depend on the home directory.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.AuthFile == "" {
		cfg.AuthFile = filepath.Join(configDir(), "auth.json")
	}
	if cfg.ErrorLogFile == "" {
		cfg.ErrorLogFile = filepath.Join(configDir(), "error.log")
	}
	if cfg.PreviewHead < 0 {
		cfg.PreviewHead = 0
	}
	if cfg.PreviewTail < 0 {
		cfg.PreviewTail = 0
	}
	cfg.ToolProfile = strings.ToLower(strings.TrimSpace(cfg.ToolProfile))

	return cfg, nil
}

// Addr returns the host:port pair the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func configDir() string {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, "codex-proxy")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codex-proxy"
	}
	return filepath.Join(home, ".codex-proxy")
}
