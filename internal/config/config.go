package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"openclaw/internal/logger"
)

// Config is the persisted config file schema (~/.openclaw/config.toml).
type Config struct {
	// Provider name: "anthropic", "openai", or "ollama".
	Provider string `toml:"provider"`
	Model    string `toml:"model"`

	// APIKey supports ${ENV_VAR} references.
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`

	SessionsDir  string `toml:"sessions_dir"`
	SystemPrompt string `toml:"system_prompt"`

	MaxTokens   int      `toml:"max_tokens"`
	Temperature *float64 `toml:"temperature"`

	// ThinkingBudget enables extended thinking when > 0 (Anthropic only).
	ThinkingBudget int `toml:"thinking_budget"`

	Verbose bool `toml:"verbose"`

	Tools ToolsConfig `toml:"tools"`

	Source string `toml:"-"`
}

// ToolsConfig selects the tool profile and exec security.
type ToolsConfig struct {
	// Profile: "full", "coding", "minimal", or "none".
	Profile string     `toml:"profile"`
	Exec    ExecConfig `toml:"exec"`
}

// ExecConfig screens bash commands.
type ExecConfig struct {
	// Security: "full", "allowlist", or "deny".
	Security  string   `toml:"security"`
	Allowlist []string `toml:"allowlist"`
}

func Default() Config {
	return Config{
		Provider: "anthropic",
		Model:    "claude-sonnet-4-20250514",
		Tools: ToolsConfig{
			Profile: "full",
			Exec:    ExecConfig{Security: "full"},
		},
	}
}

// DefaultPath returns ~/.openclaw/config.toml, or "" when the home
// directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".openclaw", "config.toml")
}

// ResolvePath honors the OPENCLAW_CONFIG override before the default path.
func ResolvePath() string {
	if env := strings.TrimSpace(os.Getenv("OPENCLAW_CONFIG")); env != "" {
		return env
	}
	return DefaultPath()
}

// Load reads the config at path (ResolvePath() when empty). A missing file
// yields the defaults with the API key picked up from ANTHROPIC_API_KEY.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = ResolvePath()
	}
	if path == "" {
		return cfg, errors.New("config path is empty and $HOME is not set")
	}
	cfg.Source = path

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.APIKey = substituteEnvVars("${ANTHROPIC_API_KEY}")
			return cfg, nil
		}
		return cfg, err
	}
	logger.Named("config").Infof("loading config from %s", path)

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config from %s: %w", path, err)
	}
	cfg.APIKey = substituteEnvVars(cfg.APIKey)
	return cfg, nil
}

// Validate checks value ranges and enumerations, returning the first
// problem found.
func (c Config) Validate() error {
	if c.Provider == "" {
		return errors.New("provider cannot be empty")
	}
	if c.Model == "" {
		return errors.New("model cannot be empty")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0.0 and 2.0, got %v", *c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative, got %d", c.MaxTokens)
	}
	switch c.Tools.Profile {
	case "full", "coding", "minimal", "none":
	default:
		return fmt.Errorf("unknown tools profile %q, expected one of: full, coding, minimal, none", c.Tools.Profile)
	}
	switch c.Tools.Exec.Security {
	case "full", "deny", "allowlist":
	default:
		return fmt.Errorf("unknown exec security %q, expected one of: full, deny, allowlist", c.Tools.Exec.Security)
	}
	return nil
}

// substituteEnvVars expands ${VAR} references. A value that is exactly one
// reference stays unchanged when the variable is unset; inline references
// expand to the empty string.
func substituteEnvVars(input string) string {
	if inner, ok := extractEnvRef(input); ok {
		if val, found := os.LookupEnv(inner); found {
			return val
		}
		return input
	}
	result := input
	for {
		start := strings.Index(result, "${")
		if start < 0 {
			break
		}
		end := strings.Index(result[start+2:], "}")
		if end < 0 {
			break
		}
		name := result[start+2 : start+2+end]
		result = result[:start] + os.Getenv(name) + result[start+2+end+1:]
	}
	return result
}

// extractEnvRef returns the variable name when the whole string is a
// single ${VAR} reference.
func extractEnvRef(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "${") || !strings.HasSuffix(trimmed, "}") || len(trimmed) <= 3 {
		return "", false
	}
	inner := trimmed[2 : len(trimmed)-1]
	if strings.ContainsAny(inner, "{}") {
		return "", false
	}
	return inner, true
}
