package config

import (
	"strings"
)

// ApplyKVOverrides applies free-form -c key=value overrides.
func ApplyKVOverrides(cfg Config, overrides []string) Config {
	for _, raw := range overrides {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "provider":
			cfg.Provider = val
		case "model":
			cfg.Model = val
		case "api_key":
			cfg.APIKey = val
		case "base_url":
			cfg.BaseURL = val
		case "system_prompt":
			cfg.SystemPrompt = val
		case "tools.profile":
			cfg.Tools.Profile = val
		case "tools.exec.security":
			cfg.Tools.Exec.Security = val
		}
	}
	return cfg
}
