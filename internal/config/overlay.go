package config

import (
	"strconv"
	"strings"
)

// OverlayEnv applies the few settings that can come from the environment
// (or a .env file). getenv is os.Getenv outside tests.
func OverlayEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv("JOBBOARD_DATA_DIR")); v != "" {
		cfg.App.DataDir = v
	}
	if v := strings.TrimSpace(getenv("JOBBOARD_PORT")); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.App.Port = p
		}
	}
	if v := strings.TrimSpace(getenv("OPENAI_MODEL")); v != "" {
		cfg.LLM.Model = v
	}
	if v := strings.TrimSpace(getenv("OPENAI_BASE_URL")); v != "" {
		cfg.LLM.BaseURL = v
	}
}
