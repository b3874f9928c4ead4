// Package config loads and validates application configuration.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables use the
// COURSEGEN prefix with underscores, e.g. COURSEGEN_DATABASE_URL, and
// take precedence over file values. Returns a validated Config or an
// error describing what failed.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COURSEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars may carry everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags plus the cross-field rules the tags cannot
// express: the selected LLM provider must have its API key set.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch cfg.LLM.Provider {
	case "gemini":
		if cfg.LLM.GeminiAPIKey == "" {
			return errors.New("invalid configuration: llm.gemini_api_key is required when provider is gemini")
		}
	case "openai":
		if cfg.LLM.OpenAIAPIKey == "" {
			return errors.New("invalid configuration: llm.openai_api_key is required when provider is openai")
		}
	}

	return nil
}

// setDefaults registers defaults for everything that has a sensible one.
// Secrets and the database URL default to empty — viper's AutomaticEnv
// only resolves keys it knows about, so even env-only settings need a
// registered default. Validation rejects the empty values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.url", "")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.timeout", "90s")

	v.SetDefault("worker.outline_workers", 1)
	v.SetDefault("worker.blocks_workers", 2)
	v.SetDefault("worker.content_workers", 4)
	v.SetDefault("worker.poll_interval", "2s")
	v.SetDefault("worker.lease_duration", "10m")
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.janitor_interval", "5m")
	v.SetDefault("worker.terminal_retention", "24h")

	v.SetDefault("scheduler.lookahead_lessons", 2)
	v.SetDefault("scheduler.eager_content_blocks", 3)
}
