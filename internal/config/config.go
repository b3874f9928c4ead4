package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm"       validate:"required"`
	Worker    WorkerConfig    `mapstructure:"worker"    validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// LLMConfig contains all LLM integration related settings.
// Provider selects the Completer implementation; only the selected
// provider's API key is required, which Validate in load.go enforces.
type LLMConfig struct {
	Provider     string        `mapstructure:"provider"       validate:"required,oneof=gemini openai"`
	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
	OpenAIAPIKey string        `mapstructure:"openai_api_key"`
	ModelName    string        `mapstructure:"model_name"     validate:"required"`
	MaxRetries   int           `mapstructure:"max_retries"    validate:"gte=0,lte=10"`
	Timeout      time.Duration `mapstructure:"timeout"        validate:"required"`
}

// WorkerConfig sizes the generation worker pools and their queue
// behavior. Worker counts are per task kind; the lease duration bounds
// how long a crashed worker can strand a task.
type WorkerConfig struct {
	OutlineWorkers    int           `mapstructure:"outline_workers"    validate:"required,gte=1,lte=32"`
	BlocksWorkers     int           `mapstructure:"blocks_workers"     validate:"required,gte=1,lte=32"`
	ContentWorkers    int           `mapstructure:"content_workers"    validate:"required,gte=1,lte=32"`
	PollInterval      time.Duration `mapstructure:"poll_interval"      validate:"required"`
	LeaseDuration     time.Duration `mapstructure:"lease_duration"     validate:"required"`
	MaxAttempts       int           `mapstructure:"max_attempts"       validate:"required,gte=1,lte=10"`
	JanitorInterval   time.Duration `mapstructure:"janitor_interval"   validate:"required"`
	TerminalRetention time.Duration `mapstructure:"terminal_retention" validate:"required"`
}

// SchedulerConfig holds the cascade tuning knobs. They are configuration,
// not constants buried in workers, so they can be tuned and tested
// independently.
type SchedulerConfig struct {
	LookaheadLessons   int `mapstructure:"lookahead_lessons"    validate:"gte=0,lte=10"`
	EagerContentBlocks int `mapstructure:"eager_content_blocks" validate:"gte=0,lte=20"`
}
