// Package config loads and validates application configuration from
// defaults, config files, environment variables, and CLI flags.
package config

// Config holds all application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Safety    SafetyConfig    `mapstructure:"safety"`
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// StoreConfig configures goal and event persistence.
type StoreConfig struct {
	Path       string `mapstructure:"path"`
	BackupPath string `mapstructure:"backup_path"`
}

// LLMConfig configures the language-model provider.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// AgentConfig configures the control loop.
type AgentConfig struct {
	MaxIterations  int    `mapstructure:"max_iterations"`
	ActionTimeout  string `mapstructure:"action_timeout"`
	MaxRetries     int    `mapstructure:"max_retries"`
	Shell          string `mapstructure:"shell"`
	ScreenshotsDir string `mapstructure:"screenshots_dir"`
}

// SafetyConfig configures the safety gate.
type SafetyConfig struct {
	Level        string `mapstructure:"level"`
	PatternsFile string `mapstructure:"patterns_file"`
}

// SnapshotsConfig configures memory snapshot export.
type SnapshotsConfig struct {
	Dir        string `mapstructure:"dir"`
	Compress   bool   `mapstructure:"compress"`
	EventLimit int    `mapstructure:"event_limit"`
}
