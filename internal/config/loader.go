package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "PILOT",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "PILOT",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (PILOT_*)
// 3. Project config (.pilot.yaml in current directory)
// 4. User config (~/.config/pilot/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".pilot")
		l.v.SetConfigType("yaml")

		// Project config takes precedence over user config
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "pilot"))
		}
	}

	// Read config file (ignore not found)
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	// Log defaults
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	// Server defaults
	l.v.SetDefault("server.host", "127.0.0.1")
	l.v.SetDefault("server.port", 8787)
	l.v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})

	// Store defaults
	l.v.SetDefault("store.path", ".pilot/pilot.db")
	l.v.SetDefault("store.backup_path", ".pilot/pilot.db.bak")

	// LLM defaults
	l.v.SetDefault("llm.provider", "openai")
	l.v.SetDefault("llm.model", "gpt-4o-mini")
	l.v.SetDefault("llm.max_tokens", 1024)
	l.v.SetDefault("llm.temperature", 0.7)

	// Agent defaults
	l.v.SetDefault("agent.max_iterations", 5)
	l.v.SetDefault("agent.action_timeout", "30s")
	l.v.SetDefault("agent.max_retries", 3)
	l.v.SetDefault("agent.shell", "/bin/sh")
	l.v.SetDefault("agent.screenshots_dir", ".pilot/screenshots")

	// Safety defaults
	l.v.SetDefault("safety.level", "block")
	l.v.SetDefault("safety.patterns_file", "")

	// Snapshot defaults
	l.v.SetDefault("snapshots.dir", ".pilot/snapshots")
	l.v.SetDefault("snapshots.compress", true)
	l.v.SetDefault("snapshots.event_limit", 0)
}
