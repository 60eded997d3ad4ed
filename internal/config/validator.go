package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateServer(&cfg.Server)
	v.validateStore(&cfg.Store)
	v.validateLLM(&cfg.LLM)
	v.validateAgent(&cfg.Agent)
	v.validateSafety(&cfg.Safety)
	v.validateSnapshots(&cfg.Snapshots)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}

	if cfg.File != "" && !isValidPath(cfg.File) {
		v.addError("log.file", cfg.File, "invalid file path")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Host == "" {
		v.addError("server.host", cfg.Host, "host required")
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
}

func (v *Validator) validateStore(cfg *StoreConfig) {
	if cfg.Path == "" {
		v.addError("store.path", cfg.Path, "database path required")
	}
}

func (v *Validator) validateLLM(cfg *LLMConfig) {
	validProviders := map[string]bool{
		"openai": true, "anthropic": true, "ollama": true,
		"groq": true, "mistral": true,
	}
	if !validProviders[cfg.Provider] {
		v.addError("llm.provider", cfg.Provider, "unknown provider")
	}

	if cfg.Model == "" {
		v.addError("llm.model", cfg.Model, "model required")
	}

	if cfg.MaxTokens <= 0 || cfg.MaxTokens > 200000 {
		v.addError("llm.max_tokens", cfg.MaxTokens, "must be between 1 and 200000")
	}

	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		v.addError("llm.temperature", cfg.Temperature, "must be between 0.0 and 2.0")
	}
}

func (v *Validator) validateAgent(cfg *AgentConfig) {
	if cfg.MaxIterations <= 0 {
		v.addError("agent.max_iterations", cfg.MaxIterations, "must be positive")
	}

	if _, err := time.ParseDuration(cfg.ActionTimeout); err != nil {
		v.addError("agent.action_timeout", cfg.ActionTimeout, "invalid duration format")
	}

	if cfg.MaxRetries < 0 || cfg.MaxRetries > 10 {
		v.addError("agent.max_retries", cfg.MaxRetries, "must be between 0 and 10")
	}

	if cfg.Shell == "" {
		v.addError("agent.shell", cfg.Shell, "shell required")
	}
}

func (v *Validator) validateSafety(cfg *SafetyConfig) {
	validLevels := map[string]bool{
		"off": true, "warn": true, "block": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("safety.level", cfg.Level, "must be one of: off, warn, block")
	}

	if cfg.PatternsFile != "" && !isValidPath(cfg.PatternsFile) {
		v.addError("safety.patterns_file", cfg.PatternsFile, "invalid file path")
	}
}

func (v *Validator) validateSnapshots(cfg *SnapshotsConfig) {
	if cfg.Dir == "" {
		v.addError("snapshots.dir", cfg.Dir, "directory required")
	} else if !isValidPath(cfg.Dir) {
		v.addError("snapshots.dir", cfg.Dir, "invalid directory path")
	}

	if cfg.EventLimit < 0 {
		v.addError("snapshots.event_limit", cfg.EventLimit, "must not be negative")
	}
}

// isValidPath checks if a path's parent directory exists or could exist.
func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
