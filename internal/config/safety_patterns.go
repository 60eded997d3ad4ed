package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// SafetyPattern is one blocked-pattern entry from the safety patterns file.
type SafetyPattern struct {
	Pattern     string `yaml:"pattern"`
	Description string `yaml:"description,omitempty"`
}

// SafetyPatternsFile is the on-disk format of the safety patterns file.
type SafetyPatternsFile struct {
	Patterns []SafetyPattern `yaml:"patterns"`
}

// LoadSafetyPatterns reads and parses a safety patterns YAML file.
func LoadSafetyPatterns(path string) ([]SafetyPattern, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading safety patterns: %w", err)
	}

	var file SafetyPatternsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing safety patterns: %w", err)
	}

	for i, p := range file.Patterns {
		if p.Pattern == "" {
			return nil, fmt.Errorf("safety pattern %d: pattern must not be empty", i)
		}
	}

	return file.Patterns, nil
}

// WatchSafetyPatterns watches a safety patterns file and invokes onChange
// with the freshly loaded patterns whenever the file is written. Editors
// that replace files atomically (write + rename) are handled by watching
// the parent directory. Load errors are reported through onError and the
// previous pattern set stays in effect.
//
// The watcher runs until ctx is cancelled.
func WatchSafetyPatterns(ctx context.Context, path string, onChange func([]SafetyPattern), onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(path)

	go func() {
		defer func() { _ = watcher.Close() }()

		// Debounce rapid successive writes into a single reload.
		var debounce *time.Timer
		reload := func() {
			patterns, err := LoadSafetyPatterns(target)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				return
			}
			onChange(patterns)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(200*time.Millisecond, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()

	return nil
}
