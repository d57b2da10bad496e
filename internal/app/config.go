package app

import (
	"fmt"
	"path/filepath"

	"github.com/vk/gridpipe/internal/config"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// Root is the project directory. Relative paths resolve against it.
	Root string
	// ConfigPath is a pipeline file or directory. Empty means gridpipe.hcl in
	// Root when present, otherwise the built-in pipeline.
	ConfigPath string
	Profile    string
	// Target is a target name, or a task name to run on its own.
	Target string
	// Mode overrides the target's mode. Single tasks default to development.
	Mode string

	LogFormat   string
	LogLevel    string
	Port        int
	WorkerCount int
}

// NewConfig validates cfg and resolves Root to an absolute path.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	cfg.Root = root
	if cfg.Profile == "" {
		cfg.Profile = "dist"
	}
	if cfg.Mode != "" {
		if _, err := config.ParseMode(cfg.Mode); err != nil {
			return nil, err
		}
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port %d out of range", cfg.Port)
	}
	if cfg.WorkerCount < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.WorkerCount)
	}
	return &cfg, nil
}
