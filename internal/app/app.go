package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/vk/gridpipe/internal/config"
	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/vk/gridpipe/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	registry  *registry.Registry
	model     *config.Model
	converter config.Converter
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Configuration and validation failures are fatal startup errors and panic;
// the entrypoint recovers them.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	var configPaths []string
	if cfg.ConfigPath != "" {
		p := cfg.ConfigPath
		if !filepath.IsAbs(p) {
			p = filepath.Join(cfg.Root, p)
		}
		configPaths = append(configPaths, p)
	}

	model, converter, err := loader.Load(ctx, configPaths...)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	if cfg.Port > 0 && model.Server != nil {
		model.Server.Port = cfg.Port
	}
	logger.Debug("Pipeline loaded.", "tasks", len(model.Tasks), "targets", len(model.Targets), "profiles", len(model.Profiles))

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	if err := reg.Validate(ctx, model); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:      outW,
		logger:    logger,
		registry:  reg,
		model:     model,
		converter: converter,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Model returns the loaded pipeline.
func (a *App) Model() *config.Model {
	return a.model
}
