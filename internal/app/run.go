package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/gridpipe/internal/config"
	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/vk/gridpipe/internal/dag"
	"github.com/vk/gridpipe/internal/devserver"
	"github.com/vk/gridpipe/internal/task"
)

// Run executes the configured target, or a single task when no target has
// that name. It blocks until the graph finishes or ctx is cancelled.
func (a *App) Run(ctx context.Context, cfg *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")
	if strings.TrimSpace(cfg.Target) == "" {
		return errors.New("a target or task name is required")
	}

	profile, err := a.model.Profile(cfg.Profile)
	if err != nil {
		return err
	}
	graph, mode, err := a.plan(ctx, profile, cfg.Target)
	if err != nil {
		return err
	}
	if cfg.Mode != "" {
		if mode, err = config.ParseMode(cfg.Mode); err != nil {
			return err
		}
	}
	a.logger.Debug("Execution graph ready.", "graph", graph.String())

	s := a.newSession(ctx, profile, mode, graph)
	defer s.close()

	a.logger.Info("Using profile.", "profile", profile.Name, "dest", profile.Dest, "mode", mode)
	start := time.Now()
	exec := dag.NewExecutor(graph, cfg.WorkerCount, s.runNode)
	if err := exec.Run(ctx); err != nil {
		return fmt.Errorf("%s failed: %w", cfg.Target, err)
	}
	a.logger.Info("Finished.", "target", cfg.Target, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// plan resolves name to a graph and the mode it runs in. Targets win over
// tasks of the same name; a lone task runs in development mode.
func (a *App) plan(ctx context.Context, profile *config.Profile, name string) (*dag.Graph, config.Mode, error) {
	if t, ok := a.model.Target(profile, name); ok {
		graph, err := dag.Build(ctx, a.model, profile, name)
		if err != nil {
			return nil, "", fmt.Errorf("failed to build execution graph: %w", err)
		}
		return graph, t.Mode, nil
	}
	if _, ok := a.registry.Lookup(name); ok {
		return dag.Single(name), config.Development, nil
	}
	return nil, "", fmt.Errorf("unknown target or task %q (targets: %s; tasks: %s)",
		name, strings.Join(a.model.TargetNames(profile), ", "), strings.Join(a.registry.Names(), ", "))
}

// session is the state shared by the tasks of one run.
type session struct {
	app      *App
	profile  *config.Profile
	mode     config.Mode
	manifest *task.Manifest
	server   *devserver.Server
	// blocked is set when a blocking task keeps the run open.
	blocked bool
}

func (a *App) newSession(ctx context.Context, profile *config.Profile, mode config.Mode, graph *dag.Graph) *session {
	s := &session{app: a, profile: profile, mode: mode}

	manifestPath := ""
	if profile.CacheBust {
		manifestPath = filepath.Join(profile.Dest, task.ManifestFile)
	}
	s.manifest = task.NewManifest(manifestPath)

	for _, id := range graph.Nodes() {
		name, _ := graph.Task(id)
		rt, ok := a.registry.Lookup(name)
		if !ok {
			continue
		}
		s.blocked = s.blocked || rt.Blocking
		if rt.NeedsServer && s.server == nil {
			srvCfg := config.Server{}
			if a.model.Server != nil {
				srvCfg = *a.model.Server
			}
			s.server = devserver.New(ctx, profile.Dest, srvCfg)
		}
	}
	return s
}

func (s *session) close() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Close(ctx); err != nil {
		s.app.logger.Warn("Dev server shutdown failed.", "error", err)
	}
}

func (s *session) env(name string) *task.Env {
	env := &task.Env{
		Name:      name,
		Mode:      s.mode,
		Root:      s.app.model.Root,
		Dest:      s.profile.Dest,
		Profile:   s.profile,
		Task:      s.app.model.Task(name),
		Model:     s.app.model,
		Converter: s.app.converter,
		Manifest:  s.manifest,
		Runner:    s.runTask,
		Hold:      !s.blocked,
	}
	if s.server != nil {
		env.Server = s.server
	}
	return env
}

// runNode runs one task, logging its start and finish.
func (s *session) runNode(ctx context.Context, _, name string) error {
	rt, ok := s.app.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("task %q is not registered", name)
	}
	ctx = ctxlog.With(ctx, "task", name)
	logger := ctxlog.FromContext(ctx)

	logger.Info("Starting task.")
	start := time.Now()
	err := rt.Fn(ctx, s.env(name))
	duration := time.Since(start).Round(time.Millisecond)
	if err != nil {
		logger.Error("Task failed.", "duration", duration, "error", err)
		return err
	}
	logger.Info("Finished task.", "duration", duration)
	return nil
}

// runTask re-runs a task outside the graph, e.g. from the watcher.
func (s *session) runTask(ctx context.Context, name string) error {
	return s.runNode(ctx, name, name)
}
