package watch

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/vk/gridpipe/internal/registry"
	"github.com/vk/gridpipe/internal/task"
	"github.com/vk/gridpipe/internal/watcher"
	"golang.org/x/sync/errgroup"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Run watches the source globs of every watched task and re-runs the task on
// change until ctx ends. The destination directory is never watched.
func Run(ctx context.Context, env *task.Env) error {
	logger := ctxlog.FromContext(ctx)

	rules, err := watcher.Rules(env.Model)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		logger.Warn("No watched tasks, waiting for shutdown.")
		<-ctx.Done()
		return nil
	}

	w, err := watcher.New(func(dir string) bool { return within(env.Dest, dir) })
	if err != nil {
		return err
	}
	defer w.Close()

	for _, r := range rules {
		for _, dir := range r.Dirs {
			if err := w.AddRecursive(dir); err != nil {
				return err
			}
		}
	}
	logger.Info("Watching for changes.", "tasks", len(rules), "directories", len(w.WatchList()))

	run := func(ctx context.Context, name string) error { return env.Runner(ctx, name) }
	var notifier watcher.Notifier
	if env.Server != nil {
		notifier = env.Server
	}
	d := watcher.NewDispatcher(env.Root, rules, run, notifier)

	events := make(chan watcher.Event, 64)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx, events) })
	g.Go(func() error { return d.Run(gctx, events) })
	return g.Wait()
}

// within reports whether dir is root or below it.
func within(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Register registers the task with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask("watch", &registry.RegisteredTask{
		Description: "Re-run watched tasks when their sources change.",
		Blocking:    true,
		Fn:          Run,
	})
}
