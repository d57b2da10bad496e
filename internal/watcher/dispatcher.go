package watcher

import (
	"context"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/vk/gridpipe/internal/config"
	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/vk/gridpipe/internal/fsutil"
)

// Notifier receives the reload notifications that follow a re-run.
type Notifier interface {
	Reload()
	Stream(paths ...string)
}

// RunFunc re-runs a task by name.
type RunFunc func(ctx context.Context, task string) error

// Rule binds the globs of a watched task to the task and its reload mode.
type Rule struct {
	Task    string
	Matcher *fsutil.Matcher
	Reload  config.ReloadMode
	// Stream lists the output paths, relative to the served root, that a
	// stream reload swaps in place.
	Stream []string
	// Dirs are the glob bases the watcher must observe.
	Dirs []string
}

// Rules derives one rule per watched task of the model, sorted by task name.
// A stream task without an output falls back to a full reload.
func Rules(model *config.Model) ([]Rule, error) {
	names := model.TaskNames()
	sort.Strings(names)

	var rules []Rule
	for _, name := range names {
		t := model.Tasks[name]
		if !t.Watch || len(t.Src) == 0 {
			continue
		}
		pm, err := fsutil.NewMatcher(t.Src)
		if err != nil {
			return nil, err
		}
		r := Rule{Task: name, Matcher: pm, Reload: t.Reload, Dirs: fsutil.Dirs(model.Root, t.Src)}
		if r.Reload == config.ReloadStream {
			if t.Output == "" {
				r.Reload = config.ReloadFull
			} else {
				r.Stream = []string{path.Join(t.Dest, t.Output)}
			}
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Dispatcher serializes task re-runs triggered by file events.
type Dispatcher struct {
	root     string
	rules    []Rule
	run      RunFunc
	notifier Notifier
}

// NewDispatcher creates a dispatcher matching event paths relative to root.
// notifier may be nil when no dev server runs.
func NewDispatcher(root string, rules []Rule, run RunFunc, notifier Notifier) *Dispatcher {
	return &Dispatcher{root: root, rules: rules, run: run, notifier: notifier}
}

// Run handles events one at a time until ctx ends or events is closed.
func (d *Dispatcher) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.Handle(ctx, ev)
		}
	}
}

// Handle re-runs every task whose globs match the event path and sends the
// matching notification. It returns the number of tasks run. Task errors are
// logged; they never stop the dispatcher.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) int {
	logger := ctxlog.FromContext(ctx)

	rel, err := filepath.Rel(d.root, ev.Path)
	if err != nil {
		logger.Debug("Ignoring event outside the project.", "path", ev.Path)
		return 0
	}

	ran := 0
	for _, r := range d.rules {
		ok, err := r.Matcher.Match(rel)
		if err != nil || !ok {
			continue
		}
		logger.Info("Change detected.", "path", filepath.ToSlash(rel), "op", ev.Op.String(), "task", r.Task)
		ran++

		start := time.Now()
		if err := d.run(ctx, r.Task); err != nil {
			logger.Error("Task failed during watch.", "task", r.Task, "error", err, "duration", time.Since(start))
			continue
		}
		d.notify(ctx, r)
	}
	return ran
}

func (d *Dispatcher) notify(ctx context.Context, r Rule) {
	if d.notifier == nil {
		return
	}
	logger := ctxlog.FromContext(ctx)
	switch r.Reload {
	case config.ReloadFull:
		logger.Debug("Reloading browsers.", "task", r.Task)
		d.notifier.Reload()
	case config.ReloadStream:
		logger.Debug("Streaming changes to browsers.", "task", r.Task, "paths", r.Stream)
		d.notifier.Stream(r.Stream...)
	}
}
