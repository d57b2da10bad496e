package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/gridpipe/internal/task"
)

// Module is the interface that all task modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// RegisteredTask holds the compiled Go parts of a pipeline task.
type RegisteredTask struct {
	Description string
	// NeedsSource marks tasks that do nothing without src globs.
	NeedsSource bool
	// NeedsServer marks tasks that start the dev server. A run creates the
	// server only when one of its tasks needs it.
	NeedsServer bool
	// Blocking marks tasks that run until the run is cancelled.
	Blocking bool
	// Options is a zero value of the task's options struct, nil when the
	// task takes none. Validation checks declared options against it.
	Options any
	Fn      task.Func
}

// Registry holds all the registered tasks for a single application instance.
type Registry struct {
	tasks map[string]*RegisteredTask
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{tasks: make(map[string]*RegisteredTask)}
}

// RegisterTask registers a Go function under a task name.
func (r *Registry) RegisterTask(name string, t *RegisteredTask) {
	if _, exists := r.tasks[name]; exists {
		panic(fmt.Sprintf("task with name '%s' already registered", name))
	}
	if t == nil || t.Fn == nil {
		panic(fmt.Sprintf("task '%s' registered without a function", name))
	}
	slog.Debug("Registering task.", "name", name)
	r.tasks[name] = t
}

// Lookup returns the task registered under name.
func (r *Registry) Lookup(name string) (*RegisteredTask, bool) {
	t, ok := r.tasks[name]
	return t, ok
}

// Names returns the registered task names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tasks))
	for n := range r.tasks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
