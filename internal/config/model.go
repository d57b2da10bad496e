package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Model is the unified, format-agnostic representation of a pipeline file.
type Model struct {
	// Root is the absolute project directory all task globs resolve against.
	Root     string
	Tasks    map[string]*Task
	Profiles map[string]*Profile
	Targets  map[string]*Target
	Server   *Server
}

// Mode selects between development and production output.
type Mode string

const (
	Development Mode = "development"
	Production  Mode = "production"
)

// ParseMode validates a mode string. An empty string yields Development.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Development:
		return Development, nil
	case Production:
		return Production, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, Development, Production)
	}
}

// IsProduction reports whether output should be minified and optimized.
func (m Mode) IsProduction() bool { return m == Production }

// ReloadMode is what the watcher asks the dev server to do after a re-run.
type ReloadMode string

const (
	ReloadFull   ReloadMode = "full"
	ReloadStream ReloadMode = "stream"
	ReloadNone   ReloadMode = "none"
)

// ParseReloadMode validates a reload mode string. An empty string yields ReloadFull.
func ParseReloadMode(s string) (ReloadMode, error) {
	switch ReloadMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ReloadFull:
		return ReloadFull, nil
	case ReloadStream:
		return ReloadStream, nil
	case ReloadNone:
		return ReloadNone, nil
	default:
		return "", fmt.Errorf("unknown reload mode %q (want full, stream or none)", s)
	}
}

// Task is the format-agnostic representation of a `task` block.
type Task struct {
	Name string
	// Src holds glob patterns relative to Model.Root. A leading `!` excludes.
	Src []string
	// Dest is relative to the profile destination directory.
	Dest string
	// Output is the base name of a bundled output file, if the task bundles.
	Output  string
	Watch   bool
	Reload  ReloadMode
	Options cty.Value
}

// Profile is a named output configuration.
type Profile struct {
	Name string
	// Dest is the destination directory, relative to Model.Root unless absolute.
	Dest      string
	CacheBust bool
	// Targets overrides the top-level targets of the same name.
	Targets map[string]*Target
}

// Target is a named composition of tasks and other targets.
type Target struct {
	Name        string
	Description string
	Mode        Mode
	Run         *Step
}

// Server configures the development server.
type Server struct {
	Host   string
	Port   int
	Inject bool
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StepKind identifies a node of a composition tree.
type StepKind string

const (
	StepTask     StepKind = "task"
	StepTarget   StepKind = "target"
	StepSeries   StepKind = "series"
	StepParallel StepKind = "parallel"
)

// Step is one node of a target's composition tree. Task and Target steps are
// leaves carrying a Name; Series and Parallel steps carry Children.
type Step struct {
	Kind     StepKind
	Name     string
	Children []*Step
}

// String renders the step in the function syntax used by pipeline files.
func (s *Step) String() string {
	switch s.Kind {
	case StepTask, StepTarget:
		return string(s.Kind) + "." + s.Name
	}
	parts := make([]string, len(s.Children))
	for i, c := range s.Children {
		parts[i] = c.String()
	}
	return string(s.Kind) + "(" + strings.Join(parts, ", ") + ")"
}

// Walk calls fn for s and every descendant, depth first.
func (s *Step) Walk(fn func(*Step)) {
	fn(s)
	for _, c := range s.Children {
		c.Walk(fn)
	}
}

// Profile returns the named profile.
func (m *Model) Profile(name string) (*Profile, error) {
	p, ok := m.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(m.ProfileNames(), ", "))
	}
	return p, nil
}

// Target resolves a target name, preferring the profile's override.
func (m *Model) Target(profile *Profile, name string) (*Target, bool) {
	if profile != nil {
		if t, ok := profile.Targets[name]; ok {
			return t, true
		}
	}
	t, ok := m.Targets[name]
	return t, ok
}

// Task returns the declared task, or a bare declaration for tasks that take
// no configuration (e.g. clean, serve).
func (m *Model) Task(name string) *Task {
	if t, ok := m.Tasks[name]; ok {
		return t
	}
	return &Task{Name: name, Reload: ReloadNone, Options: cty.EmptyObjectVal}
}

// ProfileNames returns the sorted profile names.
func (m *Model) ProfileNames() []string {
	return sortedKeys(m.Profiles)
}

// TargetNames returns the sorted names of the targets visible from profile.
func (m *Model) TargetNames(profile *Profile) []string {
	names := make(map[string]struct{}, len(m.Targets))
	for n := range m.Targets {
		names[n] = struct{}{}
	}
	if profile != nil {
		for n := range profile.Targets {
			names[n] = struct{}{}
		}
	}
	return sortedKeys(names)
}

// TaskNames returns the sorted names of the declared tasks.
func (m *Model) TaskNames() []string {
	return sortedKeys(m.Tasks)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
