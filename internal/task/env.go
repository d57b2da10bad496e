// Package task defines what a pipeline task receives when it runs: the Env
// describing the project, profile, mode and task declaration, plus the shared
// services (manifest, dev server, runner) a task may use.
package task

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vk/gridpipe/internal/config"
	"github.com/vk/gridpipe/internal/fsutil"
)

// Func is the signature every pipeline task implements.
type Func func(ctx context.Context, env *Env) error

// Reloader receives reload notifications for connected browsers.
type Reloader interface {
	// Reload asks every browser to reload the page.
	Reload()
	// Stream asks every browser to swap the given files in place (CSS).
	Stream(paths ...string)
}

// Server is the dev server as seen by tasks.
type Server interface {
	Reloader
	Start(ctx context.Context) error
}

// Runner runs another task by name, with the same profile and mode.
type Runner func(ctx context.Context, name string) error

// Env is the explicit execution environment of a single task run.
type Env struct {
	Name string
	Mode config.Mode
	// Root is the absolute project directory.
	Root string
	// Dest is the absolute destination directory of the profile.
	Dest      string
	Profile   *config.Profile
	Task      *config.Task
	Model     *config.Model
	Converter config.Converter
	Manifest  *Manifest
	Server    Server
	Runner    Runner
	// Hold is set when no blocking task keeps the run alive, so a task that
	// starts a background service must wait for the run to end itself.
	Hold bool
}

// OutputDir is where the task writes: the profile destination joined with the
// task's own dest.
func (e *Env) OutputDir() string {
	return filepath.Join(e.Dest, filepath.FromSlash(e.Task.Dest))
}

// Sources expands the task's src globs against the project root.
func (e *Env) Sources() ([]fsutil.File, error) {
	files, err := fsutil.Glob(e.Root, e.Task.Src)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", e.Name, err)
	}
	return files, nil
}

// DecodeOptions decodes the task's options block into target.
func (e *Env) DecodeOptions(ctx context.Context, target any) error {
	if e.Converter == nil || e.Task.Options.IsNull() {
		return nil
	}
	if err := e.Converter.DecodeOptions(ctx, e.Task.Options, target); err != nil {
		return fmt.Errorf("task %q options: %w", e.Name, err)
	}
	return nil
}

// BundleName returns the file name a bundling task writes content under:
// the task's output (or fallback), hashed and recorded in the manifest when
// the profile busts caches.
func (e *Env) BundleName(fallback string, content []byte) (string, error) {
	name := e.Task.Output
	if name == "" {
		name = fallback
	}
	if e.Profile == nil || !e.Profile.CacheBust || e.Manifest == nil {
		return name, nil
	}
	hashed := HashedName(name, content)
	if err := e.Manifest.Set(name, hashed); err != nil {
		return "", err
	}
	return hashed, nil
}
