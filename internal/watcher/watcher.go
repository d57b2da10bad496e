package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/vk/gridpipe/internal/ctxlog"
)

// Event is a change to a path under a watched directory.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher observes directory trees recursively.
type Watcher struct {
	fs *fsnotify.Watcher
	// skip reports directories that must not be watched (e.g. the output).
	skip func(dir string) bool
}

// New creates a watcher. skip may be nil.
func New(skip func(dir string) bool) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if skip == nil {
		skip = func(string) bool { return false }
	}
	return &Watcher{fs: fw, skip: skip}, nil
}

// AddRecursive watches dir and every directory below it. Hidden directories
// and those rejected by skip are left out.
func (w *Watcher) AddRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && (strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules") {
			return filepath.SkipDir
		}
		if w.skip(p) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

// WatchList returns the directories currently watched.
func (w *Watcher) WatchList() []string {
	return w.fs.WatchList()
}

// Run forwards events to out until ctx ends. Chmod-only events are dropped,
// created directories are added to the watch set, and watcher errors are
// logged without stopping the loop.
func (w *Watcher) Run(ctx context.Context, out chan<- Event) error {
	logger := ctxlog.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.AddRecursive(ev.Name); err != nil {
						logger.Warn("Could not watch new directory.", "path", ev.Name, "error", err)
					} else {
						logger.Debug("Watching new directory.", "path", ev.Name)
					}
				}
			}
			select {
			case out <- Event{Path: ev.Name, Op: ev.Op}:
			case <-ctx.Done():
				return nil
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error.", "error", err)
		}
	}
}

// Close stops watching and releases the underlying resources.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
