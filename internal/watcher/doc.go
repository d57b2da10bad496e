// Package watcher turns file system changes into task re-runs.
//
// A Watcher observes directory trees with fsnotify and forwards events on a
// channel. A Dispatcher consumes that channel in a single loop, so re-runs
// never overlap: every matching event runs its task once, then notifies the
// dev server according to the task's reload mode.
package watcher
