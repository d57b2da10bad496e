package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridpipe/internal/config"
	"github.com/zclconf/go-cty/cty"
)

type fakeNotifier struct {
	mu      sync.Mutex
	reloads int
	streams [][]string
}

func (f *fakeNotifier) Reload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
}

func (f *fakeNotifier) Stream(paths ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, paths)
}

func testModel(root string) *config.Model {
	task := func(name string, src []string, reload config.ReloadMode, output, dest string) *config.Task {
		return &config.Task{Name: name, Src: src, Watch: true, Reload: reload, Output: output, Dest: dest, Options: cty.EmptyObjectVal}
	}
	return &config.Model{
		Root: root,
		Tasks: map[string]*config.Task{
			"styles":  task("styles", []string{"src/scss/**/*.scss"}, config.ReloadStream, "bundle.min.css", ""),
			"scripts": task("scripts", []string{"src/scripts/**/*.js", "!src/scripts/vendor/**"}, config.ReloadFull, "bundle.min.js", ""),
			"fonts":   task("fonts", []string{"src/fonts/**/*.*"}, config.ReloadNone, "", "fonts"),
			"html":    {Name: "html", Src: []string{"src/*.html"}, Watch: false},
		},
	}
}

func TestRules(t *testing.T) {
	t.Parallel()

	rules, err := Rules(testModel("/p"))
	require.NoError(t, err)

	require.Len(t, rules, 3)
	assert.Equal(t, "fonts", rules[0].Task)
	assert.Equal(t, "scripts", rules[1].Task)
	assert.Equal(t, "styles", rules[2].Task)
	assert.Equal(t, []string{"bundle.min.css"}, rules[2].Stream)
	assert.Equal(t, []string{filepath.Join("/p", "src", "scss")}, rules[2].Dirs)
}

func TestRules_StreamWithoutOutputFallsBackToFull(t *testing.T) {
	t.Parallel()

	m := testModel("/p")
	m.Tasks["styles"].Output = ""
	rules, err := Rules(m)
	require.NoError(t, err)
	assert.Equal(t, config.ReloadFull, rules[2].Reload)
}

func TestDispatcher_OneReloadPerScriptChange(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := "/p"
	rules, err := Rules(testModel(root))
	require.NoError(t, err)
	var runs []string
	n := &fakeNotifier{}
	d := NewDispatcher(root, rules, func(ctx context.Context, task string) error {
		runs = append(runs, task)
		return nil
	}, n)

	// --- Act ---
	ran := d.Handle(context.Background(), Event{Path: "/p/src/scripts/app.js", Op: fsnotify.Write})

	// --- Assert ---
	assert.Equal(t, 1, ran)
	assert.Equal(t, []string{"scripts"}, runs)
	assert.Equal(t, 1, n.reloads)
	assert.Empty(t, n.streams)
}

func TestDispatcher_StyleChangeStreamsWithoutReload(t *testing.T) {
	t.Parallel()

	rules, err := Rules(testModel("/p"))
	require.NoError(t, err)
	n := &fakeNotifier{}
	d := NewDispatcher("/p", rules, func(context.Context, string) error { return nil }, n)

	d.Handle(context.Background(), Event{Path: "/p/src/scss/partials/_vars.scss", Op: fsnotify.Write})

	assert.Equal(t, 0, n.reloads)
	assert.Equal(t, [][]string{{"bundle.min.css"}}, n.streams)
}

func TestDispatcher_IgnoresUnmatchedAndExcluded(t *testing.T) {
	t.Parallel()

	rules, err := Rules(testModel("/p"))
	require.NoError(t, err)
	n := &fakeNotifier{}
	d := NewDispatcher("/p", rules, func(context.Context, string) error {
		t.Fatal("no task should run")
		return nil
	}, n)

	assert.Zero(t, d.Handle(context.Background(), Event{Path: "/p/src/scripts/vendor/jquery.js", Op: fsnotify.Write}))
	assert.Zero(t, d.Handle(context.Background(), Event{Path: "/p/src/index.html", Op: fsnotify.Write}))
	assert.Zero(t, d.Handle(context.Background(), Event{Path: "/p/dist/bundle.min.js", Op: fsnotify.Create}))
	assert.Zero(t, n.reloads)
}

func TestDispatcher_IgnoresHiddenFilesAndParentDirMatches(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	rules, err := Rules(testModel("/p"))
	require.NoError(t, err)
	n := &fakeNotifier{}
	d := NewDispatcher("/p", rules, func(context.Context, string) error {
		t.Fatal("no task should run")
		return nil
	}, n)

	// --- Act ---
	swap := d.Handle(context.Background(), Event{Path: "/p/src/scripts/.app.js.swp", Op: fsnotify.Create})
	dsStore := d.Handle(context.Background(), Event{Path: "/p/src/fonts/.DS_Store", Op: fsnotify.Create})
	license := d.Handle(context.Background(), Event{Path: "/p/src/fonts/v1.2/LICENSE", Op: fsnotify.Write})

	// --- Assert ---
	assert.Zero(t, swap)
	assert.Zero(t, dsStore)
	assert.Zero(t, license)
	assert.Zero(t, n.reloads)
}

func TestDispatcher_FailedTaskDoesNotNotifyOrStop(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	rules, err := Rules(testModel("/p"))
	require.NoError(t, err)
	n := &fakeNotifier{}
	var calls atomic.Int32
	d := NewDispatcher("/p", rules, func(context.Context, string) error {
		if calls.Add(1) == 1 {
			return errors.New("syntax error")
		}
		return nil
	}, n)
	events := make(chan Event, 2)
	events <- Event{Path: "/p/src/scripts/a.js", Op: fsnotify.Write}
	events <- Event{Path: "/p/src/scripts/a.js", Op: fsnotify.Write}
	close(events)

	// --- Act ---
	err = d.Run(context.Background(), events)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, n.reloads)
}

func TestDispatcher_SerializesRuns(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	rules, err := Rules(testModel("/p"))
	require.NoError(t, err)
	var active, overlap atomic.Int32
	d := NewDispatcher("/p", rules, func(context.Context, string) error {
		if active.Add(1) > 1 {
			overlap.Add(1)
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return nil
	}, nil)
	events := make(chan Event)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- d.Run(ctx, events) }()

	// --- Act ---
	for i := 0; i < 10; i++ {
		events <- Event{Path: "/p/src/fonts/a.woff", Op: fsnotify.Write}
	}
	cancel()

	// --- Assert ---
	require.NoError(t, <-done)
	assert.Zero(t, overlap.Load())
}
