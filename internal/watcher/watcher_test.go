package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, events <-chan Event, want string) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Path == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for an event on %s", want)
		}
	}
}

func TestWatcher_ForwardsEventsAndFollowsNewDirectories(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dist := filepath.Join(root, "dist")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.MkdirAll(dist, 0o755))

	w, err := New(func(dir string) bool { return dir == dist })
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	require.NoError(t, w.AddRecursive(root))
	assert.NotContains(t, w.WatchList(), dist)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	events := make(chan Event, 16)
	go func() { _ = w.Run(ctx, events) }()

	// --- Act & Assert ---
	file := filepath.Join(src, "app.js")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	ev := waitFor(t, events, file)
	assert.True(t, ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write))

	sub := filepath.Join(src, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	waitFor(t, events, sub)

	require.Eventually(t, func() bool {
		for _, d := range w.WatchList() {
			if d == sub {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	nested := filepath.Join(sub, "b.js")
	require.NoError(t, os.WriteFile(nested, []byte("y"), 0o644))
	waitFor(t, events, nested)
}
