package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridpipe/internal/cli"
	"github.com/vk/gridpipe/internal/hcl"
	"github.com/vk/gridpipe/internal/testutil"
)

func TestRun_PanicRecovery(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A gridpipe.hcl with a syntax error makes app.NewApp panic while loading.
	invalidHCL := `
		task "styles" {
			src = [
		// Missing closing brackets here
	`
	root := testutil.WriteProject(t, map[string]string{hcl.DefaultFilename: invalidHCL})
	args := []string{"build", "--root", root}
	out := &bytes.Buffer{}

	// --- Act ---
	runErr := run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, runErr, "run() should have returned an error after recovering from a panic")
	var exitErr *cli.ExitError
	require.ErrorAs(t, runErr, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, runErr.Error(), "application startup panicked", "The error message should indicate that a panic was recovered.")
	assert.Contains(t, runErr.Error(), "failed to parse", "The error message should contain the underlying reason for the panic.")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	args := []string{"-h"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr, "run() should return an error when argument parsing fails")
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, err.Error(), "unknown flag: --this-is-not-a-valid-flag")
}

func TestRun_ListsBuiltInPipeline(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{"tasks", "--root", root, "--format", "json", "--log-level", "error"})

	// --- Assert ---
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"profile": "dist"`)
	assert.Contains(t, out.String(), `"name": "release"`)
	assert.Contains(t, out.String(), `"name": "styles"`)
}

func TestRun_ProjectPipelineIsDiscovered(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	pipeline := `
profile "site" {
  dest = "public"
}

task "fonts" {
  src  = ["assets/fonts/*"]
  dest = "fonts"
}

target "build" {
  mode = "production"
  run  = series(task.fonts)
}
`
	root := testutil.WriteProject(t, map[string]string{
		hcl.DefaultFilename:       pipeline,
		"assets/fonts/body.woff2": "font-bytes",
	})
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{"build", "--root", root, "-p", "site"})

	// --- Assert ---
	require.NoError(t, err)
	data, readErr := os.ReadFile(filepath.Join(root, "public", "fonts", "body.woff2"))
	require.NoError(t, readErr)
	assert.Equal(t, "font-bytes", string(data))
}

func TestRun_UnknownTarget(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{"run", "deploy", "--root", root})

	// --- Assert ---
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, exitErr.Message, `unknown target or task "deploy"`)
}
