package scripts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridpipe/internal/config"
	"github.com/vk/gridpipe/internal/hcl"
	"github.com/vk/gridpipe/internal/task"
	"github.com/zclconf/go-cty/cty"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

var sources = map[string]string{
	"src/scripts/greet.js": "export const greet = (name) => `Hello, ${name}`;\n",
	"src/scripts/main.js": `import { greet } from './greet.js';
const fallback = window.config?.title ?? "gridpipe";
if (process.env.NODE_ENV !== "production") {
  console.log("debug build");
}
document.title = greet(fallback);
`,
}

func newEnv(root string, mode config.Mode) *task.Env {
	return &task.Env{
		Name:      "scripts",
		Mode:      mode,
		Root:      root,
		Dest:      filepath.Join(root, "dist"),
		Profile:   &config.Profile{Name: "dist"},
		Task:      &config.Task{Name: "scripts", Src: []string{"src/scripts/**/*.js"}, Output: "bundle.min.js", Options: cty.EmptyObjectVal},
		Converter: hcl.NewConverter(),
	}
}

func TestRun_ProductionBundle(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	writeFiles(t, root, sources)

	// --- Act ---
	err := Run(context.Background(), newEnv(root, config.Production))

	// --- Assert ---
	require.NoError(t, err)
	js, err := os.ReadFile(filepath.Join(root, "dist", "bundle.min.js"))
	require.NoError(t, err)
	out := string(js)
	assert.Contains(t, out, "Hello")
	assert.NotContains(t, out, "?.")
	assert.NotContains(t, out, "??")
	assert.NotContains(t, out, "process.env")
	assert.NotContains(t, out, "sourceMappingURL")
	assert.NotContains(t, out, "\n  ")
	assert.FileExists(t, filepath.Join(root, "dist", "bundle.min.js.map"))
}

func TestRun_DevelopmentBundle(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, sources)

	require.NoError(t, Run(context.Background(), newEnv(root, config.Development)))

	js, err := os.ReadFile(filepath.Join(root, "dist", "bundle.min.js"))
	require.NoError(t, err)
	out := string(js)
	assert.Contains(t, out, "sourceMappingURL=data:application/json;base64,")
	assert.Contains(t, out, "debug build")
	assert.Contains(t, out, "\n  ")
	assert.NoFileExists(t, filepath.Join(root, "dist", "bundle.min.js.map"))
}

func TestRun_Deterministic(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, sources)
	env := newEnv(root, config.Production)

	require.NoError(t, Run(context.Background(), env))
	first, err := os.ReadFile(filepath.Join(root, "dist", "bundle.min.js"))
	require.NoError(t, err)
	require.NoError(t, Run(context.Background(), env))
	second, err := os.ReadFile(filepath.Join(root, "dist", "bundle.min.js"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRun_SyntaxErrorIsReturnedWithLocation(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, map[string]string{"src/scripts/bad.js": "const = ;\n"})

	err := Run(context.Background(), newEnv(root, config.Production))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.js:1:")
	assert.NoFileExists(t, filepath.Join(root, "dist", "bundle.min.js"))
}

func TestRun_NoSourcesWritesNothing(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	require.NoError(t, Run(context.Background(), newEnv(root, config.Production)))

	assert.NoDirExists(t, filepath.Join(root, "dist"))
}

func TestRun_InvalidFormat(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, sources)
	env := newEnv(root, config.Production)
	env.Task.Options = cty.ObjectVal(map[string]cty.Value{"format": cty.StringVal("amd")})

	err := Run(context.Background(), env)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "amd")
}
