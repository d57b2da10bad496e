package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridpipe/internal/config"
	"github.com/vk/gridpipe/internal/hcl"
	"github.com/vk/gridpipe/internal/task"
	"github.com/zclconf/go-cty/cty"
)

func writeDist(t *testing.T, root string) string {
	t.Helper()
	dest := filepath.Join(root, "dist")
	for rel, content := range map[string]string{
		"index.html":     "<html></html>",
		"bundle.min.css": "body{margin:0}",
		"images/a.png":   "png",
	} {
		p := filepath.Join(dest, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	return dest
}

type entry struct {
	Name    string
	Mode    int64
	Content string
}

func readArchive(t *testing.T, data []byte) []entry {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	var entries []entry
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.True(t, h.ModTime.Equal(time.Unix(0, 0)), h.Name)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries = append(entries, entry{Name: h.Name, Mode: h.Mode, Content: string(body)})
	}
	return entries
}

func newEnv(root, dest string, options cty.Value) *task.Env {
	return &task.Env{
		Name:      "archive",
		Mode:      config.Production,
		Root:      root,
		Dest:      dest,
		Profile:   &config.Profile{Name: "dist", Dest: dest},
		Task:      &config.Task{Name: "archive", Options: options},
		Converter: hcl.NewConverter(),
	}
}

func TestRun_WritesReproducibleArchive(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	dest := writeDist(t, root)
	env := newEnv(root, dest, cty.ObjectVal(map[string]cty.Value{"prefix": cty.StringVal("site")}))
	out := filepath.Join(root, "dist.tar.gz")

	// --- Act ---
	require.NoError(t, Run(context.Background(), env))
	first, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NoError(t, Run(context.Background(), env))
	second, err := os.ReadFile(out)
	require.NoError(t, err)

	// --- Assert ---
	assert.Equal(t, first, second)
	want := []entry{
		{Name: "site/bundle.min.css", Mode: 0o644, Content: "body{margin:0}"},
		{Name: "site/images/", Mode: 0o755},
		{Name: "site/images/a.png", Mode: 0o644, Content: "png"},
		{Name: "site/index.html", Mode: 0o644, Content: "<html></html>"},
	}
	if diff := cmp.Diff(want, readArchive(t, first)); diff != "" {
		t.Errorf("archive entries mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_CustomOutput(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dest := writeDist(t, root)
	env := newEnv(root, dest, cty.EmptyObjectVal)
	env.Task.Output = "release/site.tgz"

	require.NoError(t, Run(context.Background(), env))

	assert.FileExists(t, filepath.Join(root, "release", "site.tgz"))
}

func TestRun_RejectsOutputInsideDestination(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dest := writeDist(t, root)
	env := newEnv(root, dest, cty.EmptyObjectVal)
	env.Task.Output = "dist/self.tar.gz"

	err := Run(context.Background(), env)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "inside the destination")
}

func TestRun_MissingDestination(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	env := newEnv(root, filepath.Join(root, "dist"), cty.EmptyObjectVal)

	err := Run(context.Background(), env)

	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(root, "dist.tar.gz"))
}

func TestPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("/p", "docs.tar.gz"), Path("/p", "docs", ""))
	assert.Equal(t, filepath.Join("/p", "out", "a.tgz"), Path("/p", "docs", "out/a.tgz"))
}
