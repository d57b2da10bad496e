package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// SampleSite is a small front-end project matching the built-in pipeline.
// Its Sass is plain CSS apart from the import, so a test compiler can stand
// in for the sass binary.
func SampleSite() map[string]string {
	return map[string]string{
		"src/index.html": `<!DOCTYPE html>
<html>
  <head>
    <link rel="stylesheet" href="bundle.min.css">
  </head>
  <body>
    <h1>   Hello   </h1>
    <script src="bundle.min.js"></script>
  </body>
</html>
`,
		"src/scss/index.scss":      "@import 'variables';\n\nbody {\n  margin: 0;\n  color: red;\n}\n",
		"src/scss/_variables.scss": "$main: red;\n",
		"src/scripts/greet.js":     "export const greet = (name) => `Hello, ${name}`;\n",
		"src/scripts/main.js":      "import { greet } from './greet.js';\ndocument.title = greet('gridpipe');\n",
		"src/images/logo.svg":      "<svg xmlns=\"http://www.w3.org/2000/svg\"   width=\"4\" height=\"4\">\n  <!-- logo -->\n  <rect width=\"4\" height=\"4\" />\n</svg>\n",
		"src/fonts/body.woff2":     "wOF2-font-bytes",
	}
}

// WriteProject writes files (slash-separated paths relative to the root)
// into a fresh temporary directory and returns its path.
func WriteProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

// ReadTree returns every regular file under dir keyed by its slash-separated
// relative path.
func ReadTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	tree := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		tree[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return tree
}
