package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(rel), 0o644))
	}
}

func rels(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Rel
	}
	return out
}

func TestGlobBase(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"src/images/**/*":     "src/images",
		"src/*.html":          "src",
		"src/scss/index.scss": "src/scss",
		"*.js":                "",
		"!src/vendor/**":      "src/vendor",
		"index.html":          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, GlobBase(in), in)
	}
}

func TestGlob_RelativeToBase(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	touch(t, root,
		"src/images/logo.png",
		"src/images/icons/a.svg",
		"src/index.html",
		"src/about.html",
		"src/partials/nav.html",
	)

	// --- Act ---
	images, err := Glob(root, []string{"src/images/**/*"})
	require.NoError(t, err)
	pages, err := Glob(root, []string{"src/*.html"})
	require.NoError(t, err)

	// --- Assert ---
	if diff := cmp.Diff([]string{"icons/a.svg", "logo.png"}, rels(images)); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"about.html", "index.html"}, rels(pages)); diff != "" {
		t.Errorf("pages mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, filepath.Join(root, "src", "about.html"), pages[0].Path)
}

func TestGlob_ExclusionsAndDedup(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	touch(t, root, "src/js/app.js", "src/js/vendor/lib.js", "src/js/util.js")

	files, err := Glob(root, []string{"src/js/**/*.js", "src/js/app.js", "!src/js/vendor/**"})
	require.NoError(t, err)

	assert.Equal(t, []string{"app.js", "util.js"}, rels(files))
}

func TestGlob_MatchesFilesNotParentDirs(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	touch(t, root,
		"src/fonts/a.woff",
		"src/fonts/v1.2/LICENSE",
		"src/fonts/v1.2/b.woff2",
	)

	// --- Act ---
	files, err := Glob(root, []string{"src/fonts/**/*.*"})

	// --- Assert ---
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"a.woff", "v1.2/b.woff2"}, rels(files)); diff != "" {
		t.Errorf("Glob() mismatch (-want +got):\n%s", diff)
	}
}

func TestGlob_SkipsHiddenUnlessNamed(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	touch(t, root,
		"src/images/.DS_Store",
		"src/images/logo.png",
		"src/images/.cache/x.png",
		"src/images/sub/a.png",
		"src/images/sub/.a.png.swp",
		"src/.htaccess",
		"src/app/.htaccess",
	)

	// --- Act ---
	images, imgErr := Glob(root, []string{"src/images/**/*"})
	access, accErr := Glob(root, []string{"src/**/.htaccess"})

	// --- Assert ---
	require.NoError(t, imgErr)
	require.NoError(t, accErr)
	if diff := cmp.Diff([]string{"logo.png", "sub/a.png"}, rels(images)); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{".htaccess", "app/.htaccess"}, rels(access)); diff != "" {
		t.Errorf("htaccess mismatch (-want +got):\n%s", diff)
	}
}

func TestMatcher_Match(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	m, err := NewMatcher([]string{"src/fonts/**/*.*", "src/scripts/**/*.js", "!src/scripts/vendor/**"})
	require.NoError(t, err)
	cases := map[string]bool{
		"src/fonts/a.woff":             true,
		"src/fonts/v1.2/b.woff2":       true,
		"src/fonts/v1.2/LICENSE":       false,
		"src/fonts/.DS_Store":          false,
		"src/scripts/app.js":           true,
		"src/scripts/.app.js.swp":      false,
		"src/scripts/vendor/jquery.js": false,
		"dist/bundle.min.js":           false,
	}

	for rel, want := range cases {
		// --- Act ---
		got, err := m.Match(rel)

		// --- Assert ---
		require.NoError(t, err, rel)
		assert.Equal(t, want, got, rel)
	}
}

func TestGlob_MissingBaseIsEmpty(t *testing.T) {
	t.Parallel()

	files, err := Glob(t.TempDir(), []string{"src/fonts/**/*"})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDirs(t *testing.T) {
	t.Parallel()

	got := Dirs("/p", []string{"src/scss/**/*.scss", "src/scss/x.scss", "!src/scss/vendor/**", "src/*.html"})
	assert.Equal(t, []string{filepath.Join("/p", "src"), filepath.Join("/p", "src", "scss")}, got)
}

func TestCopyAll(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	touch(t, root, "src/fonts/a.woff", "src/fonts/sub/b.woff2")
	files, err := Glob(root, []string{"src/fonts/**/*"})
	require.NoError(t, err)

	n, err := CopyAll(files, filepath.Join(root, "dist", "fonts"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	b, err := os.ReadFile(filepath.Join(root, "dist", "fonts", "sub", "b.woff2"))
	require.NoError(t, err)
	assert.Equal(t, "src/fonts/sub/b.woff2", string(b))
}
