package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/moby/patternmatcher"
)

// File is a source file matched by a glob.
type File struct {
	// Path is the absolute path of the file.
	Path string
	// Rel is the slash-separated path relative to the glob base of the
	// pattern that matched it. Outputs are written to dest/Rel.
	Rel string
}

// Glob expands patterns relative to root. Patterns use forward slashes and
// support `*`, `?`, `[...]` and `**`; a leading `!` excludes matches of the
// preceding includes. Hidden files and directories below a glob's base are
// skipped unless the glob names a dot segment. Results are sorted by Path and
// deduplicated, the first including pattern deciding Rel.
func Glob(root string, patterns []string) ([]File, error) {
	includes, excludes := splitPatterns(patterns)

	seen := make(map[string]bool)
	var files []File
	for _, pattern := range includes {
		inc, err := newInclude(pattern, excludes)
		if err != nil {
			return nil, err
		}

		walkRoot := filepath.Join(root, filepath.FromSlash(inc.base))
		err = filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				if p != walkRoot && !inc.dot && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if seen[p] {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			ok, err := inc.match(filepath.ToSlash(rel))
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			fromBase, err := filepath.Rel(walkRoot, p)
			if err != nil {
				return err
			}
			seen[p] = true
			files = append(files, File{Path: p, Rel: filepath.ToSlash(fromBase)})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", pattern, err)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// GlobBase returns the static directory prefix of a glob pattern: every
// leading path segment without a wildcard. For a pattern without wildcards it
// is the pattern's parent directory.
func GlobBase(pattern string) string {
	pattern = strings.TrimPrefix(pattern, "!")
	segments := strings.Split(path.Clean(pattern), "/")
	for i, seg := range segments {
		if strings.ContainsAny(seg, "*?[{") {
			return strings.Join(segments[:i], "/")
		}
	}
	dir := path.Dir(path.Clean(pattern))
	if dir == "." {
		return ""
	}
	return dir
}

// Dirs returns the glob bases of the including patterns: the directories a
// watcher has to observe to see every change the patterns can match.
func Dirs(root string, patterns []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range patterns {
		if strings.HasPrefix(p, "!") || strings.TrimSpace(p) == "" {
			continue
		}
		d := filepath.Join(root, filepath.FromSlash(GlobBase(strings.TrimPrefix(p, "./"))))
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	sort.Strings(dirs)
	return dirs
}

func fromSlash(patterns []string) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = "!" + filepath.FromSlash(strings.TrimPrefix(strings.TrimPrefix(p, "!"), "./"))
	}
	return out
}

// Matcher matches paths relative to the project root against include globs
// and `!` excludes, with the same rules as Glob: a path matches on its own,
// never through a matching parent directory.
type Matcher struct {
	includes []*include
}

// NewMatcher compiles include and `!` exclude globs into a Matcher.
func NewMatcher(patterns []string) (*Matcher, error) {
	includes, excludes := splitPatterns(patterns)
	m := &Matcher{}
	for _, p := range includes {
		inc, err := newInclude(p, excludes)
		if err != nil {
			return nil, err
		}
		m.includes = append(m.includes, inc)
	}
	return m, nil
}

// Match reports whether rel, relative to the project root, is selected.
func (m *Matcher) Match(rel string) (bool, error) {
	rel = filepath.ToSlash(rel)
	for _, inc := range m.includes {
		ok, err := inc.match(rel)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// include is one including glob followed by every exclude.
type include struct {
	base string
	// dot allows hidden segments below base.
	dot bool
	pm  *patternmatcher.PatternMatcher
	// noParent is a match result in which no pattern matched. Passing it as
	// the parent result keeps patternmatcher from accepting a path because
	// one of its directories matches.
	noParent patternmatcher.MatchInfo
}

func newInclude(pattern string, excludes []string) (*include, error) {
	pm, err := patternmatcher.New(append([]string{filepath.FromSlash(pattern)}, fromSlash(excludes)...))
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
	}
	never := make([]string, len(pm.Patterns()))
	for i := range never {
		never[i] = "\x00"
	}
	blank, err := patternmatcher.New(never)
	if err != nil {
		return nil, err
	}
	_, noParent, err := blank.MatchesUsingParentResults("gridpipe", patternmatcher.MatchInfo{})
	if err != nil {
		return nil, err
	}

	base := GlobBase(pattern)
	return &include{base: base, dot: namesDotSegment(pattern, base), pm: pm, noParent: noParent}, nil
}

func (i *include) match(rel string) (bool, error) {
	if !i.dot && hiddenBelow(i.base, rel) {
		return false, nil
	}
	ok, _, err := i.pm.MatchesUsingParentResults(filepath.FromSlash(rel), i.noParent)
	return ok, err
}

// namesDotSegment reports whether a segment of pattern below base starts
// with a dot, e.g. "src/**/.htaccess".
func namesDotSegment(pattern, base string) bool {
	for _, seg := range strings.Split(belowBase(base, pattern), "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}

// hiddenBelow reports whether a segment of rel below base starts with a dot.
func hiddenBelow(base, rel string) bool {
	for _, seg := range strings.Split(belowBase(base, rel), "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func belowBase(base, p string) string {
	if base == "" {
		return p
	}
	return strings.TrimPrefix(p, base+"/")
}

func splitPatterns(patterns []string) (includes, excludes []string) {
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case strings.HasPrefix(p, "!"):
			excludes = append(excludes, p)
		default:
			includes = append(includes, strings.TrimPrefix(p, "./"))
		}
	}
	return includes, excludes
}
