package html

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/parse/v2"
	htmllex "github.com/tdewolff/parse/v2/html"
	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/vk/gridpipe/internal/fsutil"
	"github.com/vk/gridpipe/internal/registry"
	"github.com/vk/gridpipe/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Options are the settings accepted in the task's options block.
type Options struct {
	KeepComments bool `option:"keep_comments"`
	// Minify forces minification on or off regardless of mode.
	Minify *bool `option:"minify"`
}

// Run copies matched pages to the output directory. In production the pages
// are minified. References to bundles recorded in the manifest are rewritten
// to their hashed names.
func Run(ctx context.Context, env *task.Env) error {
	logger := ctxlog.FromContext(ctx)

	var opts Options
	if err := env.DecodeOptions(ctx, &opts); err != nil {
		return err
	}
	doMinify := env.Mode.IsProduction()
	if opts.Minify != nil {
		doMinify = *opts.Minify
	}

	files, err := env.Sources()
	if err != nil {
		return err
	}

	var m *minify.M
	if doMinify {
		m = minify.New()
		m.Add("text/html", &html.Minifier{
			KeepComments:        opts.KeepComments,
			KeepDefaultAttrVals: true,
			KeepDocumentTags:    true,
			KeepEndTags:         true,
			KeepQuotes:          true,
		})
	}

	outDir := env.OutputDir()
	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return err
		}
		if env.Manifest != nil {
			data = Rewrite(data, env.Manifest)
		}
		if m != nil {
			if data, err = m.Bytes("text/html", data); err != nil {
				return fmt.Errorf("failed to minify %s: %w", f.Path, err)
			}
		}
		if err := fsutil.WriteFile(filepath.Join(outDir, filepath.FromSlash(f.Rel)), data); err != nil {
			return err
		}
	}
	logger.Debug("Pages written.", "count", len(files), "minified", doMinify)
	return nil
}

// Rewrite replaces href and src attribute values whose base name is a
// logical bundle name in the manifest with the hashed name, keeping the
// directory part and any query or fragment. Quoted and unquoted values are
// rewritten; text, comments and other attributes are left alone.
func Rewrite(data []byte, manifest *task.Manifest) []byte {
	if len(manifest.Logical()) == 0 {
		return data
	}

	// The lexer lowercases tag and attribute names in its buffer.
	in := parse.NewInputBytes(append([]byte(nil), data...))
	l := htmllex.NewLexer(in)

	var out []byte
	last := 0
	for {
		tt, _ := l.Next()
		if tt == htmllex.ErrorToken {
			break
		}
		if tt != htmllex.AttributeToken {
			continue
		}
		if key := string(l.AttrKey()); key != "href" && key != "src" {
			continue
		}
		val := l.AttrVal()
		end := in.Offset()
		start := end - len(val)
		if n := len(val); n >= 2 && (val[0] == '"' || val[0] == '\'') && val[n-1] == val[0] {
			val = val[1 : n-1]
			start++
			end--
		}
		ref, ok := hashedRef(string(val), manifest)
		if !ok {
			continue
		}
		out = append(out, data[last:start]...)
		out = append(out, ref...)
		last = end
	}
	if out == nil {
		return data
	}
	return append(out, data[last:]...)
}

// hashedRef maps a reference to a manifest entry onto its hashed name.
func hashedRef(ref string, manifest *task.Manifest) (string, bool) {
	if strings.Contains(ref, "://") || strings.HasPrefix(ref, "//") {
		return "", false
	}
	file, suffix := ref, ""
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		file, suffix = ref[:i], ref[i:]
	}
	dir, base := path.Split(file)
	hashed, ok := manifest.Lookup(base)
	if !ok {
		return "", false
	}
	return dir + hashed + suffix, true
}

// Register registers the task with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask("html", &registry.RegisteredTask{
		Description: "Copy pages, minifying them in production.",
		NeedsSource: true,
		Options:     Options{},
		Fn:          Run,
	})
}
