package styles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/vk/gridpipe/internal/bundler"
	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/vk/gridpipe/internal/fsutil"
	"github.com/vk/gridpipe/internal/registry"
	"github.com/vk/gridpipe/internal/task"
)

// DefaultOutput is the bundle name used when the task declares no output.
const DefaultOutput = "bundle.min.css"

const (
	entryName     = "gridpipe-entry.css"
	partPrefix    = "gridpipe-style:"
	partNamespace = "gridpipe-style"
)

// Module implements the registry.Module interface for this package. A nil
// Compiler runs the sass binary named in the task options.
type Module struct {
	Compiler Compiler
}

// Options are the settings accepted in the task's options block.
type Options struct {
	SassBinary string   `option:"sass_binary"`
	LoadPaths  []string `option:"load_paths"`
	Engines    []string `option:"engines"`
}

// Run compiles every non-partial Sass entry, bundles the results with plain
// CSS entries in path order and writes one lowered bundle. Compile errors are logged
// and the failing entry is left out.
func (m *Module) Run(ctx context.Context, env *task.Env) error {
	logger := ctxlog.FromContext(ctx)

	opts := Options{SassBinary: "sass", Engines: bundler.DefaultEngines}
	if err := env.DecodeOptions(ctx, &opts); err != nil {
		return err
	}
	engines, err := bundler.ParseEngines(opts.Engines)
	if err != nil {
		return err
	}
	compiler := m.Compiler
	if compiler == nil {
		compiler = &ExecCompiler{Binary: opts.SassBinary}
	}
	loadPaths := make([]string, len(opts.LoadPaths))
	for i, p := range opts.LoadPaths {
		loadPaths[i] = filepath.Join(env.Root, filepath.FromSlash(p))
	}

	files, err := env.Sources()
	if err != nil {
		return err
	}

	parts := make(map[string]string)
	var entries []string
	for _, f := range files {
		if strings.HasPrefix(filepath.Base(f.Path), "_") {
			continue
		}
		rel, _ := filepath.Rel(env.Root, f.Path)
		rel = filepath.ToSlash(rel)

		var css []byte
		switch strings.ToLower(filepath.Ext(f.Path)) {
		case ".css":
			css, err = os.ReadFile(f.Path)
		case ".scss", ".sass":
			css, err = compiler.Compile(ctx, f.Path, loadPaths)
		default:
			logger.Debug("Skipping non-style file.", "file", rel)
			continue
		}
		var compileErr *CompileError
		if errors.As(err, &compileErr) {
			logger.Error("Style compile failed.", "file", rel, "error", compileErr.Output)
			continue
		}
		if err != nil {
			return err
		}
		parts[rel] = string(css)
		entries = append(entries, rel)
	}
	if len(entries) == 0 {
		logger.Warn("No styles compiled.")
		return nil
	}

	// Each compiled entry is its own module so esbuild hoists @import rules
	// and drops repeated @charset rules across the bundle.
	var entry strings.Builder
	for _, rel := range entries {
		fmt.Fprintf(&entry, "@import %s;\n", strconv.Quote(partPrefix+rel))
	}

	logical := env.Task.Output
	if logical == "" {
		logical = DefaultOutput
	}
	settings := bundler.ForMode(env.Mode)
	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   entry.String(),
			ResolveDir: env.Root,
			Sourcefile: entryName,
			Loader:     api.LoaderCSS,
		},
		AbsWorkingDir:    env.Root,
		Outfile:          filepath.Join(env.OutputDir(), logical),
		Bundle:           true,
		Write:            false,
		Engines:          engines,
		Plugins:          []api.Plugin{compiledParts(env.Root, parts)},
		Sourcemap:        settings.Sourcemap,
		MinifyWhitespace: settings.Minify,
		MinifySyntax:     settings.Minify,
		LogLevel:         api.LogLevelSilent,
	})
	if err := bundler.FormatMessages(result.Errors); err != nil {
		return fmt.Errorf("failed to bundle styles: %w", err)
	}
	for _, w := range result.Warnings {
		logger.Debug("Style warning.", "message", bundler.FormatMessage(w))
	}

	var code, sourceMap []byte
	for _, f := range result.OutputFiles {
		if strings.HasSuffix(f.Path, ".map") {
			sourceMap = f.Contents
		} else {
			code = f.Contents
		}
	}
	if code == nil {
		return fmt.Errorf("esbuild returned no output for %s", logical)
	}

	name, err := env.BundleName(DefaultOutput, code)
	if err != nil {
		return err
	}
	out := filepath.Join(env.OutputDir(), name)
	if err := fsutil.WriteFile(out, code); err != nil {
		return err
	}
	if sourceMap != nil {
		if err := fsutil.WriteFile(out+".map", sourceMap); err != nil {
			return err
		}
	}
	logger.Debug("Styles written.", "file", out, "entries", len(entries))
	return nil
}

// compiledParts serves the compiled entries to esbuild from memory. url()
// references stay as written, relative to the served bundle.
func compiledParts(root string, parts map[string]string) api.Plugin {
	return api.Plugin{
		Name: "gridpipe-styles",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `^` + regexp.QuoteMeta(partPrefix)},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: strings.TrimPrefix(args.Path, partPrefix), Namespace: partNamespace}, nil
				})
			build.OnResolve(api.OnResolveOptions{Filter: `.*`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Kind != api.ResolveCSSURLToken {
						return api.OnResolveResult{}, nil
					}
					return api.OnResolveResult{Path: args.Path, External: true}, nil
				})
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: partNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					css, ok := parts[args.Path]
					if !ok {
						return api.OnLoadResult{}, fmt.Errorf("no compiled style for %s", args.Path)
					}
					return api.OnLoadResult{
						Contents:   &css,
						ResolveDir: filepath.Dir(filepath.Join(root, filepath.FromSlash(args.Path))),
						Loader:     api.LoaderCSS,
					}, nil
				})
		},
	}
}

// Register registers the task with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask("styles", &registry.RegisteredTask{
		Description: "Compile Sass into a single CSS bundle.",
		NeedsSource: true,
		Options:     Options{},
		Fn:          m.Run,
	})
}
