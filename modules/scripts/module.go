package scripts

import (
	"context"
	"fmt"
	"path/filepath"
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
const DefaultOutput = "bundle.min.js"

const entryName = "gridpipe-entry.js"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Options are the settings accepted in the task's options block.
type Options struct {
	Target     string            `option:"target"`
	Format     string            `option:"format"`
	GlobalName string            `option:"global_name"`
	External   []string          `option:"external"`
	Define     map[string]string `option:"define"`
}

// Run bundles every matched script into a single file. The matched files are
// imported, in path order, by a synthesized entry module.
func Run(ctx context.Context, env *task.Env) error {
	logger := ctxlog.FromContext(ctx)

	opts := Options{Target: "es2015", Format: "iife"}
	if err := env.DecodeOptions(ctx, &opts); err != nil {
		return err
	}
	target, err := bundler.ParseTarget(opts.Target)
	if err != nil {
		return err
	}
	format, err := bundler.ParseFormat(opts.Format)
	if err != nil {
		return err
	}

	files, err := env.Sources()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logger.Warn("No scripts matched.")
		return nil
	}

	var entry strings.Builder
	for _, f := range files {
		rel, err := filepath.Rel(env.Root, f.Path)
		if err != nil {
			return err
		}
		fmt.Fprintf(&entry, "import %s;\n", strconv.Quote("./"+filepath.ToSlash(rel)))
	}

	define := map[string]string{"process.env.NODE_ENV": strconv.Quote(string(env.Mode))}
	for k, v := range opts.Define {
		define[k] = v
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
			Loader:     api.LoaderJS,
		},
		AbsWorkingDir:     env.Root,
		Outfile:           filepath.Join(env.OutputDir(), logical),
		Bundle:            true,
		Write:             false,
		Format:            format,
		GlobalName:        opts.GlobalName,
		Platform:          api.PlatformBrowser,
		Target:            target,
		Define:            define,
		External:          opts.External,
		Sourcemap:         settings.Sourcemap,
		MinifyWhitespace:  settings.Minify,
		MinifyIdentifiers: settings.Minify,
		MinifySyntax:      settings.Minify,
		LogLevel:          api.LogLevelSilent,
	})
	if err := bundler.FormatMessages(result.Errors); err != nil {
		return fmt.Errorf("failed to bundle scripts: %w", err)
	}
	for _, w := range result.Warnings {
		logger.Debug("Script warning.", "message", bundler.FormatMessage(w))
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
	logger.Debug("Scripts written.", "file", out, "entries", len(files))
	return nil
}

// Register registers the task with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask("scripts", &registry.RegisteredTask{
		Description: "Bundle scripts into a single browser file.",
		NeedsSource: true,
		Options:     Options{},
		Fn:          Run,
	})
}
