package hcl

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/gridpipe/internal/config"
	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/vk/gridpipe/internal/fsutil"
)

// DefaultFilename is the pipeline file looked up in the project root.
const DefaultFilename = "gridpipe.hcl"

//go:embed default.hcl
var defaultPipeline []byte

// DefaultPipeline returns the built-in pipeline source.
func DefaultPipeline() []byte {
	return append([]byte(nil), defaultPipeline...)
}

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	root string
}

// NewLoader creates a loader resolving relative destinations against root.
func NewLoader(root string) *Loader {
	return &Loader{root: root}
}

// Load parses every .hcl file found under paths and merges them into one
// model. With no paths the embedded default pipeline is used.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths), "root", l.root)

	model := &config.Model{
		Root:     l.root,
		Tasks:    make(map[string]*config.Task),
		Profiles: make(map[string]*config.Profile),
		Targets:  make(map[string]*config.Target),
		Server:   &config.Server{Host: defaultHost, Port: defaultPort, Inject: true},
	}

	parser := hclparse.NewParser()
	var files []*hcl.File
	var names []string

	if len(paths) == 0 {
		f, diags := parser.ParseHCL(defaultPipeline, "default.hcl")
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to parse built-in pipeline: %w", diags)
		}
		files, names = append(files, f), append(names, "default.hcl")
		logger.Debug("Using built-in pipeline.")
	} else {
		hclFiles, err := l.findAllHCLFiles(paths)
		if err != nil {
			return nil, nil, err
		}
		if len(hclFiles) == 0 {
			return nil, nil, fmt.Errorf("no .hcl pipeline files found in %v", paths)
		}
		logger.Debug("Discovered HCL files.", "count", len(hclFiles))
		for _, file := range hclFiles {
			f, diags := parser.ParseHCLFile(file)
			if diags.HasErrors() {
				return nil, nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
			}
			files, names = append(files, f), append(names, file)
		}
	}

	for i, f := range files {
		var root fileRoot
		if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to decode HCL file %s: %w", names[i], diags)
		}
		if err := l.merge(ctx, model, &root, names[i]); err != nil {
			return nil, nil, err
		}
	}
	if err := l.finalize(model); err != nil {
		return nil, nil, err
	}

	logger.Debug("HCL loading complete.", "tasks", len(model.Tasks), "targets", len(model.Targets), "profiles", len(model.Profiles))
	return model, NewConverter(), nil
}

// findAllHCLFiles expands directories and returns a flat, de-duplicated list
// of .hcl files. A path that does not exist is an error.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			allFiles = append(allFiles, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing pipeline path %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			add(filepath.Clean(f))
		}
	}
	return allFiles, nil
}
