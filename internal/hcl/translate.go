package hcl

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/gridpipe/internal/config"
	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

const (
	defaultProfile = "dist"
	defaultHost    = "localhost"
	defaultPort    = 3000
)

// translateTask converts the HCL-specific task schema into the agnostic model.
func (l *Loader) translateTask(b *taskBlock) (*config.Task, error) {
	reload, err := config.ParseReloadMode(b.Reload)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", b.Name, err)
	}
	t := &config.Task{
		Name:    b.Name,
		Src:     b.Src,
		Dest:    b.Dest,
		Output:  b.Output,
		Watch:   len(b.Src) > 0,
		Reload:  reload,
		Options: cty.EmptyObjectVal,
	}
	if b.Watch != nil {
		t.Watch = *b.Watch
	}
	if b.Options != nil {
		opts, err := l.extractBodyAttributes(b.Options.Body)
		if err != nil {
			return nil, fmt.Errorf("task %q options: %w", b.Name, err)
		}
		t.Options = opts
	}
	return t, nil
}

// extractBodyAttributes evaluates every attribute of a free-form body into a
// single cty object.
func (l *Loader) extractBodyAttributes(body hcl.Body) (cty.Value, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal, nil
	}
	vals := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return cty.NilVal, diags
		}
		vals[name] = v
	}
	return cty.ObjectVal(vals), nil
}

// translateTarget evaluates a target's run expression into a composition tree.
func (l *Loader) translateTarget(ctx context.Context, b *targetBlock) (*config.Target, error) {
	mode, err := config.ParseMode(b.Mode)
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", b.Name, err)
	}

	if b.Run == nil {
		return nil, fmt.Errorf("target %q: %w", b.Name, missingRun(hcl.Range{}))
	}
	evalCtx, diags := targetEvalContext(b.Run)
	if diags.HasErrors() {
		return nil, fmt.Errorf("target %q: %w", b.Name, diags)
	}
	val, diags := b.Run.Value(evalCtx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("target %q: %w", b.Name, diags)
	}
	// gohcl leaves an absent expression attribute as a static null.
	if val.IsNull() {
		return nil, fmt.Errorf("target %q: %w", b.Name, missingRun(b.Run.Range()))
	}
	run, err := stepFromValue(val)
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", b.Name, err)
	}

	ctxlog.FromContext(ctx).Debug("Translated target.", "target", b.Name, "mode", mode, "refs", referencedNames(b.Run))
	return &config.Target{
		Name:        b.Name,
		Description: b.Description,
		Mode:        mode,
		Run:         run,
	}, nil
}

func missingRun(rng hcl.Range) hcl.Diagnostics {
	d := &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "Missing required argument",
		Detail:   `The argument "run" is required, but no definition was found.`,
	}
	if rng.Filename != "" {
		d.Subject = rng.Ptr()
	}
	return hcl.Diagnostics{d}
}

// translateProfile converts a profile block, resolving its dest against root.
func (l *Loader) translateProfile(ctx context.Context, b *profileBlock) (*config.Profile, error) {
	p := &config.Profile{
		Name:      b.Name,
		Dest:      b.Dest,
		CacheBust: b.CacheBust,
		Targets:   make(map[string]*config.Target),
	}
	if p.Dest == "" {
		p.Dest = b.Name
	}
	if !filepath.IsAbs(p.Dest) {
		p.Dest = filepath.Join(l.root, filepath.FromSlash(p.Dest))
	}
	for _, tb := range b.Targets {
		if _, dup := p.Targets[tb.Name]; dup {
			return nil, fmt.Errorf("profile %q: target %q declared twice", b.Name, tb.Name)
		}
		t, err := l.translateTarget(ctx, tb)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", b.Name, err)
		}
		p.Targets[t.Name] = t
	}
	return p, nil
}

// merge translates one decoded file into the model. Tasks, targets and
// profiles must be unique across all files; server settings merge.
func (l *Loader) merge(ctx context.Context, model *config.Model, root *fileRoot, filename string) error {
	if s := root.Server; s != nil {
		if s.Host != nil {
			model.Server.Host = *s.Host
		}
		if s.Port != nil {
			model.Server.Port = *s.Port
		}
		if s.Inject != nil {
			model.Server.Inject = *s.Inject
		}
	}
	for _, b := range root.Tasks {
		if _, dup := model.Tasks[b.Name]; dup {
			return fmt.Errorf("%s: task %q declared twice", filename, b.Name)
		}
		t, err := l.translateTask(b)
		if err != nil {
			return fmt.Errorf("%s: %w", filename, err)
		}
		model.Tasks[t.Name] = t
	}
	for _, b := range root.Targets {
		if _, dup := model.Targets[b.Name]; dup {
			return fmt.Errorf("%s: target %q declared twice", filename, b.Name)
		}
		t, err := l.translateTarget(ctx, b)
		if err != nil {
			return fmt.Errorf("%s: %w", filename, err)
		}
		model.Targets[t.Name] = t
	}
	for _, b := range root.Profiles {
		if _, dup := model.Profiles[b.Name]; dup {
			return fmt.Errorf("%s: profile %q declared twice", filename, b.Name)
		}
		p, err := l.translateProfile(ctx, b)
		if err != nil {
			return fmt.Errorf("%s: %w", filename, err)
		}
		model.Profiles[p.Name] = p
	}
	return nil
}

// finalize applies defaults that depend on the whole model.
func (l *Loader) finalize(model *config.Model) error {
	if len(model.Profiles) == 0 {
		model.Profiles[defaultProfile] = &config.Profile{
			Name:    defaultProfile,
			Dest:    filepath.Join(l.root, defaultProfile),
			Targets: map[string]*config.Target{},
		}
	}
	if model.Server.Port < 0 || model.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", model.Server.Port)
	}

	dests := make(map[string]string)
	names := model.ProfileNames()
	sort.Strings(names)
	for _, name := range names {
		p := model.Profiles[name]
		if p.Dest == l.root {
			return fmt.Errorf("profile %q: dest must not be the project root, clean would delete it", name)
		}
		if other, ok := dests[p.Dest]; ok {
			return fmt.Errorf("profiles %q and %q share the destination %s", other, name, p.Dest)
		}
		dests[p.Dest] = name
	}
	return nil
}
