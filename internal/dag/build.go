package dag

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/gridpipe/internal/config"
	"github.com/vk/gridpipe/internal/ctxlog"
)

// builder compiles composition trees into a graph.
type builder struct {
	model   *config.Model
	profile *config.Profile
	graph   *Graph
	// seen counts occurrences per task name to derive unique node IDs.
	seen map[string]int
	// inlining is the chain of targets currently being expanded.
	inlining []string
}

// Build compiles the named target, as resolved for profile, into a graph.
// Target references are inlined; a target that (transitively) references
// itself is rejected.
func Build(ctx context.Context, model *config.Model, profile *config.Profile, target string) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)

	b := &builder{model: model, profile: profile, graph: New(), seen: make(map[string]int)}
	if _, _, err := b.compile(&config.Step{Kind: config.StepTarget, Name: target}); err != nil {
		return nil, err
	}
	if err := b.graph.DetectCycles(); err != nil {
		return nil, err
	}

	logger.Debug("Built execution graph.", "target", target, "nodes", b.graph.Len())
	return b.graph, nil
}

// Single returns a graph with one node running the named task.
func Single(task string) *Graph {
	g := New()
	g.AddNode(task, task)
	return g
}

// compile adds the nodes for step and returns the IDs of its entry nodes
// (those without predecessors inside the step) and exit nodes (those without
// successors inside the step).
func (b *builder) compile(step *config.Step) (entries, exits []string, err error) {
	switch step.Kind {
	case config.StepTask:
		id := step.Name
		if n := b.seen[step.Name]; n > 0 {
			id = fmt.Sprintf("%s#%d", step.Name, n)
		}
		b.seen[step.Name]++
		b.graph.AddNode(id, step.Name)
		return []string{id}, []string{id}, nil

	case config.StepTarget:
		for _, name := range b.inlining {
			if name == step.Name {
				chain := append(append([]string(nil), b.inlining...), step.Name)
				return nil, nil, fmt.Errorf("target cycle detected: %s", strings.Join(chain, " -> "))
			}
		}
		t, ok := b.model.Target(b.profile, step.Name)
		if !ok {
			return nil, nil, fmt.Errorf("unknown target %q", step.Name)
		}
		if t.Run == nil {
			return nil, nil, fmt.Errorf("target %q has nothing to run", step.Name)
		}
		b.inlining = append(b.inlining, step.Name)
		defer func() { b.inlining = b.inlining[:len(b.inlining)-1] }()
		return b.compile(t.Run)

	case config.StepSeries:
		var prev []string
		for i, child := range step.Children {
			in, out, err := b.compile(child)
			if err != nil {
				return nil, nil, err
			}
			for _, from := range prev {
				for _, to := range in {
					if err := b.graph.AddEdge(from, to); err != nil {
						return nil, nil, err
					}
				}
			}
			if i == 0 {
				entries = in
			}
			if len(out) > 0 {
				prev = out
			}
		}
		return entries, prev, nil

	case config.StepParallel:
		for _, child := range step.Children {
			in, out, err := b.compile(child)
			if err != nil {
				return nil, nil, err
			}
			entries = append(entries, in...)
			exits = append(exits, out...)
		}
		return entries, exits, nil
	}
	return nil, nil, fmt.Errorf("unknown step kind %q", step.Kind)
}
