package hcl

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/gridpipe/internal/config"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Composition values are cty objects {kind, name, steps}; refValue builds the
// leaves bound to `task.<name>` and `target.<name>`.
func refValue(kind config.StepKind, name string) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"kind":  cty.StringVal(string(kind)),
		"name":  cty.StringVal(name),
		"steps": cty.EmptyTupleVal,
	})
}

// compositionFunc returns the cty function implementing series or parallel.
func compositionFunc(kind config.StepKind) function.Function {
	return function.New(&function.Spec{
		Description: fmt.Sprintf("Composes steps with %s semantics.", kind),
		VarParam: &function.Parameter{
			Name: "steps",
			Type: cty.DynamicPseudoType,
		},
		Type: function.StaticReturnType(cty.DynamicPseudoType),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			if len(args) == 0 {
				return cty.NilVal, fmt.Errorf("%s requires at least one step", kind)
			}
			for i, arg := range args {
				if !isStepValue(arg) {
					return cty.NilVal, function.NewArgErrorf(i, "expected task.<name>, target.<name>, series(...) or parallel(...), got %s", arg.Type().FriendlyName())
				}
			}
			return cty.ObjectVal(map[string]cty.Value{
				"kind":  cty.StringVal(string(kind)),
				"name":  cty.StringVal(""),
				"steps": cty.TupleVal(args),
			}), nil
		},
	})
}

func isStepValue(v cty.Value) bool {
	ty := v.Type()
	return !v.IsNull() && ty.IsObjectType() && ty.HasAttribute("kind") && ty.HasAttribute("name") && ty.HasAttribute("steps")
}

// targetEvalContext builds the evaluation context for a target's run
// expression: the composition functions plus one object per reference root
// holding exactly the names the expression refers to.
func targetEvalContext(expr hcl.Expression) (*hcl.EvalContext, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	refs := map[string]map[string]cty.Value{
		string(config.StepTask):   {},
		string(config.StepTarget): {},
	}

	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		bucket, ok := refs[root]
		if !ok {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unknown reference",
				Detail:   fmt.Sprintf("%q is not a valid reference root; use task.<name> or target.<name>.", root),
				Subject:  traversal.SourceRange().Ptr(),
			})
			continue
		}
		if len(traversal) < 2 {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Incomplete reference",
				Detail:   fmt.Sprintf("A %s reference needs a name, e.g. %s.styles.", root, root),
				Subject:  traversal.SourceRange().Ptr(),
			})
			continue
		}
		attr, ok := traversal[1].(hcl.TraverseAttr)
		if !ok {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid reference",
				Detail:   fmt.Sprintf("Use %s.<name> to refer to a %s.", root, root),
				Subject:  traversal.SourceRange().Ptr(),
			})
			continue
		}
		bucket[attr.Name] = refValue(config.StepKind(root), attr.Name)
	}

	vars := make(map[string]cty.Value, len(refs))
	for root, bucket := range refs {
		vars[root] = cty.ObjectVal(bucket)
	}
	return &hcl.EvalContext{
		Variables: vars,
		Functions: map[string]function.Function{
			string(config.StepSeries):   compositionFunc(config.StepSeries),
			string(config.StepParallel): compositionFunc(config.StepParallel),
		},
	}, diags
}

// stepFromValue converts an evaluated composition value into a config.Step.
func stepFromValue(v cty.Value) (*config.Step, error) {
	if !v.IsWhollyKnown() || !isStepValue(v) {
		return nil, fmt.Errorf("run must be task.<name>, target.<name>, series(...) or parallel(...), got %s", v.Type().FriendlyName())
	}
	step := &config.Step{
		Kind: config.StepKind(v.GetAttr("kind").AsString()),
		Name: v.GetAttr("name").AsString(),
	}
	for it := v.GetAttr("steps").ElementIterator(); it.Next(); {
		_, child := it.Element()
		c, err := stepFromValue(child)
		if err != nil {
			return nil, err
		}
		step.Children = append(step.Children, c)
	}
	return step, nil
}

// referencedNames lists the task and target names an expression refers to,
// for error messages and debug logging.
func referencedNames(expr hcl.Expression) []string {
	var names []string
	for _, tr := range expr.Variables() {
		if len(tr) < 2 {
			continue
		}
		if a, ok := tr[1].(hcl.TraverseAttr); ok {
			names = append(names, tr.RootName()+"."+a.Name)
		}
	}
	sort.Strings(names)
	return names
}
