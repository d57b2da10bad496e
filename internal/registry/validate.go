package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/vk/gridpipe/internal/config"
	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// OptionTag is the struct tag that binds an options field to its attribute.
const OptionTag = "option"

// Validate performs a strict parity check between the model and the compiled
// tasks: every referenced task and target exists, tasks that need sources
// have them, and declared options match the task's options struct by name
// and type.
func (r *Registry) Validate(ctx context.Context, model *config.Model) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, name := range model.TaskNames() {
		if _, ok := r.tasks[name]; !ok {
			errs = append(errs, fmt.Sprintf("task block '%s' does not match any registered task (known: %s)", name, strings.Join(r.Names(), ", ")))
		}
	}

	referenced := make(map[string]bool)
	check := func(scope string, t *config.Target, profile *config.Profile) {
		if t.Run == nil {
			errs = append(errs, fmt.Sprintf("%s '%s': target has no run expression", scope, t.Name))
			return
		}
		t.Run.Walk(func(s *config.Step) {
			switch s.Kind {
			case config.StepTask:
				referenced[s.Name] = true
				if _, ok := r.tasks[s.Name]; !ok {
					errs = append(errs, fmt.Sprintf("%s '%s': references unregistered task '%s'", scope, t.Name, s.Name))
				}
			case config.StepTarget:
				if _, ok := model.Target(profile, s.Name); !ok {
					errs = append(errs, fmt.Sprintf("%s '%s': references unknown target '%s'", scope, t.Name, s.Name))
				}
			}
		})
	}
	for _, name := range sortedTargetNames(model.Targets) {
		check("target", model.Targets[name], nil)
	}
	for _, pname := range model.ProfileNames() {
		p := model.Profiles[pname]
		for _, name := range sortedTargetNames(p.Targets) {
			check("profile '"+pname+"' target", p.Targets[name], p)
		}
	}

	for _, name := range sortedBoolKeys(referenced) {
		rt, ok := r.tasks[name]
		if !ok {
			continue
		}
		decl := model.Task(name)
		if rt.NeedsSource && len(decl.Src) == 0 {
			errs = append(errs, fmt.Sprintf("task '%s': requires at least one src glob", name))
		}
	}

	for _, name := range model.TaskNames() {
		rt, ok := r.tasks[name]
		if !ok {
			continue
		}
		errs = append(errs, validateOptions(name, model.Tasks[name].Options, rt.Options)...)
		if len(model.Tasks[name].Src) > 0 && !referenced[name] {
			logger.Debug("Task declares sources but no target runs it.", "task", name)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func validateOptions(taskName string, options cty.Value, goOptions any) []string {
	if options.IsNull() || !options.Type().IsObjectType() || len(options.Type().AttributeTypes()) == 0 {
		return nil
	}
	if goOptions == nil {
		return []string{fmt.Sprintf("task '%s': takes no options, but the pipeline declares some", taskName)}
	}

	fields := OptionFields(reflect.TypeOf(goOptions))
	var errs []string
	attrs := options.Type().AttributeTypes()
	names := make([]string, 0, len(attrs))
	for n := range attrs {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		field, ok := fields[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("task '%s': unknown option '%s'", taskName, name))
			continue
		}
		want, err := gocty.ImpliedType(reflect.Zero(field.Type).Interface())
		if err != nil {
			errs = append(errs, fmt.Sprintf("task '%s', option '%s': could not imply cty type from Go field type %s: %v", taskName, name, field.Type, err))
			continue
		}
		if _, err := convert.Convert(options.GetAttr(name), want); err != nil {
			errs = append(errs, fmt.Sprintf("task '%s', option '%s': type mismatch, Go struct field '%s' requires %s: %v",
				taskName, name, field.Name, want.FriendlyName(), err))
		}
	}
	return errs
}

// OptionFields maps option attribute names to the struct fields tagged with
// them. t may be a struct type or a pointer to one.
func OptionFields(t reflect.Type) map[string]reflect.StructField {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	fields := make(map[string]reflect.StructField)
	if t.Kind() != reflect.Struct {
		return fields
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := strings.Split(f.Tag.Get(OptionTag), ",")[0]
		if tag != "" && tag != "-" {
			fields[tag] = f
		}
	}
	return fields
}

func sortedTargetNames(m map[string]*config.Target) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func sortedBoolKeys(m map[string]bool) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
