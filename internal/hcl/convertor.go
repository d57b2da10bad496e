package hcl

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/vk/gridpipe/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Converter is the HCL-specific implementation of the config.Converter interface.
type Converter struct{}

// NewConverter creates a new HCL converter.
func NewConverter() *Converter {
	return &Converter{}
}

// DecodeOptions populates the struct pointed to by target from an options
// object using reflection. Fields keep their current value when the
// attribute is absent or null, so callers set defaults before decoding.
func (c *Converter) DecodeOptions(ctx context.Context, options cty.Value, target any) error {
	logger := ctxlog.FromContext(ctx)

	structVal := reflect.ValueOf(target)
	if structVal.Kind() != reflect.Ptr || structVal.IsNil() || structVal.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("options target must be a non-nil pointer to a struct, got %T", target)
	}
	if options.IsNull() || !options.IsKnown() {
		return nil
	}
	if !options.Type().IsObjectType() {
		return fmt.Errorf("options must be an object, got %s", options.Type().FriendlyName())
	}

	fields := registry.OptionFields(structVal.Type())
	var unknown []string
	for name := range options.Type().AttributeTypes() {
		if _, ok := fields[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown options: %s", strings.Join(unknown, ", "))
	}

	elem := structVal.Elem()
	for name, field := range fields {
		if !options.Type().HasAttribute(name) {
			continue
		}
		val := options.GetAttr(name)
		if val.IsNull() {
			continue
		}
		if err := c.decode(ctx, val, elem.FieldByIndex(field.Index).Addr().Interface()); err != nil {
			return fmt.Errorf("failed to decode option '%s': %w", name, err)
		}
	}
	logger.Debug("Decoded task options.", "count", len(options.Type().AttributeTypes()))
	return nil
}

// decode handles the conversion and decoding of a cty.Value into a Go pointer.
func (c *Converter) decode(ctx context.Context, val cty.Value, goVal any) error {
	logger := ctxlog.FromContext(ctx)
	valPtr := reflect.ValueOf(goVal)
	if valPtr.Kind() != reflect.Ptr {
		return fmt.Errorf("target for decoding must be a pointer, got %T", goVal)
	}

	impliedType, err := gocty.ImpliedType(valPtr.Elem().Interface())
	if err != nil {
		logger.Debug("Could not imply cty.Type from Go type, attempting direct decoding.", "go_type", valPtr.Elem().Type().String(), "error", err)
		return gocty.FromCtyValue(val, goVal)
	}

	convertedVal, err := convert.Convert(val, impliedType)
	if err != nil {
		return fmt.Errorf("cannot convert %s to required type %s: %w", val.Type().FriendlyName(), impliedType.FriendlyName(), err)
	}

	if !val.Type().Equals(convertedVal.Type()) {
		logger.Debug("Implicitly converted value type.",
			"from", val.Type().FriendlyName(),
			"to", convertedVal.Type().FriendlyName(),
		)
	}

	return gocty.FromCtyValue(convertedVal, goVal)
}

// ToCtyValue converts a native Go value into its corresponding cty.Value.
func (c *Converter) ToCtyValue(v any) (cty.Value, error) {
	if v == nil {
		return cty.NilVal, nil
	}
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unable to infer cty.Type: %w", err)
	}
	return gocty.ToCtyValue(v, ty)
}
