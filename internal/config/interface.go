package config

import (
	"context"

	"github.com/zclconf/go-cty/cty"
)

// Loader is the interface for a format-specific pipeline loader.
type Loader interface {
	// Load reads the pipeline from the given paths (files or directories),
	// translates it into the format-agnostic model, and returns a matching
	// Converter. With no paths the loader falls back to its built-in pipeline.
	Load(ctx context.Context, paths ...string) (*Model, Converter, error)
}

// Converter binds the raw task options to the Go types used by modules.
type Converter interface {
	// DecodeOptions decodes an options object into the struct pointed to by
	// target. Fields are matched by their `option` struct tag; attributes
	// without a matching field are rejected.
	DecodeOptions(ctx context.Context, options cty.Value, target any) error

	// ToCtyValue converts a native Go value into its equivalent cty.Value.
	ToCtyValue(v any) (cty.Value, error)
}
