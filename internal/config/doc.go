// Package config defines the format-agnostic model of a pipeline file, along
// with the interfaces (Loader, Converter) for loading it and for decoding the
// free-form task options into module structs.
//
// The `config.Model` is the single source of truth for the `registry`, `dag`
// and `watcher` packages. The HCL implementation lives in `internal/hcl`.
package config
