// Package hcl provides the concrete HCL implementation for the pipeline
// loading and option decoding interfaces defined in the `config` package.
// It is responsible for file parsing, evaluating the `series(...)` and
// `parallel(...)` composition expressions of targets, HCL-to-model
// translation, and CTY-to-Go binding of task options.
package hcl
