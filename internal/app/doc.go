// Package app contains the core application logic. It loads the pipeline,
// registers the task modules, and runs a target or a single task, decoupled
// from any specific entrypoint like a CLI.
package app
