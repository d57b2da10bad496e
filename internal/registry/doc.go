// Package registry provides the central "glue" between pipeline files and
// compiled task code.
//
// Modules register their tasks under the names pipeline files refer to
// (`task.styles`), together with a description, whether the task needs
// source globs, and the Go struct its options decode into. At startup the
// registry is validated against the loaded model so that a typo in a task
// name or an unknown option fails before any task runs.
package registry
