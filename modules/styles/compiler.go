package styles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Compiler turns one Sass entry file into CSS.
type Compiler interface {
	Compile(ctx context.Context, file string, loadPaths []string) ([]byte, error)
}

// CompileError is a Sass syntax or semantic error in a source file. The task
// logs it and carries on.
type CompileError struct {
	File   string
	Output string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("failed to compile %s: %s", e.File, e.Output)
}

// ExecCompiler runs the Dart Sass command line.
type ExecCompiler struct {
	Binary string
}

// Compile runs sass on file and returns the expanded CSS from its stdout.
func (c *ExecCompiler) Compile(ctx context.Context, file string, loadPaths []string) ([]byte, error) {
	args := []string{"--no-source-map", "--style=expanded", "--load-path=" + filepath.Dir(file)}
	for _, p := range loadPaths {
		args = append(args, "--load-path="+p)
	}
	args = append(args, file)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return stdout.Bytes(), nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.As(err, &exitErr):
		return nil, &CompileError{File: file, Output: strings.TrimSpace(stderr.String())}
	default:
		return nil, fmt.Errorf("failed to run sass binary %q: %w", c.Binary, err)
	}
}
