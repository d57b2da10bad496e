package clean

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/vk/gridpipe/internal/registry"
	"github.com/vk/gridpipe/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Run removes the profile destination directory.
func Run(ctx context.Context, env *task.Env) error {
	logger := ctxlog.FromContext(ctx)

	if err := checkDest(env.Root, env.Dest); err != nil {
		return err
	}
	if _, err := os.Stat(env.Dest); os.IsNotExist(err) {
		logger.Debug("Destination does not exist, nothing to clean.", "dest", env.Dest)
		return nil
	}
	if err := os.RemoveAll(env.Dest); err != nil {
		return fmt.Errorf("failed to remove %s: %w", env.Dest, err)
	}
	logger.Debug("Destination removed.", "dest", env.Dest)
	return nil
}

// checkDest refuses to delete anything that is not strictly inside root.
func checkDest(root, dest string) error {
	if dest == "" {
		return fmt.Errorf("clean: destination is empty")
	}
	rel, err := filepath.Rel(root, dest)
	if err != nil {
		return fmt.Errorf("clean: %w", err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("clean: refusing to remove %s outside of project %s", dest, root)
	}
	return nil
}

// Register registers the task with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask("clean", &registry.RegisteredTask{
		Description: "Remove the destination directory.",
		Fn:          Run,
	})
}
