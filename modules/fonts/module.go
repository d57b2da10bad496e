package fonts

import (
	"context"
	"fmt"

	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/vk/gridpipe/internal/fsutil"
	"github.com/vk/gridpipe/internal/registry"
	"github.com/vk/gridpipe/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Run copies every matched font file into the task's output directory.
func Run(ctx context.Context, env *task.Env) error {
	files, err := env.Sources()
	if err != nil {
		return err
	}
	n, err := fsutil.CopyAll(files, env.OutputDir())
	if err != nil {
		return fmt.Errorf("failed to copy fonts: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Fonts copied.", "count", n, "dest", env.OutputDir())
	return nil
}

// Register registers the task with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask("fonts", &registry.RegisteredTask{
		Description: "Copy font files.",
		NeedsSource: true,
		Fn:          Run,
	})
}
