package serve

import (
	"context"
	"errors"

	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/vk/gridpipe/internal/registry"
	"github.com/vk/gridpipe/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// ErrNoServer is returned when the run has no dev server to start.
var ErrNoServer = errors.New("no dev server configured for this run")

// Run starts the dev server. The server keeps serving after Run returns and
// is closed by the application when the run ends. When nothing else holds
// the run open, Run blocks until ctx is done.
func Run(ctx context.Context, env *task.Env) error {
	logger := ctxlog.FromContext(ctx)
	if env.Server == nil {
		return ErrNoServer
	}
	if err := env.Server.Start(ctx); err != nil {
		return err
	}
	logger.Debug("Dev server started.")
	if !env.Hold {
		return nil
	}
	logger.Info("Serving until interrupted.")
	<-ctx.Done()
	return nil
}

// Register registers the task with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask("serve", &registry.RegisteredTask{
		Description: "Serve the destination directory with live reload.",
		NeedsServer: true,
		Fn:          Run,
	})
}
