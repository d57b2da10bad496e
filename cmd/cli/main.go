package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/vk/gridpipe/internal/app"
	"github.com/vk/gridpipe/internal/cli"
	"github.com/vk/gridpipe/internal/devserver"
	"github.com/vk/gridpipe/internal/hcl"
)

// main is the entrypoint for the gridpipe application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) (err error) {
	inv, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	if inv.Action == cli.ActionReload {
		return devserver.RequestReload(ctx, inv.URL)
	}

	// The app panics on critical config errors; report them as a failed run.
	defer func() {
		if r := recover(); r != nil {
			err = &cli.ExitError{Code: 1, Message: fmt.Sprintf("application startup panicked: %v", r)}
		}
	}()

	cfg := inv.Config
	if cfg.ConfigPath == "" {
		if _, statErr := os.Stat(filepath.Join(cfg.Root, hcl.DefaultFilename)); statErr == nil {
			cfg.ConfigPath = hcl.DefaultFilename
		}
	}

	gridpipeApp := app.NewApp(outW, cfg, hcl.NewLoader(cfg.Root))

	if inv.Action == cli.ActionList {
		listing, err := gridpipeApp.Describe(cfg.Profile)
		if err != nil {
			return &cli.ExitError{Code: 2, Message: err.Error()}
		}
		return app.WriteListing(outW, listing, inv.Format)
	}

	if err := gridpipeApp.Run(ctx, cfg); err != nil {
		return &cli.ExitError{Code: 1, Message: err.Error()}
	}
	return nil
}
