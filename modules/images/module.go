package images

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/vk/gridpipe/internal/fsutil"
	"github.com/vk/gridpipe/internal/registry"
	"github.com/vk/gridpipe/internal/task"
	"golang.org/x/sync/errgroup"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Options are the settings accepted in the task's options block.
type Options struct {
	JPEGQuality int `option:"jpeg_quality"`
	// Optimize forces optimization on or off regardless of mode.
	Optimize    *bool `option:"optimize"`
	Concurrency int   `option:"concurrency"`
}

func defaultOptions() Options {
	return Options{JPEGQuality: 75, Concurrency: runtime.NumCPU()}
}

// Run copies matched images into the output directory, optimizing them in
// production mode.
func Run(ctx context.Context, env *task.Env) error {
	logger := ctxlog.FromContext(ctx)

	opts := defaultOptions()
	if err := env.DecodeOptions(ctx, &opts); err != nil {
		return err
	}
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", opts.JPEGQuality)
	}
	optimize := env.Mode.IsProduction()
	if opts.Optimize != nil {
		optimize = *opts.Optimize
	}

	files, err := env.Sources()
	if err != nil {
		return err
	}
	outDir := env.OutputDir()
	if !optimize {
		n, err := fsutil.CopyAll(files, outDir)
		if err != nil {
			return fmt.Errorf("failed to copy images: %w", err)
		}
		logger.Debug("Images copied.", "count", n)
		return nil
	}

	o := newOptimizer(opts.JPEGQuality)
	var before, after atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for _, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			in, err := os.ReadFile(f.Path)
			if err != nil {
				return err
			}
			out, err := o.Optimize(filepath.Ext(f.Path), in)
			if err != nil {
				return fmt.Errorf("failed to optimize %s: %w", f.Path, err)
			}
			before.Add(int64(len(in)))
			after.Add(int64(len(out)))
			return fsutil.WriteFile(filepath.Join(outDir, filepath.FromSlash(f.Rel)), out)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Images optimized.", "count", len(files), "bytes_before", before.Load(), "bytes_after", after.Load())
	return nil
}

// Optimizer re-encodes images, keeping whichever of the original and the
// re-encoded bytes is smaller.
type Optimizer struct {
	quality int
	min     *minify.M
}

func newOptimizer(quality int) *Optimizer {
	m := minify.New()
	m.Add("image/svg+xml", &svg.Minifier{})
	return &Optimizer{quality: quality, min: m}
}

// Optimize returns the optimized form of data for a file with extension ext.
// Formats without an encoder (gif, webp, ico, ...) are returned unchanged.
func (o *Optimizer) Optimize(ext string, data []byte) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch strings.ToLower(ext) {
	case ".png":
		out, err = o.png(data)
	case ".jpg", ".jpeg":
		out, err = o.jpeg(data)
	case ".svg":
		out, err = o.min.Bytes("image/svg+xml", data)
	default:
		return data, nil
	}
	if err != nil {
		return nil, err
	}
	if len(out) < len(data) {
		return out, nil
	}
	return data, nil
}

func (o *Optimizer) png(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Optimizer) jpeg(data []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: o.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Register registers the task with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask("images", &registry.RegisteredTask{
		Description: "Copy images, optimizing them in production.",
		NeedsSource: true,
		Options:     Options{},
		Fn:          Run,
	})
}
