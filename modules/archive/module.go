package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/vk/gridpipe/internal/registry"
	"github.com/vk/gridpipe/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Options are the settings accepted in the task's options block.
type Options struct {
	// Prefix is a directory every entry is placed under inside the archive.
	Prefix string `option:"prefix"`
}

// epoch is the modification time of every entry, so that identical trees
// produce identical archives.
var epoch = time.Unix(0, 0).UTC()

// Path returns where the archive of a profile is written: output relative to
// root when set, otherwise <root>/<profile>.tar.gz.
func Path(root, profile, output string) string {
	if output == "" {
		output = profile + ".tar.gz"
	}
	if filepath.IsAbs(output) {
		return output
	}
	return filepath.Join(root, filepath.FromSlash(output))
}

// Run packs the profile destination directory into a gzipped tarball.
func Run(ctx context.Context, env *task.Env) error {
	logger := ctxlog.FromContext(ctx)

	var opts Options
	if err := env.DecodeOptions(ctx, &opts); err != nil {
		return err
	}
	profile := ""
	if env.Profile != nil {
		profile = env.Profile.Name
	}
	out := Path(env.Root, profile, env.Task.Output)
	if rel, err := filepath.Rel(env.Dest, out); err == nil && !strings.HasPrefix(rel, "..") {
		return fmt.Errorf("archive %s must not be inside the destination %s", out, env.Dest)
	}
	if info, err := os.Stat(env.Dest); err != nil || !info.IsDir() {
		return fmt.Errorf("nothing to archive: %s is not a directory", env.Dest)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), ".gridpipe-archive-*")
	if err != nil {
		return fmt.Errorf("error creating archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := Write(ctx, tmp, env.Dest, opts.Prefix)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return fmt.Errorf("error moving archive into place: %w", err)
	}
	logger.Info("Archive written.", "file", out, "entries", n)
	return nil
}

// Write streams a reproducible tar.gz of dir to w: entries in lexical order,
// fixed timestamps and ownership, normalized permissions. It returns the
// number of entries written.
func Write(ctx context.Context, w io.Writer, dir, prefix string) (int, error) {
	gz := gzip.NewWriter(w)
	gz.ModTime = epoch
	tw := tar.NewWriter(gz)

	prefix = strings.Trim(filepath.ToSlash(prefix), "/")
	n := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := path.Join(prefix, filepath.ToSlash(rel))

		info, err := d.Info()
		if err != nil {
			return err
		}
		header := &tar.Header{Name: name, ModTime: epoch, Format: tar.FormatPAX}
		switch {
		case info.IsDir():
			header.Typeflag = tar.TypeDir
			header.Name += "/"
			header.Mode = 0o755
		case info.Mode().IsRegular():
			header.Typeflag = tar.TypeReg
			header.Mode = 0o644
			header.Size = info.Size()
		default:
			ctxlog.FromContext(ctx).Debug("Skipping non-regular file.", "path", p)
			return nil
		}

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("error writing tar header for %s: %w", name, err)
		}
		n++
		if header.Typeflag != tar.TypeReg {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("error writing file content for %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return n, err
	}
	if err := tw.Close(); err != nil {
		return n, err
	}
	return n, gz.Close()
}

// Register registers the task with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask("archive", &registry.RegisteredTask{
		Description: "Pack the destination directory into a tar.gz archive.",
		Options:     Options{},
		Fn:          Run,
	})
}
