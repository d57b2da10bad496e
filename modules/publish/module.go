package publish

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/vk/gridpipe/internal/registry"
	"github.com/vk/gridpipe/internal/task"
	"github.com/vk/gridpipe/modules/archive"
)

// URLEnv is the environment variable read when the task declares no url.
const URLEnv = "GRIDPIPE_PUBLISH_URL"

// Module implements the registry.Module interface for this package.
type Module struct{}

// httpClient is shared by all uploads to reuse TCP connections.
var httpClient = &http.Client{}

// Options are the settings accepted in the task's options block.
type Options struct {
	URL string `option:"url"`
	// File defaults to the archive of the current profile.
	File        string            `option:"file"`
	ContentType string            `option:"content_type"`
	Headers     map[string]string `option:"headers"`
}

// Run uploads the archive to a pre-signed URL with a single PUT.
func Run(ctx context.Context, env *task.Env) error {
	var opts Options
	if err := env.DecodeOptions(ctx, &opts); err != nil {
		return err
	}
	if opts.URL == "" {
		opts.URL = os.Getenv(URLEnv)
	}
	if opts.URL == "" {
		return fmt.Errorf("no upload url: set the url option or %s", URLEnv)
	}
	if opts.File == "" {
		opts.File = defaultFile(env)
	} else if !filepath.IsAbs(opts.File) {
		opts.File = filepath.Join(env.Root, filepath.FromSlash(opts.File))
	}
	return Upload(ctx, opts)
}

func defaultFile(env *task.Env) string {
	profile, output := "", ""
	if env.Profile != nil {
		profile = env.Profile.Name
	}
	if env.Model != nil {
		output = env.Model.Task("archive").Output
	}
	return archive.Path(env.Root, profile, output)
}

// Upload PUTs the file to opts.URL. 200, 201 and 204 count as success.
func Upload(ctx context.Context, opts Options) error {
	logger := ctxlog.FromContext(ctx).With("action", "upload")

	file, err := os.Open(opts.File)
	if err != nil {
		return fmt.Errorf("failed to open source file '%s': %w", opts.File, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file stats for '%s': %w", opts.File, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, opts.URL, file)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = contentTypeFor(opts.File)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	req.ContentLength = stat.Size()

	logger.Info("Uploading file.", "source", opts.File, "size", stat.Size(), "contentType", contentType)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload failed with status: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	logger.Info("Successfully uploaded file.", "status", resp.Status)
	return nil
}

func contentTypeFor(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz") {
		return "application/gzip"
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Register registers the task with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTask("publish", &registry.RegisteredTask{
		Description: "Upload the archive to a pre-signed URL.",
		Options:     Options{},
		Fn:          Run,
	})
}
