package devserver

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// healthHandler answers liveness probes.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// clientHandler serves the reload client. It speaks the socket.io protocol
// over a plain WebSocket, so pages reload without fetching a client library.
func clientHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, ClientPath, time.Time{}, bytes.NewReader(clientScript))
}

// staticHandler serves the destination directory. HTML documents are read
// into memory so the reload snippet can be injected; everything else goes
// through http.FileServer.
type staticHandler struct {
	dir    string
	inject bool
	files  http.Handler
	logger *slog.Logger
}

func newStaticHandler(dir string, inject bool, logger *slog.Logger) *staticHandler {
	return &staticHandler{dir: dir, inject: inject, files: http.FileServer(http.Dir(dir)), logger: logger}
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.inject || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		h.files.ServeHTTP(w, r)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(r.URL.Path, "/") {
		name = path.Join(name, "index.html")
	}
	if !strings.HasSuffix(name, ".html") {
		h.files.ServeHTTP(w, r)
		return
	}

	full := filepath.Join(h.dir, filepath.FromSlash(name))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.logger.Warn("Could not stat document.", "path", full, "error", err)
		}
		h.files.ServeHTTP(w, r)
		return
	}
	b, err := os.ReadFile(full)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(Inject(b)))
}
