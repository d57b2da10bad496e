package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/gridpipe/internal/config"
	"github.com/vk/gridpipe/internal/ctxlog"
	"github.com/zishang520/engine.io/v2/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io/v2/socket"
)

// Socket events exchanged with browsers and CLI clients.
const (
	EventReload        = "browser:reload"
	EventStream        = "file:reload"
	EventRequestReload = "gridpipe:reload"
)

// SocketPath is where the socket.io endpoint is mounted.
const SocketPath = "/socket.io/"

// ClientPath serves the embedded reload client that injected pages load.
const ClientPath = "/gridpipe/client.js"

// Server is the development server.
type Server struct {
	cfg    config.Server
	dir    string
	logger *slog.Logger

	io      *socket.Server
	handler http.Handler
	clients atomic.Int32
	reloads atomic.Int64
	streams atomic.Int64

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
}

// New creates a server for the files in dir. It does not listen until Start.
func New(ctx context.Context, dir string, cfg config.Server) *Server {
	s := &Server{cfg: cfg, dir: dir, logger: ctxlog.FromContext(ctx).With("component", "devserver")}

	opts := socket.DefaultServerOptions()
	opts.SetTransports(types.NewSet(transports.POLLING, transports.WEBSOCKET))
	opts.SetPingInterval(10 * time.Second)
	s.io = socket.NewServer(nil, opts)
	s.io.On("connection", s.onConnection)

	mux := http.NewServeMux()
	mux.Handle(SocketPath, s.io.ServeHandler(nil))
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc(ClientPath, clientHandler)
	mux.Handle("/", newStaticHandler(dir, cfg.Inject, s.logger))
	s.handler = mux
	return s
}

func (s *Server) onConnection(clients ...any) {
	c, ok := clients[0].(*socket.Socket)
	if !ok {
		return
	}
	s.clients.Add(1)
	s.logger.Debug("Client connected.", "sid", c.Id())

	c.On("disconnect", func(reason ...any) {
		s.clients.Add(-1)
		s.logger.Debug("Client disconnected.", "sid", c.Id(), "reason", reason)
	})
	c.On(EventRequestReload, func(...any) {
		s.logger.Info("Reload requested by client.", "sid", c.Id())
		s.Reload()
	})
}

// Handler returns the HTTP handler serving files, /health and socket.io.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http != nil {
		return errors.New("dev server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("dev server listen on %s: %w", s.cfg.Addr(), err)
	}
	s.listener = ln
	s.http = &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Dev server failed unexpectedly.", "error", err)
		}
	}(s.http)

	s.logger.Info("Dev server started.", "url", s.urlLocked(), "dir", s.dir)
	return nil
}

// URL returns the base URL of a started server, or "" before Start.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.urlLocked()
}

func (s *Server) urlLocked() string {
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String()
}

// Reload asks every connected browser to reload the page.
func (s *Server) Reload() {
	s.reloads.Add(1)
	s.logger.Debug("Broadcasting reload.", "clients", s.clients.Load())
	s.io.Emit(EventReload)
}

// Stream asks every connected browser to swap the given files in place.
func (s *Server) Stream(paths ...string) {
	for _, p := range paths {
		s.streams.Add(1)
		s.logger.Debug("Broadcasting file change.", "path", p, "clients", s.clients.Load())
		s.io.Emit(EventStream, p)
	}
}

// Stats reports connected clients and the notifications sent so far.
func (s *Server) Stats() (clients int, reloads, streams int64) {
	return int(s.clients.Load()), s.reloads.Load(), s.streams.Load()
}

// Close disconnects every client and shuts the HTTP server down.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	s.io.Close(nil)
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("dev server shutdown: %w", err)
	}
	s.logger.Debug("Dev server shut down gracefully.")
	return nil
}
