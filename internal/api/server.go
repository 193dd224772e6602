// Package api exposes the task tree over REST.
//
// The surface mirrors what the client session consumes:
//
//	GET    /tasks?parentId=&page=&limit=&includeSubtasks=
//	POST   /tasks
//	PUT    /tasks/{taskID}
//	PATCH  /tasks/{taskID}/complete
//	DELETE /tasks/{taskID}
//	GET    /health
//	GET    /ws        (mutation event feed)
//
// Mutations run through the store's transactional cascades; the server
// holds no tree state of its own.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/taskgrove/taskgrove/internal/query"
	"github.com/taskgrove/taskgrove/internal/store"
)

// Config holds server configuration.
type Config struct {
	// Addr to listen on, e.g. ":8080".
	Addr string

	Store  *store.Store
	Engine *query.Engine

	// Logger for server activity. Defaults to slog.Default().
	Logger *slog.Logger
}

// Server serves the REST surface and the event feed.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	store  *store.Store
	engine *query.Engine
	feed   *Feed

	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewServer creates a server. Start must be called to begin serving.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:   cfg.Addr,
		store:  cfg.Store,
		engine: cfg.Engine,
		feed:   NewFeed(logger),
		logger: logger,
	}
}

// Router returns the HTTP handler with all routes registered. Exposed
// so tests can drive the server through httptest without a listener.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/tasks", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/tasks", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{taskID}", s.handleUpdate).Methods(http.MethodPut)
	r.HandleFunc("/tasks/{taskID}/complete", s.handleComplete).Methods(http.MethodPatch)
	r.HandleFunc("/tasks/{taskID}", s.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.feed.handleWebSocket)
	return r
}

// Feed returns the mutation event feed.
func (s *Server) Feed() *Feed {
	return s.feed
}

// Start begins listening and serving. Non-blocking; call Stop to shut
// down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.feed.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("api server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")

	s.feed.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
