package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type Server struct {
	srv *http.Server
	log *slog.Logger
}

type Options struct {
	addr string
	log  *slog.Logger
}

func NewServer(handler http.Handler, opts ...Option) *Server {
	sOpts := Options{
		addr: "0.0.0.0:8080",
		log:  slog.New(&slog.JSONHandler{}),
	}

	for _, opt := range opts {
		opt(&sOpts)
	}

	srv := &http.Server{
		Addr:              sOpts.addr,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return &Server{
		srv: srv,
		log: sOpts.log,
	}
}

type Option func(o *Options)

func WithServerAddr(addr string) Option {
	return func(o *Options) {
		o.addr = addr
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.log = logger
	}
}

func (s *Server) Start() error {
	s.log.Info(fmt.Sprintf("Starting server on %s", s.srv.Addr))

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}

	return nil
}
