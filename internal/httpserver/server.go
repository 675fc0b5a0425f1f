package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	readHeaderTimeout   = 5 * time.Second
	idleTimeout         = 120 * time.Second
	defaultWriteTimeout = 60 * time.Second
)

// Server wraps the http.Server with sensible defaults.
type Server struct {
	inner *http.Server
}

// Options tune the server timeouts. Streaming handlers lift the write
// deadline per request.
type Options struct {
	Port         int
	WriteTimeout time.Duration
}

// New constructs a server listening on the configured port.
func New(opts Options, handler http.Handler) *Server {
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	return s.inner.Serve(l)
}

// Shutdown gracefully terminates the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
