package llmproxy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// Status is the proxy control surface's snapshot for GET /proxy/status.
type Status struct {
	Running bool   `json:"running"`
	Addr    string `json:"addr,omitempty"`
}

// Supervisor starts and stops the Router's listener in-process, the
// proxy-control surface spec.md §4.8 describes as spawning the proxy
// "as a child unit on a configured port" — here a managed goroutine and
// http.Server rather than a separate OS process, since this proxy (unlike
// the teacher's TLS-intercepting gateway) carries no certificate material
// that would need process isolation.
type Supervisor struct {
	router *Router
	addr   string
	logger *slog.Logger

	mu     sync.Mutex
	server *http.Server
	errCh  chan error
}

// NewSupervisor builds a Supervisor that listens on addr when started.
func NewSupervisor(router *Router, addr string, logger *slog.Logger) *Supervisor {
	return &Supervisor{router: router, addr: addr, logger: logger}
}

// ErrAlreadyRunning is returned by Start when the proxy is already listening.
var ErrAlreadyRunning = errors.New("llmproxy: already running")

// ErrNotRunning is returned by Stop when the proxy is not listening.
var ErrNotRunning = errors.New("llmproxy: not running")

// Start begins listening on the configured address in a background
// goroutine. It returns once the listener is bound (or fails to bind).
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return ErrAlreadyRunning
	}

	srv := &http.Server{Addr: s.addr, Handler: s.router}
	ready := make(chan error, 1)
	go func() {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			ready <- err
			return
		}
		ready <- nil
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("llmproxy: listener exited", "error", err)
		}
	}()

	if err := <-ready; err != nil {
		return err
	}
	s.server = srv
	return nil
}

// Stop gracefully shuts down the listener, draining in-flight requests
// within timeout.
func (s *Supervisor) Stop(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return ErrNotRunning
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Status reports whether the proxy is currently listening.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Running: s.server != nil, Addr: s.addr}
}
