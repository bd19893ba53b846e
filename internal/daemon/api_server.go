package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"bilisub/internal/api"
	"bilisub/internal/config"
	"bilisub/internal/logging"
	"bilisub/internal/workflow"
)

const shutdownTimeout = 10 * time.Second

type apiServer struct {
	bind   string
	logger *slog.Logger
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

// newAPIServer returns nil when no bind address is configured.
func newAPIServer(cfg *config.Config, mgr *workflow.Manager, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}
	handlers, err := api.NewServer(cfg, mgr, logger)
	if err != nil {
		return nil, err
	}
	return &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "http"),
		server: &http.Server{
			Handler:           handlers.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}, nil
}

func (s *apiServer) start() error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server stopped unexpectedly", "api_serve_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "HTTP clients can no longer submit or poll tasks"),
				logging.String(logging.FieldErrorHint, "restart the daemon"),
			)
		}
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

// addr returns the bound address, which differs from bind for port 0.
func (s *apiServer) addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// stop drains in-flight requests, then closes the listener.
func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	done := s.done
	s.listener = nil
	s.mu.Unlock()
	if done == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("api shutdown incomplete", logging.Error(err))
		_ = s.server.Close()
	}
	<-done
}
