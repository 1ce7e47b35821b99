// Package server provides the status endpoints of a running mount: the gRPC
// health service and an HTTP listener for metrics and liveness checks.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ajaxzhan/mirrorfs/internal/logging"
)

// ServiceName is the health service name reported while mounted.
const ServiceName = "mirrorfs"

// DefaultStopTimeout bounds how long Stop waits for in-flight RPCs. Health
// Watch streams never finish on their own.
const DefaultStopTimeout = 5 * time.Second

// Config holds server configuration. An empty address disables that
// listener.
type Config struct {
	GRPCAddr string
	HTTPAddr string

	// StopTimeout defaults to DefaultStopTimeout.
	StopTimeout time.Duration
}

// Server serves mount status over gRPC and HTTP.
type Server struct {
	config     *Config
	grpcServer *grpc.Server
	health     *health.Server
	metrics    http.Handler
	serving    atomic.Bool

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a status server. metrics may be nil.
func New(cfg *Config, metrics http.Handler) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	return &Server{
		config:     cfg,
		grpcServer: grpcServer,
		health:     healthSrv,
		metrics:    metrics,
	}, nil
}

// SetServing reports whether the filesystem is currently mounted.
func (s *Server) SetServing(serving bool) {
	s.serving.Store(serving)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Handler returns the HTTP handler serving /metrics and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	mux.HandleFunc("/healthz", s.healthzHandler)
	return mux
}

func (s *Server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !s.serving.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "not mounted")
		return
	}
	fmt.Fprintln(w, "ok")
}

// Serve starts the configured listeners and blocks until ctx is done or a
// listener fails.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 2)

	if s.config.GRPCAddr != "" {
		lis, err := net.Listen("tcp", s.config.GRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC address: %w", err)
		}
		logging.Info("gRPC health service listening", logging.String("addr", lis.Addr().String()))
		go func() {
			if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("gRPC server error: %w", err)
			}
		}()
	}

	if s.config.HTTPAddr != "" {
		lis, err := net.Listen("tcp", s.config.HTTPAddr)
		if err != nil {
			s.Stop()
			return fmt.Errorf("failed to listen on HTTP address: %w", err)
		}
		s.mu.Lock()
		s.httpServer = &http.Server{
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		httpServer := s.httpServer
		s.mu.Unlock()

		logging.Info("HTTP status server listening", logging.String("addr", lis.Addr().String()))
		go func() {
			if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP server error: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		s.Stop()
		return err
	}
}

// Stop stops the server. In-flight RPCs get StopTimeout to finish before
// their connections are closed.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		s.httpServer.Close()
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(s.config.StopTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		logging.Warn("graceful stop timed out, closing open streams",
			logging.Duration("timeout", s.config.StopTimeout))
		s.grpcServer.Stop()
		<-done
	}
}
