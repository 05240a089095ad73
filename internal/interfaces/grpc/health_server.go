package grpc

import (
	"context"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/logger"
)

// DefaultProbeInterval is how often dependencies are pinged to refresh the
// reported serving status.
const DefaultProbeInterval = 10 * time.Second

// Pinger is a dependency whose reachability decides the serving status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes grpc.health.v1.Health. Both the overall status ("") and the
// keystore service name report SERVING only while every check passes.
type Server struct {
	server   *grpc.Server
	health   *health.Server
	checks   map[string]Pinger
	interval time.Duration
	log      logger.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewServer builds the gRPC server. The status starts as NOT_SERVING until
// the first probe runs.
func NewServer(checks map[string]Pinger, interval time.Duration, log logger.Logger, opts ...grpc.ServerOption) *Server {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	log = log.WithComponent("grpc")

	opts = append(opts,
		grpc.ChainUnaryInterceptor(UnaryRecoveryInterceptor(log), UnaryLoggingInterceptor(log)),
		grpc.ChainStreamInterceptor(StreamRecoveryInterceptor(log), StreamLoggingInterceptor(log)),
	)
	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{
		server:   srv,
		health:   hs,
		checks:   checks,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Probe pings every check once and publishes the resulting status.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	for name, check := range s.checks {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check.Ping(pctx)
		cancel()
		if err != nil {
			s.log.Warn(ctx, "Health check failed", logger.Fields{"check": name, "error": err.Error()})
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.setStatus(st)
	return st
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(constants.ServiceName, st)
}

// Serve probes once, keeps probing in the background and serves on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.Probe(context.Background())
	go s.probeLoop()

	s.log.Info(context.Background(), "Starting gRPC server", logger.Fields{"address": lis.Addr().String()})
	return s.server.Serve(lis)
}

func (s *Server) probeLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Probe(context.Background())
		}
	}
}

// Stop marks the server NOT_SERVING and drains in-flight calls. When ctx
// expires first the remaining connections are closed.
func (s *Server) Stop(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stop) })
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
	}
	s.log.Info(ctx, "gRPC server stopped")
}
