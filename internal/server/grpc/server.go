package grpcserver

import (
	"context"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	tracebusv1 "github.com/rzbill/tracebus/api/tracebus/v1"
	"github.com/rzbill/tracebus/internal/auth"
	"github.com/rzbill/tracebus/internal/runtime"
	consumersvc "github.com/rzbill/tracebus/internal/services/consumers"
	logpkg "github.com/rzbill/tracebus/pkg/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt     *runtime.Runtime
	grpc   *grpc.Server
	health *health.Server
	logger logpkg.Logger

	mu  sync.Mutex
	lis []net.Listener
}

// New constructs a gRPC server and registers the Consumer and health
// services. opts are applied after the defaults.
func New(rt *runtime.Runtime, svc *consumersvc.Service, logger logpkg.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = logpkg.NewNop()
	}
	s := &Server{rt: rt, logger: logger, health: health.NewServer()}
	interceptors := []grpc.UnaryServerInterceptor{s.logUnary}
	if rt.Config().Auth.AllowAnonymous {
		interceptors = append(interceptors, anonymousIdentity)
	}
	base := []grpc.ServerOption{
		grpc.Creds(auth.TransportCredentials{}),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	}
	s.grpc = grpc.NewServer(append(base, opts...)...)
	tracebusv1.RegisterConsumerServer(s.grpc, &consumerSvc{rt: rt, svc: svc})
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(tracebusv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// ListenAndServe binds to a TCP addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// ListenAndServeUnix serves on a Unix socket, where callers are identified
// by their peer credentials, until ctx is done.
func (s *Server) ListenAndServeUnix(ctx context.Context, path string, mode os.FileMode) error {
	l, err := auth.ListenUnix(path, mode)
	if err != nil {
		return err
	}
	defer os.Remove(path)
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.mu.Lock()
	s.lis = append(s.lis, l)
	s.mu.Unlock()
	s.logger.Info("grpc listening", logpkg.Str("addr", l.Addr().String()), logpkg.Str("net", l.Addr().Network()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		if err == grpc.ErrServerStopped {
			return nil
		}
		return err
	}
}

// Close stops the server and closes the listeners.
func (s *Server) Close() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lis {
		_ = l.Close()
	}
	s.lis = nil
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("grpc call",
		logpkg.Str("method", info.FullMethod),
		logpkg.Str("code", status.Code(err).String()),
		logpkg.Dur("elapsed", time.Since(start)))
	return resp, err
}

// anonymousIdentity names callers without peer credentials by the pid
// metadata key.
func anonymousIdentity(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if _, ok := auth.FromContext(ctx); !ok {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(auth.PIDHeader); len(v) > 0 {
				if pid, err := strconv.Atoi(v[0]); err == nil && pid > 0 {
					ctx = auth.WithIdentity(ctx, auth.Identity{PID: pid, Anonymous: true})
				}
			}
		}
	}
	return handler(ctx, req)
}
