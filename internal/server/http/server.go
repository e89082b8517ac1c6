package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rzbill/tracebus/internal/auth"
	"github.com/rzbill/tracebus/internal/runtime"
	"github.com/rzbill/tracebus/internal/server/http/controllers"
	consumersvc "github.com/rzbill/tracebus/internal/services/consumers"
	logpkg "github.com/rzbill/tracebus/pkg/log"
)

const shutdownTimeout = 5 * time.Second

// Server serves the REST control surface on any number of listeners.
type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	logger logpkg.Logger

	mu  sync.Mutex
	lis []net.Listener
}

// New builds the handler tree around svc.
func New(rt *runtime.Runtime, svc *consumersvc.Service, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewNop()
	}
	mux := http.NewServeMux()
	controllers.NewControllerRegistry(rt, svc).RegisterAllRoutes(mux)

	s := &Server{rt: rt, logger: logger}
	var h http.Handler = mux
	if rt.Config().Auth.AllowAnonymous {
		h = anonymousIdentity(h)
	}
	s.srv = &http.Server{
		Handler:           s.logRequests(h),
		ConnContext:       auth.ConnContext,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, mostly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves on a TCP address until ctx is done.
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

// Serve serves on l until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.mu.Lock()
	s.lis = append(s.lis, l)
	s.mu.Unlock()
	s.logger.Info("http listening", logpkg.Str("addr", l.Addr().String()), logpkg.Str("net", l.Addr().Network()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close closes every listener.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lis {
		_ = l.Close()
	}
	s.lis = nil
}

// anonymousIdentity names callers that arrive without peer credentials by
// the pid header.
func anonymousIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			if pid, err := strconv.Atoi(r.Header.Get(auth.PIDHeader)); err == nil && pid > 0 {
				r = r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{PID: pid, Anonymous: true}))
			}
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			logpkg.Str("method", r.Method),
			logpkg.Str("path", r.URL.Path),
			logpkg.Int("status", rec.status),
			logpkg.Dur("elapsed", time.Since(start)))
	})
}
