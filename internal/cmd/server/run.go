package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfgpkg "github.com/rzbill/tracebus/internal/config"
	"github.com/rzbill/tracebus/internal/producer"
	"github.com/rzbill/tracebus/internal/runtime"
	grpcserver "github.com/rzbill/tracebus/internal/server/grpc"
	httpserver "github.com/rzbill/tracebus/internal/server/http"
	consumersvc "github.com/rzbill/tracebus/internal/services/consumers"
	"github.com/rzbill/tracebus/internal/telemetry"
	logpkg "github.com/rzbill/tracebus/pkg/log"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const telemetryFlushTimeout = 5 * time.Second

type Options struct {
	// ConfigPath is a JSON or YAML file. Empty uses the defaults.
	ConfigPath string
	// Override runs after the file and TRACEBUS_* environment are applied,
	// so command-line flags win.
	Override func(*cfgpkg.Config)
}

// LoadConfig resolves the effective configuration: defaults, then the file,
// then the environment, then Override.
func LoadConfig(opts Options) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(opts.ConfigPath)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	if err := cfgpkg.FromEnv(&cfg); err != nil {
		return cfgpkg.Config{}, err
	}
	if opts.Override != nil {
		opts.Override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return cfgpkg.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives.
func Run(ctx context.Context, opts Options) (err error) {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := logpkg.ApplyConfig(&logpkg.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	restore := logpkg.RedirectStdLog(logger)
	defer restore()

	tp, err := telemetry.Init(sctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		fctx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		err = multierr.Append(err, tp.Shutdown(fctx))
	}()

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, rt.Close()) }()

	svc := consumersvc.NewWithLogger(rt, logger.With(logpkg.Component("consumers")))
	hsrv := httpserver.New(rt, svc, logger.With(logpkg.Component("http")))
	gsrv := grpcserver.New(rt, svc, logger.With(logpkg.Component("grpc")))

	var src *producer.RingbufSource
	if pin := cfg.Producer.RingbufPin; pin != "" {
		src, err = producer.OpenPinnedRingbuf(pin, rt.Broker(),
			producer.WithLogger(logger.With(logpkg.Component("ringbuf"))),
			producer.WithMetrics(rt.Metrics()))
		if err != nil {
			return err
		}
	}

	logger.Info("starting tracebus",
		logpkg.Str("socket", cfg.Server.Socket),
		logpkg.Str("grpc_socket", cfg.Server.GRPCSocket),
		logpkg.Str("http", cfg.Server.HTTPAddr),
		logpkg.Str("grpc", cfg.Server.GRPCAddr),
		logpkg.Str("configure_policy", cfg.Queue.ConfigurePolicy),
		logpkg.Bool("ledger", cfg.Ledger.Enabled),
		logpkg.Bool("allow_anonymous", cfg.Auth.AllowAnonymous),
	)

	g, gctx := errgroup.WithContext(sctx)
	mode := os.FileMode(cfg.Server.SocketMode)
	if cfg.Server.Socket != "" {
		g.Go(func() error { return hsrv.ListenAndServeUnix(gctx, cfg.Server.Socket, mode) })
	}
	if cfg.Server.GRPCSocket != "" {
		g.Go(func() error { return gsrv.ListenAndServeUnix(gctx, cfg.Server.GRPCSocket, mode) })
	}
	if cfg.Server.HTTPAddr != "" {
		g.Go(func() error { return hsrv.ListenAndServe(gctx, cfg.Server.HTTPAddr) })
	}
	if cfg.Server.GRPCAddr != "" {
		g.Go(func() error { return gsrv.ListenAndServe(gctx, cfg.Server.GRPCAddr) })
	}
	if iv := cfg.Queue.ReapInterval.Std(); iv > 0 {
		g.Go(func() error {
			svc.RunReaper(gctx, iv)
			return nil
		})
	}
	if l := rt.Ledger(); l != nil {
		g.Go(func() error {
			l.RunRetention(gctx, cfg.Ledger.Retention.Std(), cfg.Ledger.TrimInterval.Std(),
				logger.With(logpkg.Component("ledger")))
			return nil
		})
	}
	if src != nil {
		g.Go(func() error { return src.Run(gctx) })
	}
	runErr := g.Wait()
	if runErr != nil {
		logger.Error("server stopped", logpkg.Err(runErr))
	}
	n := svc.Shutdown(context.Background())
	logger.Info("tracebus stopped", logpkg.Int("queues_torn_down", n))
	return runErr
}
