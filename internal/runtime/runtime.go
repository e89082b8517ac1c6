package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/rzbill/tracebus/internal/auth"
	"github.com/rzbill/tracebus/internal/broker"
	cfgpkg "github.com/rzbill/tracebus/internal/config"
	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/rzbill/tracebus/internal/ledger"
	"github.com/rzbill/tracebus/internal/metrics"
	"github.com/rzbill/tracebus/internal/registry"
	pebblestore "github.com/rzbill/tracebus/internal/storage/pebble"
	logpkg "github.com/rzbill/tracebus/pkg/log"
	"go.uber.org/multierr"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// Authorizer overrides the credential policy derived from Config.Auth.
	Authorizer auth.Authorizer
	Logger     logpkg.Logger
	// Clock drives ledger timestamps and retention. Defaults to the wall clock.
	Clock clock.Clock
	// ProcessAlive reports whether a queue owner still runs. Defaults to
	// auth.ProcessAlive.
	ProcessAlive func(pid int, start uint64) bool
}

// Runtime owns the process-wide broker state: the queue registry, the
// broker delivering into it, metrics and the optional session ledger.
type Runtime struct {
	config     cfgpkg.Config
	logger     logpkg.Logger
	registry   *registry.Registry
	broker     *broker.Broker
	metrics    *metrics.Metrics
	authorizer auth.Authorizer
	clock      clock.Clock
	alive      func(pid int, start uint64) bool

	db     *pebblestore.DB
	ledger *ledger.Ledger
}

// Open builds the registry and broker and, when enabled, opens the ledger
// store.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNop()
	}
	qopts, err := queueOptions(cfg.Queue)
	if err != nil {
		return nil, err
	}

	reg := registry.New(qopts...)
	m := metrics.New(reg)
	rt := &Runtime{
		config:     cfg,
		logger:     logger,
		registry:   reg,
		metrics:    m,
		authorizer: opts.Authorizer,
		clock:      opts.Clock,
		alive:      opts.ProcessAlive,
		broker: broker.New(reg,
			broker.WithMetrics(m),
			broker.WithLogger(logger.With(logpkg.Component("broker")))),
	}
	if rt.alive == nil {
		rt.alive = auth.ProcessAlive
	}
	if rt.clock == nil {
		rt.clock = clock.New()
	}
	if rt.authorizer == nil {
		rt.authorizer = authorizerFromConfig(cfg.Auth)
	}

	if cfg.Ledger.Enabled {
		fsync, err := pebblestore.ParseFsyncMode(cfg.Ledger.Fsync)
		if err != nil {
			return nil, fmt.Errorf("ledger.fsync: %w", err)
		}
		db, err := pebblestore.Open(pebblestore.Options{
			DataDir: cfg.Ledger.DataDir,
			Fsync:   fsync,
			Metrics: m,
			Logger:  logger.With(logpkg.Component("pebble")),
		})
		if err != nil {
			return nil, fmt.Errorf("open ledger store: %w", err)
		}
		l, err := ledger.Open(db, ledger.WithClock(rt.clock))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		rt.db, rt.ledger = db, l
	}
	return rt, nil
}

func queueOptions(c cfgpkg.QueueConfig) ([]eventqueue.Option, error) {
	mask, err := c.Mask()
	if err != nil {
		return nil, err
	}
	opts := []eventqueue.Option{
		eventqueue.WithCapacity(c.DefaultCapacity),
		eventqueue.WithMask(eventqueue.Mask(mask)),
	}
	switch c.ConfigurePolicy {
	case "", cfgpkg.ConfigurePolicyFree:
	case cfgpkg.ConfigurePolicyOnce:
		opts = append(opts, eventqueue.WithConfigureOnce())
	default:
		return nil, fmt.Errorf("unknown configure policy %q", c.ConfigurePolicy)
	}
	return opts, nil
}

func authorizerFromConfig(c cfgpkg.AuthConfig) auth.Authorizer {
	var a auth.Authorizer = auth.CredentialPolicy{AllowRoot: c.AllowRoot, UIDs: c.AllowUIDs, GIDs: c.AllowGIDs}
	if c.AllowAnonymous {
		a = auth.AllowAnonymous(a)
	}
	return a
}

// Teardown unregisters and discards every queue and returns them so callers
// can read their final stats and origin.
func (r *Runtime) Teardown() []*eventqueue.Queue {
	qs := r.registry.UnregisterAll()
	for _, q := range qs {
		q.Discard()
	}
	return qs
}

// Close tears down any remaining queues and closes the ledger store.
func (r *Runtime) Close() error {
	var err error
	if n := len(r.Teardown()); n > 0 {
		r.logger.Info("discarded consumer queues at shutdown", logpkg.Int("queues", n))
	}
	if r.db != nil {
		err = multierr.Append(err, r.db.Close())
		r.db = nil
	}
	return err
}

// CheckHealth verifies the ledger store (when enabled) is readable.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.config.Ledger.Enabled {
		return nil
	}
	if r.db == nil {
		return errors.New("ledger store not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

func (r *Runtime) Registry() *registry.Registry { return r.registry }
func (r *Runtime) Broker() *broker.Broker       { return r.broker }
func (r *Runtime) Metrics() *metrics.Metrics    { return r.metrics }
func (r *Runtime) Authorizer() auth.Authorizer  { return r.authorizer }
func (r *Runtime) Logger() logpkg.Logger        { return r.logger }
func (r *Runtime) Config() cfgpkg.Config        { return r.config }
func (r *Runtime) Clock() clock.Clock           { return r.clock }

// OwnerAlive reports whether pid still names the process that opened a
// queue; start is the recorded start time or zero.
func (r *Runtime) OwnerAlive(pid int, start uint64) bool { return r.alive(pid, start) }

// Ledger returns the session journal, or nil when it is disabled.
func (r *Runtime) Ledger() *ledger.Ledger { return r.ledger }
