package consumersvc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rzbill/tracebus/internal/auth"
	"github.com/rzbill/tracebus/internal/broker"
	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/rzbill/tracebus/internal/ledger"
	"github.com/rzbill/tracebus/internal/registry"
	"github.com/rzbill/tracebus/internal/runtime"
	"github.com/rzbill/tracebus/internal/telemetry"
	logpkg "github.com/rzbill/tracebus/pkg/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handle identifies an open consumer session.
type Handle struct {
	PID     int    `json:"pid"`
	Session string `json:"session"`
}

// Consumer is one row of the operator listing.
type Consumer struct {
	Session string           `json:"session"`
	Stats   eventqueue.Stats `json:"stats"`
}

// Settings are configure overrides. Zero fields keep the current value.
type Settings struct {
	Capacity int             `json:"capacity,omitempty"`
	Mask     eventqueue.Mask `json:"mask,omitempty"`
	Filter   string          `json:"filter,omitempty"`
}

// Service binds one event queue to one consumer process across the
// open / configure / drain / close lifecycle.
type Service struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
	tracer trace.Tracer
}

// New returns a Service using a default logger.
func New(rt *runtime.Runtime) *Service {
	return NewWithLogger(rt, nil)
}

// NewWithLogger returns a Service using the provided logger.
func NewWithLogger(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("consumers"))
	}
	return &Service{
		rt:     rt,
		logger: logger,
		tracer: otel.Tracer(telemetry.TracerName),
	}
}

// Open registers a queue for id after the authorizer admits it.
func (s *Service) Open(ctx context.Context, id auth.Identity) (h Handle, err error) {
	ctx, span := s.start(ctx, OpOpen, id)
	defer func() { s.finish(span, OpOpen, err) }()

	if !id.Known() {
		return Handle{}, fmt.Errorf("%w: caller identity unknown", ErrPermissionDenied)
	}
	if err := s.rt.Authorizer().Authorize(ctx, id); err != nil {
		err = wrap(err)
		s.record(ctx, ledger.Entry{Kind: ledger.KindDenied, PID: id.PID, UID: id.UID, GID: id.GID, Error: err.Error()})
		return Handle{}, err
	}
	session := newSessionID()
	origin := eventqueue.Origin{Session: session, UID: id.UID, Anonymous: id.Anonymous}
	if !id.Anonymous {
		origin.StartTime, _ = auth.ProcessStartTime(id.PID)
	}
	_, err = s.rt.Registry().Register(id.PID, eventqueue.WithOrigin(origin))
	if errors.Is(err, registry.ErrExists) && s.reapPID(ctx, id.PID) {
		_, err = s.rt.Registry().Register(id.PID, eventqueue.WithOrigin(origin))
	}
	if err != nil {
		return Handle{}, wrap(err)
	}

	s.logger.Info("consumer opened", logpkg.Int("pid", id.PID), logpkg.Str("session", session))
	s.record(ctx, ledger.Entry{Kind: ledger.KindOpened, Session: session, PID: id.PID, UID: id.UID, GID: id.GID})
	return Handle{PID: id.PID, Session: session}, nil
}

// Configure applies the non-zero fields of set to the caller's queue.
func (s *Service) Configure(ctx context.Context, id auth.Identity, set Settings) (err error) {
	ctx, span := s.start(ctx, OpConfigure, id)
	defer func() { s.finish(span, OpConfigure, err) }()

	if set.Capacity < 0 {
		return fmt.Errorf("%w: negative capacity %d", ErrInvalidArgument, set.Capacity)
	}
	q, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := q.Configure(eventqueue.Settings{Capacity: set.Capacity, Mask: set.Mask, Filter: set.Filter}); err != nil {
		return wrap(err)
	}
	span.SetAttributes(
		attribute.Int("tracebus.capacity", set.Capacity),
		attribute.String("tracebus.mask", set.Mask.String()),
	)
	s.record(ctx, ledger.Entry{
		Kind: ledger.KindConfigured, Session: q.Origin().Session, PID: id.PID, UID: id.UID, GID: id.GID,
		Settings: &ledger.Settings{Capacity: set.Capacity, Mask: set.Mask, Filter: set.Filter},
	})
	return nil
}

// Drain removes up to max records (all when max <= 0) from the caller's
// queue, oldest first. An empty queue yields no records and no error.
func (s *Service) Drain(ctx context.Context, id auth.Identity, max int) (rs []eventqueue.Record, err error) {
	_, span := s.start(ctx, OpDrain, id)
	defer func() { s.finish(span, OpDrain, err) }()

	q, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	rs = q.Drain(max)
	span.SetAttributes(attribute.Int("tracebus.records", len(rs)))
	return rs, nil
}

// Close unregisters the caller's queue and discards what it still holds.
func (s *Service) Close(ctx context.Context, id auth.Identity) (st eventqueue.Stats, err error) {
	ctx, span := s.start(ctx, OpClose, id)
	defer func() { s.finish(span, OpClose, err) }()

	q, err := s.rt.Registry().UnregisterIf(id.PID, ownedBy(id))
	if err != nil {
		return eventqueue.Stats{}, wrap(err)
	}
	discarded := q.Discard()
	st = q.Stats()
	session := q.Origin().Session

	s.logger.Info("consumer closed",
		logpkg.Int("pid", id.PID),
		logpkg.Str("session", session),
		logpkg.Int("discarded", discarded),
		logpkg.Uint64("drops", st.Drops))
	s.record(ctx, ledger.Entry{Kind: ledger.KindClosed, Session: session, PID: id.PID, UID: id.UID, GID: id.GID, Stats: &st})
	return st, nil
}

// Stats returns the counters of the caller's queue.
func (s *Service) Stats(ctx context.Context, id auth.Identity) (st eventqueue.Stats, err error) {
	_, span := s.start(ctx, OpStats, id)
	defer func() { s.finish(span, OpStats, err) }()

	q, err := s.lookup(id)
	if err != nil {
		return eventqueue.Stats{}, err
	}
	return q.Stats(), nil
}

// List returns every open queue ordered by pid.
func (s *Service) List(ctx context.Context) []Consumer {
	qs := s.rt.Registry().Snapshot()
	out := make([]Consumer, 0, len(qs))
	for _, q := range qs {
		out = append(out, Consumer{Session: q.Origin().Session, Stats: q.Stats()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stats.Owner < out[j].Stats.Owner })
	return out
}

// Emit dispatches r on behalf of a remote producer.
func (s *Service) Emit(ctx context.Context, id auth.Identity, r eventqueue.Record) (res broker.Result, err error) {
	ctx, span := s.start(ctx, opEmit, id)
	defer func() { s.finish(span, opEmit, err) }()

	if err := s.rt.Authorizer().Authorize(ctx, id); err != nil {
		return broker.Result{}, wrap(err)
	}
	if max := s.rt.Config().Queue.MaxPayloadBytes; max > 0 && len(r.Payload) > max {
		return broker.Result{}, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrInvalidArgument, len(r.Payload), max)
	}
	res = s.rt.Broker().Dispatch(r)
	span.SetAttributes(
		attribute.String("tracebus.type", r.Type.String()),
		attribute.Int("tracebus.admitted", res.Admitted),
		attribute.Int("tracebus.dropped", res.Dropped),
	)
	return res, nil
}

// Shutdown tears down every queue, recording each in the ledger. It returns
// the number of queues removed.
func (s *Service) Shutdown(ctx context.Context) int {
	qs := s.rt.Teardown()
	for _, q := range qs {
		s.recordTeardown(ctx, q, "")
	}
	if len(qs) > 0 {
		s.logger.Info("consumer queues torn down", logpkg.Int("queues", len(qs)))
	}
	return len(qs)
}

// Reap tears down every queue whose owner process has exited and returns
// the pids it reaped. Queues opened under an anonymous identity are skipped:
// their pid does not name a local process.
func (s *Service) Reap(ctx context.Context) []int {
	var pids []int
	for _, q := range s.rt.Registry().Snapshot() {
		if s.reapQueue(ctx, q) {
			pids = append(pids, q.Owner())
		}
	}
	sort.Ints(pids)
	return pids
}

// RunReaper calls Reap every interval until ctx is done.
func (s *Service) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := s.rt.Clock().Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pids := s.Reap(ctx); len(pids) > 0 {
				s.logger.Info("reaped queues of exited consumers", logpkg.Int("queues", len(pids)))
			}
		}
	}
}

// reapPID reaps the queue registered for pid if its owner is gone.
func (s *Service) reapPID(ctx context.Context, pid int) bool {
	q, err := s.rt.Registry().Lookup(pid)
	if err != nil {
		return false
	}
	return s.reapQueue(ctx, q)
}

func (s *Service) reapQueue(ctx context.Context, q *eventqueue.Queue) bool {
	o := q.Origin()
	if o.Anonymous || s.rt.OwnerAlive(q.Owner(), o.StartTime) {
		return false
	}
	// Only remove this exact queue; the pid may have been reopened since.
	if _, err := s.rt.Registry().UnregisterIf(q.Owner(), func(cur *eventqueue.Queue) bool { return cur == q }); err != nil {
		return false
	}
	discarded := q.Discard()
	s.logger.Info("consumer owner exited, queue reaped",
		logpkg.Int("pid", q.Owner()),
		logpkg.Str("session", o.Session),
		logpkg.Int("discarded", discarded))
	s.recordTeardown(ctx, q, "owner process exited")
	return true
}

func (s *Service) recordTeardown(ctx context.Context, q *eventqueue.Queue, reason string) {
	st := q.Stats()
	o := q.Origin()
	s.record(ctx, ledger.Entry{Kind: ledger.KindTornDown, Session: o.Session, PID: q.Owner(), UID: o.UID, Stats: &st, Error: reason})
}

// lookup returns the queue of id. A queue opened by a different kind of
// identity, or by another uid, is reported as missing.
func (s *Service) lookup(id auth.Identity) (*eventqueue.Queue, error) {
	q, err := s.rt.Registry().Lookup(id.PID)
	if err != nil {
		return nil, wrap(err)
	}
	if !ownedBy(id)(q) {
		return nil, wrap(registry.ErrNotFound)
	}
	return q, nil
}

func ownedBy(id auth.Identity) func(*eventqueue.Queue) bool {
	return func(q *eventqueue.Queue) bool {
		o := q.Origin()
		if o.Anonymous != id.Anonymous {
			return false
		}
		return o.Anonymous || o.UID == id.UID
	}
}

// record appends e to the ledger when one is configured. Failures are
// logged; the lifecycle never fails because of the journal.
func (s *Service) record(ctx context.Context, e ledger.Entry) {
	l := s.rt.Ledger()
	if l == nil {
		return
	}
	if _, err := l.Append(ctx, e); err != nil {
		s.logger.Warn("ledger append failed", logpkg.Str("kind", string(e.Kind)), logpkg.Err(err))
	}
}

func (s *Service) start(ctx context.Context, op Op, id auth.Identity) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "consumer."+string(op),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.Int("tracebus.pid", id.PID)))
}

func (s *Service) finish(span trace.Span, op Op, err error) {
	s.rt.Metrics().ObserveOp(string(op), resultOf(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func newSessionID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
