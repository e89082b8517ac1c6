package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	jsoniter "github.com/json-iterator/go"
	"github.com/rzbill/tracebus/internal/eventqueue"
	pebblestore "github.com/rzbill/tracebus/internal/storage/pebble"
	logpkg "github.com/rzbill/tracebus/pkg/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind is the lifecycle transition an Entry records.
type Kind string

const (
	KindOpened     Kind = "opened"
	KindConfigured Kind = "configured"
	KindClosed     Kind = "closed"
	KindTornDown   Kind = "torn_down"
	KindDenied     Kind = "denied"
)

// Settings is the configuration applied by a configure call.
type Settings struct {
	Capacity int             `json:"capacity,omitempty"`
	Mask     eventqueue.Mask `json:"mask,omitempty"`
	Filter   string          `json:"filter,omitempty"`
}

// Entry is one journal record. Seq and Time are assigned by Append.
type Entry struct {
	Seq      uint64            `json:"seq"`
	Time     time.Time         `json:"time"`
	Kind     Kind              `json:"kind"`
	Session  string            `json:"session,omitempty"`
	PID      int               `json:"pid"`
	UID      uint32            `json:"uid"`
	GID      uint32            `json:"gid"`
	Settings *Settings         `json:"settings,omitempty"`
	Stats    *eventqueue.Stats `json:"stats,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// Ledger is the append-only session journal.
type Ledger struct {
	db    *pebblestore.DB
	clock clock.Clock

	mu       sync.Mutex
	lastSeq  uint64
	notifyCh chan struct{}
}

// Open loads the last sequence from metadata (if any).
func Open(db *pebblestore.DB, opts ...Option) (*Ledger, error) {
	l := &Ledger{db: db, clock: clock.New(), notifyCh: make(chan struct{})}
	for _, opt := range opts {
		opt(l)
	}
	meta, err := db.Get(metaKey)
	switch {
	case err == nil && len(meta) >= 8:
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return nil, fmt.Errorf("ledger: load meta: %w", err)
	}
	return l, nil
}

// Append stores e and returns its sequence number.
func (l *Ledger) Append(ctx context.Context, e Entry) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	e.Seq = l.lastSeq + 1
	e.Time = now.UTC()
	body, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("ledger: encode: %w", err)
	}

	b := l.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyEntry(e.Seq), encodeRecord(timestampHeader(now.UnixMilli()), body), nil); err != nil {
		return 0, err
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], e.Seq)
	if err := b.Set(metaKey, meta[:], nil); err != nil {
		return 0, err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	l.lastSeq = e.Seq
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	return e.Seq, nil
}

// LastSeq returns the sequence of the newest entry ever appended.
func (l *Ledger) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// ReadOptions selects a window of entries.
type ReadOptions struct {
	// Start is the first sequence returned (inclusive). Zero begins at the
	// oldest entry, or the newest when Reverse is set.
	Start   uint64
	Limit   int
	Reverse bool
}

// Read returns up to Limit entries and the sequence to pass as Start to
// continue, or zero when nothing is left.
func (l *Ledger) Read(opts ReadOptions) ([]Entry, uint64, error) {
	lower, upper := entryBounds()
	if opts.Start > 0 {
		if opts.Reverse {
			upper = keyEntry(opts.Start + 1)
		} else {
			lower = keyEntry(opts.Start)
		}
	}
	var (
		out     []Entry
		next    uint64
		scanErr error
	)
	err := l.db.Scan(lower, upper, opts.Reverse, func(k, v []byte) bool {
		if opts.Limit > 0 && len(out) == opts.Limit {
			next = seqFromKey(k)
			return false
		}
		_, body, ok := decodeRecord(v)
		if !ok {
			return true
		}
		var e Entry
		if err := json.Unmarshal(body, &e); err != nil {
			scanErr = fmt.Errorf("ledger: decode entry %d: %w", seqFromKey(k), err)
			return false
		}
		out = append(out, e)
		return true
	})
	if err == nil {
		err = scanErr
	}
	return out, next, err
}

// Notify returns a channel closed by the next append. Take it before
// reading so an append racing with the read is not missed.
func (l *Ledger) Notify() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notifyCh
}

// WaitForAppend blocks until an append happens or ctx is done. It reports
// whether it was woken by an append.
func (l *Ledger) WaitForAppend(ctx context.Context) bool {
	ch := l.Notify()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// TrimOlderThan deletes the leading run of entries appended before cutoff
// and returns how many were removed.
func (l *Ledger) TrimOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	cutoffMs := cutoff.UnixMilli()
	lower, upper := entryBounds()
	n := 0
	var last uint64
	err := l.db.Scan(lower, upper, false, func(k, v []byte) bool {
		h, _, ok := decodeRecord(v)
		if !ok {
			return false
		}
		if ms, ok := headerTimestamp(h); !ok || ms >= cutoffMs {
			return false
		}
		last = seqFromKey(k)
		n++
		return ctx.Err() == nil
	})
	if err != nil || n == 0 {
		return 0, err
	}
	b := l.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(lower, keyEntry(last+1), nil); err != nil {
		return 0, err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	if err := l.db.CompactRange(lower, keyEntry(last+1)); err != nil {
		return n, fmt.Errorf("ledger: compact trimmed range: %w", err)
	}
	return n, nil
}

// RunRetention trims entries older than retention right away and then every
// interval until ctx is done.
func (l *Ledger) RunRetention(ctx context.Context, retention, interval time.Duration, logger logpkg.Logger) {
	if retention <= 0 || interval <= 0 {
		return
	}
	if logger == nil {
		logger = logpkg.NewNop()
	}
	trim := func() {
		n, err := l.TrimOlderThan(ctx, l.clock.Now().Add(-retention))
		if err != nil {
			logger.Warn("ledger trim failed", logpkg.Err(err))
			return
		}
		if n > 0 {
			logger.Debug("ledger trimmed", logpkg.Int("entries", n))
		}
	}
	ticker := l.clock.Ticker(interval)
	defer ticker.Stop()
	trim()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trim()
		}
	}
}
