package eventqueue

import (
	"errors"
	"math"
	"sync"
)

// MaxCapacity is the capacity of a queue nobody has configured.
const MaxCapacity = math.MaxInt

var (
	// ErrClosed is returned by operations on a discarded queue.
	ErrClosed = errors.New("eventqueue: closed")
	// ErrCapacityBelowLength rejects shrinking a queue under its current length.
	ErrCapacityBelowLength = errors.New("eventqueue: capacity below current length")
	// ErrAlreadyConfigured is returned by a second Configure on a configure-once queue.
	ErrAlreadyConfigured = errors.New("eventqueue: already configured")
)

// Settings are configuration overrides. Zero fields keep the current value.
type Settings struct {
	Capacity int
	Mask     Mask
	Filter   string
}

// Stats is a point-in-time view of a queue's counters.
type Stats struct {
	Owner      int    `json:"owner"`
	Capacity   int    `json:"capacity"`
	Mask       Mask   `json:"mask"`
	Filter     string `json:"filter,omitempty"`
	Len        int    `json:"len"`
	Admitted   uint64 `json:"admitted"`
	Ignored    uint64 `json:"ignored"`
	Drops      uint64 `json:"drops"`
	Drained    uint64 `json:"drained"`
	Discarded  uint64 `json:"discarded"`
	Configured bool   `json:"configured"`
	Closed     bool   `json:"closed"`
}

// Origin describes who opened a queue. It is fixed at creation.
type Origin struct {
	// Session labels the consumer session in listings and the ledger.
	Session string
	UID     uint32
	// Anonymous is set when the owner pid was asserted by the caller rather
	// than read from the kernel.
	Anonymous bool
	// StartTime is the owner's process start time in clock ticks since
	// boot, or zero when unknown. It tells a live owner from a reused pid.
	StartTime uint64
}

// Option adjusts a new queue.
type Option func(*Queue)

// WithCapacity sets the initial capacity. Non-positive values are ignored.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithMask sets the initial subscription mask.
func WithMask(m Mask) Option {
	return func(q *Queue) { q.mask = m }
}

// WithConfigureOnce makes every Configure after the first fail with
// ErrAlreadyConfigured.
func WithConfigureOnce() Option {
	return func(q *Queue) { q.once = true }
}

// WithOrigin records who opened the queue.
func WithOrigin(o Origin) Option {
	return func(q *Queue) { q.origin = o }
}

// Queue is a bounded FIFO of records owned by one consumer.
type Queue struct {
	owner  int
	origin Origin

	mu       sync.Mutex
	capacity int
	mask     Mask
	filter   *Filter
	once     bool

	// items[head:] are live; the prefix is reclaimed lazily.
	items []Record
	head  int

	admitted   uint64
	ignored    uint64
	drops      uint64
	drained    uint64
	discarded  uint64
	configured bool
	closed     bool
}

// New returns an empty queue for owner with default capacity and mask.
func New(owner int, opts ...Option) *Queue {
	q := &Queue{owner: owner, capacity: MaxCapacity, mask: AllTypes}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Owner returns the consumer identity the queue was created for.
func (q *Queue) Owner() int { return q.owner }

// Origin returns what was recorded about the opener.
func (q *Queue) Origin() Origin { return q.origin }

// Admit offers r to the queue. The capacity check comes first, so a full
// queue counts a drop even for a type it would have ignored. On Admitted the
// queue stores its own copy of the payload.
func (q *Queue) Admit(r Record) Outcome {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Closed
	}
	if q.lenLocked() >= q.capacity {
		q.drops++
		return Dropped
	}
	if !q.mask.Has(r.Type) || (q.filter != nil && !q.filter.Match(r)) {
		q.ignored++
		return Ignored
	}
	q.items = append(q.items, r.Clone())
	q.admitted++
	return Admitted
}

// Configure applies the non-zero fields of s under the queue lock. On error
// nothing is changed.
func (q *Queue) Configure(s Settings) error {
	var f *Filter
	if s.Filter != "" {
		var err error
		if f, err = NewFilter(s.Filter); err != nil {
			return err
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.once && q.configured {
		return ErrAlreadyConfigured
	}
	if s.Capacity > 0 && s.Capacity < q.lenLocked() {
		return ErrCapacityBelowLength
	}
	if s.Capacity > 0 {
		q.capacity = s.Capacity
	}
	if s.Mask != 0 {
		q.mask = s.Mask
	}
	if f != nil {
		q.filter = f
	}
	q.configured = true
	return nil
}

// Drain removes up to max records from the head, oldest first. max <= 0
// drains everything. An empty or closed queue yields nil.
func (q *Queue) Drain(max int) []Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.lenLocked()
	if n == 0 {
		return nil
	}
	if max > 0 && max < n {
		n = max
	}
	out := make([]Record, n)
	copy(out, q.items[q.head:q.head+n])
	clear(q.items[q.head : q.head+n])
	q.head += n
	q.drained += uint64(n)
	q.compactLocked()
	return out
}

// Discard closes the queue and releases every pending record. Later Admit
// calls return Closed. It returns the number of records released.
func (q *Queue) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.lenLocked()
	q.discarded += uint64(n)
	q.items = nil
	q.head = 0
	q.closed = true
	return n
}

// Len returns the number of pending records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Stats returns a snapshot of the queue's configuration and counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := Stats{
		Owner:      q.owner,
		Capacity:   q.capacity,
		Mask:       q.mask,
		Len:        q.lenLocked(),
		Admitted:   q.admitted,
		Ignored:    q.ignored,
		Drops:      q.drops,
		Drained:    q.drained,
		Discarded:  q.discarded,
		Configured: q.configured,
		Closed:     q.closed,
	}
	if q.filter != nil {
		st.Filter = q.filter.Expr()
	}
	return st
}

func (q *Queue) lenLocked() int { return len(q.items) - q.head }

func (q *Queue) compactLocked() {
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= 1024 && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
}
