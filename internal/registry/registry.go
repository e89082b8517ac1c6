// Package registry maps consumer identities to their event queues.
//
// The registry lock guards only the map. Callers that walk the registered
// queues get a snapshot of handles and touch each queue under that queue's
// own lock, never while holding the registry lock.
package registry

import (
	"errors"
	"sync"

	"github.com/rzbill/tracebus/internal/eventqueue"
)

var (
	ErrExists   = errors.New("registry: identity already has a queue")
	ErrNotFound = errors.New("registry: no queue for identity")
)

// Registry is the identity -> queue map. The zero value is not usable; call New.
type Registry struct {
	mu     sync.Mutex
	queues map[int]*eventqueue.Queue
	opts   []eventqueue.Option
}

// New returns an empty registry. opts are applied to every queue it creates.
func New(opts ...eventqueue.Option) *Registry {
	return &Registry{queues: make(map[int]*eventqueue.Queue), opts: opts}
}

// Register creates and inserts a queue for id. extra options are applied
// after the registry defaults.
func (r *Registry) Register(id int, extra ...eventqueue.Option) (*eventqueue.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[id]; ok {
		return nil, ErrExists
	}
	opts := append(append([]eventqueue.Option(nil), r.opts...), extra...)
	q := eventqueue.New(id, opts...)
	r.queues[id] = q
	return q, nil
}

// Lookup returns the queue registered for id.
func (r *Registry) Lookup(id int) (*eventqueue.Queue, error) {
	r.mu.Lock()
	q, ok := r.queues[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return q, nil
}

// Unregister removes the queue for id and returns it. The queue itself is
// left untouched.
func (r *Registry) Unregister(id int) (*eventqueue.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.queues, id)
	return q, nil
}

// UnregisterIf removes the queue for id only when match accepts it. A queue
// that is rejected is reported as ErrNotFound and stays registered.
func (r *Registry) UnregisterIf(id int, match func(*eventqueue.Queue) bool) (*eventqueue.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[id]
	if !ok || !match(q) {
		return nil, ErrNotFound
	}
	delete(r.queues, id)
	return q, nil
}

// UnregisterAll empties the registry and returns every queue it held.
func (r *Registry) UnregisterAll() []*eventqueue.Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*eventqueue.Queue, 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, q)
	}
	r.queues = make(map[int]*eventqueue.Queue)
	return out
}

// Snapshot returns the queues registered right now, in no particular order.
func (r *Registry) Snapshot() []*eventqueue.Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*eventqueue.Queue, 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, q)
	}
	return out
}

// ForEach calls fn for every queue in a snapshot taken on entry. fn runs
// without the registry lock, so it may call back into the registry.
func (r *Registry) ForEach(fn func(*eventqueue.Queue)) {
	for _, q := range r.Snapshot() {
		fn(q)
	}
}

// Len returns the number of registered queues.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues)
}
