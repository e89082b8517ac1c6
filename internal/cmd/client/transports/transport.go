package transports

import (
	"context"

	"github.com/rzbill/tracebus/internal/broker"
	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/rzbill/tracebus/internal/ledger"
)

// Settings are the overrides sent by Configure. Zero fields keep the
// server-side value.
type Settings struct {
	Capacity int             `json:"capacity,omitempty"`
	Mask     eventqueue.Mask `json:"mask,omitempty"`
	Filter   string          `json:"filter,omitempty"`
}

// Handle identifies the queue opened for the calling process.
type Handle struct {
	PID     int    `json:"pid"`
	Session string `json:"session"`
}

// Consumer is one row of the operator listing.
type Consumer struct {
	Session string           `json:"session"`
	Stats   eventqueue.Stats `json:"stats"`
}

// LedgerPage is one page of journal entries; Next is zero at the end.
type LedgerPage struct {
	Entries []ledger.Entry `json:"entries"`
	Next    uint64         `json:"next,omitempty"`
}

// LedgerQuery selects a page of journal entries.
type LedgerQuery struct {
	Start   uint64
	Limit   int
	Reverse bool
}

// ConsumerTransport abstracts the transport used by the CLI (gRPC/HTTP).
// Every queue operation acts on the queue of the calling process.
type ConsumerTransport interface {
	Open(ctx context.Context) (Handle, error)
	Configure(ctx context.Context, s Settings) error
	// Drain returns up to max records; max <= 0 drains everything.
	Drain(ctx context.Context, max int) ([]eventqueue.Record, error)
	Close(ctx context.Context) (eventqueue.Stats, error)
	Stats(ctx context.Context) (eventqueue.Stats, error)
	List(ctx context.Context) ([]Consumer, error)
	Emit(ctx context.Context, r eventqueue.Record) (broker.Result, error)
	ReadLedger(ctx context.Context, q LedgerQuery) (LedgerPage, error)
}
