package tracebusv1

import (
	"github.com/rzbill/tracebus/internal/broker"
	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/rzbill/tracebus/internal/ledger"
)

type OpenRequest struct{}

type OpenResponse struct {
	Pid     int32  `json:"pid"`
	Session string `json:"session"`
}

// ConfigureRequest carries overrides; zero fields keep the current value.
type ConfigureRequest struct {
	Capacity int64           `json:"capacity,omitempty"`
	Mask     eventqueue.Mask `json:"mask,omitempty"`
	Filter   string          `json:"filter,omitempty"`
}

type ConfigureResponse struct{}

// DrainRequest asks for up to Max records; Max <= 0 drains everything.
type DrainRequest struct {
	Max int32 `json:"max,omitempty"`
}

type DrainResponse struct {
	Records []eventqueue.Record `json:"records"`
}

type CloseRequest struct{}

// CloseResponse holds the final counters of the closed queue.
type CloseResponse struct {
	Stats eventqueue.Stats `json:"stats"`
}

type StatsRequest struct{}

type StatsResponse struct {
	Stats eventqueue.Stats `json:"stats"`
}

type ListRequest struct{}

type ConsumerInfo struct {
	Session string           `json:"session"`
	Stats   eventqueue.Stats `json:"stats"`
}

type ListResponse struct {
	Consumers []ConsumerInfo `json:"consumers"`
}

type EmitRequest struct {
	Record eventqueue.Record `json:"record"`
}

type EmitResponse struct {
	Result broker.Result `json:"result"`
}

type ReadLedgerRequest struct {
	Start   uint64 `json:"start,omitempty"`
	Limit   int32  `json:"limit,omitempty"`
	Reverse bool   `json:"reverse,omitempty"`
}

type ReadLedgerResponse struct {
	Entries []ledger.Entry `json:"entries"`
	Next    uint64         `json:"next,omitempty"`
}
