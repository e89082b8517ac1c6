package controllers

import (
	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/rzbill/tracebus/internal/ledger"
)

// Drain formats.
const (
	formatJSON   = "json"
	formatFrames = "frames"

	// FramesContentType labels binary drain responses.
	FramesContentType = "application/vnd.tracebus.frames"
	// CountHeader carries the number of frames in a binary drain response.
	CountHeader = "X-Tracebus-Count"
)

// drainResp is the JSON drain response.
type drainResp struct {
	Records []eventqueue.Record `json:"records"`
}

// ledgerResp is a page of ledger entries. Next is the start of the following
// page, zero at the end.
type ledgerResp struct {
	Entries []ledger.Entry `json:"entries"`
	Next    uint64         `json:"next,omitempty"`
}
