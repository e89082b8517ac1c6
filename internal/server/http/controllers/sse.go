package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rzbill/tracebus/internal/ledger"
)

// sseSink writes ledger entries as Server-Sent Events, using the sequence
// number as the event id so clients can resume with ?start=.
type sseSink struct {
	w http.ResponseWriter
	r *http.Request
}

// Send writes one entry as an SSE data event.
func (s sseSink) Send(e ledger.Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("id: " + strconv.FormatUint(e.Seq, 10) + "\ndata: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	_, err = s.w.Write([]byte("\n\n"))
	return err
}

// Context returns the request context for cancellation.
func (s sseSink) Context() context.Context {
	return s.r.Context()
}

// Flush flushes the HTTP response writer if it supports flushing.
func (s sseSink) Flush() error {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
