package controllers

import (
	"net/http"
	"strconv"

	"github.com/rzbill/tracebus/internal/ledger"
	"github.com/rzbill/tracebus/internal/runtime"
)

const tailBatch = 256

// LedgerController exposes the session journal.
type LedgerController struct {
	rt *runtime.Runtime
}

// NewLedgerController creates a new ledger controller.
func NewLedgerController(rt *runtime.Runtime) *LedgerController {
	return &LedgerController{rt: rt}
}

// RegisterRoutes registers ledger routes with the given mux.
func (c *LedgerController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/ledger", c.handleRead)
	mux.HandleFunc("/v1/ledger/tail", c.handleTailSSE)
}

func (c *LedgerController) ledger(w http.ResponseWriter) *ledger.Ledger {
	l := c.rt.Ledger()
	if l == nil {
		writeError(w, http.StatusNotFound, "ledger disabled")
	}
	return l
}

// handleRead returns one page of entries: ?start=&limit=&reverse=.
func (c *LedgerController) handleRead(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	l := c.ledger(w)
	if l == nil {
		return
	}
	q := r.URL.Query()
	opts, ok := readOptions(w, q.Get("start"), q.Get("limit"))
	if !ok {
		return
	}
	opts.Reverse = parseBool(q.Get("reverse"))
	entries, next, err := l.Read(opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	writeJSON(w, ledgerResp{Entries: entries, Next: next})
}

// handleTailSSE streams entries appended after ?start= (default: only new
// ones) as Server-Sent Events until the client goes away.
func (c *LedgerController) handleTailSSE(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	l := c.ledger(w)
	if l == nil {
		return
	}
	start := l.LastSeq() + 1
	if s := r.URL.Query().Get("start"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil || v == 0 {
			writeError(w, http.StatusBadRequest, "invalid start")
			return
		}
		start = v
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	sink := sseSink{w: w, r: r}
	_ = sink.Flush()

	ctx := r.Context()
	for {
		appended := l.Notify()
		entries, next, err := l.Read(ledger.ReadOptions{Start: start, Limit: tailBatch})
		if err != nil {
			return
		}
		for _, e := range entries {
			if err := sink.Send(e); err != nil {
				return
			}
			start = e.Seq + 1
		}
		_ = sink.Flush()
		if next != 0 {
			start = next
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-appended:
		}
	}
}

func readOptions(w http.ResponseWriter, start, limit string) (ledger.ReadOptions, bool) {
	var opts ledger.ReadOptions
	if start != "" {
		v, err := strconv.ParseUint(start, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start")
			return opts, false
		}
		opts.Start = v
	}
	n, err := parseInt(limit, 100)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return opts, false
	}
	opts.Limit = n
	return opts, true
}
