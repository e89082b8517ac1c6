package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rzbill/tracebus/internal/auth"
	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/rzbill/tracebus/internal/runtime"
	consumersvc "github.com/rzbill/tracebus/internal/services/consumers"
)

// ConsumersController serves the consumer lifecycle. Every request acts on
// the queue of the calling process, identified by the connection's peer
// credentials.
type ConsumersController struct {
	rt  *runtime.Runtime
	svc *consumersvc.Service
}

// NewConsumersController creates a new consumers controller.
func NewConsumersController(rt *runtime.Runtime, svc *consumersvc.Service) *ConsumersController {
	return &ConsumersController{rt: rt, svc: svc}
}

// RegisterRoutes registers consumer routes with the given mux.
func (c *ConsumersController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/consumer/", c.handleOp)
	mux.HandleFunc("/v1/consumers", c.handleList)
	mux.HandleFunc("/v1/events/emit", c.handleEmit)
}

func (c *ConsumersController) handleOp(w http.ResponseWriter, r *http.Request) {
	op, err := consumersvc.ParseOp(strings.TrimPrefix(r.URL.Path, "/v1/consumer/"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "caller identity unavailable on this connection")
		return
	}
	switch op {
	case consumersvc.OpOpen:
		c.handleOpen(w, r, id)
	case consumersvc.OpConfigure:
		c.handleConfigure(w, r, id)
	case consumersvc.OpDrain:
		c.handleDrain(w, r, id)
	case consumersvc.OpClose:
		c.handleClose(w, r, id)
	case consumersvc.OpStats:
		c.handleStats(w, r, id)
	}
}

func (c *ConsumersController) handleOpen(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	h, err := c.svc.Open(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, h)
}

func (c *ConsumersController) handleConfigure(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var set consumersvc.Settings
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid settings: "+err.Error())
		return
	}
	if err := c.svc.Configure(r.Context(), id, set); err != nil {
		writeServiceError(w, err)
		return
	}
	writeNoContent(w)
}

// handleDrain removes records from the caller's queue. Without max it
// drains at most queue.maxDrainBatch records; max=0 drains everything.
func (c *ConsumersController) handleDrain(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	max, err := parseInt(q.Get("max"), c.rt.Config().Queue.MaxDrainBatch)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid max")
		return
	}
	format := q.Get("format")
	switch format {
	case "", formatJSON, formatFrames:
	default:
		writeError(w, http.StatusBadRequest, "unknown format "+strconv.Quote(format))
		return
	}

	records, err := c.svc.Drain(r.Context(), id, max)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if format == formatFrames {
		w.Header().Set("Content-Type", FramesContentType)
		w.Header().Set(CountHeader, strconv.Itoa(len(records)))
		w.WriteHeader(http.StatusOK)
		_ = eventqueue.WriteFrames(w, records)
		return
	}
	if records == nil {
		records = []eventqueue.Record{}
	}
	writeJSON(w, drainResp{Records: records})
}

func (c *ConsumersController) handleClose(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if _, err := c.svc.Close(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeNoContent(w)
}

func (c *ConsumersController) handleStats(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	st, err := c.svc.Stats(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, st)
}

// handleList is the operator view of every open queue.
func (c *ConsumersController) handleList(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, c.svc.List(r.Context()))
}

// handleEmit dispatches one event on behalf of an authorized caller.
func (c *ConsumersController) handleEmit(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	id, _ := auth.FromContext(r.Context())
	var rec eventqueue.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event: "+err.Error())
		return
	}
	res, err := c.svc.Emit(r.Context(), id, rec)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, res)
}
