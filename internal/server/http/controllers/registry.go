package controllers

import (
	"net/http"

	"github.com/rzbill/tracebus/internal/runtime"
	consumersvc "github.com/rzbill/tracebus/internal/services/consumers"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes.
type ControllerRegistry struct {
	general   *GeneralController
	consumers *ConsumersController
	ledger    *LedgerController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, svc *consumersvc.Service) *ControllerRegistry {
	return &ControllerRegistry{
		general:   NewGeneralController(rt),
		consumers: NewConsumersController(rt, svc),
		ledger:    NewLedgerController(rt),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.consumers.RegisterRoutes(mux)
	r.ledger.RegisterRoutes(mux)
}
