package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	consumersvc "github.com/rzbill/tracebus/internal/services/consumers"
)

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeServiceError maps a service error onto its status code.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFromError(err), err.Error())
}

// statusFromError is the one place service errors become HTTP statuses.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, consumersvc.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, consumersvc.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, consumersvc.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, consumersvc.ErrUnsupported), errors.Is(err, consumersvc.ErrInvalidArgument):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeJSON writes a 200 JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeNoContent writes a 204 No Content response.
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// allowMethod writes 405 and returns false unless r uses method.
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// parseInt parses an optional integer query value; def is returned when
// the value is empty.
func parseInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// parseBool parses a boolean string and returns the boolean value.
//
// Returns true for "true" or "1", false otherwise.
func parseBool(s string) bool {
	return s == "true" || s == "1"
}
