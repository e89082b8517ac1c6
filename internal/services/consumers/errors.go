package consumersvc

import (
	"errors"
	"fmt"

	"github.com/rzbill/tracebus/internal/auth"
	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/rzbill/tracebus/internal/registry"
)

var (
	// ErrPermissionDenied means the authorizer refused the caller.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrBusy means the caller already owns a queue, or a configure-once
	// queue was configured twice.
	ErrBusy = errors.New("busy")
	// ErrNotFound means the caller owns no queue.
	ErrNotFound = errors.New("no consumer queue")
	// ErrUnsupported is returned for operation names the control surface
	// does not know.
	ErrUnsupported = errors.New("unsupported operation")
	// ErrInvalidArgument rejects malformed settings or events.
	ErrInvalidArgument = errors.New("invalid argument")
)

// wrap maps lower-layer errors onto the service sentinels, keeping the
// original in the chain.
func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrDenied):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case errors.Is(err, registry.ErrExists), errors.Is(err, eventqueue.ErrAlreadyConfigured):
		return fmt.Errorf("%w: %w", ErrBusy, err)
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, eventqueue.ErrClosed):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, eventqueue.ErrCapacityBelowLength), errors.Is(err, eventqueue.ErrInvalidFilter):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return err
}

// resultOf labels err for metrics.
func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPermissionDenied):
		return "denied"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	}
	return "error"
}
