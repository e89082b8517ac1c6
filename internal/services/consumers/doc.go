// Package consumersvc implements the consumer lifecycle on top of the
// runtime's queue registry: open (authorized, one queue per process),
// configure, drain, close, plus per-queue stats, the operator listing,
// remote emit and forced teardown. Lower-layer errors are mapped onto the
// package sentinels so transports can translate them in one place.
//
// Example:
//
//	svc := consumersvc.NewWithLogger(rt, logger)
//	h, err := svc.Open(ctx, auth.Identity{PID: pid, UID: 0})
//	_ = svc.Configure(ctx, id, consumersvc.Settings{Capacity: 1024, Mask: eventqueue.MaskOf(eventqueue.ProbeFire)})
//	records, _ := svc.Drain(ctx, id, 0)
//	_, _ = svc.Close(ctx, id)
package consumersvc
