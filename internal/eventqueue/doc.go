// Package eventqueue implements the per-consumer bounded event queue.
//
// A Queue belongs to exactly one consumer. Producers offer records with
// Admit, which never blocks: a full queue counts a drop, an unsubscribed
// type is ignored, anything else is copied in at the tail. Consumers remove
// records from the head with Drain.
//
//	producer ──Admit──▶ [ full? ──▶ drops++ ]
//	                    [ mask/filter reject? ──▶ ignored ]
//	                    [ append clone ] ──▶ FIFO ──Drain──▶ consumer
//
// Every Queue owns its mutex; nothing in this package takes a lock other than
// the one belonging to the queue being touched.
package eventqueue
