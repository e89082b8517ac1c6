// Package producer holds event sources that feed the broker from outside the
// process. Each source turns raw samples into eventqueue records and hands
// them to a broker.Dispatcher on its own goroutine.
package producer
