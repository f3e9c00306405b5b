// Package forward delivers completed journal entries to the collector.
//
// The parse loop hands entries to a Sink, which renders them as JSON and
// submits the payload to a Pool. The Pool is a fixed set of workers draining a
// bounded queue; each worker posts one payload at a time through a Poster.
//
// Overflow handling is explicit:
//   - block: Submit waits for queue space or for the stream's context to end
//   - drop: the payload is discarded and counted; Submit returns immediately
//   - reject: Submit returns ErrQueueFull
//
// Delivery failures are logged, counted and published as events. They never
// reach the parser, and no payload is retried.
package forward
