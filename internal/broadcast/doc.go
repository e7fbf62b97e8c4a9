// Package broadcast implements the push-notification broadcast dispatcher.
//
// A broadcast resolves the stored subscriptions, narrows them with an
// audience filter, fans the same payload out to every recipient through
// the push transport, and aggregates per-recipient outcomes into one
// Result.
//
// Delivery semantics
//
// The dispatcher is best-effort per recipient: a failed delivery is
// counted, never propagated, and never blocks the rest of the batch.
// Permanently-dead credentials (push service answered 404/410) are
// pruned from the store as a side effect. Only a failure to read the
// subscription set aborts a dispatch.
//
// Concurrency
//
// Fan-out runs on a fixed worker pool with a shared rate limiter, so
// large audiences cannot produce unbounded in-flight sends. Counters
// are merged under a single mutex; each dispatch call owns its own
// accumulator, so concurrent dispatches do not interfere.
package broadcast
