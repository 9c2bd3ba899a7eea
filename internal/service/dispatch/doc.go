// Package dispatch implements the dispatch engine.
//
// Dispatch creates one PENDING record per (object, recipient) pair and
// never deduplicates: callers that want exactly-once must check existing
// records first. Records then move to exactly one terminal state through
// the Mark* methods. Each transition is a compare-and-set on the stored
// status, so when two workers race on the same record one of them gets
// ErrInvalidTransition instead of overwriting the other.
package dispatch
