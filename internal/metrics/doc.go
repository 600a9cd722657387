// Package metrics provides Prometheus metrics for observability.
//
// This package exposes metrics for the channel pool and the affinity
// protocol: open channels, in-flight calls, binding table size, call
// outcomes, bind/unbind events, key-resolution failures, and calls that
// bypassed the pool. All instruments are vectors labeled by pool id so
// multiple pools in one process share a single registration.
//
// Metric exposition is left to the embedding application; this package
// only registers collectors.
package metrics
