// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for the agent engine.
//
// Provides concurrent-safe state handling primitives including:
//   - counters and published values with snapshot reads
//   - named debug probes evaluated on demand
//   - Prometheus text exposition and an HTTP handler for both
package control
