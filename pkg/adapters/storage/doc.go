// Package storage provides settings and notification storage implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization, notification TTL and sorted-set indexes
//   - memory: in-memory for single-node runs and tests
package storage
