// Package events provides event bus implementations for operation
// notifications.
//
// Implementations:
//   - redis: Redis Streams with consumer groups
//   - memory: in-process, ordered per subscriber; for single-node and tests
package events
