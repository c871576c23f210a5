// Package observers implements the pool that consumes completed-operation
// notifications.
//
// The pool holds one subscription to the notification topic and feeds a
// bounded job queue. A fixed number of observer goroutines:
//   - Index each notification in notification storage
//   - Record observation metrics
//   - Fan the notification out to live listeners (the WebSocket stream)
//
// The health monitor tracks observer status and logs metrics.
package observers
