// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Custody operations (swaps, bridge transfers, lending)
//   - Administrator operations on integration bindings
//   - Settings, lending account data and notification queries
//   - Health checks
//   - Prometheus metrics
//
// Every /api/v1 request is authenticated with an HS256 bearer token whose
// subject is the caller's address.
package http
