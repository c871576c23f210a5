// Package protocols provides integration implementations for the dispatcher's
// exchange, lending and bridge ports.
//
// Implementations:
//   - sim: in-process simulated protocols running on the custody ledger
package protocols
