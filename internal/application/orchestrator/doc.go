// Package orchestrator implements the custody dispatcher.
//
// The Manager runs every value-moving operation as one atomic transaction on
// the execution environment:
//   - Validating inputs before any funds move
//   - Pulling the caller's funds into custody
//   - Granting the bound integration an allowance of exactly the operation amount
//   - Delegating the economics to the integration and checking what it reports
//   - Returning residual funds and emitting one notification per operation
//
// Guarded operations take the reentrancy guard before anything else, so a
// call that overlaps one in progress fails immediately rather than queueing
// behind it. Callers that want to wait for their turn serialize above the
// Manager.
//
// Notifications are buffered while the transaction runs and published to the
// event bus only after it commits. Administrative operations (binding updates,
// rescue, admin transfer) share the same transaction sequencing but are not
// subject to the reentrancy guard.
package orchestrator
