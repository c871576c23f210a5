// Package ledger provides custody ledger implementations.
//
// Implementations:
//   - memory: in-process multi-asset ledger with journaled atomic transactions
package ledger
