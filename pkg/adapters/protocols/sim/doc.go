// Package sim implements simulated exchange, lending and bridge protocols on
// top of a ports.TokenLedger.
//
// The simulations carry only the numerics needed to exercise the dispatcher:
// fixed-rate pools, 1:1 valued collateral and an outbound message log. Every
// state change is recorded on a ports.Journal so a failing transaction
// reverts protocol state together with the ledger.
package sim
