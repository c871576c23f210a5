// Package domain holds the types shared by the dispatcher, its ports and adapters.
//
// Assets and identities are EVM-style 20-byte addresses (go-ethereum common.Address).
// Amounts are unsigned integers in the asset's base unit carried as *big.Int; MaxAmount
// (2^256-1) is the "everything available" sentinel accepted by withdraw and repay.
package domain
