package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenLedger tracks balances and allowances of fungible assets.
// Approve sets the allowance to exactly amount; it never accumulates.
type TokenLedger interface {
	BalanceOf(ctx context.Context, asset, holder common.Address) (*big.Int, error)
	Allowance(ctx context.Context, asset, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, asset, owner, spender common.Address, amount *big.Int) error
	Transfer(ctx context.Context, asset, from, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, asset, spender, from, to common.Address, amount *big.Int) error

	NativeBalance(ctx context.Context, holder common.Address) (*big.Int, error)
	TransferNative(ctx context.Context, from, to common.Address, amount *big.Int) error
}

// Executor runs fn as one indivisible transaction: either every state change
// made through the ledger (and journaled by integrations) persists, or none does.
// Top-level transactions are processed one at a time. A call made with a ctx
// derived from a running transaction joins it.
type Executor interface {
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

// Journal lets integrations register undo steps for their own state so that a
// failing transaction reverts it together with the ledger.
type Journal interface {
	Record(ctx context.Context, undo func())
}
