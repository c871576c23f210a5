package ports

import (
	"context"
	"errors"
	"math/big"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
)

// ErrNoIntegration is returned when a binding points at an address with no integration.
var ErrNoIntegration = errors.New("no integration at address")

// CallOpts identifies the sender of an integration call and the native value attached to it.
type CallOpts struct {
	From  common.Address
	Value *big.Int
}

// ExactInputSingleParams mirrors a single-pool exact-input swap.
type ExactInputSingleParams struct {
	AssetIn           common.Address
	AssetOut          common.Address
	Fee               uint32
	Recipient         common.Address
	Deadline          int64 // unix seconds
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// ExactInputParams mirrors a multi-hop exact-input swap.
type ExactInputParams struct {
	Path             []byte
	Recipient        common.Address
	Deadline         int64
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

// Exchange is the exchange-routing integration.
type Exchange interface {
	ExactInputSingle(ctx context.Context, opts CallOpts, params ExactInputSingleParams) (*big.Int, error)
	ExactInput(ctx context.Context, opts CallOpts, params ExactInputParams) (*big.Int, error)
}

// Lending is the lending/collateral integration.
type Lending interface {
	Supply(ctx context.Context, opts CallOpts, asset common.Address, amount *big.Int, onBehalfOf common.Address, referralCode uint16) error
	// Withdraw redeems onBehalfOf's collateral to `to` and reports the amount withdrawn.
	// MaxAmount withdraws everything.
	Withdraw(ctx context.Context, opts CallOpts, asset common.Address, amount *big.Int, onBehalfOf, to common.Address) (*big.Int, error)
	// Borrow transfers the borrowed funds to onBehalfOf.
	Borrow(ctx context.Context, opts CallOpts, asset common.Address, amount *big.Int, rateMode domain.RateMode, referralCode uint16, onBehalfOf common.Address) error
	// Repay pulls at most amount from opts.From and reports the amount applied to the debt.
	Repay(ctx context.Context, opts CallOpts, asset common.Address, amount *big.Int, rateMode domain.RateMode, onBehalfOf common.Address) (*big.Int, error)
	GetAccountData(ctx context.Context, user common.Address) (*domain.AccountData, error)
}

// BridgeParams describes an outbound cross-domain transfer.
type BridgeParams struct {
	Asset             common.Address
	Amount            *big.Int
	DestinationDomain uint32
	Recipient         common.Address
	ExtraPayload      []byte
}

// Bridge is the cross-domain bridging integration. opts.Value carries the native fee.
type Bridge interface {
	Bridge(ctx context.Context, opts CallOpts, params BridgeParams) error
}

// IntegrationResolver maps a binding address to the integration deployed there.
type IntegrationResolver interface {
	Exchange(addr common.Address) (Exchange, error)
	Lending(addr common.Address) (Lending, error)
	Bridge(addr common.Address) (Bridge, error)
}
