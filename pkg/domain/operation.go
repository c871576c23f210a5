package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Operation names a dispatcher entry point.
type Operation string

const (
	OpExactInputSingle Operation = "exact_input_single"
	OpExactInput       Operation = "exact_input"
	OpBridge           Operation = "bridge"
	OpSupply           Operation = "supply"
	OpWithdraw         Operation = "withdraw"
	OpBorrow           Operation = "borrow"
	OpRepay            Operation = "repay"
	OpSetExchange      Operation = "set_exchange"
	OpSetLending       Operation = "set_lending"
	OpSetBridge        Operation = "set_bridge"
	OpRescue           Operation = "rescue"
	OpTransferAdmin    Operation = "transfer_admin"
	OpAccountData      Operation = "account_data"
)

// Guarded reports whether op runs under the reentrancy guard.
func (op Operation) Guarded() bool {
	switch op {
	case OpExactInputSingle, OpExactInput, OpBridge, OpSupply, OpWithdraw, OpBorrow, OpRepay:
		return true
	}
	return false
}

// ExactInputSingleRequest swaps AmountIn of AssetIn for AssetOut through one pool.
type ExactInputSingleRequest struct {
	AssetIn      common.Address
	AssetOut     common.Address
	Fee          uint32 // pool fee tier in hundredths of a bip
	AmountIn     *big.Int
	AmountOutMin *big.Int
}

// ExactInputRequest swaps AmountIn along an encoded multi-hop path.
type ExactInputRequest struct {
	Path         []byte
	AmountIn     *big.Int
	AmountOutMin *big.Int
}

// BridgeRequest moves Amount of Asset to Recipient on DestinationDomain.
// NativeFee is forwarded verbatim to the bridge integration.
type BridgeRequest struct {
	Asset             common.Address
	Amount            *big.Int
	DestinationDomain uint32
	Recipient         common.Address
	ExtraPayload      []byte
	NativeFee         *big.Int
}

// LendingRequest covers supply, withdraw, borrow and repay.
// RateMode is ignored by supply and withdraw.
type LendingRequest struct {
	Asset    common.Address
	Amount   *big.Int
	RateMode RateMode
}

// AccountData is the lending integration's view of a user.
type AccountData struct {
	TotalCollateral      *big.Int `json:"total_collateral"`
	TotalDebt            *big.Int `json:"total_debt"`
	AvailableBorrows     *big.Int `json:"available_borrows"`
	LiquidationThreshold *big.Int `json:"current_liquidation_threshold"`
	LTV                  *big.Int `json:"ltv"`
	HealthFactor         *big.Int `json:"health_factor"`
}
