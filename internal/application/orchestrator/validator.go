package orchestrator

import (
	"math/big"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Validator checks operation inputs. Every check here runs before custody is
// taken, so a rejected request never moves funds.
type Validator struct{}

// NewValidator creates a new request validator
func NewValidator() *Validator {
	return &Validator{}
}

// ExactInputSingle validates a single-pool swap.
func (v *Validator) ExactInputSingle(caller common.Address, req *domain.ExactInputSingleRequest) error {
	const op = domain.OpExactInputSingle
	if req == nil {
		return invalid(op, "request", domain.ErrZeroAmount)
	}
	if err := v.caller(op, caller); err != nil {
		return err
	}
	if err := v.amount(op, "amount_in", req.AmountIn, false); err != nil {
		return err
	}
	if err := v.minimum(op, req.AmountOutMin); err != nil {
		return err
	}
	if domain.IsZeroAddress(req.AssetIn) {
		return invalid(op, "asset_in", domain.ErrZeroAddress)
	}
	if domain.IsZeroAddress(req.AssetOut) {
		return invalid(op, "asset_out", domain.ErrZeroAddress)
	}
	if req.Fee > domain.MaxFee {
		return invalid(op, "fee", domain.ErrInvalidFeeTier)
	}
	return nil
}

// ExactInput validates a multi-hop swap and returns the decoded route.
func (v *Validator) ExactInput(caller common.Address, req *domain.ExactInputRequest) ([]domain.Hop, error) {
	const op = domain.OpExactInput
	if req == nil {
		return nil, invalid(op, "request", domain.ErrZeroAmount)
	}
	if err := v.caller(op, caller); err != nil {
		return nil, err
	}
	if err := v.amount(op, "amount_in", req.AmountIn, false); err != nil {
		return nil, err
	}
	if err := v.minimum(op, req.AmountOutMin); err != nil {
		return nil, err
	}
	hops, err := domain.DecodePath(req.Path)
	if err != nil {
		return nil, invalid(op, "path", err)
	}
	if domain.IsZeroAddress(hops[0].AssetIn) {
		return nil, invalid(op, "path", domain.ErrZeroAddress)
	}
	return hops, nil
}

// Bridge validates an outbound transfer. The binding check happens in the
// dispatcher because it depends on current settings.
func (v *Validator) Bridge(caller common.Address, req *domain.BridgeRequest) error {
	const op = domain.OpBridge
	if req == nil {
		return invalid(op, "request", domain.ErrZeroAmount)
	}
	if err := v.caller(op, caller); err != nil {
		return err
	}
	if err := v.amount(op, "amount", req.Amount, false); err != nil {
		return err
	}
	if domain.IsZeroAddress(req.Asset) {
		return invalid(op, "asset", domain.ErrZeroAddress)
	}
	if domain.IsZeroAddress(req.Recipient) {
		return invalid(op, "recipient", domain.ErrZeroAddress)
	}
	if req.NativeFee != nil && (req.NativeFee.Sign() < 0 || domain.IsMax(req.NativeFee)) {
		return invalid(op, "native_fee", domain.ErrInvalidAmount)
	}
	return nil
}

// Lending validates supply, withdraw, borrow and repay. Borrow and repay also
// require a recognised rate mode. Only withdraw and repay take
// domain.MaxAmount.
func (v *Validator) Lending(op domain.Operation, caller common.Address, req *domain.LendingRequest) error {
	if req == nil {
		return invalid(op, "request", domain.ErrZeroAmount)
	}
	if (op == domain.OpBorrow || op == domain.OpRepay) && !req.RateMode.Valid() {
		return invalid(op, "rate_mode", domain.ErrInvalidRateMode)
	}
	if err := v.caller(op, caller); err != nil {
		return err
	}
	if err := v.amount(op, "amount", req.Amount, op == domain.OpWithdraw || op == domain.OpRepay); err != nil {
		return err
	}
	if domain.IsZeroAddress(req.Asset) {
		return invalid(op, "asset", domain.ErrZeroAddress)
	}
	return nil
}

// amount rejects a missing or zero amount with domain.ErrZeroAmount, and a
// negative amount, one above the MAX sentinel, or the sentinel itself where
// allowMax is false, with domain.ErrInvalidAmount.
func (v *Validator) amount(op domain.Operation, field string, amount *big.Int, allowMax bool) error {
	if domain.IsZeroAmount(amount) {
		return invalid(op, field, domain.ErrZeroAmount)
	}
	if amount.Sign() < 0 || amount.Cmp(domain.MaxAmount) > 0 {
		return invalid(op, field, domain.ErrInvalidAmount)
	}
	if !allowMax && domain.IsMax(amount) {
		return invalid(op, field, domain.ErrInvalidAmount)
	}
	return nil
}

// minimum accepts an unset or zero minimum output.
func (v *Validator) minimum(op domain.Operation, floor *big.Int) error {
	if floor != nil && (floor.Sign() < 0 || floor.Cmp(domain.MaxAmount) > 0) {
		return invalid(op, "amount_out_min", domain.ErrInvalidAmount)
	}
	return nil
}

func (v *Validator) caller(op domain.Operation, caller common.Address) error {
	if domain.IsZeroAddress(caller) {
		return invalid(op, "caller", domain.ErrZeroAddress)
	}
	return nil
}

func invalid(op domain.Operation, field string, err error) error {
	return domain.NewOpError(op, domain.KindValidation, field, err)
}
