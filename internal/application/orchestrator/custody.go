package orchestrator

import (
	"context"
	"math/big"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
)

// pull moves amount of asset from caller into custody. The caller must have
// approved the orchestrator beforehand.
func (m *Manager) pull(ctx context.Context, op domain.Operation, asset, caller common.Address, amount *big.Int) error {
	if err := m.ledger.TransferFrom(ctx, asset, m.self, caller, m.self, amount); err != nil {
		return domain.NewOpError(op, domain.KindCustody, "pull", err)
	}
	m.metrics.RecordCustodyPull(asset, amount)
	return nil
}

// grant sets the integration's allowance over custody to exactly amount.
func (m *Manager) grant(ctx context.Context, op domain.Operation, asset, spender common.Address, amount *big.Int) error {
	if err := m.ledger.Approve(ctx, asset, m.self, spender, amount); err != nil {
		return domain.NewOpError(op, domain.KindCustody, "approve", err)
	}
	return nil
}

// revoke clears whatever allowance the integration left unconsumed.
func (m *Manager) revoke(ctx context.Context, op domain.Operation, asset, spender common.Address) error {
	return m.grant(ctx, op, asset, spender, new(big.Int))
}

// refund returns residual custody to the caller.
func (m *Manager) refund(ctx context.Context, op domain.Operation, asset, caller common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := m.ledger.Transfer(ctx, asset, m.self, caller, amount); err != nil {
		return domain.NewOpError(op, domain.KindCustody, "refund", err)
	}
	m.metrics.RecordResidualReturned(asset, amount)
	return nil
}

// delegate wraps an integration failure without masking it.
func delegate(op domain.Operation, err error) error {
	if err == nil {
		return nil
	}
	return domain.NewOpError(op, domain.KindIntegration, "", err)
}

// checkResult rejects a nil or negative amount reported by an integration,
// or one above limit when limit is non-nil.
func checkResult(op domain.Operation, field string, got, limit *big.Int) error {
	if got == nil || got.Sign() < 0 || (limit != nil && got.Cmp(limit) > 0) {
		return domain.NewOpError(op, domain.KindIntegration, field, domain.ErrInvalidIntegrationResult)
	}
	return nil
}
