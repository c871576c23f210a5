package orchestrator

import (
	"context"
	"math/big"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/aescanero/dafo/pkg/ports"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Supply deposits req.Amount as collateral on behalf of the caller.
func (m *Manager) Supply(ctx context.Context, caller common.Address, req *domain.LendingRequest) error {
	const op = domain.OpSupply
	tok, err := m.enter(op, caller)
	if err != nil {
		return err
	}
	defer tok.Release()

	if err := m.validator.Lending(op, caller, req); err != nil {
		return m.reject(op, caller, err)
	}

	err = m.run(ctx, op, caller, func(ctx context.Context, out *outbox) error {
		lp, lpAddr, err := m.lending(op)
		if err != nil {
			return err
		}
		if err := m.pull(ctx, op, req.Asset, caller, req.Amount); err != nil {
			return err
		}
		if err := m.grant(ctx, op, req.Asset, lpAddr, req.Amount); err != nil {
			return err
		}
		err = lp.Supply(ctx, ports.CallOpts{From: m.self}, req.Asset, domain.CopyAmount(req.Amount), caller, m.opts.ReferralCode)
		if err != nil {
			return delegate(op, err)
		}
		if err := m.revoke(ctx, op, req.Asset, lpAddr); err != nil {
			return err
		}

		out.add(domain.NewNotification(domain.NotificationSupplied, op, caller, m.now()).
			WithAddress("asset", req.Asset).
			WithAmount("amount", req.Amount))
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("collateral supplied",
		zap.String("caller", caller.Hex()),
		zap.String("asset", req.Asset.Hex()),
		zap.Stringer("amount", req.Amount))
	return nil
}

// Withdraw redeems the caller's collateral straight to the caller. Nothing
// passes through custody. domain.MaxAmount withdraws everything and its
// meaning is left to the lending integration; the reported amount is returned.
func (m *Manager) Withdraw(ctx context.Context, caller common.Address, req *domain.LendingRequest) (*big.Int, error) {
	const op = domain.OpWithdraw
	tok, err := m.enter(op, caller)
	if err != nil {
		return nil, err
	}
	defer tok.Release()

	if err := m.validator.Lending(op, caller, req); err != nil {
		return nil, m.reject(op, caller, err)
	}

	var withdrawn *big.Int
	err = m.run(ctx, op, caller, func(ctx context.Context, out *outbox) error {
		lp, _, err := m.lending(op)
		if err != nil {
			return err
		}
		got, err := lp.Withdraw(ctx, ports.CallOpts{From: m.self}, req.Asset, domain.CopyAmount(req.Amount), caller, caller)
		if err != nil {
			return delegate(op, err)
		}
		var limit *big.Int
		if !domain.IsMax(req.Amount) {
			limit = req.Amount
		}
		if err := checkResult(op, "withdrawn", got, limit); err != nil {
			return err
		}

		withdrawn = got
		out.add(domain.NewNotification(domain.NotificationWithdrawn, op, caller, m.now()).
			WithAddress("asset", req.Asset).
			WithAmount("requested", req.Amount).
			WithAmount("amount", got))
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("collateral withdrawn",
		zap.String("caller", caller.Hex()),
		zap.String("asset", req.Asset.Hex()),
		zap.Stringer("amount", withdrawn))
	return withdrawn, nil
}

// Borrow draws req.Amount against the caller's collateral. The lending
// integration pays the caller directly.
func (m *Manager) Borrow(ctx context.Context, caller common.Address, req *domain.LendingRequest) error {
	const op = domain.OpBorrow
	tok, err := m.enter(op, caller)
	if err != nil {
		return err
	}
	defer tok.Release()

	if err := m.validator.Lending(op, caller, req); err != nil {
		return m.reject(op, caller, err)
	}

	err = m.run(ctx, op, caller, func(ctx context.Context, out *outbox) error {
		lp, _, err := m.lending(op)
		if err != nil {
			return err
		}
		err = lp.Borrow(ctx, ports.CallOpts{From: m.self}, req.Asset, domain.CopyAmount(req.Amount), req.RateMode, m.opts.ReferralCode, caller)
		if err != nil {
			return delegate(op, err)
		}

		out.add(domain.NewNotification(domain.NotificationBorrowed, op, caller, m.now()).
			WithAddress("asset", req.Asset).
			WithAmount("amount", req.Amount).
			With("rate_mode", req.RateMode.String()))
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("borrow completed",
		zap.String("caller", caller.Hex()),
		zap.String("asset", req.Asset.Hex()),
		zap.Stringer("amount", req.Amount),
		zap.Stringer("rate_mode", req.RateMode))
	return nil
}

// Repay pays down the caller's debt and returns the amount applied. With
// domain.MaxAmount the caller's whole balance is pulled, measured before the
// pull. Whatever the integration does not apply goes back to the caller.
func (m *Manager) Repay(ctx context.Context, caller common.Address, req *domain.LendingRequest) (*big.Int, error) {
	const op = domain.OpRepay
	tok, err := m.enter(op, caller)
	if err != nil {
		return nil, err
	}
	defer tok.Release()

	if err := m.validator.Lending(op, caller, req); err != nil {
		return nil, m.reject(op, caller, err)
	}

	var applied *big.Int
	err = m.run(ctx, op, caller, func(ctx context.Context, out *outbox) error {
		lp, lpAddr, err := m.lending(op)
		if err != nil {
			return err
		}

		effective := domain.CopyAmount(req.Amount)
		if domain.IsMax(req.Amount) {
			balance, err := m.ledger.BalanceOf(ctx, req.Asset, caller)
			if err != nil {
				return domain.NewOpError(op, domain.KindCustody, "balance", err)
			}
			if balance.Sign() == 0 {
				return domain.NewOpError(op, domain.KindValidation, "amount", domain.ErrZeroAmount)
			}
			effective = balance
		}

		if err := m.pull(ctx, op, req.Asset, caller, effective); err != nil {
			return err
		}
		if err := m.grant(ctx, op, req.Asset, lpAddr, effective); err != nil {
			return err
		}
		got, err := lp.Repay(ctx, ports.CallOpts{From: m.self}, req.Asset, domain.CopyAmount(effective), req.RateMode, caller)
		if err != nil {
			return delegate(op, err)
		}
		if err := checkResult(op, "applied", got, effective); err != nil {
			return err
		}
		if err := m.revoke(ctx, op, req.Asset, lpAddr); err != nil {
			return err
		}
		if err := m.refund(ctx, op, req.Asset, caller, new(big.Int).Sub(effective, got)); err != nil {
			return err
		}

		applied = got
		out.add(domain.NewNotification(domain.NotificationRepaid, op, caller, m.now()).
			WithAddress("asset", req.Asset).
			WithAmount("amount", got).
			With("rate_mode", req.RateMode.String()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("repay completed",
		zap.String("caller", caller.Hex()),
		zap.String("asset", req.Asset.Hex()),
		zap.Stringer("applied", applied))
	return applied, nil
}
