package orchestrator

import (
	"context"
	"math/big"
	"strconv"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/aescanero/dafo/pkg/ports"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ExactInputSingle swaps req.AmountIn of req.AssetIn for req.AssetOut through
// one pool. Output goes straight from the exchange to the caller.
func (m *Manager) ExactInputSingle(ctx context.Context, caller common.Address, req *domain.ExactInputSingleRequest) (*big.Int, error) {
	const op = domain.OpExactInputSingle
	tok, err := m.enter(op, caller)
	if err != nil {
		return nil, err
	}
	defer tok.Release()

	if err := m.validator.ExactInputSingle(caller, req); err != nil {
		return nil, m.reject(op, caller, err)
	}

	var amountOut *big.Int
	err = m.run(ctx, op, caller, func(ctx context.Context, out *outbox) error {
		ex, exAddr, err := m.exchange(op)
		if err != nil {
			return err
		}
		if err := m.pull(ctx, op, req.AssetIn, caller, req.AmountIn); err != nil {
			return err
		}
		if err := m.grant(ctx, op, req.AssetIn, exAddr, req.AmountIn); err != nil {
			return err
		}

		minOut := domain.CopyAmount(req.AmountOutMin)
		got, err := ex.ExactInputSingle(ctx, ports.CallOpts{From: m.self}, ports.ExactInputSingleParams{
			AssetIn:           req.AssetIn,
			AssetOut:          req.AssetOut,
			Fee:               req.Fee,
			Recipient:         caller,
			Deadline:          m.swapDeadline(),
			AmountIn:          domain.CopyAmount(req.AmountIn),
			AmountOutMinimum:  minOut,
			SqrtPriceLimitX96: new(big.Int),
		})
		if err != nil {
			return delegate(op, err)
		}
		if err := checkResult(op, "amount_out", got, nil); err != nil {
			return err
		}
		if got.Cmp(minOut) < 0 {
			return domain.NewOpError(op, domain.KindIntegration, "amount_out", domain.ErrInvalidIntegrationResult)
		}
		if err := m.revoke(ctx, op, req.AssetIn, exAddr); err != nil {
			return err
		}

		amountOut = got
		out.add(m.swapped(op, caller, req.AssetIn, req.AssetOut, req.AmountIn, got))
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("swap completed",
		zap.String("caller", caller.Hex()),
		zap.String("asset_in", req.AssetIn.Hex()),
		zap.String("asset_out", req.AssetOut.Hex()),
		zap.Stringer("amount_in", req.AmountIn),
		zap.Stringer("amount_out", amountOut))
	return amountOut, nil
}

// ExactInput swaps req.AmountIn along a multi-hop path. The source asset is
// the first asset of the path.
func (m *Manager) ExactInput(ctx context.Context, caller common.Address, req *domain.ExactInputRequest) (*big.Int, error) {
	const op = domain.OpExactInput
	tok, err := m.enter(op, caller)
	if err != nil {
		return nil, err
	}
	defer tok.Release()

	hops, err := m.validator.ExactInput(caller, req)
	if err != nil {
		return nil, m.reject(op, caller, err)
	}
	assetIn := hops[0].AssetIn
	assetOut := hops[len(hops)-1].AssetOut

	var amountOut *big.Int
	err = m.run(ctx, op, caller, func(ctx context.Context, out *outbox) error {
		ex, exAddr, err := m.exchange(op)
		if err != nil {
			return err
		}
		if err := m.pull(ctx, op, assetIn, caller, req.AmountIn); err != nil {
			return err
		}
		if err := m.grant(ctx, op, assetIn, exAddr, req.AmountIn); err != nil {
			return err
		}

		minOut := domain.CopyAmount(req.AmountOutMin)
		got, err := ex.ExactInput(ctx, ports.CallOpts{From: m.self}, ports.ExactInputParams{
			Path:             append([]byte(nil), req.Path...),
			Recipient:        caller,
			Deadline:         m.swapDeadline(),
			AmountIn:         domain.CopyAmount(req.AmountIn),
			AmountOutMinimum: minOut,
		})
		if err != nil {
			return delegate(op, err)
		}
		if err := checkResult(op, "amount_out", got, nil); err != nil {
			return err
		}
		if got.Cmp(minOut) < 0 {
			return domain.NewOpError(op, domain.KindIntegration, "amount_out", domain.ErrInvalidIntegrationResult)
		}
		if err := m.revoke(ctx, op, assetIn, exAddr); err != nil {
			return err
		}

		amountOut = got
		out.add(m.swapped(op, caller, assetIn, assetOut, req.AmountIn, got).
			With("hops", strconv.Itoa(len(hops))))
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("multi-hop swap completed",
		zap.String("caller", caller.Hex()),
		zap.Int("hops", len(hops)),
		zap.Stringer("amount_in", req.AmountIn),
		zap.Stringer("amount_out", amountOut))
	return amountOut, nil
}

func (m *Manager) swapDeadline() int64 {
	return m.now().Add(m.opts.SwapDeadlineWindow).Unix()
}

func (m *Manager) swapped(op domain.Operation, caller, assetIn, assetOut common.Address, amountIn, amountOut *big.Int) *domain.Notification {
	return domain.NewNotification(domain.NotificationSwapped, op, caller, m.now()).
		WithAddress("asset_in", assetIn).
		WithAddress("asset_out", assetOut).
		WithAmount("amount_in", amountIn).
		WithAmount("amount_out", amountOut)
}
