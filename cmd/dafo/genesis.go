package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aescanero/dafo/internal/config"
	ledgermem "github.com/aescanero/dafo/pkg/adapters/ledger/memory"
	"github.com/aescanero/dafo/pkg/adapters/protocols/sim"
	"go.uber.org/zap"
)

// seedGenesis credits the ledger and deploys the simulated integrations. A
// nil genesis yields an empty directory.
func seedGenesis(ctx context.Context, g *config.Genesis, ledger *ledgermem.Ledger, clock func() time.Time, logger *zap.Logger) (*sim.Directory, error) {
	dir := sim.NewDirectory()
	if g == nil {
		return dir, nil
	}

	for _, n := range g.Native {
		if err := ledger.MintNative(ctx, n.Holder, n.Amount); err != nil {
			return nil, fmt.Errorf("native balance of %s: %w", n.Holder.Hex(), err)
		}
	}
	for _, b := range g.Balances {
		if err := ledger.Mint(ctx, b.Asset, b.Holder, b.Amount); err != nil {
			return nil, fmt.Errorf("balance of %s in %s: %w", b.Holder.Hex(), b.Asset.Hex(), err)
		}
	}
	for _, a := range g.Allowances {
		if err := ledger.Approve(ctx, a.Asset, a.Owner, a.Spender, a.Amount); err != nil {
			return nil, fmt.Errorf("allowance of %s for %s: %w", a.Owner.Hex(), a.Spender.Hex(), err)
		}
	}

	for _, e := range g.Exchanges {
		ex := sim.NewExchange(e.Address, ledger, ledger, clock, logger)
		for _, p := range e.Pools {
			if err := ex.AddPool(sim.Pool{AssetIn: p.AssetIn, AssetOut: p.AssetOut, Fee: p.Fee, Rate: p.Rate}); err != nil {
				return nil, fmt.Errorf("exchange %s: %w", e.Address.Hex(), err)
			}
		}
		dir.AddExchange(ex)
	}
	for _, l := range g.Lending {
		lp := sim.NewLending(l.Address, ledger, ledger, logger)
		for _, r := range l.Reserves {
			if err := lp.ListReserve(r); err != nil {
				return nil, fmt.Errorf("lending %s: %w", l.Address.Hex(), err)
			}
		}
		for _, o := range l.Operators {
			lp.TrustOperator(o)
		}
		dir.AddLending(lp)
	}
	for _, b := range g.Bridges {
		br := sim.NewBridge(b.Address, ledger, ledger, b.MinFee, clock, logger)
		for _, d := range b.Domains {
			br.SupportDomain(d)
		}
		dir.AddBridge(br)
	}

	logger.Info("genesis applied",
		zap.Int("balances", len(g.Balances)),
		zap.Int("exchanges", len(g.Exchanges)),
		zap.Int("lending_markets", len(g.Lending)),
		zap.Int("bridges", len(g.Bridges)))

	return dir, nil
}
