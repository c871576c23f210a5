package sim

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/aescanero/dafo/pkg/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// feeDenominator expresses fee tiers in hundredths of a bip.
const feeDenominator = 1_000_000

var (
	ErrNoPool             = errors.New("no pool for pair and fee")
	ErrDeadlineExpired    = errors.New("transaction too old")
	ErrTooLittleReceived  = errors.New("too little received")
	ErrInsufficientOutput = errors.New("insufficient output reserve")
)

// Pool converts AssetIn to AssetOut at a fixed Rate, less the fee tier.
type Pool struct {
	AssetIn  common.Address
	AssetOut common.Address
	Fee      uint32
	Rate     decimal.Decimal
}

type poolKey struct {
	in  common.Address
	out common.Address
	fee uint32
}

// Exchange is a fixed-rate exchange router. Output is paid from the
// exchange's own ledger balance.
type Exchange struct {
	addr    common.Address
	ledger  ports.TokenLedger
	journal ports.Journal
	clock   func() time.Time
	logger  *zap.Logger

	mu    sync.RWMutex
	pools map[poolKey]Pool
	swaps uint64
}

// NewExchange creates an exchange deployed at addr.
func NewExchange(addr common.Address, ledger ports.TokenLedger, journal ports.Journal, clock func() time.Time, logger *zap.Logger) *Exchange {
	if clock == nil {
		clock = time.Now
	}
	return &Exchange{
		addr:    addr,
		ledger:  ledger,
		journal: journalOrNop(journal),
		clock:   clock,
		logger:  logger,
		pools:   make(map[poolKey]Pool),
	}
}

// Address returns where the exchange is deployed.
func (e *Exchange) Address() common.Address {
	return e.addr
}

// AddPool registers a pool. Rate is units of AssetOut per unit of AssetIn.
func (e *Exchange) AddPool(p Pool) error {
	if domain.IsZeroAddress(p.AssetIn) || domain.IsZeroAddress(p.AssetOut) {
		return fmt.Errorf("pool assets: %w", domain.ErrZeroAddress)
	}
	if p.Fee >= feeDenominator {
		return fmt.Errorf("pool fee %d: %w", p.Fee, domain.ErrInvalidFeeTier)
	}
	if !p.Rate.IsPositive() {
		return fmt.Errorf("pool rate must be positive, got %s", p.Rate)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.pools[poolKey{p.AssetIn, p.AssetOut, p.Fee}] = p
	return nil
}

// Swaps returns how many swaps have settled.
func (e *Exchange) Swaps() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.swaps
}

// Quote returns the output of swapping amountIn through one pool.
func (e *Exchange) Quote(in, out common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	e.mu.RLock()
	p, ok := e.pools[poolKey{in, out, fee}]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s at %d", ErrNoPool, in.Hex(), out.Hex(), fee)
	}

	gross := decimal.NewFromBigInt(amountIn, 0).Mul(p.Rate)
	net := gross.Mul(decimal.NewFromInt(int64(feeDenominator - p.Fee))).Div(decimal.NewFromInt(feeDenominator))
	return net.Floor().BigInt(), nil
}

func (e *Exchange) ExactInputSingle(ctx context.Context, opts ports.CallOpts, params ports.ExactInputSingleParams) (*big.Int, error) {
	if err := e.checkDeadline(params.Deadline); err != nil {
		return nil, err
	}
	out, err := e.Quote(params.AssetIn, params.AssetOut, params.Fee, params.AmountIn)
	if err != nil {
		return nil, err
	}
	return e.settle(ctx, opts, params.AssetIn, params.AssetOut, params.Recipient, params.AmountIn, out, params.AmountOutMinimum)
}

func (e *Exchange) ExactInput(ctx context.Context, opts ports.CallOpts, params ports.ExactInputParams) (*big.Int, error) {
	if err := e.checkDeadline(params.Deadline); err != nil {
		return nil, err
	}
	hops, err := domain.DecodePath(params.Path)
	if err != nil {
		return nil, err
	}

	amount := domain.CopyAmount(params.AmountIn)
	for _, hop := range hops {
		amount, err = e.Quote(hop.AssetIn, hop.AssetOut, hop.Fee, amount)
		if err != nil {
			return nil, err
		}
	}
	return e.settle(ctx, opts, hops[0].AssetIn, hops[len(hops)-1].AssetOut, params.Recipient, params.AmountIn, amount, params.AmountOutMinimum)
}

// settle pulls the input from the sender and pays the output to recipient.
// Intermediate hops never touch the ledger.
func (e *Exchange) settle(ctx context.Context, opts ports.CallOpts, in, out, recipient common.Address, amountIn, amountOut, minOut *big.Int) (*big.Int, error) {
	if domain.IsZeroAmount(amountIn) {
		return nil, domain.ErrZeroAmount
	}
	if amountOut.Cmp(domain.CopyAmount(minOut)) < 0 {
		return nil, fmt.Errorf("%w: got %s, want at least %s", ErrTooLittleReceived, amountOut, domain.CopyAmount(minOut))
	}

	reserve, err := e.ledger.BalanceOf(ctx, out, e.addr)
	if err != nil {
		return nil, err
	}
	if reserve.Cmp(amountOut) < 0 {
		return nil, fmt.Errorf("%w: %s of %s available, %s needed", ErrInsufficientOutput, reserve, out.Hex(), amountOut)
	}

	if err := e.ledger.TransferFrom(ctx, in, e.addr, opts.From, e.addr, amountIn); err != nil {
		return nil, fmt.Errorf("pull input: %w", err)
	}
	if err := e.ledger.Transfer(ctx, out, e.addr, recipient, amountOut); err != nil {
		return nil, fmt.Errorf("pay output: %w", err)
	}

	e.mu.Lock()
	e.swaps++
	e.mu.Unlock()
	e.journal.Record(ctx, func() {
		e.mu.Lock()
		e.swaps--
		e.mu.Unlock()
	})

	e.logger.Debug("swap settled",
		zap.String("asset_in", in.Hex()),
		zap.String("asset_out", out.Hex()),
		zap.Stringer("amount_in", amountIn),
		zap.Stringer("amount_out", amountOut))
	return amountOut, nil
}

func (e *Exchange) checkDeadline(deadline int64) error {
	if now := e.clock().Unix(); now > deadline {
		return fmt.Errorf("%w: deadline %d, now %d", ErrDeadlineExpired, deadline, now)
	}
	return nil
}
