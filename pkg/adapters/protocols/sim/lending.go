package sim

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/aescanero/dafo/pkg/ports"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	// LTVBps is the share of collateral that may be borrowed, in basis points.
	LTVBps = 8000
	// LiquidationThresholdBps is the share of collateral debt may reach before
	// the position becomes unhealthy.
	LiquidationThresholdBps = 8500

	bpsDenominator = 10_000
)

var (
	ErrReserveNotListed       = errors.New("reserve not listed")
	ErrNotOperator            = errors.New("sender may not act for user")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrBorrowCapExceeded      = errors.New("borrow exceeds available capacity")
	ErrUnhealthyPosition      = errors.New("health factor would drop below one")
	ErrNoDebt                 = errors.New("no debt of this rate mode")
	ErrInsufficientLiquidity  = errors.New("insufficient reserve liquidity")
)

// wad is the 1e18 scale used for the health factor.
var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type debtKey struct {
	user  common.Address
	asset common.Address
	mode  domain.RateMode
}

// Lending is a pooled lending market where every listed asset is valued 1:1.
// Reserves are the market's own ledger balances.
type Lending struct {
	addr    common.Address
	ledger  ports.TokenLedger
	journal ports.Journal
	logger  *zap.Logger

	mu         sync.RWMutex
	reserves   map[common.Address]bool
	operators  map[common.Address]bool
	collateral map[common.Address]map[common.Address]*big.Int // user -> asset -> amount
	debt       map[debtKey]*big.Int
}

// NewLending creates a lending market deployed at addr.
func NewLending(addr common.Address, ledger ports.TokenLedger, journal ports.Journal, logger *zap.Logger) *Lending {
	return &Lending{
		addr:       addr,
		ledger:     ledger,
		journal:    journalOrNop(journal),
		logger:     logger,
		reserves:   make(map[common.Address]bool),
		operators:  make(map[common.Address]bool),
		collateral: make(map[common.Address]map[common.Address]*big.Int),
		debt:       make(map[debtKey]*big.Int),
	}
}

// Address returns where the market is deployed.
func (l *Lending) Address() common.Address {
	return l.addr
}

// ListReserve lets asset be supplied and borrowed.
func (l *Lending) ListReserve(asset common.Address) error {
	if domain.IsZeroAddress(asset) {
		return fmt.Errorf("reserve: %w", domain.ErrZeroAddress)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reserves[asset] = true
	return nil
}

// TrustOperator lets operator withdraw and borrow on behalf of any user.
func (l *Lending) TrustOperator(operator common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.operators[operator] = true
}

// Collateral returns user's supplied balance of asset.
func (l *Lending) Collateral(user, asset common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.CopyAmount(l.collateral[user][asset])
}

// Debt returns user's debt of asset under mode.
func (l *Lending) Debt(user, asset common.Address, mode domain.RateMode) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return domain.CopyAmount(l.debt[debtKey{user, asset, mode}])
}

func (l *Lending) Supply(ctx context.Context, opts ports.CallOpts, asset common.Address, amount *big.Int, onBehalfOf common.Address, referralCode uint16) error {
	if err := l.checkReserve(asset); err != nil {
		return err
	}
	if domain.IsZeroAmount(amount) {
		return domain.ErrZeroAmount
	}
	if domain.IsZeroAddress(onBehalfOf) {
		return fmt.Errorf("on behalf of: %w", domain.ErrZeroAddress)
	}

	if err := l.ledger.TransferFrom(ctx, asset, l.addr, opts.From, l.addr, amount); err != nil {
		return fmt.Errorf("pull supply: %w", err)
	}

	l.mu.Lock()
	l.setCollateral(ctx, onBehalfOf, asset, new(big.Int).Add(domain.CopyAmount(l.collateral[onBehalfOf][asset]), amount))
	l.mu.Unlock()

	l.logger.Debug("supplied",
		zap.String("user", onBehalfOf.Hex()),
		zap.String("asset", asset.Hex()),
		zap.Stringer("amount", amount),
		zap.Uint16("referral_code", referralCode))
	return nil
}

func (l *Lending) Withdraw(ctx context.Context, opts ports.CallOpts, asset common.Address, amount *big.Int, onBehalfOf, to common.Address) (*big.Int, error) {
	if err := l.authorize(opts.From, onBehalfOf); err != nil {
		return nil, err
	}
	if err := l.checkReserve(asset); err != nil {
		return nil, err
	}
	if domain.IsZeroAmount(amount) {
		return nil, domain.ErrZeroAmount
	}

	l.mu.Lock()
	have := domain.CopyAmount(l.collateral[onBehalfOf][asset])
	if domain.IsMax(amount) {
		amount = have
	}
	if amount.Sign() == 0 || have.Cmp(amount) < 0 {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s supplied, %s requested", ErrInsufficientCollateral, have, amount)
	}
	coll, debt := l.totalsLocked(onBehalfOf)
	coll.Sub(coll, amount)
	if !healthy(coll, debt) {
		l.mu.Unlock()
		return nil, ErrUnhealthyPosition
	}
	l.setCollateral(ctx, onBehalfOf, asset, new(big.Int).Sub(have, amount))
	l.mu.Unlock()

	if err := l.ledger.Transfer(ctx, asset, l.addr, to, amount); err != nil {
		return nil, fmt.Errorf("pay withdrawal: %w", err)
	}
	return new(big.Int).Set(amount), nil
}

func (l *Lending) Borrow(ctx context.Context, opts ports.CallOpts, asset common.Address, amount *big.Int, rateMode domain.RateMode, referralCode uint16, onBehalfOf common.Address) error {
	if err := l.authorize(opts.From, onBehalfOf); err != nil {
		return err
	}
	if err := l.checkReserve(asset); err != nil {
		return err
	}
	if !rateMode.Valid() {
		return domain.ErrInvalidRateMode
	}
	if domain.IsZeroAmount(amount) {
		return domain.ErrZeroAmount
	}

	liquidity, err := l.ledger.BalanceOf(ctx, asset, l.addr)
	if err != nil {
		return err
	}
	if liquidity.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s available", ErrInsufficientLiquidity, liquidity)
	}

	l.mu.Lock()
	coll, debt := l.totalsLocked(onBehalfOf)
	if available := availableBorrows(coll, debt); available.Cmp(amount) < 0 {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s available, %s requested", ErrBorrowCapExceeded, available, amount)
	}
	key := debtKey{onBehalfOf, asset, rateMode}
	l.setDebt(ctx, key, new(big.Int).Add(domain.CopyAmount(l.debt[key]), amount))
	l.mu.Unlock()

	if err := l.ledger.Transfer(ctx, asset, l.addr, onBehalfOf, amount); err != nil {
		return fmt.Errorf("pay borrow: %w", err)
	}

	l.logger.Debug("borrowed",
		zap.String("user", onBehalfOf.Hex()),
		zap.String("asset", asset.Hex()),
		zap.Stringer("amount", amount),
		zap.Stringer("rate_mode", rateMode),
		zap.Uint16("referral_code", referralCode))
	return nil
}

func (l *Lending) Repay(ctx context.Context, opts ports.CallOpts, asset common.Address, amount *big.Int, rateMode domain.RateMode, onBehalfOf common.Address) (*big.Int, error) {
	if err := l.checkReserve(asset); err != nil {
		return nil, err
	}
	if !rateMode.Valid() {
		return nil, domain.ErrInvalidRateMode
	}
	if domain.IsZeroAmount(amount) {
		return nil, domain.ErrZeroAmount
	}

	key := debtKey{onBehalfOf, asset, rateMode}
	l.mu.RLock()
	owed := domain.CopyAmount(l.debt[key])
	l.mu.RUnlock()
	if owed.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoDebt, asset.Hex(), rateMode)
	}

	applied := domain.CopyAmount(amount)
	if applied.Cmp(owed) > 0 {
		applied = owed
	}
	if err := l.ledger.TransferFrom(ctx, asset, l.addr, opts.From, l.addr, applied); err != nil {
		return nil, fmt.Errorf("pull repayment: %w", err)
	}

	l.mu.Lock()
	l.setDebt(ctx, key, new(big.Int).Sub(owed, applied))
	l.mu.Unlock()
	return applied, nil
}

func (l *Lending) GetAccountData(ctx context.Context, user common.Address) (*domain.AccountData, error) {
	l.mu.RLock()
	coll, debt := l.totalsLocked(user)
	l.mu.RUnlock()

	hf := domain.CopyAmount(domain.MaxAmount)
	if debt.Sign() > 0 {
		hf = new(big.Int).Mul(coll, big.NewInt(LiquidationThresholdBps))
		hf.Mul(hf, wad)
		hf.Div(hf, new(big.Int).Mul(debt, big.NewInt(bpsDenominator)))
	}

	return &domain.AccountData{
		TotalCollateral:      coll,
		TotalDebt:            debt,
		AvailableBorrows:     availableBorrows(coll, debt),
		LiquidationThreshold: big.NewInt(LiquidationThresholdBps),
		LTV:                  big.NewInt(LTVBps),
		HealthFactor:         hf,
	}, nil
}

func (l *Lending) authorize(sender, user common.Address) error {
	if sender == user {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.operators[sender] {
		return fmt.Errorf("%w: %s for %s", ErrNotOperator, sender.Hex(), user.Hex())
	}
	return nil
}

func (l *Lending) checkReserve(asset common.Address) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.reserves[asset] {
		return fmt.Errorf("%w: %s", ErrReserveNotListed, asset.Hex())
	}
	return nil
}

// totalsLocked sums user's collateral and debt; l.mu must be held.
func (l *Lending) totalsLocked(user common.Address) (coll, debt *big.Int) {
	coll, debt = new(big.Int), new(big.Int)
	for _, v := range l.collateral[user] {
		coll.Add(coll, v)
	}
	for k, v := range l.debt {
		if k.user == user {
			debt.Add(debt, v)
		}
	}
	return coll, debt
}

func (l *Lending) setCollateral(ctx context.Context, user, asset common.Address, v *big.Int) {
	assets, ok := l.collateral[user]
	if !ok {
		assets = make(map[common.Address]*big.Int)
		l.collateral[user] = assets
	}
	prev, existed := assets[asset]
	assets[asset] = v

	l.journal.Record(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if existed {
			l.collateral[user][asset] = prev
		} else {
			delete(l.collateral[user], asset)
		}
	})
}

func (l *Lending) setDebt(ctx context.Context, key debtKey, v *big.Int) {
	prev, existed := l.debt[key]
	l.debt[key] = v

	l.journal.Record(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if existed {
			l.debt[key] = prev
		} else {
			delete(l.debt, key)
		}
	})
}

func availableBorrows(coll, debt *big.Int) *big.Int {
	limit := new(big.Int).Mul(coll, big.NewInt(LTVBps))
	limit.Div(limit, big.NewInt(bpsDenominator))
	if limit.Cmp(debt) <= 0 {
		return new(big.Int)
	}
	return limit.Sub(limit, debt)
}

func healthy(coll, debt *big.Int) bool {
	if debt.Sign() == 0 {
		return true
	}
	limit := new(big.Int).Mul(coll, big.NewInt(LiquidationThresholdBps))
	return limit.Cmp(new(big.Int).Mul(debt, big.NewInt(bpsDenominator))) >= 0
}
