package memory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNegativeAmount        = errors.New("negative amount")
)

type allowanceKey struct {
	asset   common.Address
	owner   common.Address
	spender common.Address
}

// Ledger is an in-memory custody ledger. It implements ports.TokenLedger,
// ports.Executor and ports.Journal.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[common.Address]map[common.Address]*big.Int // asset -> holder -> amount
	allowances map[allowanceKey]*big.Int
	native     map[common.Address]*big.Int

	seq    chan struct{}
	tx     *transaction
	logger *zap.Logger
}

// New creates an empty ledger.
func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		native:     make(map[common.Address]*big.Int),
		seq:        make(chan struct{}, 1),
		logger:     logger,
	}
}

// BalanceOf returns holder's balance of asset.
func (l *Ledger) BalanceOf(ctx context.Context, asset, holder common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return domain.CopyAmount(l.balances[asset][holder]), nil
}

// Allowance returns how much spender may pull from owner.
func (l *Ledger) Allowance(ctx context.Context, asset, owner, spender common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return domain.CopyAmount(l.allowances[allowanceKey{asset, owner, spender}]), nil
}

// Approve sets the allowance of spender over owner's asset to exactly amount.
func (l *Ledger) Approve(ctx context.Context, asset, owner, spender common.Address, amount *big.Int) error {
	if err := checkOperands(asset, owner, spender); err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("approve: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.setAllowance(ctx, allowanceKey{asset, owner, spender}, amount)
	return nil
}

// Transfer moves amount of asset from one holder to another.
func (l *Ledger) Transfer(ctx context.Context, asset, from, to common.Address, amount *big.Int) error {
	if err := checkOperands(asset, from, to); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.move(ctx, asset, from, to, amount)
}

// TransferFrom moves amount on behalf of from, consuming spender's allowance.
// An allowance of domain.MaxAmount is never decremented.
func (l *Ledger) TransferFrom(ctx context.Context, asset, spender, from, to common.Address, amount *big.Int) error {
	if err := checkOperands(asset, from, to, spender); err != nil {
		return fmt.Errorf("transfer from: %w", err)
	}
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("transfer from: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey{asset, from, spender}
	allowed := domain.CopyAmount(l.allowances[key])
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s may pull %s of %s from %s, requested %s",
			ErrInsufficientAllowance, spender.Hex(), allowed, asset.Hex(), from.Hex(), amount)
	}

	if err := l.move(ctx, asset, from, to, amount); err != nil {
		return err
	}
	if !domain.IsMax(allowed) {
		l.setAllowance(ctx, key, new(big.Int).Sub(allowed, amount))
	}
	return nil
}

// NativeBalance returns holder's native currency balance.
func (l *Ledger) NativeBalance(ctx context.Context, holder common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return domain.CopyAmount(l.native[holder]), nil
}

// TransferNative moves native currency between holders.
func (l *Ledger) TransferNative(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if domain.IsZeroAddress(from) || domain.IsZeroAddress(to) {
		return fmt.Errorf("transfer native: %w", domain.ErrZeroAddress)
	}
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("transfer native: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	have := domain.CopyAmount(l.native[from])
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s native, needs %s", ErrInsufficientBalance, from.Hex(), have, amount)
	}
	l.setNative(ctx, from, new(big.Int).Sub(have, amount))
	l.setNative(ctx, to, new(big.Int).Add(domain.CopyAmount(l.native[to]), amount))
	return nil
}

// Mint credits holder with amount of asset. Used by genesis and tests.
func (l *Ledger) Mint(ctx context.Context, asset, holder common.Address, amount *big.Int) error {
	if err := checkOperands(asset, holder); err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("mint: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.setBalance(ctx, asset, holder, new(big.Int).Add(domain.CopyAmount(l.balances[asset][holder]), amount))
	return nil
}

// MintNative credits holder with native currency.
func (l *Ledger) MintNative(ctx context.Context, holder common.Address, amount *big.Int) error {
	if domain.IsZeroAddress(holder) {
		return fmt.Errorf("mint native: %w", domain.ErrZeroAddress)
	}
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("mint native: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.setNative(ctx, holder, new(big.Int).Add(domain.CopyAmount(l.native[holder]), amount))
	return nil
}

// move transfers balance; l.mu must be held.
func (l *Ledger) move(ctx context.Context, asset, from, to common.Address, amount *big.Int) error {
	have := domain.CopyAmount(l.balances[asset][from])
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, from.Hex(), have, asset.Hex(), amount)
	}
	l.setBalance(ctx, asset, from, new(big.Int).Sub(have, amount))
	l.setBalance(ctx, asset, to, new(big.Int).Add(domain.CopyAmount(l.balances[asset][to]), amount))
	return nil
}

func (l *Ledger) setBalance(ctx context.Context, asset, holder common.Address, amount *big.Int) {
	holders, ok := l.balances[asset]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		l.balances[asset] = holders
	}
	prev, existed := holders[holder]
	holders[holder] = amount

	l.journal(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if existed {
			l.balances[asset][holder] = prev
		} else {
			delete(l.balances[asset], holder)
		}
	})
}

func (l *Ledger) setAllowance(ctx context.Context, key allowanceKey, amount *big.Int) {
	prev, existed := l.allowances[key]
	l.allowances[key] = domain.CopyAmount(amount)

	l.journal(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if existed {
			l.allowances[key] = prev
		} else {
			delete(l.allowances, key)
		}
	})
}

func (l *Ledger) setNative(ctx context.Context, holder common.Address, amount *big.Int) {
	prev, existed := l.native[holder]
	l.native[holder] = amount

	l.journal(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if existed {
			l.native[holder] = prev
		} else {
			delete(l.native, holder)
		}
	})
}

func checkOperands(addrs ...common.Address) error {
	for _, a := range addrs {
		if domain.IsZeroAddress(a) {
			return domain.ErrZeroAddress
		}
	}
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: nil", ErrNegativeAmount)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeAmount, amount)
	}
	return nil
}
