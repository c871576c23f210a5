package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	ledgermem "github.com/aescanero/dafo/pkg/adapters/ledger/memory"
	"github.com/aescanero/dafo/pkg/domain"
	"github.com/aescanero/dafo/pkg/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	selfAddr     = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	adminAddr    = common.HexToAddress("0x000000000000000000000000000000000000ad01")
	alice        = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	exchangeAddr = common.HexToAddress("0x00000000000000000000000000000000000e0001")
	lendingAddr  = common.HexToAddress("0x00000000000000000000000000000000000e0002")
	bridgeAddr   = common.HexToAddress("0x00000000000000000000000000000000000e0003")
	unknownAddr  = common.HexToAddress("0x00000000000000000000000000000000000e00ff")

	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	tokenC = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

type stubExchange struct {
	ledger *ledgermem.Ledger
	rate   int64
	// consume, when set, is how much of the grant the exchange actually pulls.
	consume *big.Int
	err     error
	onCall  func(ctx context.Context) error

	calls         int
	seenAllowance []*big.Int
	lastSingle    ports.ExactInputSingleParams
	lastMulti     ports.ExactInputParams
}

func (s *stubExchange) ExactInputSingle(ctx context.Context, opts ports.CallOpts, p ports.ExactInputSingleParams) (*big.Int, error) {
	s.calls++
	s.lastSingle = p
	return s.swap(ctx, opts, p.AssetIn, p.AssetOut, p.Recipient, p.AmountIn)
}

func (s *stubExchange) ExactInput(ctx context.Context, opts ports.CallOpts, p ports.ExactInputParams) (*big.Int, error) {
	s.calls++
	s.lastMulti = p
	in, out, err := domain.PathEnds(p.Path)
	if err != nil {
		return nil, err
	}
	return s.swap(ctx, opts, in, out, p.Recipient, p.AmountIn)
}

func (s *stubExchange) swap(ctx context.Context, opts ports.CallOpts, in, out, recipient common.Address, amountIn *big.Int) (*big.Int, error) {
	allowed, err := s.ledger.Allowance(ctx, in, opts.From, exchangeAddr)
	if err != nil {
		return nil, err
	}
	s.seenAllowance = append(s.seenAllowance, allowed)

	if s.onCall != nil {
		if err := s.onCall(ctx); err != nil {
			return nil, err
		}
	}

	take := amountIn
	if s.consume != nil {
		take = s.consume
	}
	if err := s.ledger.TransferFrom(ctx, in, exchangeAddr, opts.From, exchangeAddr, take); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	amountOut := new(big.Int).Mul(take, big.NewInt(s.rate))
	if err := s.ledger.Transfer(ctx, out, exchangeAddr, recipient, amountOut); err != nil {
		return nil, err
	}
	return amountOut, nil
}

type stubLending struct {
	ledger *ledgermem.Ledger
	// debt caps what repay applies.
	debt *big.Int
	// collateral is what a MAX withdraw returns.
	collateral *big.Int
	// withdrawReport overrides the amount withdraw reports.
	withdrawReport *big.Int
	err            error

	calls        int
	lastRateMode domain.RateMode
	lastOnBehalf common.Address
	lastReferral uint16
}

func (s *stubLending) Supply(ctx context.Context, opts ports.CallOpts, asset common.Address, amount *big.Int, onBehalfOf common.Address, referral uint16) error {
	s.calls++
	s.lastOnBehalf = onBehalfOf
	s.lastReferral = referral
	if s.err != nil {
		return s.err
	}
	return s.ledger.TransferFrom(ctx, asset, lendingAddr, opts.From, lendingAddr, amount)
}

func (s *stubLending) Withdraw(ctx context.Context, opts ports.CallOpts, asset common.Address, amount *big.Int, onBehalfOf, to common.Address) (*big.Int, error) {
	s.calls++
	s.lastOnBehalf = onBehalfOf
	if s.err != nil {
		return nil, s.err
	}
	if domain.IsMax(amount) {
		amount = s.collateral
	}
	if err := s.ledger.Transfer(ctx, asset, lendingAddr, to, amount); err != nil {
		return nil, err
	}
	if s.withdrawReport != nil {
		return s.withdrawReport, nil
	}
	return amount, nil
}

func (s *stubLending) Borrow(ctx context.Context, opts ports.CallOpts, asset common.Address, amount *big.Int, rateMode domain.RateMode, referral uint16, onBehalfOf common.Address) error {
	s.calls++
	s.lastRateMode = rateMode
	s.lastOnBehalf = onBehalfOf
	if s.err != nil {
		return s.err
	}
	return s.ledger.Transfer(ctx, asset, lendingAddr, onBehalfOf, amount)
}

func (s *stubLending) Repay(ctx context.Context, opts ports.CallOpts, asset common.Address, amount *big.Int, rateMode domain.RateMode, onBehalfOf common.Address) (*big.Int, error) {
	s.calls++
	s.lastRateMode = rateMode
	s.lastOnBehalf = onBehalfOf
	if s.err != nil {
		return nil, s.err
	}
	applied := new(big.Int).Set(amount)
	if s.debt != nil && s.debt.Cmp(applied) < 0 {
		applied.Set(s.debt)
	}
	if err := s.ledger.TransferFrom(ctx, asset, lendingAddr, opts.From, lendingAddr, applied); err != nil {
		return nil, err
	}
	return applied, nil
}

func (s *stubLending) GetAccountData(ctx context.Context, user common.Address) (*domain.AccountData, error) {
	s.calls++
	return &domain.AccountData{
		TotalCollateral:      big.NewInt(100),
		TotalDebt:            big.NewInt(10),
		AvailableBorrows:     big.NewInt(70),
		LiquidationThreshold: big.NewInt(8500),
		LTV:                  big.NewInt(8000),
		HealthFactor:         big.NewInt(8_500_000_000_000_000_000),
	}, nil
}

type stubBridge struct {
	ledger *ledgermem.Ledger
	err    error

	calls     int
	lastOpts  ports.CallOpts
	lastParam ports.BridgeParams
}

func (s *stubBridge) Bridge(ctx context.Context, opts ports.CallOpts, p ports.BridgeParams) error {
	s.calls++
	s.lastOpts = opts
	s.lastParam = p
	if s.err != nil {
		return s.err
	}
	return s.ledger.TransferFrom(ctx, p.Asset, bridgeAddr, opts.From, bridgeAddr, p.Amount)
}

type stubResolver struct {
	exchanges map[common.Address]ports.Exchange
	lendings  map[common.Address]ports.Lending
	bridges   map[common.Address]ports.Bridge
}

func (r *stubResolver) Exchange(addr common.Address) (ports.Exchange, error) {
	if ex, ok := r.exchanges[addr]; ok {
		return ex, nil
	}
	return nil, ports.ErrNoIntegration
}

func (r *stubResolver) Lending(addr common.Address) (ports.Lending, error) {
	if lp, ok := r.lendings[addr]; ok {
		return lp, nil
	}
	return nil, ports.ErrNoIntegration
}

func (r *stubResolver) Bridge(addr common.Address) (ports.Bridge, error) {
	if br, ok := r.bridges[addr]; ok {
		return br, nil
	}
	return nil, ports.ErrNoIntegration
}

type recordingBus struct {
	mu        sync.Mutex
	published []*domain.Notification
	err       error
}

func (b *recordingBus) Publish(ctx context.Context, topic string, n *domain.Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, n)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	return nil
}

func (b *recordingBus) Unsubscribe(ctx context.Context, topic string) error { return nil }

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) notifications() []*domain.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*domain.Notification(nil), b.published...)
}

type memSettings struct {
	mu    sync.Mutex
	saved *domain.Settings
	err   error
	// entered and release, when set, park the next save until release closes.
	entered chan struct{}
	release chan struct{}
}

func (s *memSettings) hold(entered, release chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entered = entered
	s.release = release
}

func (s *memSettings) SaveSettings(ctx context.Context, st *domain.Settings) error {
	s.mu.Lock()
	entered, release := s.entered, s.release
	s.entered, s.release = nil, nil
	s.mu.Unlock()

	if entered != nil {
		close(entered)
		<-release
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = st.Clone()
	return nil
}

func (s *memSettings) LoadSettings(ctx context.Context) (*domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		return nil, domain.ErrNotFound
	}
	return s.saved.Clone(), nil
}

func (s *memSettings) stored() *domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		return nil
	}
	return s.saved.Clone()
}

type countingMetrics struct {
	mu         sync.Mutex
	operations map[string]int
	published  int
	failed     int
	pulled     int
	residual   *big.Int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{operations: make(map[string]int), residual: new(big.Int)}
}

func (c *countingMetrics) RecordOperation(op domain.Operation, status string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operations[string(op)+"/"+status]++
}

func (c *countingMetrics) RecordCustodyPull(asset common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pulled++
}

func (c *countingMetrics) RecordResidualReturned(asset common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.residual.Add(c.residual, amount)
}

func (c *countingMetrics) RecordNotificationPublished(typ domain.NotificationType, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failed++
		return
	}
	c.published++
}

func (c *countingMetrics) RecordNotificationObserved(typ domain.NotificationType) {}
func (c *countingMetrics) RecordObserverPoolStatus(idle, busy, stopped int) {}
func (c *countingMetrics) SetQueueDepth(queue string, depth int) {}

func (c *countingMetrics) count(op domain.Operation, status string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.operations[string(op)+"/"+status]
}

type fixture struct {
	ctx      context.Context
	ledger   *ledgermem.Ledger
	exchange *stubExchange
	lending  *stubLending
	bridge   *stubBridge
	resolver *stubResolver
	bus      *recordingBus
	store    *memSettings
	metrics  *countingMetrics
	manager  *Manager
	now      time.Time
}

// newFixture wires a manager with alice holding 1000 of tokenA, approved for
// custody, and integrations holding enough reserves to pay out.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	ledger := ledgermem.New(logger)

	f := &fixture{
		ctx:      ctx,
		ledger:   ledger,
		exchange: &stubExchange{ledger: ledger, rate: 2},
		lending:  &stubLending{ledger: ledger, collateral: big.NewInt(50)},
		bridge:   &stubBridge{ledger: ledger},
		bus:      &recordingBus{},
		store:    &memSettings{},
		metrics:  newCountingMetrics(),
		now:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	f.resolver = &stubResolver{
		exchanges: map[common.Address]ports.Exchange{exchangeAddr: f.exchange},
		lendings:  map[common.Address]ports.Lending{lendingAddr: f.lending},
		bridges:   map[common.Address]ports.Bridge{bridgeAddr: f.bridge},
	}

	require.NoError(t, ledger.Mint(ctx, tokenA, alice, big.NewInt(1000)))
	require.NoError(t, ledger.Approve(ctx, tokenA, alice, selfAddr, big.NewInt(1_000_000)))
	require.NoError(t, ledger.MintNative(ctx, alice, big.NewInt(10)))
	for _, reserve := range []common.Address{exchangeAddr, lendingAddr} {
		for _, tok := range []common.Address{tokenA, tokenB, tokenC} {
			require.NoError(t, ledger.Mint(ctx, tok, reserve, big.NewInt(1_000_000)))
		}
	}

	m, err := NewManager(
		selfAddr,
		&domain.Settings{Admin: adminAddr, Exchange: exchangeAddr, Lending: lendingAddr},
		ledger,
		ledger,
		f.resolver,
		f.bus,
		f.store,
		f.metrics,
		NewValidator(),
		logger,
		Options{SwapDeadlineWindow: 300 * time.Second, ReferralCode: 7, Clock: func() time.Time { return f.now }},
	)
	require.NoError(t, err)
	f.manager = m
	return f
}

func (f *fixture) balance(t *testing.T, asset, holder common.Address) int64 {
	t.Helper()
	b, err := f.ledger.BalanceOf(f.ctx, asset, holder)
	require.NoError(t, err)
	return b.Int64()
}

func (f *fixture) allowance(t *testing.T, asset, spender common.Address) int64 {
	t.Helper()
	a, err := f.ledger.Allowance(f.ctx, asset, selfAddr, spender)
	require.NoError(t, err)
	return a.Int64()
}

var errIntegration = errors.New("integration reverted")
