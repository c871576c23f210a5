package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/dafo/internal/application/access"
	"github.com/aescanero/dafo/internal/application/guard"
	"github.com/aescanero/dafo/pkg/domain"
	"github.com/aescanero/dafo/pkg/ports"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const defaultSwapDeadlineWindow = 5 * time.Minute

// Options tunes dispatcher behaviour.
type Options struct {
	// SwapDeadlineWindow is added to the current time to form the swap deadline.
	SwapDeadlineWindow time.Duration
	// ReferralCode is passed to every supply and borrow.
	ReferralCode uint16
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Manager is the operation dispatcher. It owns the integration bindings and
// the administrator; nothing else mutates them.
type Manager struct {
	self      common.Address
	ledger    ports.TokenLedger
	executor  ports.Executor
	resolver  ports.IntegrationResolver
	eventBus  ports.EventBus
	store     ports.SettingsStorage
	metrics   ports.MetricsCollector
	validator *Validator
	logger    *zap.Logger

	guard  *guard.Guard
	access *access.Control

	mu       sync.RWMutex
	bindings domain.Settings

	opts Options
}

// NewManager creates a dispatcher acting as self, the custody account.
// Exchange and lending bindings are required; bridge may be unset.
func NewManager(
	self common.Address,
	settings *domain.Settings,
	ledger ports.TokenLedger,
	executor ports.Executor,
	resolver ports.IntegrationResolver,
	eventBus ports.EventBus,
	store ports.SettingsStorage,
	metrics ports.MetricsCollector,
	validator *Validator,
	logger *zap.Logger,
	opts Options,
) (*Manager, error) {
	if domain.IsZeroAddress(self) {
		return nil, fmt.Errorf("orchestrator address: %w", domain.ErrZeroAddress)
	}
	if settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	if domain.IsZeroAddress(settings.Exchange) {
		return nil, fmt.Errorf("exchange binding: %w", domain.ErrZeroAddress)
	}
	if domain.IsZeroAddress(settings.Lending) {
		return nil, fmt.Errorf("lending binding: %w", domain.ErrZeroAddress)
	}
	ctl, err := access.New(settings.Admin)
	if err != nil {
		return nil, err
	}

	if opts.SwapDeadlineWindow <= 0 {
		opts.SwapDeadlineWindow = defaultSwapDeadlineWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if validator == nil {
		validator = NewValidator()
	}

	return &Manager{
		self:      self,
		ledger:    ledger,
		executor:  executor,
		resolver:  resolver,
		eventBus:  eventBus,
		store:     store,
		metrics:   metrics,
		validator: validator,
		logger:    logger,
		guard:     guard.New(),
		access:    ctl,
		bindings:  *settings.Clone(),
		opts:      opts,
	}, nil
}

// Self returns the custody account address.
func (m *Manager) Self() common.Address {
	return m.self
}

// Settings returns a snapshot of the administrator and bindings.
func (m *Manager) Settings() *domain.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.bindings.Clone()
	s.Admin = m.access.Admin()
	return s
}

// GetAccountData asks the lending integration for user's position.
func (m *Manager) GetAccountData(ctx context.Context, user common.Address) (*domain.AccountData, error) {
	lending, _, err := m.lending(domain.OpAccountData)
	if err != nil {
		return nil, err
	}
	data, err := lending.GetAccountData(ctx, user)
	if err != nil {
		return nil, domain.NewOpError(domain.OpAccountData, domain.KindIntegration, "", err)
	}
	return data, nil
}

// outbox collects the notifications of one operation until it commits.
type outbox struct {
	pending []*domain.Notification
}

func (o *outbox) add(n *domain.Notification) {
	o.pending = append(o.pending, n)
}

// enter takes the reentrancy guard at the top of a guarded entry point,
// before validation and before waiting for the ledger. A nested call fails
// here whatever context it carries. The caller must Release the token.
func (m *Manager) enter(op domain.Operation, caller common.Address) (*guard.Token, error) {
	if !op.Guarded() {
		return nil, fmt.Errorf("operation %s is not guarded", op)
	}
	tok, err := m.guard.Acquire()
	if err != nil {
		return nil, m.reject(op, caller, domain.NewOpError(op, domain.KindGuard, "", err))
	}
	return tok, nil
}

// run executes fn as one atomic transaction. Notifications added to the
// outbox are published only when the transaction commits.
func (m *Manager) run(ctx context.Context, op domain.Operation, caller common.Address, fn func(ctx context.Context, out *outbox) error) error {
	start := m.opts.Clock()
	out := &outbox{}

	err := m.executor.Atomic(ctx, func(ctx context.Context) error {
		out.pending = out.pending[:0]
		return fn(ctx, out)
	})

	m.metrics.RecordOperation(op, outcome(err), m.opts.Clock().Sub(start))
	if err != nil {
		m.logFailure(op, caller, err)
		return err
	}

	m.publish(context.WithoutCancel(ctx), out.pending)
	return nil
}

func (m *Manager) publish(ctx context.Context, pending []*domain.Notification) {
	for _, n := range pending {
		err := m.eventBus.Publish(ctx, domain.NotificationTopic, n)
		m.metrics.RecordNotificationPublished(n.Type, err)
		if err != nil {
			m.logger.Error("failed to publish notification",
				zap.String("notification_id", n.ID),
				zap.String("type", string(n.Type)),
				zap.Error(err))
		}
	}
}

// reject records an operation refused before its transaction started.
func (m *Manager) reject(op domain.Operation, caller common.Address, err error) error {
	m.metrics.RecordOperation(op, outcome(err), 0)
	m.logFailure(op, caller, err)
	return err
}

func (m *Manager) logFailure(op domain.Operation, caller common.Address, err error) {
	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.String("caller", caller.Hex()),
		zap.Error(err),
	}
	switch domain.KindOf(err) {
	case domain.KindIntegration, domain.KindCustody, domain.KindStorage:
		m.logger.Error("operation failed", fields...)
	default:
		m.logger.Warn("operation rejected", fields...)
	}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

func (m *Manager) now() time.Time {
	return m.opts.Clock()
}

func (m *Manager) binding(b domain.Binding) common.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bindings.Get(b)
}

func (m *Manager) exchange(op domain.Operation) (ports.Exchange, common.Address, error) {
	addr := m.binding(domain.BindingExchange)
	ex, err := m.resolver.Exchange(addr)
	if err != nil {
		return nil, addr, domain.NewOpError(op, domain.KindIntegration, "exchange", err)
	}
	return ex, addr, nil
}

func (m *Manager) lending(op domain.Operation) (ports.Lending, common.Address, error) {
	addr := m.binding(domain.BindingLending)
	if domain.IsZeroAddress(addr) {
		return nil, addr, domain.NewOpError(op, domain.KindValidation, "lending", domain.ErrIntegrationNotConfigured)
	}
	lp, err := m.resolver.Lending(addr)
	if err != nil {
		return nil, addr, domain.NewOpError(op, domain.KindIntegration, "lending", err)
	}
	return lp, addr, nil
}

func (m *Manager) bridge(op domain.Operation) (ports.Bridge, common.Address, error) {
	addr := m.binding(domain.BindingBridge)
	if domain.IsZeroAddress(addr) {
		return nil, addr, domain.NewOpError(op, domain.KindValidation, "bridge", domain.ErrIntegrationNotConfigured)
	}
	br, err := m.resolver.Bridge(addr)
	if err != nil {
		return nil, addr, domain.NewOpError(op, domain.KindIntegration, "bridge", err)
	}
	return br, addr, nil
}
