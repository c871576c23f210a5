package orchestrator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/aescanero/dafo/pkg/ports"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// SetExchange rebinds the exchange integration. The binding cannot be cleared.
func (m *Manager) SetExchange(ctx context.Context, caller, addr common.Address) error {
	return m.setBinding(ctx, domain.OpSetExchange, domain.BindingExchange, caller, addr, false)
}

// SetLending rebinds the lending integration. A null binding is refused here
// rather than left to fail at the next lending call.
func (m *Manager) SetLending(ctx context.Context, caller, addr common.Address) error {
	return m.setBinding(ctx, domain.OpSetLending, domain.BindingLending, caller, addr, false)
}

// SetBridge rebinds the bridge integration. The zero address disables bridging.
func (m *Manager) SetBridge(ctx context.Context, caller, addr common.Address) error {
	return m.setBinding(ctx, domain.OpSetBridge, domain.BindingBridge, caller, addr, true)
}

func (m *Manager) setBinding(ctx context.Context, op domain.Operation, b domain.Binding, caller, addr common.Address, allowZero bool) error {
	if !allowZero && domain.IsZeroAddress(addr) {
		return m.reject(op, caller, domain.NewOpError(op, domain.KindValidation, string(b), domain.ErrZeroAddress))
	}

	var prev common.Address
	err := m.run(ctx, op, caller, func(ctx context.Context, out *outbox) error {
		if err := m.requireAdmin(op, caller); err != nil {
			return err
		}
		next := m.Settings()
		prev = next.Get(b)
		next.Set(b, addr)
		next.UpdatedAt = m.now()

		if err := m.commitSettings(ctx, op, next); err != nil {
			return err
		}

		out.add(domain.NewNotification(domain.NotificationBindingUpdated, op, caller, m.now()).
			With("binding", string(b)).
			WithAddress("previous", prev).
			WithAddress("current", addr))
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("integration binding updated",
		zap.String("binding", string(b)),
		zap.String("previous", prev.Hex()),
		zap.String("current", addr.Hex()))
	return nil
}

// Rescue sends amount of asset held in custody to the administrator. It is
// the escape hatch for funds stranded in custody and deliberately has no
// precondition other than the caller being the administrator.
func (m *Manager) Rescue(ctx context.Context, caller, asset common.Address, amount *big.Int) error {
	const op = domain.OpRescue
	err := m.run(ctx, op, caller, func(ctx context.Context, out *outbox) error {
		if err := m.requireAdmin(op, caller); err != nil {
			return err
		}
		if err := m.ledger.Transfer(ctx, asset, m.self, caller, domain.CopyAmount(amount)); err != nil {
			return domain.NewOpError(op, domain.KindCustody, "", err)
		}
		out.add(domain.NewNotification(domain.NotificationRescued, op, caller, m.now()).
			WithAddress("asset", asset).
			WithAmount("amount", amount))
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Warn("custody rescued by admin",
		zap.String("admin", caller.Hex()),
		zap.String("asset", asset.Hex()),
		zap.Stringer("amount", amount))
	return nil
}

// TransferAdmin hands administration to next.
func (m *Manager) TransferAdmin(ctx context.Context, caller, next common.Address) error {
	const op = domain.OpTransferAdmin
	if domain.IsZeroAddress(next) {
		return m.reject(op, caller, domain.NewOpError(op, domain.KindValidation, "admin", domain.ErrZeroAddress))
	}

	err := m.run(ctx, op, caller, func(ctx context.Context, out *outbox) error {
		prev, err := m.access.Transfer(caller, next)
		if err != nil {
			return domain.NewOpError(op, domain.KindAccess, "", err)
		}
		m.journal(ctx, func() { m.access.Reset(prev) })

		s := m.Settings()
		s.UpdatedAt = m.now()
		if err := m.commitSettings(ctx, op, s); err != nil {
			return err
		}

		out.add(domain.NewNotification(domain.NotificationAdminChanged, op, caller, m.now()).
			WithAddress("previous", prev).
			WithAddress("current", next))
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("admin transferred",
		zap.String("previous", caller.Hex()),
		zap.String("current", next.Hex()))
	return nil
}

// requireAdmin checks caller against the administrator inside the
// transaction, so a transfer that commits first is always seen.
func (m *Manager) requireAdmin(op domain.Operation, caller common.Address) error {
	if err := m.access.RequireAdmin(caller); err != nil {
		return domain.NewOpError(op, domain.KindAccess, "", err)
	}
	return nil
}

// commitSettings persists s and then makes its bindings current. It must be
// the last fallible step of its transaction, after every authorization
// check, because the store write cannot be undone. The in-memory swap is
// journaled so that a failing enclosing transaction puts the previous
// bindings back.
func (m *Manager) commitSettings(ctx context.Context, op domain.Operation, s *domain.Settings) error {
	if m.store != nil {
		if err := m.store.SaveSettings(ctx, s); err != nil {
			return domain.NewOpError(op, domain.KindStorage, "", fmt.Errorf("failed to save settings: %w", err))
		}
	}

	m.mu.Lock()
	prev := m.bindings
	m.bindings = *s.Clone()
	m.mu.Unlock()

	m.journal(ctx, func() {
		m.mu.Lock()
		m.bindings = prev
		m.mu.Unlock()
	})
	return nil
}

func (m *Manager) journal(ctx context.Context, undo func()) {
	if j, ok := m.executor.(ports.Journal); ok {
		j.Record(ctx, undo)
	}
}
