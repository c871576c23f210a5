package memory

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type txKey struct{}

type transaction struct {
	undo []func()
}

// Atomic runs fn as a single all-or-nothing unit. Top-level transactions are
// serialized. A call whose context already carries the running transaction
// joins it instead of opening a new one. Every mutation performed through the
// transaction context, and every undo recorded with Record, is reverted in
// reverse order when fn returns an error or panics.
func (l *Ledger) Atomic(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if l.inTx(ctx) {
		return fn(ctx)
	}

	select {
	case l.seq <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for ledger: %w", ctx.Err())
	}
	defer func() { <-l.seq }()

	tx := &transaction{}
	l.mu.Lock()
	l.tx = tx
	l.mu.Unlock()

	committed := false
	defer func() {
		l.mu.Lock()
		l.tx = nil
		undo := tx.undo
		l.mu.Unlock()

		if committed {
			return
		}
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		l.logger.Debug("transaction reverted",
			zap.Int("mutations", len(undo)),
			zap.Error(err),
		)
	}()

	err = fn(context.WithValue(ctx, txKey{}, tx))
	committed = err == nil
	return err
}

// Record appends undo to the running transaction carried by ctx. Outside a
// transaction the call is a no-op.
func (l *Ledger) Record(ctx context.Context, undo func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.journal(ctx, undo)
}

func (l *Ledger) inTx(ctx context.Context) bool {
	tx, ok := ctx.Value(txKey{}).(*transaction)
	if !ok {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return tx == l.tx
}

// journal records undo when ctx belongs to the running transaction; l.mu must be held.
func (l *Ledger) journal(ctx context.Context, undo func()) {
	tx, ok := ctx.Value(txKey{}).(*transaction)
	if !ok || tx != l.tx {
		return
	}
	tx.undo = append(tx.undo, undo)
}
