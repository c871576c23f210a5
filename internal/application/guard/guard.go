package guard

import (
	"sync"
	"sync/atomic"

	"github.com/aescanero/dafo/pkg/domain"
)

// Guard is a non-reentrant lock that fails instead of blocking.
type Guard struct {
	entered atomic.Bool
}

// Token releases a held guard. Release is idempotent.
type Token struct {
	g    *Guard
	once sync.Once
}

// New returns an unheld guard.
func New() *Guard {
	return &Guard{}
}

// Acquire enters the guard or returns domain.ErrReentrancy if it is held.
func (g *Guard) Acquire() (*Token, error) {
	if !g.entered.CompareAndSwap(false, true) {
		return nil, domain.ErrReentrancy
	}
	return &Token{g: g}, nil
}

// Held reports whether a guarded operation is in progress.
func (g *Guard) Held() bool {
	return g.entered.Load()
}

func (t *Token) Release() {
	t.once.Do(func() {
		t.g.entered.Store(false)
	})
}
