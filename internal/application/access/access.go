// Package access holds the single-administrator ownership model.
package access

import (
	"fmt"
	"sync"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Control records the current administrator.
type Control struct {
	mu    sync.RWMutex
	admin common.Address
}

// New returns a Control owned by admin.
func New(admin common.Address) (*Control, error) {
	if domain.IsZeroAddress(admin) {
		return nil, fmt.Errorf("initial admin: %w", domain.ErrZeroAddress)
	}
	return &Control{admin: admin}, nil
}

// Admin returns the current administrator.
func (c *Control) Admin() common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.admin
}

// RequireAdmin fails with domain.ErrUnauthorized unless caller is the admin.
func (c *Control) RequireAdmin(caller common.Address) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if caller != c.admin {
		return fmt.Errorf("%w: %s is not the admin", domain.ErrUnauthorized, caller.Hex())
	}
	return nil
}

// Transfer hands administration from caller to next and returns the
// previous admin.
func (c *Control) Transfer(caller, next common.Address) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return common.Address{}, fmt.Errorf("%w: %s is not the admin", domain.ErrUnauthorized, caller.Hex())
	}
	if domain.IsZeroAddress(next) {
		return common.Address{}, fmt.Errorf("new admin: %w", domain.ErrZeroAddress)
	}
	prev := c.admin
	c.admin = next
	return prev, nil
}

// Reset sets the admin without an authorization check. It is used to roll
// back a transfer whose transaction failed.
func (c *Control) Reset(admin common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.admin = admin
}
