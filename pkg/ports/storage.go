package ports

import (
	"context"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
)

// SettingsStorage persists the administrator and integration bindings.
// LoadSettings returns domain.ErrNotFound when nothing was saved yet.
type SettingsStorage interface {
	SaveSettings(ctx context.Context, s *domain.Settings) error
	LoadSettings(ctx context.Context) (*domain.Settings, error)
}

// NotificationStorage indexes observed notifications.
type NotificationStorage interface {
	SaveNotification(ctx context.Context, n *domain.Notification) error
	GetNotification(ctx context.Context, id string) (*domain.Notification, error)
	// ListNotifications returns caller's notifications, newest first. The
	// zero address lists every caller.
	ListNotifications(ctx context.Context, caller common.Address, limit int) ([]*domain.Notification, error)
}
