package ports

import (
	"context"

	"github.com/aescanero/dafo/pkg/domain"
)

// EventHandler consumes one notification.
type EventHandler func(ctx context.Context, n *domain.Notification) error

// EventBus carries completed-operation notifications to observers.
type EventBus interface {
	Publish(ctx context.Context, topic string, n *domain.Notification) error
	// Subscribe delivers notifications on topic to handler until ctx is cancelled.
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Unsubscribe(ctx context.Context, topic string) error
	Close() error
}
