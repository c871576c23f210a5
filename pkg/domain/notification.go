package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// NotificationType identifies what a notification reports.
type NotificationType string

const (
	NotificationSwapped        NotificationType = "custody.swapped"
	NotificationBridged        NotificationType = "custody.bridged"
	NotificationSupplied       NotificationType = "lending.supplied"
	NotificationWithdrawn      NotificationType = "lending.withdrawn"
	NotificationBorrowed       NotificationType = "lending.borrowed"
	NotificationRepaid         NotificationType = "lending.repaid"
	NotificationBindingUpdated NotificationType = "admin.binding_updated"
	NotificationRescued        NotificationType = "admin.rescued"
	NotificationAdminChanged   NotificationType = "admin.transferred"
)

// NotificationTopic is the event bus topic every notification is published on.
const NotificationTopic = "custody.events"

// Notification is emitted once per completed operation. Data carries the
// operation's material fields: amounts as base-10 strings, addresses as hex.
type Notification struct {
	ID        string            `json:"id"`
	Type      NotificationType  `json:"type"`
	Operation Operation         `json:"operation"`
	Caller    common.Address    `json:"caller"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]string `json:"data,omitempty"`
}

// NewNotification stamps a notification with a fresh ID.
func NewNotification(typ NotificationType, op Operation, caller common.Address, at time.Time) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Type:      typ,
		Operation: op,
		Caller:    caller,
		Timestamp: at,
		Data:      make(map[string]string),
	}
}

// WithAddress sets an address field.
func (n *Notification) WithAddress(key string, addr common.Address) *Notification {
	n.Data[key] = addr.Hex()
	return n
}

// WithAmount sets an amount field.
func (n *Notification) WithAmount(key string, amount *big.Int) *Notification {
	n.Data[key] = CopyAmount(amount).String()
	return n
}

// With sets a free-form field.
func (n *Notification) With(key, value string) *Notification {
	n.Data[key] = value
	return n
}
