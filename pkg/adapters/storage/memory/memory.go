package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
)

type entry struct {
	n         *domain.Notification
	expiresAt time.Time
}

// Storage implements SettingsStorage and NotificationStorage in memory.
// Notifications expire after ttl; a zero ttl keeps them forever.
type Storage struct {
	mu            sync.RWMutex
	settings      *domain.Settings
	notifications map[string]entry
	ttl           time.Duration
	now           func() time.Time
}

// NewStorage creates a new in-memory storage
func NewStorage(ttl time.Duration) *Storage {
	return &Storage{
		notifications: make(map[string]entry),
		ttl:           ttl,
		now:           time.Now,
	}
}

// SaveSettings stores a copy of s.
func (s *Storage) SaveSettings(ctx context.Context, st *domain.Settings) error {
	if st == nil {
		return fmt.Errorf("settings are nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = st.Clone()
	return nil
}

// LoadSettings returns the last saved settings.
func (s *Storage) LoadSettings(ctx context.Context) (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, domain.ErrNotFound
	}
	return s.settings.Clone(), nil
}

// SaveNotification indexes n. Saving the same ID twice keeps one copy.
func (s *Storage) SaveNotification(ctx context.Context, n *domain.Notification) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("notification ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{n: cloneNotification(n)}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.notifications[n.ID] = e
	s.evictLocked()
	return nil
}

// GetNotification returns the notification with id.
func (s *Storage) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.notifications[id]
	if !ok || s.expired(e) {
		return nil, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	return cloneNotification(e.n), nil
}

// ListNotifications returns up to limit notifications of caller, newest first.
func (s *Storage) ListNotifications(ctx context.Context, caller common.Address, limit int) ([]*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Notification, 0)
	for _, e := range s.notifications {
		if s.expired(e) {
			continue
		}
		if !domain.IsZeroAddress(caller) && e.n.Caller != caller {
			continue
		}
		out = append(out, cloneNotification(e.n))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Storage) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}

// evictLocked drops expired notifications; s.mu must be held.
func (s *Storage) evictLocked() {
	for id, e := range s.notifications {
		if s.expired(e) {
			delete(s.notifications, id)
		}
	}
}

func cloneNotification(n *domain.Notification) *domain.Notification {
	c := *n
	c.Data = make(map[string]string, len(n.Data))
	for k, v := range n.Data {
		c.Data[k] = v
	}
	return &c
}
