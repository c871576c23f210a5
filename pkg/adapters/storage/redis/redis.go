package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	settingsKey  = "dafo:settings"
	allIndexKey  = "dafo:notifications:all"
	callerPrefix = "dafo:notifications:caller:"
)

// Storage implements SettingsStorage and NotificationStorage using Redis.
// Settings never expire. Notifications expire after ttl and are indexed per
// caller in sorted sets scored by timestamp.
type Storage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewStorage creates a new Redis storage
func NewStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Storage {
	return &Storage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveSettings persists the administrator and bindings.
func (s *Storage) SaveSettings(ctx context.Context, st *domain.Settings) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := s.client.Set(ctx, settingsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	s.logger.Debug("settings saved",
		zap.String("admin", st.Admin.Hex()),
		zap.String("exchange", st.Exchange.Hex()),
		zap.String("lending", st.Lending.Hex()),
		zap.String("bridge", st.Bridge.Hex()))

	return nil
}

// LoadSettings returns domain.ErrNotFound when nothing was saved.
func (s *Storage) LoadSettings(ctx context.Context) (*domain.Settings, error) {
	data, err := s.client.Get(ctx, settingsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	var st domain.Settings
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &st, nil
}

// SaveNotification stores n with TTL and adds it to the indexes.
func (s *Storage) SaveNotification(ctx context.Context, n *domain.Notification) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("notification ID is required")
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	score := float64(n.Timestamp.UnixMilli())
	member := redis.Z{Score: score, Member: n.ID}
	callerKey := getCallerKey(n.Caller)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, getNotificationKey(n.ID), data, s.ttl)
		pipe.ZAdd(ctx, allIndexKey, member)
		pipe.ZAdd(ctx, callerKey, member)
		if s.ttl > 0 {
			cutoff := strconv.FormatInt(time.Now().Add(-s.ttl).UnixMilli(), 10)
			pipe.ZRemRangeByScore(ctx, allIndexKey, "-inf", "("+cutoff)
			pipe.ZRemRangeByScore(ctx, callerKey, "-inf", "("+cutoff)
			pipe.Expire(ctx, callerKey, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}

	s.logger.Debug("notification saved",
		zap.String("notification_id", n.ID),
		zap.String("type", string(n.Type)))

	return nil
}

// GetNotification returns the notification with id.
func (s *Storage) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	data, err := s.client.Get(ctx, getNotificationKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	var n domain.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	return &n, nil
}

// ListNotifications returns up to limit notifications of caller, newest
// first. Index entries whose notification expired are pruned on the way.
func (s *Storage) ListNotifications(ctx context.Context, caller common.Address, limit int) ([]*domain.Notification, error) {
	indexKey := allIndexKey
	if !domain.IsZeroAddress(caller) {
		indexKey = getCallerKey(caller)
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := s.client.ZRevRange(ctx, indexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.Notification{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = getNotificationKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}

	out := make([]*domain.Notification, 0, len(values))
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var n domain.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			s.logger.Warn("skipping corrupt notification",
				zap.String("notification_id", ids[i]),
				zap.Error(err))
			continue
		}
		out = append(out, &n)
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, indexKey, stale...).Err(); err != nil {
			s.logger.Warn("failed to prune notification index",
				zap.String("index", indexKey),
				zap.Error(err))
		}
	}

	return out, nil
}

// getNotificationKey returns the Redis key for a notification
func getNotificationKey(id string) string {
	return fmt.Sprintf("dafo:notification:%s", id)
}

func getCallerKey(caller common.Address) string {
	return callerPrefix + caller.Hex()
}
