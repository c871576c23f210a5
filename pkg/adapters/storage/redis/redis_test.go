package redis

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func newStorage(t *testing.T, ttl time.Duration) (*Storage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStorage(client, ttl, zaptest.NewLogger(t)), mr
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newStorage(t, time.Hour)

	_, err := s.LoadSettings(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	in := &domain.Settings{
		Admin:     alice,
		Exchange:  common.HexToAddress("0x00000000000000000000000000000000000e0001"),
		Lending:   common.HexToAddress("0x00000000000000000000000000000000000e0002"),
		UpdatedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
	require.NoError(t, s.SaveSettings(ctx, in))

	out, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, in.Admin, out.Admin)
	assert.Equal(t, in.Exchange, out.Exchange)
	assert.Equal(t, in.Lending, out.Lending)
	assert.True(t, out.Bridge == common.Address{})
	assert.True(t, in.UpdatedAt.Equal(out.UpdatedAt))
}

func TestNotificationIndex(t *testing.T) {
	ctx := context.Background()
	s, _ := newStorage(t, 0)
	base := time.Now().Truncate(time.Millisecond)

	var ids []string
	for i := 0; i < 3; i++ {
		n := domain.NewNotification(domain.NotificationSwapped, domain.OpExactInputSingle, alice, base.Add(time.Duration(i)*time.Second)).
			With("amount_in", "10")
		require.NoError(t, s.SaveNotification(ctx, n))
		ids = append(ids, n.ID)
	}
	require.NoError(t, s.SaveNotification(ctx, domain.NewNotification(domain.NotificationBridged, domain.OpBridge, bob, base)))

	list, err := s.ListNotifications(ctx, alice, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)
	assert.Equal(t, "10", list[0].Data["amount_in"])

	all, err := s.ListNotifications(ctx, common.Address{}, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	got, err := s.GetNotification(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationSwapped, got.Type)

	_, err = s.GetNotification(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExpiredNotificationsArePruned(t *testing.T) {
	ctx := context.Background()
	s, mr := newStorage(t, time.Minute)

	n := domain.NewNotification(domain.NotificationWithdrawn, domain.OpWithdraw, alice, time.Now())
	require.NoError(t, s.SaveNotification(ctx, n))
	assert.True(t, mr.Exists(getNotificationKey(n.ID)))

	mr.FastForward(2 * time.Minute)

	_, err := s.GetNotification(ctx, n.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	list, err := s.ListNotifications(ctx, common.Address{}, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	members, err := mr.ZMembers(allIndexKey)
	if err == nil {
		assert.Empty(t, members)
	}
}
