package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var caller = common.HexToAddress("0x000000000000000000000000000000000000a11c")

type collector struct {
	mu  sync.Mutex
	ids []string
}

func (c *collector) handle(ctx context.Context, n *domain.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, n.ID)
	return nil
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func publishN(t *testing.T, bus *InMemoryEventBus, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		note := domain.NewNotification(domain.NotificationSupplied, domain.OpSupply, caller, time.Now())
		require.NoError(t, bus.Publish(context.Background(), domain.NotificationTopic, note))
		ids = append(ids, note.ID)
	}
	return ids
}

func TestDeliversInPublishOrder(t *testing.T) {
	bus := NewInMemoryEventBus(4, zaptest.NewLogger(t))
	defer bus.Close()

	a, b := &collector{}, &collector{}
	require.NoError(t, bus.Subscribe(context.Background(), domain.NotificationTopic, a.handle))
	require.NoError(t, bus.Subscribe(context.Background(), domain.NotificationTopic, b.handle))

	want := publishN(t, bus, 50)

	assert.Eventually(t, func() bool { return len(a.snapshot()) == 50 && len(b.snapshot()) == 50 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, a.snapshot())
	assert.Equal(t, want, b.snapshot())
}

func TestOtherTopicsAreNotDelivered(t *testing.T) {
	bus := NewInMemoryEventBus(0, zaptest.NewLogger(t))
	defer bus.Close()

	c := &collector{}
	require.NoError(t, bus.Subscribe(context.Background(), "other", c.handle))
	publishN(t, bus, 3)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.snapshot())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(0, zaptest.NewLogger(t))
	defer bus.Close()

	c := &collector{}
	require.NoError(t, bus.Subscribe(context.Background(), domain.NotificationTopic, c.handle))
	publishN(t, bus, 1)
	assert.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Unsubscribe(context.Background(), domain.NotificationTopic))
	publishN(t, bus, 2)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.snapshot(), 1)
}

func TestCancelledContextEndsSubscription(t *testing.T) {
	bus := NewInMemoryEventBus(0, zaptest.NewLogger(t))
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := &collector{}
	require.NoError(t, bus.Subscribe(ctx, domain.NotificationTopic, c.handle))
	cancel()

	assert.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subscribers) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestPublishAfterClose(t *testing.T) {
	bus := NewInMemoryEventBus(0, zaptest.NewLogger(t))
	require.NoError(t, bus.Close())

	note := domain.NewNotification(domain.NotificationSupplied, domain.OpSupply, caller, time.Now())
	assert.ErrorIs(t, bus.Publish(context.Background(), domain.NotificationTopic, note), ErrClosed)
	assert.ErrorIs(t, bus.Subscribe(context.Background(), domain.NotificationTopic, (&collector{}).handle), ErrClosed)
}
