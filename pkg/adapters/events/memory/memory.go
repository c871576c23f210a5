package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/aescanero/dafo/pkg/ports"
	"go.uber.org/zap"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 256

var ErrClosed = errors.New("event bus closed")

type subscription struct {
	id      uint64
	topic   string
	queue   chan *domain.Notification
	handler ports.EventHandler
	cancel  context.CancelFunc
	done    chan struct{}
}

// InMemoryEventBus delivers each notification to every subscriber of its
// topic, in publish order. Each subscriber has its own queue and goroutine so
// a slow handler only delays itself.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[uint64]*subscription
	nextID      uint64
	bufferSize  int
	closed      bool
	logger      *zap.Logger
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(bufferSize int, logger *zap.Logger) *InMemoryEventBus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{
		subscribers: make(map[string]map[uint64]*subscription),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Publish enqueues n for every subscriber of topic. It blocks while a
// subscriber queue is full, until ctx is done.
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, n *domain.Notification) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrClosed
	}
	for _, sub := range e.subscribers[topic] {
		select {
		case sub.queue <- n:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers handler on topic until ctx is cancelled or the topic is
// unsubscribed.
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	e.nextID++
	sub := &subscription{
		id:      e.nextID,
		topic:   topic,
		queue:   make(chan *domain.Notification, e.bufferSize),
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if e.subscribers[topic] == nil {
		e.subscribers[topic] = make(map[uint64]*subscription)
	}
	e.subscribers[topic][sub.id] = sub

	go e.deliver(subCtx, sub)
	return nil
}

func (e *InMemoryEventBus) deliver(ctx context.Context, sub *subscription) {
	defer func() {
		close(sub.done)
		e.remove(sub)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-sub.queue:
			if err := sub.handler(ctx, n); err != nil {
				e.logger.Warn("notification handler failed",
					zap.String("topic", sub.topic),
					zap.String("notification_id", n.ID),
					zap.Error(err))
			}
		}
	}
}

// Unsubscribe removes all subscriptions from a topic
func (e *InMemoryEventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	subs := e.subscribers[topic]
	delete(e.subscribers, topic)
	e.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
	return nil
}

// Close stops every subscription. Publishing afterwards fails with ErrClosed.
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	all := e.subscribers
	e.subscribers = make(map[string]map[uint64]*subscription)
	e.closed = true
	e.mu.Unlock()

	for _, subs := range all {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	return nil
}

// remove drops a finished subscription.
func (e *InMemoryEventBus) remove(sub *subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if subs, ok := e.subscribers[sub.topic]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(e.subscribers, sub.topic)
		}
	}
}
