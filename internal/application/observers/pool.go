package observers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/aescanero/dafo/pkg/ports"
	"go.uber.org/zap"
)

const queueName = "observer"

// Listener receives every notification after it has been indexed, in the
// order the bus delivered them. It must not block.
type Listener func(n *domain.Notification)

// job is one notification on its way through the pool. done reports whether
// it was indexed.
type job struct {
	n    *domain.Notification
	done chan bool
}

// Pool manages a pool of observer goroutines
type Pool struct {
	size     int
	eventBus ports.EventBus
	storage  ports.NotificationStorage
	metrics  ports.MetricsCollector
	logger   *zap.Logger
	health   *HealthMonitor

	jobs      chan *job
	ordered   chan *job
	observers []*observer

	listenerMu sync.RWMutex
	listeners  map[uint64]Listener
	nextID     uint64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// observer represents a single observer goroutine
type observer struct {
	id      string
	pool    *Pool
	status  ObserverStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// ObserverStatus represents observer status
type ObserverStatus string

const (
	ObserverStatusIdle    ObserverStatus = "idle"
	ObserverStatusBusy    ObserverStatus = "busy"
	ObserverStatusStopped ObserverStatus = "stopped"
)

// NewPool creates a new observer pool
func NewPool(
	size int,
	queueSize int,
	eventBus ports.EventBus,
	storage ports.NotificationStorage,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		size:      size,
		eventBus:  eventBus,
		storage:   storage,
		metrics:   metrics,
		logger:    logger,
		jobs:      make(chan *job, queueSize),
		ordered:   make(chan *job, queueSize),
		observers: make([]*observer, size),
		listeners: make(map[uint64]Listener),
		ctx:       ctx,
		cancel:    cancel,
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Start subscribes to the notification topic and starts the observers
func (p *Pool) Start() error {
	p.logger.Info("starting observer pool", zap.Int("size", p.size))

	for i := 0; i < p.size; i++ {
		o := &observer{
			id:      fmt.Sprintf("observer-%d", i),
			pool:    p,
			status:  ObserverStatusIdle,
			lastJob: time.Now(),
		}
		p.observers[i] = o

		p.wg.Add(1)
		go o.run(p.ctx)
	}

	p.wg.Add(1)
	go p.sequence(p.ctx)

	if err := p.eventBus.Subscribe(p.ctx, domain.NotificationTopic, p.enqueue); err != nil {
		p.cancel()
		p.wg.Wait()
		return fmt.Errorf("failed to subscribe to notifications: %w", err)
	}

	p.health.Start()

	p.logger.Info("observer pool started", zap.Int("observers", p.size))
	return nil
}

// Shutdown gracefully shuts down the observer pool
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down observer pool")

	p.health.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("observer pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// GetStatus returns the status of all observers
func (p *Pool) GetStatus() map[string]ObserverStatus {
	status := make(map[string]ObserverStatus)
	for _, o := range p.observers {
		if o == nil {
			continue
		}
		o.mu.RLock()
		status[o.id] = o.status
		o.mu.RUnlock()
	}
	return status
}

// Health returns the health monitor
func (p *Pool) Health() *HealthMonitor {
	return p.health
}

// Listen registers l for every indexed notification until the returned
// function is called.
func (p *Pool) Listen(l Listener) (stop func()) {
	p.listenerMu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners[id] = l
	p.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.listenerMu.Lock()
			delete(p.listeners, id)
			p.listenerMu.Unlock()
		})
	}
}

// enqueue is the bus handler. It blocks while the queue is full so the bus
// applies backpressure instead of dropping. The job joins the ordered queue
// first so the sequencer sees jobs in bus order.
func (p *Pool) enqueue(ctx context.Context, n *domain.Notification) error {
	j := &job{n: n, done: make(chan bool, 1)}
	select {
	case p.ordered <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case p.jobs <- j:
		p.metrics.SetQueueDepth(queueName, len(p.jobs))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sequence hands indexed notifications to listeners in bus order. Observers
// index in parallel; a slow save holds back later notifications here.
func (p *Pool) sequence(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.ordered:
			select {
			case indexed := <-j.done:
				if indexed {
					p.broadcast(j.n)
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pool) broadcast(n *domain.Notification) {
	p.listenerMu.RLock()
	defer p.listenerMu.RUnlock()
	for _, l := range p.listeners {
		l(n)
	}
}

// run is the main observer loop
func (o *observer) run(ctx context.Context) {
	defer o.pool.wg.Done()

	o.pool.logger.Debug("observer started", zap.String("observer_id", o.id))

	for {
		select {
		case <-ctx.Done():
			o.mu.Lock()
			o.status = ObserverStatusStopped
			o.mu.Unlock()
			o.pool.logger.Debug("observer stopped", zap.String("observer_id", o.id))
			return
		case j := <-o.pool.jobs:
			o.pool.metrics.SetQueueDepth(queueName, len(o.pool.jobs))
			j.done <- o.handle(ctx, j.n)
		}
	}
}

// handle indexes one notification and reports whether it succeeded
func (o *observer) handle(ctx context.Context, n *domain.Notification) bool {
	o.mu.Lock()
	o.status = ObserverStatusBusy
	o.lastJob = time.Now()
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.status = ObserverStatusIdle
		o.mu.Unlock()
	}()

	if err := o.pool.storage.SaveNotification(ctx, n); err != nil {
		o.pool.logger.Error("failed to index notification",
			zap.String("observer_id", o.id),
			zap.String("notification_id", n.ID),
			zap.Error(err))
		return false
	}

	o.pool.metrics.RecordNotificationObserved(n.Type)

	o.pool.logger.Debug("notification indexed",
		zap.String("observer_id", o.id),
		zap.String("notification_id", n.ID),
		zap.String("type", string(n.Type)),
		zap.String("caller", n.Caller.Hex()))
	return true
}
