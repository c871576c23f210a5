package observers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultHealthInterval = 30 * time.Second

// HealthMonitor monitors observer health
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
}

// HealthStatus represents the health status of the observer pool
type HealthStatus struct {
	TotalObservers   int       `json:"total_observers"`
	IdleObservers    int       `json:"idle_observers"`
	BusyObservers    int       `json:"busy_observers"`
	StoppedObservers int       `json:"stopped_observers"`
	QueueDepth       int       `json:"queue_depth"`
	Healthy          bool      `json:"healthy"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
	}
}

// Start starts the health monitor
func (h *HealthMonitor) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})

	go h.run(h.stopCh)
}

// Stop stops the health monitor
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.stopCh)
}

func (h *HealthMonitor) run(stop <-chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.checkHealth()
		}
	}
}

// checkHealth logs observer status and records pool gauges
func (h *HealthMonitor) checkHealth() {
	status := h.GetStatus()

	h.logger.Info("observer pool health check",
		zap.Int("total", status.TotalObservers),
		zap.Int("idle", status.IdleObservers),
		zap.Int("busy", status.BusyObservers),
		zap.Int("stopped", status.StoppedObservers),
		zap.Int("queue_depth", status.QueueDepth),
		zap.Bool("healthy", status.Healthy))

	h.pool.metrics.RecordObserverPoolStatus(
		status.IdleObservers,
		status.BusyObservers,
		status.StoppedObservers,
	)

	if !status.Healthy {
		h.logger.Warn("observer pool is unhealthy",
			zap.Int("idle", status.IdleObservers),
			zap.Int("total", status.TotalObservers))
	}

	if status.TotalObservers > 0 && status.BusyObservers == status.TotalObservers {
		h.logger.Warn("all observers are busy - consider scaling up",
			zap.Int("total", status.TotalObservers),
			zap.Int("queue_depth", status.QueueDepth))
	}
}

// GetStatus returns the current health status
func (h *HealthMonitor) GetStatus() *HealthStatus {
	statuses := h.pool.GetStatus()

	var idle, busy, stopped int
	for _, status := range statuses {
		switch status {
		case ObserverStatusIdle:
			idle++
		case ObserverStatusBusy:
			busy++
		case ObserverStatusStopped:
			stopped++
		}
	}

	total := len(statuses)

	return &HealthStatus{
		TotalObservers:   total,
		IdleObservers:    idle,
		BusyObservers:    busy,
		StoppedObservers: stopped,
		QueueDepth:       len(h.pool.jobs),
		Healthy:          total > 0 && stopped == 0,
		Timestamp:        time.Now(),
	}
}

// IsHealthy returns true if the observer pool is healthy
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}
