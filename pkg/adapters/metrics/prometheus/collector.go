package prometheus

import (
	"math/big"
	"time"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	custodyPulled     *prometheus.CounterVec
	residualReturned  *prometheus.CounterVec

	notificationsPublished *prometheus.CounterVec
	notificationsObserved  *prometheus.CounterVec

	observerPoolIdle    prometheus.Gauge
	observerPoolBusy    prometheus.Gauge
	observerPoolStopped prometheus.Gauge
	queueDepth          *prometheus.GaugeVec
}

// NewCollector registers the dispatcher metrics with reg. A nil reg uses
// the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dafo_operations_total",
				Help: "Total number of dispatched operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dafo_operation_duration_seconds",
				Help:    "Operation duration in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"operation"},
		),
		custodyPulled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dafo_custody_pulled_total",
				Help: "Base units pulled into custody, per asset",
			},
			[]string{"asset"},
		),
		residualReturned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dafo_residual_returned_total",
				Help: "Base units refunded to callers after repay, per asset",
			},
			[]string{"asset"},
		),
		notificationsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dafo_notifications_published_total",
				Help: "Total number of notifications handed to the event bus",
			},
			[]string{"type", "status"},
		),
		notificationsObserved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dafo_notifications_observed_total",
				Help: "Total number of notifications persisted by observers",
			},
			[]string{"type"},
		),
		observerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dafo_observer_pool_idle",
				Help: "Number of idle observers",
			},
		),
		observerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dafo_observer_pool_busy",
				Help: "Number of busy observers",
			},
		),
		observerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dafo_observer_pool_stopped",
				Help: "Number of stopped observers",
			},
		),
		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dafo_queue_depth",
				Help: "Current depth of internal queues",
			},
			[]string{"queue"},
		),
	}
}

// RecordOperation counts an operation outcome and its duration.
func (c *Collector) RecordOperation(op domain.Operation, status string, duration time.Duration) {
	c.operations.WithLabelValues(string(op), status).Inc()
	c.operationDuration.WithLabelValues(string(op)).Observe(duration.Seconds())
}

// RecordCustodyPull adds amount to the pulled total of asset.
func (c *Collector) RecordCustodyPull(asset common.Address, amount *big.Int) {
	c.custodyPulled.WithLabelValues(asset.Hex()).Add(toFloat(amount))
}

// RecordResidualReturned adds amount to the refunded total of asset.
func (c *Collector) RecordResidualReturned(asset common.Address, amount *big.Int) {
	c.residualReturned.WithLabelValues(asset.Hex()).Add(toFloat(amount))
}

// RecordNotificationPublished counts a publish attempt.
func (c *Collector) RecordNotificationPublished(typ domain.NotificationType, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.notificationsPublished.WithLabelValues(string(typ), status).Inc()
}

// RecordNotificationObserved counts a persisted notification.
func (c *Collector) RecordNotificationObserved(typ domain.NotificationType) {
	c.notificationsObserved.WithLabelValues(string(typ)).Inc()
}

// RecordObserverPoolStatus records observer pool status
func (c *Collector) RecordObserverPoolStatus(idle, busy, stopped int) {
	c.observerPoolIdle.Set(float64(idle))
	c.observerPoolBusy.Set(float64(busy))
	c.observerPoolStopped.Set(float64(stopped))
}

// SetQueueDepth sets the current depth of a named queue
func (c *Collector) SetQueueDepth(queueName string, depth int) {
	c.queueDepth.WithLabelValues(queueName).Set(float64(depth))
}

// toFloat converts a base-unit amount; precision loss above 2^53 is accepted
// for counters. Negative or nil amounts count as zero.
func toFloat(amount *big.Int) float64 {
	if amount == nil || amount.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(amount).Float64()
	return f
}
