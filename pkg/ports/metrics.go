package ports

import (
	"math/big"
	"time"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
)

// MetricsCollector records dispatcher and observer metrics.
type MetricsCollector interface {
	RecordOperation(op domain.Operation, status string, duration time.Duration)
	RecordCustodyPull(asset common.Address, amount *big.Int)
	RecordResidualReturned(asset common.Address, amount *big.Int)
	RecordNotificationPublished(typ domain.NotificationType, err error)
	RecordNotificationObserved(typ domain.NotificationType)
	RecordObserverPoolStatus(idle, busy, stopped int)
	SetQueueDepth(queue string, depth int)
}
