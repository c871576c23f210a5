package sim

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/aescanero/dafo/pkg/ports"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedDomain = errors.New("unsupported destination domain")
	ErrInsufficientFee   = errors.New("native fee below minimum")
)

// Message is one outbound cross-domain transfer.
type Message struct {
	Nonce             uint64         `json:"nonce"`
	Sender            common.Address `json:"sender"`
	Asset             common.Address `json:"asset"`
	Amount            *big.Int       `json:"amount"`
	DestinationDomain uint32         `json:"destination_domain"`
	Recipient         common.Address `json:"recipient"`
	ExtraPayload      []byte         `json:"extra_payload,omitempty"`
	Fee               *big.Int       `json:"fee"`
	SentAt            time.Time      `json:"sent_at"`
}

// Bridge locks outbound assets and logs a message per transfer. Delivery on
// the destination domain is out of scope.
type Bridge struct {
	addr    common.Address
	ledger  ports.TokenLedger
	journal ports.Journal
	clock   func() time.Time
	logger  *zap.Logger

	mu       sync.RWMutex
	domains  map[uint32]bool
	minFee   *big.Int
	messages []Message
}

// NewBridge creates a bridge deployed at addr that charges at least minFee.
func NewBridge(addr common.Address, ledger ports.TokenLedger, journal ports.Journal, minFee *big.Int, clock func() time.Time, logger *zap.Logger) *Bridge {
	if clock == nil {
		clock = time.Now
	}
	return &Bridge{
		addr:    addr,
		ledger:  ledger,
		journal: journalOrNop(journal),
		clock:   clock,
		logger:  logger,
		domains: make(map[uint32]bool),
		minFee:  domain.CopyAmount(minFee),
	}
}

// Address returns where the bridge is deployed.
func (b *Bridge) Address() common.Address {
	return b.addr
}

// SupportDomain enables transfers to destination.
func (b *Bridge) SupportDomain(destination uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.domains[destination] = true
}

// Messages returns the outbound log, oldest first.
func (b *Bridge) Messages() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Message(nil), b.messages...)
}

func (b *Bridge) Bridge(ctx context.Context, opts ports.CallOpts, params ports.BridgeParams) error {
	fee := domain.CopyAmount(opts.Value)

	b.mu.RLock()
	supported := b.domains[params.DestinationDomain]
	minFee := b.minFee
	b.mu.RUnlock()

	if !supported {
		return fmt.Errorf("%w: %d", ErrUnsupportedDomain, params.DestinationDomain)
	}
	if fee.Cmp(minFee) < 0 {
		return fmt.Errorf("%w: got %s, want %s", ErrInsufficientFee, fee, minFee)
	}
	if domain.IsZeroAmount(params.Amount) {
		return domain.ErrZeroAmount
	}
	if domain.IsZeroAddress(params.Recipient) {
		return fmt.Errorf("recipient: %w", domain.ErrZeroAddress)
	}

	if err := b.ledger.TransferFrom(ctx, params.Asset, b.addr, opts.From, b.addr, params.Amount); err != nil {
		return fmt.Errorf("lock outbound: %w", err)
	}

	b.mu.Lock()
	msg := Message{
		Nonce:             uint64(len(b.messages)),
		Sender:            opts.From,
		Asset:             params.Asset,
		Amount:            domain.CopyAmount(params.Amount),
		DestinationDomain: params.DestinationDomain,
		Recipient:         params.Recipient,
		ExtraPayload:      append([]byte(nil), params.ExtraPayload...),
		Fee:               fee,
		SentAt:            b.clock(),
	}
	b.messages = append(b.messages, msg)
	b.mu.Unlock()

	b.journal.Record(ctx, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.messages = b.messages[:len(b.messages)-1]
	})

	b.logger.Debug("outbound message queued",
		zap.Uint64("nonce", msg.Nonce),
		zap.Uint32("destination_domain", msg.DestinationDomain),
		zap.String("recipient", msg.Recipient.Hex()),
		zap.Stringer("amount", msg.Amount))
	return nil
}
