package orchestrator

import (
	"context"
	"encoding/hex"
	"strconv"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/aescanero/dafo/pkg/ports"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// BridgeTokens sends req.Amount of req.Asset to req.Recipient on another
// domain. The native fee is taken from the caller and forwarded unchanged.
// There is no residual step: the bridge is trusted to consume the whole grant.
func (m *Manager) BridgeTokens(ctx context.Context, caller common.Address, req *domain.BridgeRequest) error {
	const op = domain.OpBridge
	tok, err := m.enter(op, caller)
	if err != nil {
		return err
	}
	defer tok.Release()

	if err := m.validator.Bridge(caller, req); err != nil {
		return m.reject(op, caller, err)
	}
	fee := domain.CopyAmount(req.NativeFee)

	err = m.run(ctx, op, caller, func(ctx context.Context, out *outbox) error {
		br, brAddr, err := m.bridge(op)
		if err != nil {
			return err
		}
		if err := m.pull(ctx, op, req.Asset, caller, req.Amount); err != nil {
			return err
		}
		if fee.Sign() > 0 {
			if err := m.ledger.TransferNative(ctx, caller, m.self, fee); err != nil {
				return domain.NewOpError(op, domain.KindCustody, "native_fee", err)
			}
			if err := m.ledger.TransferNative(ctx, m.self, brAddr, fee); err != nil {
				return domain.NewOpError(op, domain.KindCustody, "native_fee", err)
			}
		}
		if err := m.grant(ctx, op, req.Asset, brAddr, req.Amount); err != nil {
			return err
		}

		err = br.Bridge(ctx, ports.CallOpts{From: m.self, Value: fee}, ports.BridgeParams{
			Asset:             req.Asset,
			Amount:            domain.CopyAmount(req.Amount),
			DestinationDomain: req.DestinationDomain,
			Recipient:         req.Recipient,
			ExtraPayload:      append([]byte(nil), req.ExtraPayload...),
		})
		if err != nil {
			return delegate(op, err)
		}
		if err := m.revoke(ctx, op, req.Asset, brAddr); err != nil {
			return err
		}

		out.add(domain.NewNotification(domain.NotificationBridged, op, caller, m.now()).
			WithAddress("asset", req.Asset).
			WithAmount("amount", req.Amount).
			With("destination_domain", strconv.FormatUint(uint64(req.DestinationDomain), 10)).
			WithAddress("recipient", req.Recipient).
			WithAmount("native_fee", fee).
			With("extra_payload", hex.EncodeToString(req.ExtraPayload)))
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("bridge transfer dispatched",
		zap.String("caller", caller.Hex()),
		zap.String("asset", req.Asset.Hex()),
		zap.Stringer("amount", req.Amount),
		zap.Uint32("destination_domain", req.DestinationDomain),
		zap.String("recipient", req.Recipient.Hex()))
	return nil
}
