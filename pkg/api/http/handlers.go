package http

import (
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 500
)

// Amounts travel as base-10 strings and byte strings as 0x-prefixed hex.

// ExactInputSingleRequest represents a single-pool swap request
type ExactInputSingleRequest struct {
	AssetIn      string `json:"asset_in" binding:"required"`
	AssetOut     string `json:"asset_out" binding:"required"`
	Fee          uint32 `json:"fee"`
	AmountIn     string `json:"amount_in" binding:"required"`
	AmountOutMin string `json:"amount_out_min"`
}

// ExactInputRequest represents a multi-hop swap request
type ExactInputRequest struct {
	Path         string `json:"path" binding:"required"`
	AmountIn     string `json:"amount_in" binding:"required"`
	AmountOutMin string `json:"amount_out_min"`
}

// SwapResponse carries the amount received by the caller
type SwapResponse struct {
	AmountOut string `json:"amount_out"`
}

// BridgeRequest represents a cross-domain transfer request
type BridgeRequest struct {
	Asset             string `json:"asset" binding:"required"`
	Amount            string `json:"amount" binding:"required"`
	DestinationDomain uint32 `json:"destination_domain"`
	Recipient         string `json:"recipient" binding:"required"`
	ExtraPayload      string `json:"extra_payload"`
	NativeFee         string `json:"native_fee"`
}

// LendingRequest represents supply, withdraw, borrow and repay requests.
// Amount accepts "max" for withdraw and repay.
type LendingRequest struct {
	Asset    string `json:"asset" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	RateMode uint8  `json:"rate_mode"`
}

// BindingRequest rebinds an integration
type BindingRequest struct {
	Address string `json:"address" binding:"required"`
}

// RescueRequest moves custody funds to the administrator
type RescueRequest struct {
	Asset  string `json:"asset" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// TransferAdminRequest names the next administrator
type TransferAdminRequest struct {
	NewAdmin string `json:"new_admin" binding:"required"`
}

// AccountDataResponse is the lending position of a user
type AccountDataResponse struct {
	User                 string `json:"user"`
	TotalCollateral      string `json:"total_collateral"`
	TotalDebt            string `json:"total_debt"`
	AvailableBorrows     string `json:"available_borrows"`
	LiquidationThreshold string `json:"current_liquidation_threshold"`
	LTV                  string `json:"ltv"`
	HealthFactor         string `json:"health_factor"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{"orchestrator": "ok"}
	status := "healthy"
	code := http.StatusOK

	if s.observers != nil {
		if st := s.observers.GetStatus(); st.Healthy {
			checks["observers"] = "ok"
		} else {
			checks["observers"] = "degraded"
			status = "degraded"
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

func (s *Server) handleExactInputSingle(c *gin.Context) {
	var req ExactInputSingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var p parser
	in := &domain.ExactInputSingleRequest{
		AssetIn:      p.address("asset_in", req.AssetIn),
		AssetOut:     p.address("asset_out", req.AssetOut),
		Fee:          req.Fee,
		AmountIn:     p.amount("amount_in", req.AmountIn),
		AmountOutMin: p.optionalAmount("amount_out_min", req.AmountOutMin),
	}
	if p.err != nil {
		badRequest(c, p.err)
		return
	}

	out, err := s.orchestrator.ExactInputSingle(c.Request.Context(), callerOf(c), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SwapResponse{AmountOut: out.String()})
}

func (s *Server) handleExactInput(c *gin.Context) {
	var req ExactInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var p parser
	in := &domain.ExactInputRequest{
		Path:         p.bytes("path", req.Path),
		AmountIn:     p.amount("amount_in", req.AmountIn),
		AmountOutMin: p.optionalAmount("amount_out_min", req.AmountOutMin),
	}
	if p.err != nil {
		badRequest(c, p.err)
		return
	}

	out, err := s.orchestrator.ExactInput(c.Request.Context(), callerOf(c), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SwapResponse{AmountOut: out.String()})
}

func (s *Server) handleBridge(c *gin.Context) {
	var req BridgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var p parser
	in := &domain.BridgeRequest{
		Asset:             p.address("asset", req.Asset),
		Amount:            p.amount("amount", req.Amount),
		DestinationDomain: req.DestinationDomain,
		Recipient:         p.address("recipient", req.Recipient),
		ExtraPayload:      p.bytes("extra_payload", req.ExtraPayload),
		NativeFee:         p.optionalAmount("native_fee", req.NativeFee),
	}
	if p.err != nil {
		badRequest(c, p.err)
		return
	}

	if err := s.orchestrator.BridgeTokens(c.Request.Context(), callerOf(c), in); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "bridged"})
}

func (s *Server) bindLending(c *gin.Context) (*domain.LendingRequest, bool) {
	var req LendingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return nil, false
	}

	var p parser
	in := &domain.LendingRequest{
		Asset:    p.address("asset", req.Asset),
		Amount:   p.amount("amount", req.Amount),
		RateMode: domain.RateMode(req.RateMode),
	}
	if p.err != nil {
		badRequest(c, p.err)
		return nil, false
	}
	return in, true
}

func (s *Server) handleSupply(c *gin.Context) {
	req, ok := s.bindLending(c)
	if !ok {
		return
	}
	if err := s.orchestrator.Supply(c.Request.Context(), callerOf(c), req); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"supplied": req.Amount.String()})
}

func (s *Server) handleWithdraw(c *gin.Context) {
	req, ok := s.bindLending(c)
	if !ok {
		return
	}
	withdrawn, err := s.orchestrator.Withdraw(c.Request.Context(), callerOf(c), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawn": withdrawn.String()})
}

func (s *Server) handleBorrow(c *gin.Context) {
	req, ok := s.bindLending(c)
	if !ok {
		return
	}
	if err := s.orchestrator.Borrow(c.Request.Context(), callerOf(c), req); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrowed": req.Amount.String()})
}

func (s *Server) handleRepay(c *gin.Context) {
	req, ok := s.bindLending(c)
	if !ok {
		return
	}
	applied, err := s.orchestrator.Repay(c.Request.Context(), callerOf(c), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied.String()})
}

func (s *Server) handleAccountData(c *gin.Context) {
	user, err := domain.ParseAddress(c.Param("address"))
	if err != nil {
		badRequest(c, err)
		return
	}

	data, err := s.orchestrator.GetAccountData(c.Request.Context(), user)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, AccountDataResponse{
		User:                 user.Hex(),
		TotalCollateral:      amountString(data.TotalCollateral),
		TotalDebt:            amountString(data.TotalDebt),
		AvailableBorrows:     amountString(data.AvailableBorrows),
		LiquidationThreshold: amountString(data.LiquidationThreshold),
		LTV:                  amountString(data.LTV),
		HealthFactor:         amountString(data.HealthFactor),
	})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"orchestrator": s.orchestrator.Self().Hex(),
		"settings":     s.orchestrator.Settings(),
	})
}

func (s *Server) handleSetBinding(c *gin.Context) {
	var req BindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	caller := callerOf(c)
	switch domain.Binding(c.Param("binding")) {
	case domain.BindingExchange:
		err = s.orchestrator.SetExchange(ctx, caller, addr)
	case domain.BindingLending:
		err = s.orchestrator.SetLending(ctx, caller, addr)
	case domain.BindingBridge:
		err = s.orchestrator.SetBridge(ctx, caller, addr)
	default:
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "UNKNOWN_BINDING",
				Message: fmt.Sprintf("unknown binding %q", c.Param("binding")),
			},
		})
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.orchestrator.Settings())
}

func (s *Server) handleRescue(c *gin.Context) {
	var req RescueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var p parser
	asset := p.address("asset", req.Asset)
	amount := p.amount("amount", req.Amount)
	if p.err != nil {
		badRequest(c, p.err)
		return
	}

	if err := s.orchestrator.Rescue(c.Request.Context(), callerOf(c), asset, amount); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rescued": amount.String(), "asset": asset.Hex()})
}

func (s *Server) handleTransferAdmin(c *gin.Context) {
	var req TransferAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	next, err := domain.ParseAddress(req.NewAdmin)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := s.orchestrator.TransferAdmin(c.Request.Context(), callerOf(c), next); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.orchestrator.Settings())
}

// handleListNotifications lists the caller's notifications, or another
// account's with ?caller=. ?caller=all lists every account.
func (s *Server) handleListNotifications(c *gin.Context) {
	if s.notifications == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOTIFICATIONS_NOT_AVAILABLE",
				Message: "Notification index is not configured",
			},
		})
		return
	}

	owner := callerOf(c)
	switch q := c.Query("caller"); q {
	case "":
	case "all":
		owner = common.Address{}
	default:
		addr, err := domain.ParseAddress(q)
		if err != nil {
			badRequest(c, err)
			return
		}
		owner = addr
	}

	limit := defaultNotificationLimit
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			badRequest(c, fmt.Errorf("invalid limit %q", q))
			return
		}
		limit = min(n, maxNotificationLimit)
	}

	list, err := s.notifications.ListNotifications(c.Request.Context(), owner, limit)
	if err != nil {
		s.logger.Error("failed to list notifications", zap.Error(err))
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  list,
		"total": len(list),
		"limit": limit,
	})
}

func (s *Server) handleGetNotification(c *gin.Context) {
	if s.notifications == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOTIFICATIONS_NOT_AVAILABLE",
				Message: "Notification index is not configured",
			},
		})
		return
	}

	n, err := s.notifications.GetNotification(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *Server) handleObservers(c *gin.Context) {
	if s.observers == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{
				Code:    "OBSERVERS_NOT_AVAILABLE",
				Message: "Observer pool is not configured",
			},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s.observers.GetStatus()})
}

// parser collects the first conversion error of a request.
type parser struct {
	err error
}

func (p *parser) address(field, v string) common.Address {
	if p.err != nil {
		return common.Address{}
	}
	addr, err := domain.ParseAddress(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", field, err)
	}
	return addr
}

func (p *parser) amount(field, v string) *big.Int {
	if p.err != nil {
		return nil
	}
	a, err := domain.ParseAmount(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", field, err)
	}
	return a
}

func (p *parser) optionalAmount(field, v string) *big.Int {
	if v == "" {
		return new(big.Int)
	}
	return p.amount(field, v)
}

func (p *parser) bytes(field, v string) []byte {
	if p.err != nil || v == "" {
		return nil
	}
	b, err := hexutil.Decode(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", field, err)
	}
	return b
}

func amountString(v *big.Int) string {
	return domain.CopyAmount(v).String()
}
