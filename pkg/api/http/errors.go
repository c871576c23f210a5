package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/aescanero/dafo/pkg/domain"
	"github.com/gin-gonic/gin"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

var sentinelCodes = []struct {
	err  error
	code string
}{
	{domain.ErrZeroAmount, "ZERO_AMOUNT"},
	{domain.ErrInvalidAmount, "INVALID_AMOUNT"},
	{domain.ErrZeroAddress, "ZERO_ADDRESS"},
	{domain.ErrUnauthorized, "UNAUTHORIZED"},
	{domain.ErrInvalidRateMode, "INVALID_RATE_MODE"},
	{domain.ErrIntegrationNotConfigured, "INTEGRATION_NOT_CONFIGURED"},
	{domain.ErrReentrancy, "REENTRANCY"},
	{domain.ErrInvalidPath, "INVALID_PATH"},
	{domain.ErrInvalidFeeTier, "INVALID_FEE_TIER"},
	{domain.ErrInvalidIntegrationResult, "INVALID_INTEGRATION_RESULT"},
	{domain.ErrNotFound, "NOT_FOUND"},
}

// classify maps an error to an HTTP status and a stable code.
func classify(err error) (int, string) {
	code := "INTERNAL"
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			code = s.code
			break
		}
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, code
	case errors.Is(err, domain.ErrIntegrationNotConfigured):
		return http.StatusConflict, code
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	}

	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest, code
	case domain.KindAccess:
		return http.StatusForbidden, code
	case domain.KindGuard:
		return http.StatusConflict, code
	case domain.KindIntegration:
		if code == "INTERNAL" {
			code = "INTEGRATION_FAILED"
		}
		return http.StatusUnprocessableEntity, code
	case domain.KindCustody:
		if code == "INTERNAL" {
			code = "CUSTODY_FAILED"
		}
		return http.StatusUnprocessableEntity, code
	case domain.KindStorage:
		return http.StatusInternalServerError, "STORAGE_FAILED"
	}
	return http.StatusInternalServerError, code
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, code := classify(err)
	detail := ErrorDetail{Code: code, Message: err.Error()}

	var opErr *domain.OpError
	if errors.As(err, &opErr) {
		detail.Field = opErr.Field
	}
	c.JSON(status, ErrorResponse{Error: detail})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		},
	})
}
