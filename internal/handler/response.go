package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/uniqn/chip-service/internal/cerr"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// ErrorFrom 业务错误映射为HTTP响应
func ErrorFrom(c *gin.Context, err error) {
	if rl, ok := cerr.IsRateLimit(err); ok {
		c.Header("Retry-After", strconv.Itoa(rl.RetryAfter))
		ErrorResponse(c, http.StatusTooManyRequests, rl.Error())
		return
	}
	if ineligible, ok := cerr.IsRefundIneligible(err); ok {
		ErrorResponse(c, http.StatusUnprocessableEntity, ineligible.Error())
		return
	}
	if _, ok := cerr.IsGateway(err); ok {
		ErrorResponse(c, http.StatusBadGateway, err.Error())
		return
	}

	switch {
	case errors.Is(err, cerr.ErrInvalidOrderID),
		errors.Is(err, cerr.ErrInvalidAmount),
		errors.Is(err, cerr.ErrAmountExceeded),
		errors.Is(err, cerr.ErrUnknownPackage),
		errors.Is(err, cerr.ErrInvalidChipType),
		errors.Is(err, cerr.ErrStaleOrder):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, cerr.ErrOrderUserMismatch):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, cerr.ErrPaymentNotFound),
		errors.Is(err, cerr.ErrRefundNotFound),
		errors.Is(err, cerr.ErrBalanceNotFound),
		errors.Is(err, cerr.ErrSubscriptionNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, cerr.ErrDuplicateOrder),
		errors.Is(err, cerr.ErrDuplicatePaymentKey),
		errors.Is(err, cerr.ErrRefundNotPending):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, cerr.ErrAmountMismatch),
		errors.Is(err, cerr.ErrInsufficientBalance):
		ErrorResponse(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, cerr.ErrAbuseDetected):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	default:
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
	}
}
