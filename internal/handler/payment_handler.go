package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/uniqn/chip-service/internal/logic"
)

// PaymentHandler 支付处理器
type PaymentHandler struct {
	paymentLogic *logic.PaymentLogic
}

// NewPaymentHandler 创建支付处理器
func NewPaymentHandler(paymentLogic *logic.PaymentLogic) *PaymentHandler {
	return &PaymentHandler{
		paymentLogic: paymentLogic,
	}
}

// ConfirmPayment 确认支付并发放筹码
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	var req ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
		return
	}

	userId := c.GetString("userId")
	record, balance, err := h.paymentLogic.Confirm(c.Request.Context(), logic.ConfirmRequest{
		UserId:     userId,
		OrderId:    req.OrderId,
		PaymentKey: req.PaymentKey,
		Amount:     req.Amount,
	})
	if err != nil {
		ErrorFrom(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "支付确认成功", ConfirmPaymentResponse{
		Payment: ToPaymentResponse(record),
		Balance: ToBalanceResponse(balance),
	})
}

// GetPayments 获取用户支付记录
func (h *PaymentHandler) GetPayments(c *gin.Context) {
	userId := c.GetString("userId")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	records, total, err := h.paymentLogic.GetUserPayments(userId, page, pageSize)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "获取支付记录成功", GetPaymentsResponse{
		Payments:   ToPaymentResponseList(records),
		Pagination: NewPagination(page, pageSize, total),
	})
}
