package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/uniqn/chip-service/internal/logic"
)

// RefundHandler 退款处理器（用户侧）
type RefundHandler struct {
	refundLogic *logic.RefundLogic
}

// NewRefundHandler 创建退款处理器
func NewRefundHandler(refundLogic *logic.RefundLogic) *RefundHandler {
	return &RefundHandler{
		refundLogic: refundLogic,
	}
}

// CreateRefund 发起退款申请
func (h *RefundHandler) CreateRefund(c *gin.Context) {
	var req CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
		return
	}

	userId := c.GetString("userId")
	request, err := h.refundLogic.RequestRefund(userId, req.OrderId, req.Reason, req.ReasonDetail)
	if err != nil {
		ErrorFrom(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "退款申请已提交", ToRefundResponse(request))
}

// GetRefunds 获取用户退款申请列表
func (h *RefundHandler) GetRefunds(c *gin.Context) {
	userId := c.GetString("userId")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	requests, total, err := h.refundLogic.GetUserRefunds(userId, page, pageSize)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "获取退款申请成功", GetRefundsResponse{
		Refunds:    ToRefundResponseList(requests),
		Pagination: NewPagination(page, pageSize, total),
	})
}
