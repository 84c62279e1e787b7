package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/uniqn/chip-service/internal/logic"
)

// AdminHandler 退款管理处理器（管理端）
type AdminHandler struct {
	refundLogic *logic.RefundLogic
}

// NewAdminHandler 创建退款管理处理器
func NewAdminHandler(refundLogic *logic.RefundLogic) *AdminHandler {
	return &AdminHandler{
		refundLogic: refundLogic,
	}
}

// GetRefunds 按状态查询退款申请
func (h *AdminHandler) GetRefunds(c *gin.Context) {
	status := c.Query("status")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	requests, total, err := h.refundLogic.GetRefundsByStatus(status, page, pageSize)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "获取退款申请成功", GetRefundsResponse{
		Refunds:    ToRefundResponseList(requests),
		Pagination: NewPagination(page, pageSize, total),
	})
}

// ApproveRefund 批准退款
func (h *AdminHandler) ApproveRefund(c *gin.Context) {
	refundId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的退款ID")
		return
	}

	adminId := c.GetString("userId")
	request, err := h.refundLogic.Approve(c.Request.Context(), refundId, adminId)
	if err != nil {
		ErrorFrom(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "退款已批准", ToRefundResponse(request))
}

// RejectRefund 驳回退款
func (h *AdminHandler) RejectRefund(c *gin.Context) {
	refundId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的退款ID")
		return
	}

	var req RejectRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
		return
	}

	adminId := c.GetString("userId")
	if err := h.refundLogic.Reject(refundId, adminId, req.Reason); err != nil {
		ErrorFrom(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "退款已驳回", nil)
}

// AddBlacklist 加入退款黑名单
func (h *AdminHandler) AddBlacklist(c *gin.Context) {
	var req BlacklistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
		return
	}

	adminId := c.GetString("userId")
	if err := h.refundLogic.AddToBlacklist(req.UserId, req.Reason, adminId); err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "已加入退款黑名单", nil)
}

// RemoveBlacklist 移出退款黑名单
func (h *AdminHandler) RemoveBlacklist(c *gin.Context) {
	userId := c.Param("userId")
	if userId == "" {
		ErrorResponse(c, http.StatusBadRequest, "无效的用户ID")
		return
	}

	if err := h.refundLogic.RemoveFromBlacklist(userId); err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "已移出退款黑名单", nil)
}
