package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uniqn/chip-service/internal/logic"
)

// SubscriptionHandler 订阅处理器
type SubscriptionHandler struct {
	subscriptionLogic *logic.SubscriptionLogic
}

// NewSubscriptionHandler 创建订阅处理器
func NewSubscriptionHandler(subscriptionLogic *logic.SubscriptionLogic) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionLogic: subscriptionLogic,
	}
}

// Subscribe 开通或切换订阅
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
		return
	}

	userId := c.GetString("userId")
	sub, err := h.subscriptionLogic.Subscribe(userId, req.Plan)
	if err != nil {
		ErrorFrom(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "订阅开通成功", ToSubscriptionResponse(sub))
}

// Unsubscribe 取消订阅
func (h *SubscriptionHandler) Unsubscribe(c *gin.Context) {
	userId := c.GetString("userId")
	if err := h.subscriptionLogic.Cancel(userId); err != nil {
		ErrorFrom(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "订阅已取消", nil)
}

// GetSubscription 获取当前订阅
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	userId := c.GetString("userId")
	sub, err := h.subscriptionLogic.GetSubscription(userId)
	if err != nil {
		ErrorFrom(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取订阅成功", ToSubscriptionResponse(sub))
}
