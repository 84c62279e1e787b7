package router

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/uniqn/chip-service/internal/handler"
	"github.com/uniqn/chip-service/internal/logic"
)

// Deps 路由层依赖
type Deps struct {
	Ledger       *logic.LedgerLogic
	Chips        *logic.ChipLogic
	Payment      *logic.PaymentLogic
	Refund       *logic.RefundLogic
	Subscription *logic.SubscriptionLogic
	RateLimit    *logic.RateLimitLogic
}

func Setup(deps Deps) *gin.Engine {
	r := gin.Default()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "chip-service",
		})
	})

	// API版本组
	v1 := r.Group("/api/v1")
	v1.Use(ipRateLimitMiddleware(deps.RateLimit))
	v1.Use(userIdMiddleware())
	v1.Use(generalRateLimitMiddleware(deps.RateLimit))
	{
		// 支付相关路由
		paymentHandler := handler.NewPaymentHandler(deps.Payment)
		payments := v1.Group("/payments")
		{
			payments.POST("/confirm", paymentHandler.ConfirmPayment)
			payments.GET("", paymentHandler.GetPayments)
		}

		// 筹码相关路由
		chipHandler := handler.NewChipHandler(deps.Ledger, deps.Chips)
		chips := v1.Group("/chips")
		{
			chips.GET("/balance", chipHandler.GetBalance)
			chips.GET("/transactions", chipHandler.GetTransactions)
			chips.POST("/use", chipHandler.UseChips)
		}

		// 退款相关路由
		refundHandler := handler.NewRefundHandler(deps.Refund)
		refunds := v1.Group("/refunds")
		{
			refunds.POST("", refundHandler.CreateRefund)
			refunds.GET("", refundHandler.GetRefunds)
		}

		// 订阅相关路由
		subscriptionHandler := handler.NewSubscriptionHandler(deps.Subscription)
		subscriptions := v1.Group("/subscriptions")
		{
			subscriptions.POST("", subscriptionHandler.Subscribe)
			subscriptions.DELETE("", subscriptionHandler.Unsubscribe)
			subscriptions.GET("", subscriptionHandler.GetSubscription)
		}

		// 管理端路由
		adminHandler := handler.NewAdminHandler(deps.Refund)
		admin := v1.Group("/admin")
		admin.Use(adminMiddleware())
		{
			admin.GET("/refunds", adminHandler.GetRefunds)
			admin.POST("/refunds/:id/approve", adminHandler.ApproveRefund)
			admin.POST("/refunds/:id/reject", adminHandler.RejectRefund)
			admin.POST("/blacklist", adminHandler.AddBlacklist)
			admin.DELETE("/blacklist/:userId", adminHandler.RemoveBlacklist)
		}
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-User-ID, X-User-Role")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// 用户身份中间件，身份认证由上游网关完成，这里只透传用户ID
func userIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetHeader("X-User-ID")
		if userId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "缺少用户ID",
			})
			return
		}
		c.Set("userId", userId)
		c.Next()
	}
}

// 管理员中间件
func adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-User-Role") != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "无管理员权限",
			})
			return
		}
		c.Next()
	}
}

// 通用限流中间件，按用户维度
func generalRateLimitMiddleware(rateLimit *logic.RateLimitLogic) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := rateLimit.Check(c.GetString("userId"), logic.RateLimitGeneral)
		if !result.Allowed {
			abortRateLimited(c, result)
			return
		}
		c.Next()
	}
}

// IP限流中间件
func ipRateLimitMiddleware(rateLimit *logic.RateLimitLogic) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := rateLimit.CheckIP(c.ClientIP())
		if !result.Allowed {
			abortRateLimited(c, result)
			return
		}
		c.Next()
	}
}

func abortRateLimited(c *gin.Context, result logic.RateLimitResult) {
	c.Header("Retry-After", strconv.Itoa(result.RetryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"success": false,
		"message": "请求过于频繁，请稍后重试",
	})
}
