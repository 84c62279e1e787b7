package cerr

import (
	"errors"
	"fmt"
)

// 业务错误定义
// 所有 ledger 相关操作在写入前完成校验，校验失败返回以下错误之一
var (
	ErrInvalidOrderID       = errors.New("订单号格式无效")
	ErrOrderUserMismatch    = errors.New("订单号与用户不匹配")
	ErrStaleOrder           = errors.New("订单已过期")
	ErrInvalidAmount        = errors.New("金额必须大于0")
	ErrAmountExceeded       = errors.New("金额超过单笔上限")
	ErrAmountMismatch       = errors.New("金额与套餐价格不一致")
	ErrUnknownPackage       = errors.New("未知的充值套餐")
	ErrDuplicateOrder       = errors.New("订单已处理")
	ErrDuplicatePaymentKey  = errors.New("支付凭证已使用")
	ErrInsufficientBalance  = errors.New("筹码余额不足")
	ErrInvalidChipType      = errors.New("未知的筹码类型")
	ErrAbuseDetected        = errors.New("检测到异常支付行为")
	ErrRefundNotPending     = errors.New("退款请求已处理")
	ErrRefundNotFound       = errors.New("退款请求不存在")
	ErrPaymentNotFound      = errors.New("支付记录不存在")
	ErrBalanceNotFound      = errors.New("筹码余额不存在")
	ErrSubscriptionNotFound = errors.New("订阅不存在")
)

// RateLimitError 请求频率超限
type RateLimitError struct {
	RetryAfter int // 秒
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("请求频率超限，请%d秒后重试", e.RetryAfter)
}

// IsRateLimit 判断是否为频率超限错误
func IsRateLimit(err error) (*RateLimitError, bool) {
	var e *RateLimitError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GatewayError 支付网关调用失败，调用方可重试
type GatewayError struct {
	Status int
	Msg    string
}

func (e *GatewayError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("支付网关错误(%d): %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("支付网关错误(%d)", e.Status)
}

// IsGateway 判断是否为网关错误
func IsGateway(err error) (*GatewayError, bool) {
	var e *GatewayError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// RefundIneligibleError 不符合退款条件，携带具体原因
type RefundIneligibleError struct {
	Reason string
}

func (e *RefundIneligibleError) Error() string {
	return e.Reason
}

// IsRefundIneligible 判断是否为退款资格错误
func IsRefundIneligible(err error) (*RefundIneligibleError, bool) {
	var e *RefundIneligibleError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
