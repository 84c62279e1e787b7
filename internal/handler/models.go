package handler

import (
	"time"

	"github.com/uniqn/chip-service/internal/model"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

// NewPagination 计算分页信息
func NewPagination(page, pageSize int, total int64) Pagination {
	return Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
}

// 请求模型

// ConfirmPaymentRequest 支付确认请求
type ConfirmPaymentRequest struct {
	OrderId    string `json:"orderId" binding:"required"`
	PaymentKey string `json:"paymentKey" binding:"required"`
	Amount     int64  `json:"amount" binding:"required"`
}

// UseChipsRequest 筹码消耗请求
type UseChipsRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason"`
}

// CreateRefundRequest 退款申请请求
type CreateRefundRequest struct {
	OrderId      string `json:"orderId" binding:"required"`
	Reason       string `json:"reason" binding:"required"`
	ReasonDetail string `json:"reasonDetail"`
}

// RejectRefundRequest 驳回退款请求
type RejectRefundRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// BlacklistRequest 退款黑名单请求
type BlacklistRequest struct {
	UserId string `json:"userId" binding:"required"`
	Reason string `json:"reason"`
}

// SubscribeRequest 订阅开通请求
type SubscribeRequest struct {
	Plan string `json:"plan" binding:"required"`
}

// 响应模型

// BalanceResponse 筹码余额响应模型
type BalanceResponse struct {
	UserId     string    `json:"userId"`
	RedChips   int64     `json:"redChips"`
	BlueChips  int64     `json:"blueChips"`
	TotalChips int64     `json:"totalChips"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TransactionResponse 筹码流水响应模型
type TransactionResponse struct {
	ID           int64      `json:"id"`
	Type         string     `json:"type"`
	ChipType     string     `json:"chipType"`
	Amount       int64      `json:"amount"`
	BalanceAfter int64      `json:"balanceAfter"`
	Reason       string     `json:"reason"`
	OrderId      string     `json:"orderId,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// GetTransactionsResponse 筹码流水列表响应
type GetTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	Pagination   Pagination            `json:"pagination"`
}

// PaymentResponse 支付记录响应模型
type PaymentResponse struct {
	ID         int64     `json:"id"`
	OrderId    string    `json:"orderId"`
	PackageId  string    `json:"packageId"`
	Amount     int64     `json:"amount"`
	ChipAmount int64     `json:"chipAmount"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ConfirmPaymentResponse 支付确认响应
type ConfirmPaymentResponse struct {
	Payment PaymentResponse `json:"payment"`
	Balance BalanceResponse `json:"balance"`
}

// GetPaymentsResponse 支付记录列表响应
type GetPaymentsResponse struct {
	Payments   []PaymentResponse `json:"payments"`
	Pagination Pagination        `json:"pagination"`
}

// RefundResponse 退款请求响应模型
type RefundResponse struct {
	ID             int64      `json:"id"`
	OrderId        string     `json:"orderId"`
	UserId         string     `json:"userId"`
	PackageId      string     `json:"packageId"`
	PurchasedChips int64      `json:"purchasedChips"`
	UsedChips      int64      `json:"usedChips"`
	RemainingChips int64      `json:"remainingChips"`
	RefundAmount   int64      `json:"refundAmount"`
	FeeAmount      int64      `json:"feeAmount"`
	FeePercentage  float64    `json:"feePercentage"`
	Status         string     `json:"status"`
	Reason         string     `json:"reason"`
	ProcessedAt    *time.Time `json:"processedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// GetRefundsResponse 退款请求列表响应
type GetRefundsResponse struct {
	Refunds    []RefundResponse `json:"refunds"`
	Pagination Pagination       `json:"pagination"`
}

// SubscriptionResponse 订阅响应模型
type SubscriptionResponse struct {
	ID             int64     `json:"id"`
	Plan           string    `json:"plan"`
	Status         string    `json:"status"`
	AutoRenew      bool      `json:"autoRenew"`
	LastGrantMonth string    `json:"lastGrantMonth"`
	MonthlyChips   int64     `json:"monthlyChips"`
	CreatedAt      time.Time `json:"createdAt"`
}

// 转换函数

// ToBalanceResponse 将余额数据库模型转换为响应模型
func ToBalanceResponse(balance *model.ChipBalance) BalanceResponse {
	return BalanceResponse{
		UserId:     balance.UserId,
		RedChips:   balance.RedChips,
		BlueChips:  balance.BlueChips,
		TotalChips: balance.TotalChips,
		UpdatedAt:  balance.LastUpdatedAt,
	}
}

// ToTransactionResponse 将筹码流水数据库模型转换为响应模型
func ToTransactionResponse(tx *model.ChipTransaction) TransactionResponse {
	return TransactionResponse{
		ID:           tx.Id,
		Type:         tx.Type,
		ChipType:     string(tx.ChipType),
		Amount:       tx.Amount,
		BalanceAfter: tx.BalanceAfter,
		Reason:       tx.Reason,
		OrderId:      tx.OrderId,
		ExpiresAt:    tx.ExpiresAt,
		CreatedAt:    tx.CreatedAt,
	}
}

// ToTransactionResponseList 将筹码流水列表转换为响应模型列表
func ToTransactionResponseList(txs []model.ChipTransaction) []TransactionResponse {
	result := make([]TransactionResponse, len(txs))
	for i, tx := range txs {
		result[i] = ToTransactionResponse(&tx)
	}
	return result
}

// ToPaymentResponse 将支付记录数据库模型转换为响应模型
func ToPaymentResponse(record *model.PaymentRecord) PaymentResponse {
	return PaymentResponse{
		ID:         record.Id,
		OrderId:    record.OrderId,
		PackageId:  record.PackageId,
		Amount:     record.Amount,
		ChipAmount: record.ChipAmount,
		Status:     record.Status,
		CreatedAt:  record.CreatedAt,
	}
}

// ToPaymentResponseList 将支付记录列表转换为响应模型列表
func ToPaymentResponseList(records []model.PaymentRecord) []PaymentResponse {
	result := make([]PaymentResponse, len(records))
	for i, record := range records {
		result[i] = ToPaymentResponse(&record)
	}
	return result
}

// ToRefundResponse 将退款请求数据库模型转换为响应模型
func ToRefundResponse(request *model.RefundRequest) RefundResponse {
	return RefundResponse{
		ID:             request.Id,
		OrderId:        request.OrderId,
		UserId:         request.UserId,
		PackageId:      request.PackageId,
		PurchasedChips: request.PurchasedChips,
		UsedChips:      request.UsedChips,
		RemainingChips: request.RemainingChips,
		RefundAmount:   request.RefundAmount,
		FeeAmount:      request.FeeAmount,
		FeePercentage:  request.FeePercentage,
		Status:         request.Status,
		Reason:         request.Reason,
		ProcessedAt:    request.ProcessedAt,
		CreatedAt:      request.CreatedAt,
	}
}

// ToRefundResponseList 将退款请求列表转换为响应模型列表
func ToRefundResponseList(requests []model.RefundRequest) []RefundResponse {
	result := make([]RefundResponse, len(requests))
	for i, request := range requests {
		result[i] = ToRefundResponse(&request)
	}
	return result
}

// ToSubscriptionResponse 将订阅数据库模型转换为响应模型
func ToSubscriptionResponse(sub *model.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:             sub.Id,
		Plan:           sub.Plan,
		Status:         sub.Status,
		AutoRenew:      sub.AutoRenew,
		LastGrantMonth: sub.LastGrantMonth,
		MonthlyChips:   model.SubscriptionPlanChips[sub.Plan],
		CreatedAt:      sub.CreatedAt,
	}
}
