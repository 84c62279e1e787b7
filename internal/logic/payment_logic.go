package logic

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/uniqn/chip-service/internal/cerr"
	"github.com/uniqn/chip-service/internal/gateway"
	"github.com/uniqn/chip-service/internal/logger"
	"github.com/uniqn/chip-service/internal/model"
	"github.com/uniqn/chip-service/internal/notifier"
)

// PaymentLogic 支付确认
// 最重要的保证：一个订单号最多发放一次筹码。payment_record 上的唯一索引
// 是并发场景下的最终防线
type PaymentLogic struct {
	db        *gorm.DB
	ledger    *LedgerLogic
	chips     *ChipLogic
	rateLimit *RateLimitLogic
	abuse     *AbuseLogic
	gateway   gateway.PaymentGateway
	notifier  notifier.Notifier
}

// NewPaymentLogic 创建支付业务逻辑
func NewPaymentLogic(
	db *gorm.DB,
	ledger *LedgerLogic,
	chips *ChipLogic,
	rateLimit *RateLimitLogic,
	abuse *AbuseLogic,
	gw gateway.PaymentGateway,
	n notifier.Notifier,
) *PaymentLogic {
	return &PaymentLogic{
		db:        db,
		ledger:    ledger,
		chips:     chips,
		rateLimit: rateLimit,
		abuse:     abuse,
		gateway:   gw,
		notifier:  n,
	}
}

// orderIdPattern 订单号格式：ORD_<userId>_<packageId>_<unix毫秒>
var orderIdPattern = regexp.MustCompile(`^ORD_([a-zA-Z0-9_-]+)_(pkg[1-5])_(\d+)$`)

// orderFreshness 订单号中的时间戳与当前时间的最大允许偏差（防重放）
const orderFreshness = time.Hour

// errDuplicateInsert 唯一索引冲突，回滚后再归因
var errDuplicateInsert = errors.New("payment record duplicate insert")

// ParsedOrder 订单号解析结果
type ParsedOrder struct {
	UserId    string
	PackageId string
	Timestamp time.Time
}

// ParseOrderId 解析并校验订单号格式
func ParseOrderId(orderId string) (*ParsedOrder, error) {
	m := orderIdPattern.FindStringSubmatch(orderId)
	if m == nil {
		return nil, cerr.ErrInvalidOrderID
	}
	ms, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return nil, cerr.ErrInvalidOrderID
	}
	return &ParsedOrder{
		UserId:    m[1],
		PackageId: m[2],
		Timestamp: time.UnixMilli(ms),
	}, nil
}

// ConfirmRequest 支付确认请求
type ConfirmRequest struct {
	UserId     string
	OrderId    string
	PaymentKey string
	Amount     int64
}

// Confirm 确认支付并发放筹码
// 流程：限流 → 滥用检测 → 订单号校验（格式/时效/归属）→ 重复校验 →
// 服务端价格校验 → 网关确认 → 落支付记录并发放（同一事务）
// 网关确认之后的任何失败都会落一条 failed 记录，订单号就此作废
func (p *PaymentLogic) Confirm(ctx context.Context, req ConfirmRequest) (*model.PaymentRecord, *model.ChipBalance, error) {
	if err := p.rateLimit.Validate(req.UserId, RateLimitPayment); err != nil {
		return nil, nil, err
	}
	if result := p.abuse.Score(req.UserId); result.IsAbusive {
		logger.Warn("Payment blocked by abuse detector: user %s score %.2f", req.UserId, result.RiskScore)
		return nil, nil, cerr.ErrAbuseDetected
	}

	parsed, err := ParseOrderId(req.OrderId)
	if err != nil {
		return nil, nil, err
	}
	if d := time.Since(parsed.Timestamp); d > orderFreshness || d < -orderFreshness {
		return nil, nil, cerr.ErrStaleOrder
	}
	if parsed.UserId != req.UserId {
		return nil, nil, cerr.ErrOrderUserMismatch
	}

	if err := p.checkDuplicates(req.OrderId, req.PaymentKey); err != nil {
		return nil, nil, err
	}

	if req.Amount <= 0 {
		return nil, nil, cerr.ErrInvalidAmount
	}
	if req.Amount > model.MaxPaymentAmount {
		return nil, nil, cerr.ErrAmountExceeded
	}
	pkg, ok := model.GetPackage(parsed.PackageId)
	if !ok {
		return nil, nil, cerr.ErrUnknownPackage
	}
	// 价格以服务端套餐表为准
	if req.Amount != pkg.Price {
		return nil, nil, cerr.ErrAmountMismatch
	}

	gwResult, err := p.gateway.Confirm(ctx, req.PaymentKey, req.OrderId, req.Amount)
	if err != nil {
		// 网关失败也要消耗订单号，阻止同一订单反复冲击网关
		p.persistFailed(req, pkg, err.Error())
		return nil, nil, err
	}

	record := &model.PaymentRecord{
		OrderId:         req.OrderId,
		PaymentKey:      req.PaymentKey,
		UserId:          req.UserId,
		PackageId:       pkg.Id,
		Amount:          req.Amount,
		ChipAmount:      pkg.Chips,
		Status:          model.PaymentStatusCompleted,
		GatewayResponse: gwResult.Raw,
	}

	var balance *model.ChipBalance
	err = p.ledger.RunInTransaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errDuplicateInsert
			}
			return fmt.Errorf("写入支付记录失败: %w", err)
		}
		b, err := p.chips.GrantIn(tx, req.UserId, model.ChipTypeRed, pkg.Chips, model.TxTypePurchase, GrantMeta{
			Reason:    fmt.Sprintf("套餐%s购买", pkg.Id),
			OrderId:   req.OrderId,
			PackageId: pkg.Id,
			Price:     pkg.Price,
		})
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if errors.Is(err, errDuplicateInsert) {
		// 事务已回滚后才能查到竞争方落下的记录，归因必须放在事务外
		return nil, nil, p.duplicateKind(req.OrderId)
	}
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Payment confirmed: user %s order %s amount %d chips %d",
		req.UserId, req.OrderId, req.Amount, pkg.Chips)

	go p.notifier.Notify(req.UserId, notifier.EventChipGranted, map[string]interface{}{
		"chip_type": model.ChipTypeRed,
		"amount":    pkg.Chips,
		"order_id":  req.OrderId,
	})
	return record, balance, nil
}

// checkDuplicates 订单号与支付凭证都不允许重复使用
func (p *PaymentLogic) checkDuplicates(orderId, paymentKey string) error {
	var count int64
	if err := p.db.Model(&model.PaymentRecord{}).Where("order_id = ?", orderId).Count(&count).Error; err != nil {
		return fmt.Errorf("查询支付记录失败: %w", err)
	}
	if count > 0 {
		return cerr.ErrDuplicateOrder
	}
	if err := p.db.Model(&model.PaymentRecord{}).Where("payment_key = ?", paymentKey).Count(&count).Error; err != nil {
		return fmt.Errorf("查询支付记录失败: %w", err)
	}
	if count > 0 {
		return cerr.ErrDuplicatePaymentKey
	}
	return nil
}

// duplicateKind 唯一索引冲突时区分是订单号还是支付凭证重复
func (p *PaymentLogic) duplicateKind(orderId string) error {
	var count int64
	if err := p.db.Model(&model.PaymentRecord{}).Where("order_id = ?", orderId).Count(&count).Error; err != nil {
		return fmt.Errorf("查询支付记录失败: %w", err)
	}
	if count > 0 {
		return cerr.ErrDuplicateOrder
	}
	return cerr.ErrDuplicatePaymentKey
}

// persistFailed 落失败记录。已有记录时忽略冲突
func (p *PaymentLogic) persistFailed(req ConfirmRequest, pkg model.ChipPackage, reason string) {
	record := &model.PaymentRecord{
		OrderId:       req.OrderId,
		PaymentKey:    req.PaymentKey,
		UserId:        req.UserId,
		PackageId:     pkg.Id,
		Amount:        req.Amount,
		ChipAmount:    pkg.Chips,
		Status:        model.PaymentStatusFailed,
		FailureReason: reason,
	}
	if err := p.db.Create(record).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		logger.Error("Failed to persist failed payment record for order %s: %v", req.OrderId, err)
	}
}

// GetUserPayments 分页查询用户支付记录
func (p *PaymentLogic) GetUserPayments(userId string, page, pageSize int) ([]model.PaymentRecord, int64, error) {
	var total int64
	query := p.db.Model(&model.PaymentRecord{}).Where("user_id = ?", userId)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("查询支付记录总数失败: %w", err)
	}

	var records []model.PaymentRecord
	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("查询支付记录失败: %w", err)
	}
	return records, total, nil
}

// GetPaymentByOrderId 按订单号查询支付记录
func (p *PaymentLogic) GetPaymentByOrderId(orderId string) (*model.PaymentRecord, error) {
	var record model.PaymentRecord
	err := p.db.Where("order_id = ?", orderId).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, cerr.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询支付记录失败: %w", err)
	}
	return &record, nil
}
