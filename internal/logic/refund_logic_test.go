package logic

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/uniqn/chip-service/internal/cerr"
	"github.com/uniqn/chip-service/internal/model"
)

type refundFixture struct {
	refund  *RefundLogic
	payment *PaymentLogic
	ledger  *LedgerLogic
	chips   *ChipLogic
	gateway *fakeGateway
}

func newRefundFixture(t *testing.T) *refundFixture {
	t.Helper()
	db := setupTestDB(t)
	ledger := NewLedgerLogic(db)
	chips := NewChipLogic(db, ledger, noopNotifier{})
	rateLimit := NewRateLimitLogic(db)
	gw := &fakeGateway{}
	payment := NewPaymentLogic(db, ledger, chips, rateLimit, NewAbuseLogic(db), gw, noopNotifier{})
	refund := NewRefundLogic(db, ledger, chips, rateLimit, gw, noopNotifier{})
	return &refundFixture{refund: refund, payment: payment, ledger: ledger, chips: chips, gateway: gw}
}

// purchase 完成一次充值并返回订单号
func (f *refundFixture) purchase(t *testing.T, userId, packageId string) string {
	t.Helper()
	orderId := fmt.Sprintf("ORD_%s_%s_%d", userId, packageId, time.Now().UnixMilli())
	_, _, err := f.payment.Confirm(context.Background(), ConfirmRequest{
		UserId:     userId,
		OrderId:    orderId,
		PaymentKey: fmt.Sprintf("pay_%s_%d", userId, time.Now().UnixNano()),
		Amount:     model.ChipPackages[packageId].Price,
	})
	if err != nil {
		t.Fatalf("充值失败: %v", err)
	}
	return orderId
}

func TestCalculateRefund(t *testing.T) {
	tests := []struct {
		name       string
		amount     int64
		chips      int64
		used       int64
		wantRefund int64
		wantFee    int64
	}{
		{"未使用全额退款", 3000, 10, 0, 3000, 0},
		{"部分使用收20%手续费", 3000, 10, 4, 1440, 360},
		{"全部使用无可退", 3000, 10, 10, 0, 0},
		{"pkg1未使用", 3300, 10, 0, 3300, 0},
		{"pkg2剩10个", 5500, 30, 20, 1467, 366},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote := CalculateRefund(tt.amount, tt.chips, tt.used)
			if quote.RefundAmount != tt.wantRefund {
				t.Errorf("退款金额: %d, 期望 %d", quote.RefundAmount, tt.wantRefund)
			}
			if quote.FeeAmount != tt.wantFee {
				t.Errorf("手续费: %d, 期望 %d", quote.FeeAmount, tt.wantFee)
			}
		})
	}
}

func TestRequestRefundFullUnused(t *testing.T) {
	f := newRefundFixture(t)
	orderId := f.purchase(t, "user1", "pkg1")

	request, err := f.refund.RequestRefund("user1", orderId, "unused", "不需要了")
	if err != nil {
		t.Fatalf("RequestRefund 失败: %v", err)
	}
	if request.Status != model.RefundStatusPending {
		t.Errorf("新请求状态应为pending: %s", request.Status)
	}
	if request.RefundAmount != 3300 || request.FeeAmount != 0 {
		t.Errorf("未使用应全额退款: refund=%d fee=%d", request.RefundAmount, request.FeeAmount)
	}
	if request.UsedChips != 0 || request.RemainingChips != 10 {
		t.Errorf("使用统计错误: used=%d remaining=%d", request.UsedChips, request.RemainingChips)
	}
}

func TestRequestRefundPartialUseFee(t *testing.T) {
	f := newRefundFixture(t)
	orderId := f.purchase(t, "user1", "pkg1")

	// 消耗4个筹码并关联订单
	if err := f.deductWithOrder("user1", 4, orderId); err != nil {
		t.Fatalf("消耗失败: %v", err)
	}

	request, err := f.refund.RequestRefund("user1", orderId, "partial_use", "")
	if err != nil {
		t.Fatalf("RequestRefund 失败: %v", err)
	}
	// 3300/10 * 6 = 1980, fee 20% = 396, refund 1584
	if request.UsedChips != 4 || request.RemainingChips != 6 {
		t.Errorf("使用统计错误: used=%d remaining=%d", request.UsedChips, request.RemainingChips)
	}
	if request.FeeAmount != 396 || request.RefundAmount != 1584 {
		t.Errorf("费用计算错误: fee=%d refund=%d", request.FeeAmount, request.RefundAmount)
	}
}

// deductWithOrder 带订单号消耗筹码
func (f *refundFixture) deductWithOrder(userId string, amount int64, orderId string) error {
	return f.ledger.RunInTransaction(func(tx *gorm.DB) error {
		_, err := f.chips.DeductIn(tx, userId, amount, model.TxTypeUse, "功能消耗", deductTags{OrderId: orderId})
		return err
	})
}

func TestRequestRefundEligibility(t *testing.T) {
	f := newRefundFixture(t)

	// 不存在的订单
	if _, err := f.refund.RequestRefund("user1", "ORD_user1_pkg1_123", "unused", ""); !errors.Is(err, cerr.ErrPaymentNotFound) {
		t.Errorf("期望 ErrPaymentNotFound，实际 %v", err)
	}

	// 他人订单
	orderId := f.purchase(t, "user1", "pkg1")
	if _, err := f.refund.RequestRefund("user2", orderId, "unused", ""); !errors.Is(err, cerr.ErrOrderUserMismatch) {
		t.Errorf("期望 ErrOrderUserMismatch，实际 %v", err)
	}

	// 同一订单重复申请
	if _, err := f.refund.RequestRefund("user1", orderId, "unused", ""); err != nil {
		t.Fatalf("首次申请失败: %v", err)
	}
	if _, err := f.refund.RequestRefund("user1", orderId, "unused", ""); !isIneligible(err) {
		t.Errorf("重复申请应被拒绝，实际 %v", err)
	}
}

func TestRefundRequestUniquePerOrder(t *testing.T) {
	f := newRefundFixture(t)
	orderId := f.purchase(t, "user1", "pkg1")

	request, err := f.refund.RequestRefund("user1", orderId, "unused", "")
	if err != nil {
		t.Fatalf("首次申请失败: %v", err)
	}

	// 并发绕过资格校验时由部分唯一索引兜底
	racing := &model.RefundRequest{
		UserId:  "user1",
		OrderId: orderId,
		Status:  model.RefundStatusPending,
		Reason:  "unused",
	}
	if err := f.refund.db.Create(racing).Error; !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("期望 ErrDuplicatedKey，实际 %v", err)
	}

	// 驳回后同一订单可以重新申请
	if err := f.refund.Reject(request.Id, "admin1", "资料不全"); err != nil {
		t.Fatalf("Reject 失败: %v", err)
	}
	if _, err := f.refund.RequestRefund("user1", orderId, "unused", "补充资料后重新申请"); err != nil {
		t.Fatalf("驳回后重新申请失败: %v", err)
	}
}

func TestRequestRefundSevenDayWindow(t *testing.T) {
	f := newRefundFixture(t)
	orderId := f.purchase(t, "user1", "pkg1")

	// 把购买时间改到8天前
	f.backdate(t, orderId, 8)

	_, err := f.refund.RequestRefund("user1", orderId, "unused", "")
	if !isIneligible(err) {
		t.Errorf("超过7天应被拒绝，实际 %v", err)
	}
}

func TestRequestRefundBlacklist(t *testing.T) {
	f := newRefundFixture(t)
	orderId := f.purchase(t, "user1", "pkg1")

	if err := f.refund.AddToBlacklist("user1", "滥用退款", "admin1"); err != nil {
		t.Fatalf("加入黑名单失败: %v", err)
	}
	if _, err := f.refund.RequestRefund("user1", orderId, "unused", ""); !isIneligible(err) {
		t.Errorf("黑名单用户应被拒绝，实际 %v", err)
	}

	if err := f.refund.RemoveFromBlacklist("user1"); err != nil {
		t.Fatalf("移出黑名单失败: %v", err)
	}
	if _, err := f.refund.RequestRefund("user1", orderId, "unused", ""); err != nil {
		t.Errorf("移出黑名单后应可申请: %v", err)
	}
}

func TestRequestRefundMonthlyLimit(t *testing.T) {
	f := newRefundFixture(t)

	// 完成一次退款
	order1 := f.purchase(t, "user1", "pkg1")
	req1, err := f.refund.RequestRefund("user1", order1, "unused", "")
	if err != nil {
		t.Fatalf("首次申请失败: %v", err)
	}
	if _, err := f.refund.Approve(context.Background(), req1.Id, "admin1"); err != nil {
		t.Fatalf("批准失败: %v", err)
	}

	// 本月再次申请触发上限
	order2 := f.purchase(t, "user1", "pkg2")
	if _, err := f.refund.RequestRefund("user1", order2, "unused", ""); !isIneligible(err) {
		t.Errorf("本月第二次申请应被拒绝，实际 %v", err)
	}
}

func TestApproveRefundClawsBackChips(t *testing.T) {
	f := newRefundFixture(t)
	orderId := f.purchase(t, "user1", "pkg1")

	request, err := f.refund.RequestRefund("user1", orderId, "unused", "")
	if err != nil {
		t.Fatalf("申请失败: %v", err)
	}

	approved, err := f.refund.Approve(context.Background(), request.Id, "admin1")
	if err != nil {
		t.Fatalf("Approve 失败: %v", err)
	}
	if approved.Status != model.RefundStatusCompleted {
		t.Errorf("状态应为completed: %s", approved.Status)
	}
	if f.gateway.cancelCalls != 1 || f.gateway.lastCancel != 3300 {
		t.Errorf("网关退款调用错误: calls=%d amount=%d", f.gateway.cancelCalls, f.gateway.lastCancel)
	}

	// 筹码被全额回收
	balance, _ := f.ledger.GetBalance("user1")
	if balance.TotalChips != 0 {
		t.Errorf("筹码应被回收: %d", balance.TotalChips)
	}

	// 回收流水带退款关联
	var tx model.ChipTransaction
	if err := f.refund.db.Where("user_id = ? AND type = ?", "user1", model.TxTypeRefund).First(&tx).Error; err != nil {
		t.Fatalf("回收流水未落库: %v", err)
	}
	if tx.RefundId != request.Id || tx.OrderId != orderId {
		t.Errorf("回收流水关联错误: refundId=%d orderId=%s", tx.RefundId, tx.OrderId)
	}
}

func TestApproveRefundGatewayFailureKeepsPending(t *testing.T) {
	f := newRefundFixture(t)
	orderId := f.purchase(t, "user1", "pkg1")

	request, err := f.refund.RequestRefund("user1", orderId, "unused", "")
	if err != nil {
		t.Fatalf("申请失败: %v", err)
	}

	f.gateway.cancelErr = &cerr.GatewayError{Status: 500}
	if _, err := f.refund.Approve(context.Background(), request.Id, "admin1"); err == nil {
		t.Fatalf("网关失败时 Approve 应报错")
	}

	// 请求保持 pending，筹码未回收
	var reloaded model.RefundRequest
	f.refund.db.First(&reloaded, request.Id)
	if reloaded.Status != model.RefundStatusPending {
		t.Errorf("状态应保持pending: %s", reloaded.Status)
	}
	balance, _ := f.ledger.GetBalance("user1")
	if balance.TotalChips != 10 {
		t.Errorf("筹码不应被回收: %d", balance.TotalChips)
	}

	// 网关恢复后可再次批准
	f.gateway.cancelErr = nil
	if _, err := f.refund.Approve(context.Background(), request.Id, "admin1"); err != nil {
		t.Errorf("恢复后批准失败: %v", err)
	}
}

func TestApproveRefundOnlyOnce(t *testing.T) {
	f := newRefundFixture(t)
	orderId := f.purchase(t, "user1", "pkg1")

	request, _ := f.refund.RequestRefund("user1", orderId, "unused", "")
	if _, err := f.refund.Approve(context.Background(), request.Id, "admin1"); err != nil {
		t.Fatalf("批准失败: %v", err)
	}

	if _, err := f.refund.Approve(context.Background(), request.Id, "admin2"); !errors.Is(err, cerr.ErrRefundNotPending) {
		t.Errorf("重复批准应返回 ErrRefundNotPending，实际 %v", err)
	}
}

func TestRejectRefund(t *testing.T) {
	f := newRefundFixture(t)
	orderId := f.purchase(t, "user1", "pkg1")

	request, _ := f.refund.RequestRefund("user1", orderId, "unused", "")
	if err := f.refund.Reject(request.Id, "admin1", "不符合政策"); err != nil {
		t.Fatalf("Reject 失败: %v", err)
	}

	var reloaded model.RefundRequest
	f.refund.db.First(&reloaded, request.Id)
	if reloaded.Status != model.RefundStatusRejected || reloaded.RejectionReason != "不符合政策" {
		t.Errorf("驳回信息错误: status=%s reason=%s", reloaded.Status, reloaded.RejectionReason)
	}

	// 驳回无账务影响
	balance, _ := f.ledger.GetBalance("user1")
	if balance.TotalChips != 10 {
		t.Errorf("驳回不应回收筹码: %d", balance.TotalChips)
	}

	// 不存在的请求
	if err := f.refund.Reject(99999, "admin1", "x"); !errors.Is(err, cerr.ErrRefundNotFound) {
		t.Errorf("期望 ErrRefundNotFound，实际 %v", err)
	}
	// 已驳回的请求
	if err := f.refund.Reject(request.Id, "admin1", "x"); !errors.Is(err, cerr.ErrRefundNotPending) {
		t.Errorf("期望 ErrRefundNotPending，实际 %v", err)
	}
}

// backdate 把支付记录和退款窗口起点改到 days 天前
func (f *refundFixture) backdate(t *testing.T, orderId string, days int) {
	t.Helper()
	past := time.Now().AddDate(0, 0, -days)
	err := f.refund.db.Model(&model.PaymentRecord{}).
		Where("order_id = ?", orderId).
		Update("created_at", past).Error
	if err != nil {
		t.Fatalf("回写购买时间失败: %v", err)
	}
}

func isIneligible(err error) bool {
	_, ok := cerr.IsRefundIneligible(err)
	return ok
}
