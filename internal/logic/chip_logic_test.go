package logic

import (
	"errors"
	"testing"
	"time"

	"github.com/uniqn/chip-service/internal/cerr"
	"github.com/uniqn/chip-service/internal/model"
)

func newChipLogic(t *testing.T) (*ChipLogic, *LedgerLogic) {
	t.Helper()
	db := setupTestDB(t)
	ledger := NewLedgerLogic(db)
	return NewChipLogic(db, ledger, noopNotifier{}), ledger
}

func TestGrantSetsExpiry(t *testing.T) {
	chips, ledger := newChipLogic(t)

	if _, err := chips.Grant("user1", model.ChipTypeRed, 10, model.TxTypePurchase, GrantMeta{Reason: "充值"}); err != nil {
		t.Fatalf("Grant 失败: %v", err)
	}

	txs, _, err := ledger.GetTransactions("user1", model.TxTypePurchase, 1, 10)
	if err != nil {
		t.Fatalf("GetTransactions 失败: %v", err)
	}
	if len(txs) != 1 || txs[0].ExpiresAt == nil {
		t.Fatalf("发放流水应带过期时间")
	}

	// 红筹码365天后过期
	want := time.Now().AddDate(0, 0, 365)
	if diff := txs[0].ExpiresAt.Sub(want); diff > time.Minute || diff < -time.Minute {
		t.Errorf("红筹码过期时间错误: %v", txs[0].ExpiresAt)
	}
}

func TestGrantValidation(t *testing.T) {
	chips, _ := newChipLogic(t)

	if _, err := chips.Grant("user1", model.ChipTypeRed, 0, model.TxTypePurchase, GrantMeta{}); !errors.Is(err, cerr.ErrInvalidAmount) {
		t.Errorf("零数量应返回 ErrInvalidAmount，实际 %v", err)
	}
	if _, err := chips.Grant("user1", "green", 10, model.TxTypePurchase, GrantMeta{}); !errors.Is(err, cerr.ErrInvalidChipType) {
		t.Errorf("非法类型应返回 ErrInvalidChipType，实际 %v", err)
	}
	if _, err := chips.Grant("user1", model.ChipTypeRed, 10, model.TxTypeUse, GrantMeta{}); err == nil {
		t.Errorf("use 不是发放类型，应报错")
	}
}

func TestDeductBlueBeforeRed(t *testing.T) {
	chips, _ := newChipLogic(t)

	if _, err := chips.Grant("user1", model.ChipTypeBlue, 10, model.TxTypeSubscription, GrantMeta{}); err != nil {
		t.Fatalf("发放蓝筹码失败: %v", err)
	}
	if _, err := chips.Grant("user1", model.ChipTypeRed, 10, model.TxTypePurchase, GrantMeta{}); err != nil {
		t.Fatalf("发放红筹码失败: %v", err)
	}

	balance, err := chips.Deduct("user1", 15, "功能消耗")
	if err != nil {
		t.Fatalf("Deduct 失败: %v", err)
	}
	if balance.BlueChips != 0 || balance.RedChips != 5 {
		t.Errorf("先蓝后红策略错误: blue=%d red=%d", balance.BlueChips, balance.RedChips)
	}
}

func TestDeductInsufficientBalance(t *testing.T) {
	chips, _ := newChipLogic(t)

	if _, err := chips.Grant("user1", model.ChipTypeRed, 5, model.TxTypePurchase, GrantMeta{}); err != nil {
		t.Fatalf("发放失败: %v", err)
	}

	if _, err := chips.Deduct("user1", 6, "超额"); !errors.Is(err, cerr.ErrInsufficientBalance) {
		t.Errorf("期望 ErrInsufficientBalance，实际 %v", err)
	}
	// 不支持部分扣减：余额原样保留
	balance, _ := NewLedgerLogic(chips.db).GetBalance("user1")
	if balance.RedChips != 5 {
		t.Errorf("失败的扣减不应修改余额: %d", balance.RedChips)
	}

	if _, err := chips.Deduct("nobody", 1, "无余额用户"); !errors.Is(err, cerr.ErrInsufficientBalance) {
		t.Errorf("无余额用户期望 ErrInsufficientBalance，实际 %v", err)
	}
}

func TestDeductSharesDeductionId(t *testing.T) {
	chips, ledger := newChipLogic(t)

	if _, err := chips.Grant("user1", model.ChipTypeBlue, 3, model.TxTypeSubscription, GrantMeta{}); err != nil {
		t.Fatalf("发放失败: %v", err)
	}
	if _, err := chips.Grant("user1", model.ChipTypeRed, 3, model.TxTypePurchase, GrantMeta{}); err != nil {
		t.Fatalf("发放失败: %v", err)
	}

	if _, err := chips.Deduct("user1", 5, "跨池扣减"); err != nil {
		t.Fatalf("Deduct 失败: %v", err)
	}

	txs, _, _ := ledger.GetTransactions("user1", model.TxTypeUse, 1, 10)
	if len(txs) != 2 {
		t.Fatalf("跨池扣减应产生2条流水，实际 %d", len(txs))
	}
	if txs[0].DeductionId == "" || txs[0].DeductionId != txs[1].DeductionId {
		t.Errorf("两条流水应共享 DeductionId: %q vs %q", txs[0].DeductionId, txs[1].DeductionId)
	}
}

func TestExpiryFor(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

	red := ExpiryFor(model.ChipTypeRed, now)
	if red != now.AddDate(0, 0, 365) {
		t.Errorf("红筹码过期时间错误: %v", red)
	}

	blue := ExpiryFor(model.ChipTypeBlue, now)
	want := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	if !blue.Equal(want) {
		t.Errorf("蓝筹码应次月1日过期: %v", blue)
	}

	// 12月滚动到次年1月
	dec := time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)
	blue = ExpiryFor(model.ChipTypeBlue, dec)
	want = time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	if !blue.Equal(want) {
		t.Errorf("12月发放的蓝筹码应次年1月1日过期: %v", blue)
	}
}

// grantExpired 直接写入一笔已到期的发放流水
func grantExpired(t *testing.T, ledger *LedgerLogic, userId string, chipType model.ChipType, amount int64, expiredAt time.Time) {
	t.Helper()
	if _, err := ledger.ApplyDelta(userId, ChipDelta{
		ChipType:  chipType,
		Amount:    amount,
		TxType:    model.TxTypePurchase,
		ExpiresAt: &expiredAt,
	}); err != nil {
		t.Fatalf("写入到期发放失败: %v", err)
	}
}

func TestSweepUserExpiresChips(t *testing.T) {
	chips, ledger := newChipLogic(t)
	now := time.Now()

	grantExpired(t, ledger, "user1", model.ChipTypeRed, 20, now.Add(-time.Hour))
	if _, err := chips.Grant("user1", model.ChipTypeRed, 30, model.TxTypePurchase, GrantMeta{}); err != nil {
		t.Fatalf("发放未到期筹码失败: %v", err)
	}

	result, err := chips.SweepUser("user1", now)
	if err != nil {
		t.Fatalf("SweepUser 失败: %v", err)
	}
	if result.RedExpired != 20 {
		t.Errorf("应回收20个红筹码，实际 %d", result.RedExpired)
	}

	balance, _ := ledger.GetBalance("user1")
	if balance.RedChips != 30 {
		t.Errorf("未到期筹码不应被回收: %d", balance.RedChips)
	}
}

func TestSweepUserTwiceExpiresOnce(t *testing.T) {
	chips, ledger := newChipLogic(t)
	now := time.Now()

	grantExpired(t, ledger, "user1", model.ChipTypeRed, 20, now.Add(-time.Hour))

	if _, err := chips.SweepUser("user1", now); err != nil {
		t.Fatalf("第一次 SweepUser 失败: %v", err)
	}
	result, err := chips.SweepUser("user1", now.Add(time.Second))
	if err != nil {
		t.Fatalf("第二次 SweepUser 失败: %v", err)
	}
	if result.RedExpired != 0 {
		t.Errorf("第二次不应再回收，实际 %d", result.RedExpired)
	}

	var count int64
	chips.db.Model(&model.ChipTransaction{}).
		Where("user_id = ? AND type = ?", "user1", model.TxTypeExpire).
		Count(&count)
	if count != 1 {
		t.Errorf("应只有1条expire流水，实际 %d", count)
	}
}

func TestSweepClampsToBalance(t *testing.T) {
	chips, ledger := newChipLogic(t)
	now := time.Now()

	// 发了20个已到期，但已消耗15个，只能回收剩余5个
	grantExpired(t, ledger, "user1", model.ChipTypeRed, 20, now.Add(-time.Hour))
	if _, err := chips.Deduct("user1", 15, "先消耗"); err != nil {
		t.Fatalf("Deduct 失败: %v", err)
	}

	result, err := chips.SweepUser("user1", now)
	if err != nil {
		t.Fatalf("SweepUser 失败: %v", err)
	}
	if result.RedExpired != 5 {
		t.Errorf("应回收5个，实际 %d", result.RedExpired)
	}

	balance, _ := ledger.GetBalance("user1")
	if balance.RedChips != 0 {
		t.Errorf("回收后余额应为0: %d", balance.RedChips)
	}
}

func TestListDueUserIds(t *testing.T) {
	chips, ledger := newChipLogic(t)
	now := time.Now()

	grantExpired(t, ledger, "user1", model.ChipTypeRed, 10, now.Add(-time.Hour))
	if _, err := chips.Grant("user2", model.ChipTypeRed, 10, model.TxTypePurchase, GrantMeta{}); err != nil {
		t.Fatalf("发放失败: %v", err)
	}

	userIds, err := chips.ListDueUserIds(now)
	if err != nil {
		t.Fatalf("ListDueUserIds 失败: %v", err)
	}
	if len(userIds) != 1 || userIds[0] != "user1" {
		t.Errorf("应只包含 user1: %v", userIds)
	}
}

func TestListDueUserIdsSkipsSweptUsers(t *testing.T) {
	chips, ledger := newChipLogic(t)
	now := time.Now()

	grantExpired(t, ledger, "user1", model.ChipTypeRed, 10, now.Add(-time.Hour))
	if _, err := chips.SweepUser("user1", now); err != nil {
		t.Fatalf("SweepUser 失败: %v", err)
	}

	// 已回收的发放不再让用户入列
	userIds, err := chips.ListDueUserIds(now.Add(time.Second))
	if err != nil {
		t.Fatalf("ListDueUserIds 失败: %v", err)
	}
	if len(userIds) != 0 {
		t.Errorf("回收完成后不应再入列: %v", userIds)
	}

	// 新发放到期后重新入列
	grantExpired(t, ledger, "user1", model.ChipTypeRed, 5, now.Add(time.Minute))
	userIds, err = chips.ListDueUserIds(now.Add(2 * time.Minute))
	if err != nil {
		t.Fatalf("ListDueUserIds 失败: %v", err)
	}
	if len(userIds) != 1 || userIds[0] != "user1" {
		t.Errorf("新到期发放应重新入列: %v", userIds)
	}
}
