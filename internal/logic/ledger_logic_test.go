package logic

import (
	"errors"
	"testing"

	"github.com/uniqn/chip-service/internal/cerr"
	"github.com/uniqn/chip-service/internal/model"
)

func TestApplyDeltaCreatesBalanceAndTransaction(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerLogic(db)

	balance, err := ledger.ApplyDelta("user1", ChipDelta{
		ChipType: model.ChipTypeRed,
		Amount:   100,
		TxType:   model.TxTypePurchase,
		Reason:   "充值",
	})
	if err != nil {
		t.Fatalf("ApplyDelta 失败: %v", err)
	}
	if balance.RedChips != 100 || balance.BlueChips != 0 || balance.TotalChips != 100 {
		t.Errorf("余额错误: red=%d blue=%d total=%d", balance.RedChips, balance.BlueChips, balance.TotalChips)
	}

	txs, total, err := ledger.GetTransactions("user1", "", 1, 10)
	if err != nil {
		t.Fatalf("GetTransactions 失败: %v", err)
	}
	if total != 1 || len(txs) != 1 {
		t.Fatalf("期望1条流水，实际 total=%d len=%d", total, len(txs))
	}
	if txs[0].Amount != 100 || txs[0].BalanceAfter != 100 {
		t.Errorf("流水错误: amount=%d balanceAfter=%d", txs[0].Amount, txs[0].BalanceAfter)
	}
}

func TestApplyDeltaRejectsNegativeBalance(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerLogic(db)

	if _, err := ledger.ApplyDelta("user1", ChipDelta{
		ChipType: model.ChipTypeRed,
		Amount:   10,
		TxType:   model.TxTypePurchase,
	}); err != nil {
		t.Fatalf("发放失败: %v", err)
	}

	_, err := ledger.ApplyDelta("user1", ChipDelta{
		ChipType: model.ChipTypeRed,
		Amount:   -11,
		TxType:   model.TxTypeUse,
	})
	if !errors.Is(err, cerr.ErrInsufficientBalance) {
		t.Fatalf("期望 ErrInsufficientBalance，实际 %v", err)
	}

	// 拒绝后余额不变，也不产生流水
	balance, err := ledger.GetBalance("user1")
	if err != nil {
		t.Fatalf("GetBalance 失败: %v", err)
	}
	if balance.RedChips != 10 {
		t.Errorf("余额被错误修改: %d", balance.RedChips)
	}
	_, total, _ := ledger.GetTransactions("user1", model.TxTypeUse, 1, 10)
	if total != 0 {
		t.Errorf("不应产生use流水，实际 %d 条", total)
	}
}

func TestApplyDeltasAllOrNothing(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerLogic(db)

	if _, err := ledger.ApplyDelta("user1", ChipDelta{
		ChipType: model.ChipTypeBlue,
		Amount:   5,
		TxType:   model.TxTypeSubscription,
	}); err != nil {
		t.Fatalf("发放失败: %v", err)
	}

	// 第二笔会导致红筹码为负，整体回滚
	_, err := ledger.ApplyDeltas("user1",
		ChipDelta{ChipType: model.ChipTypeBlue, Amount: -5, TxType: model.TxTypeUse},
		ChipDelta{ChipType: model.ChipTypeRed, Amount: -1, TxType: model.TxTypeUse},
	)
	if !errors.Is(err, cerr.ErrInsufficientBalance) {
		t.Fatalf("期望 ErrInsufficientBalance，实际 %v", err)
	}

	balance, _ := ledger.GetBalance("user1")
	if balance.BlueChips != 5 {
		t.Errorf("部分变动被提交: blue=%d", balance.BlueChips)
	}
}

func TestApplyDeltaValidation(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerLogic(db)

	_, err := ledger.ApplyDelta("user1", ChipDelta{
		ChipType: "green",
		Amount:   10,
		TxType:   model.TxTypePurchase,
	})
	if !errors.Is(err, cerr.ErrInvalidChipType) {
		t.Errorf("期望 ErrInvalidChipType，实际 %v", err)
	}

	_, err = ledger.ApplyDelta("user1", ChipDelta{
		ChipType: model.ChipTypeRed,
		Amount:   0,
		TxType:   model.TxTypePurchase,
	})
	if !errors.Is(err, cerr.ErrInvalidAmount) {
		t.Errorf("期望 ErrInvalidAmount，实际 %v", err)
	}
}

func TestBalanceMatchesTransactionLog(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerLogic(db)

	ops := []ChipDelta{
		{ChipType: model.ChipTypeRed, Amount: 200, TxType: model.TxTypePurchase},
		{ChipType: model.ChipTypeBlue, Amount: 30, TxType: model.TxTypeSubscription},
		{ChipType: model.ChipTypeBlue, Amount: -20, TxType: model.TxTypeUse},
		{ChipType: model.ChipTypeRed, Amount: -50, TxType: model.TxTypeUse},
		{ChipType: model.ChipTypeRed, Amount: 10, TxType: model.TxTypeBonus},
	}
	for _, op := range ops {
		if _, err := ledger.ApplyDelta("user1", op); err != nil {
			t.Fatalf("ApplyDelta 失败: %v", err)
		}
	}

	// 余额可由流水重建
	var red, blue int64
	var txs []model.ChipTransaction
	if err := db.Where("user_id = ?", "user1").Order("id").Find(&txs).Error; err != nil {
		t.Fatalf("查询流水失败: %v", err)
	}
	for _, tx := range txs {
		if tx.ChipType == model.ChipTypeRed {
			red += tx.Amount
		} else {
			blue += tx.Amount
		}
	}

	balance, _ := ledger.GetBalance("user1")
	if balance.RedChips != red || balance.BlueChips != blue {
		t.Errorf("余额与流水不一致: balance(red=%d blue=%d) log(red=%d blue=%d)",
			balance.RedChips, balance.BlueChips, red, blue)
	}
	if balance.TotalChips != red+blue {
		t.Errorf("total_chips 不一致: %d != %d", balance.TotalChips, red+blue)
	}

	// 每条流水的 BalanceAfter 单调反映当时余额
	var runRed, runBlue int64
	for _, tx := range txs {
		if tx.ChipType == model.ChipTypeRed {
			runRed += tx.Amount
			if tx.BalanceAfter != runRed {
				t.Errorf("流水 %d BalanceAfter 错误: %d != %d", tx.Id, tx.BalanceAfter, runRed)
			}
		} else {
			runBlue += tx.Amount
			if tx.BalanceAfter != runBlue {
				t.Errorf("流水 %d BalanceAfter 错误: %d != %d", tx.Id, tx.BalanceAfter, runBlue)
			}
		}
	}
}

func TestGetBalanceUnknownUser(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerLogic(db)

	balance, err := ledger.GetBalance("nobody")
	if err != nil {
		t.Fatalf("GetBalance 失败: %v", err)
	}
	if balance.TotalChips != 0 {
		t.Errorf("未知用户应返回零余额: %d", balance.TotalChips)
	}

	// 查询不落库
	var count int64
	db.Model(&model.ChipBalance{}).Count(&count)
	if count != 0 {
		t.Errorf("GetBalance 不应创建余额记录，实际 %d 条", count)
	}
}

func TestGetTransactionsFilterAndPaging(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerLogic(db)

	if _, err := ledger.ApplyDelta("user1", ChipDelta{
		ChipType: model.ChipTypeRed, Amount: 100, TxType: model.TxTypePurchase,
	}); err != nil {
		t.Fatalf("发放失败: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := ledger.ApplyDelta("user1", ChipDelta{
			ChipType: model.ChipTypeRed, Amount: -1, TxType: model.TxTypeUse,
		}); err != nil {
			t.Fatalf("扣减失败: %v", err)
		}
	}

	txs, total, err := ledger.GetTransactions("user1", model.TxTypeUse, 1, 3)
	if err != nil {
		t.Fatalf("GetTransactions 失败: %v", err)
	}
	if total != 5 {
		t.Errorf("期望5条use流水，实际 %d", total)
	}
	if len(txs) != 3 {
		t.Errorf("期望每页3条，实际 %d", len(txs))
	}
	for _, tx := range txs {
		if tx.Type != model.TxTypeUse {
			t.Errorf("类型过滤失效: %s", tx.Type)
		}
	}
}
