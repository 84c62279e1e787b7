package logic

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/uniqn/chip-service/internal/model"
)

var testDBSeq atomic.Int64

// setupTestDB 创建内存数据库并迁移全部表
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:logic_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	err = db.AutoMigrate(
		&model.ChipBalance{},
		&model.ChipTransaction{},
		&model.PaymentRecord{},
		&model.RefundRequest{},
		&model.RefundBlacklist{},
		&model.RateLimitWindow{},
		&model.Subscription{},
	)
	if err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// noopNotifier 测试用通知器
type noopNotifier struct{}

func (noopNotifier) Notify(userId, event string, payload map[string]interface{}) {}
