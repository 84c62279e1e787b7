package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/uniqn/chip-service/internal/config"
	"github.com/uniqn/chip-service/internal/model"
)

func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Migrate 自动迁移所有表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.ChipBalance{},
		&model.ChipTransaction{},
		&model.PaymentRecord{},
		&model.RefundRequest{},
		&model.RefundBlacklist{},
		&model.RateLimitWindow{},
		&model.Subscription{},
	)
}
