package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/uniqn/chip-service/internal/logger"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Task     TaskConfig     `mapstructure:"task"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// GatewayConfig 支付网关配置（토스페이먼츠）
type GatewayConfig struct {
	BaseURL        string `mapstructure:"base_url"`        // 网关API地址
	SecretKey      string `mapstructure:"secret_key"`      // 商户密钥
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // 请求超时（秒）
}

// Timeout 网关请求超时时间
func (g GatewayConfig) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// TaskConfig 定时任务配置
type TaskConfig struct {
	ExpirySweepCron       string `mapstructure:"expiry_sweep_cron"`       // 筹码过期清理
	SubscriptionGrantCron string `mapstructure:"subscription_grant_cron"` // 订阅月度发放
	JanitorIntervalSec    int    `mapstructure:"janitor_interval_sec"`    // 限流窗口清理间隔（秒）
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/chip-service")

	// 设置默认值
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "chipservice")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("gateway.base_url", "https://api.tosspayments.com")
	viper.SetDefault("gateway.secret_key", "")
	viper.SetDefault("gateway.timeout_seconds", 10)
	viper.SetDefault("task.expiry_sweep_cron", "0 4 * * *")
	viper.SetDefault("task.subscription_grant_cron", "0 0 1 * *")
	viper.SetDefault("task.janitor_interval_sec", 3600)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.file", "logs/app.log")

	// 自动读取环境变量
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return &config
}
