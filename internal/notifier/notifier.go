package notifier

import (
	"github.com/uniqn/chip-service/internal/logger"
)

// 通知事件类型
const (
	EventChipGranted     = "chip.granted"
	EventChipExpired     = "chip.expired"
	EventRefundCompleted = "refund.completed"
)

// Notifier 通知投递接口（推送/邮件等由外部系统实现）
// 调用方以 fire-and-forget 方式触发，投递失败不影响账务结果
type Notifier interface {
	Notify(userId, event string, payload map[string]interface{})
}

// LogNotifier 默认实现，只记录日志
type LogNotifier struct{}

// NewLogNotifier 创建日志通知器
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify 记录通知事件
func (n *LogNotifier) Notify(userId, event string, payload map[string]interface{}) {
	logger.Info("Notify user %s event %s payload %v", userId, event, payload)
}
