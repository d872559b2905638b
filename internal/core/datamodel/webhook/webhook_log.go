package webhook

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookLog holds one logical delivery. PayloadHash is the sha256 of Payload and
// together with merchant and event forms the dedup key.
type WebhookLog struct {
	ID            string         `gorm:"column:id;primaryKey;type:varchar(64)"`
	MerchantID    string         `gorm:"column:merchant_id;not null;index:idx_webhook_logs_dedup,priority:1"`
	Event         string         `gorm:"column:event;not null;index:idx_webhook_logs_dedup,priority:2"`
	PayloadHash   string         `gorm:"column:payload_hash;not null;index:idx_webhook_logs_dedup,priority:3"`
	Payload       datatypes.JSON `gorm:"column:payload;type:json;not null"`
	Status        string         `gorm:"column:status;not null;default:pending"`
	Attempts      int            `gorm:"column:attempts;not null;default:0"`
	LastAttemptAt *time.Time     `gorm:"column:last_attempt_at"`
	NextRetryAt   *time.Time     `gorm:"column:next_retry_at"`
	ResponseCode  *int           `gorm:"column:response_code"`
	ResponseBody  *string        `gorm:"column:response_body"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime;index"`
}

func (WebhookLog) TableName() string { return "webhook_logs" }
