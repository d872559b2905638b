package idempotency

import "time"

// IdempotencyKey keeps the response text verbatim so replays are byte-identical.
type IdempotencyKey struct {
	Key        string    `gorm:"column:key;primaryKey;type:varchar(255)"`
	MerchantID string    `gorm:"column:merchant_id;primaryKey;type:varchar(64)"`
	Response   string    `gorm:"column:response;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"column:expires_at;not null;index"`
}

func (IdempotencyKey) TableName() string { return "idempotency_keys" }
