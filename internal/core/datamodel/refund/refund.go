package refund

import "time"

type Refund struct {
	ID          string     `gorm:"column:id;primaryKey;type:varchar(64)"`
	PaymentID   string     `gorm:"column:payment_id;not null;index"`
	MerchantID  string     `gorm:"column:merchant_id;not null;index"`
	Amount      int64      `gorm:"column:amount;not null"`
	Reason      *string    `gorm:"column:reason"`
	Status      string     `gorm:"column:status;not null;default:pending"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	ProcessedAt *time.Time `gorm:"column:processed_at"`
}

func (Refund) TableName() string { return "refunds" }
