package order

import (
	"time"

	"gorm.io/datatypes"
)

type Order struct {
	ID         string         `gorm:"column:id;primaryKey;type:varchar(64)"`
	MerchantID string         `gorm:"column:merchant_id;not null;index"`
	Amount     int64          `gorm:"column:amount;not null"`
	Currency   string         `gorm:"column:currency;not null;default:INR"`
	Receipt    *string        `gorm:"column:receipt"`
	Notes      datatypes.JSON `gorm:"column:notes"`
	Status     string         `gorm:"column:status;not null;default:created"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }
