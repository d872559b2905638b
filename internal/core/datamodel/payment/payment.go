package payment

import "time"

type Payment struct {
	ID               string    `gorm:"column:id;primaryKey;type:varchar(64)"`
	OrderID          string    `gorm:"column:order_id;not null;index"`
	MerchantID       string    `gorm:"column:merchant_id;not null;index"`
	Amount           int64     `gorm:"column:amount;not null"`
	Currency         string    `gorm:"column:currency;not null"`
	Method           string    `gorm:"column:method;not null"`
	Status           string    `gorm:"column:status;not null;default:pending"`
	VPA              *string   `gorm:"column:vpa"`
	CardNetwork      *string   `gorm:"column:card_network"`
	CardLast4        *string   `gorm:"column:card_last4"`
	Captured         bool      `gorm:"column:captured;not null;default:false"`
	ErrorCode        *string   `gorm:"column:error_code"`
	ErrorDescription *string   `gorm:"column:error_description"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }
