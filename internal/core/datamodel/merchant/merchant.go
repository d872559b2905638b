package merchant

import "time"

type Merchant struct {
	ID            string    `gorm:"column:id;primaryKey;type:varchar(64)"`
	Name          string    `gorm:"column:name;not null"`
	Email         string    `gorm:"column:email;uniqueIndex;not null"`
	APIKey        string    `gorm:"column:api_key;uniqueIndex;not null"`
	APISecret     string    `gorm:"column:api_secret;not null"`
	WebhookURL    *string   `gorm:"column:webhook_url"`
	WebhookSecret *string   `gorm:"column:webhook_secret"`
	IsActive      bool      `gorm:"column:is_active;default:true"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Merchant) TableName() string { return "merchants" }
