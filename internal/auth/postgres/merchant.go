package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/payment-gateway/internal/auth"
	merchantdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/merchant"
)

type MerchantRepository struct {
	db *gorm.DB
}

func NewMerchantRepository(db *gorm.DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

func (r *MerchantRepository) first(ctx context.Context, query string, arg interface{}) (*merchantdatamodel.Merchant, error) {
	var m merchantdatamodel.Merchant
	err := r.db.WithContext(ctx).Where(query, arg).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, auth.ErrMerchantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MerchantRepository) GetByID(ctx context.Context, id string) (*merchantdatamodel.Merchant, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *MerchantRepository) GetByAPIKey(ctx context.Context, apiKey string) (*merchantdatamodel.Merchant, error) {
	return r.first(ctx, "api_key = ?", apiKey)
}

func (r *MerchantRepository) GetByEmail(ctx context.Context, email string) (*merchantdatamodel.Merchant, error) {
	return r.first(ctx, "email = ?", email)
}

// UpsertByEmail inserts m, or refreshes only the webhook secret when the email is taken.
func (r *MerchantRepository) UpsertByEmail(ctx context.Context, m *merchantdatamodel.Merchant) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"webhook_secret", "updated_at"}),
	}).Create(m).Error
}

// UpdateWebhookConfig overwrites both settings; nil clears a value.
func (r *MerchantRepository) UpdateWebhookConfig(ctx context.Context, id string, url, secret *string) error {
	res := r.db.WithContext(ctx).Model(&merchantdatamodel.Merchant{}).Where("id = ?", id).Updates(map[string]interface{}{
		"webhook_url":    url,
		"webhook_secret": secret,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return auth.ErrMerchantNotFound
	}
	return nil
}
