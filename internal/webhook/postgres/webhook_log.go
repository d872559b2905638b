package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	webhookdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/webhook"
	"github.com/frahmantamala/payment-gateway/internal/webhook"
)

type WebhookLogRepository struct {
	db *gorm.DB
}

func NewWebhookLogRepository(db *gorm.DB) webhook.RepositoryAPI {
	return &WebhookLogRepository{db: db}
}

func (r *WebhookLogRepository) FindOrCreate(ctx context.Context, merchantID, event string, payload []byte) (*webhookdatamodel.WebhookLog, error) {
	hash := webhook.PayloadHash(payload)

	var entry webhookdatamodel.WebhookLog
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND event = ? AND payload_hash = ?", merchantID, event, hash).
		Order("created_at DESC").
		First(&entry).Error
	if err == nil {
		return &entry, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	entry = webhookdatamodel.WebhookLog{
		ID:          uuid.New().String(),
		MerchantID:  merchantID,
		Event:       event,
		PayloadHash: hash,
		Payload:     datatypes.JSON(payload),
		Status:      webhook.StatusPending,
		Attempts:    0,
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *WebhookLogRepository) RecordAttempt(ctx context.Context, id string, a webhook.Attempt) error {
	updates := map[string]interface{}{
		"status":          a.Status,
		"attempts":        a.Attempts,
		"last_attempt_at": a.At,
		"response_code":   a.ResponseCode,
		"response_body":   a.ResponseBody,
	}
	if a.Status == webhook.StatusPending {
		updates["next_retry_at"] = a.NextRetryAt
	}
	return r.db.WithContext(ctx).Model(&webhookdatamodel.WebhookLog{}).Where("id = ?", id).Updates(updates).Error
}

func (r *WebhookLogRepository) GetForMerchant(ctx context.Context, id, merchantID string) (*webhookdatamodel.WebhookLog, error) {
	var entry webhookdatamodel.WebhookLog
	err := r.db.WithContext(ctx).Where("id = ? AND merchant_id = ?", id, merchantID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, webhook.ErrLogNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *WebhookLogRepository) ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]*webhookdatamodel.WebhookLog, int64, error) {
	var total int64
	base := r.db.WithContext(ctx).Model(&webhookdatamodel.WebhookLog{}).Where("merchant_id = ?", merchantID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []*webhookdatamodel.WebhookLog
	err := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	return entries, total, err
}

func (r *WebhookLogRepository) ResetForRetry(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&webhookdatamodel.WebhookLog{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        webhook.StatusPending,
		"attempts":      0,
		"next_retry_at": at,
	}).Error
}
