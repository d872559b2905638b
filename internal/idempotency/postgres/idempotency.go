package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	idempotencydatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/idempotency"
	"github.com/frahmantamala/payment-gateway/internal/idempotency"
)

type IdempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) idempotency.RepositoryAPI {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) FindActive(ctx context.Context, key, merchantID string, now time.Time) (*idempotencydatamodel.IdempotencyKey, error) {
	var rec idempotencydatamodel.IdempotencyKey
	err := r.db.WithContext(ctx).
		Where("key = ? AND merchant_id = ? AND expires_at > ?", key, merchantID, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, idempotency.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *IdempotencyRepository) Upsert(ctx context.Context, rec *idempotencydatamodel.IdempotencyKey) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}, {Name: "merchant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"response", "expires_at"}),
	}).Create(rec).Error
}

func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&idempotencydatamodel.IdempotencyKey{})
	return res.RowsAffected, res.Error
}
