package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	paymentdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/payment-gateway/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *paymentdatamodel.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*paymentdatamodel.Payment, error) {
	var p paymentdatamodel.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, paymentpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByIDForMerchant(ctx context.Context, id, merchantID string) (*paymentdatamodel.Payment, error) {
	var p paymentdatamodel.Payment
	err := r.db.WithContext(ctx).Where("id = ? AND merchant_id = ?", id, merchantID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, paymentpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListByMerchant(ctx context.Context, merchantID string) ([]*paymentdatamodel.Payment, error) {
	var payments []*paymentdatamodel.Payment
	err := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID).Order("created_at DESC").Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&paymentdatamodel.Payment{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *PaymentRepository) Finalize(ctx context.Context, id, status string, errorCode, errorDescription *string) error {
	res := r.db.WithContext(ctx).Model(&paymentdatamodel.Payment{}).
		Where("id = ? AND status = ?", id, paymentpkg.StatusPending).
		Updates(map[string]interface{}{
			"status":            status,
			"error_code":        errorCode,
			"error_description": errorDescription,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return paymentpkg.ErrNotPending
	}
	return nil
}

func (r *PaymentRepository) MarkCaptured(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&paymentdatamodel.Payment{}).
		Where("id = ? AND status = ?", id, paymentpkg.StatusSuccess).
		Update("captured", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return paymentpkg.ErrNotFound
	}
	return nil
}
