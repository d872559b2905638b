package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	paymentdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
	refunddatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/refund"
	refundpkg "github.com/frahmantamala/payment-gateway/internal/refund"
)

type RefundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) refundpkg.RepositoryAPI {
	return &RefundRepository{
		db: db,
	}
}

func (r *RefundRepository) CreateGuarded(ctx context.Context, paymentID, merchantID string, decide refundpkg.DecideFunc) (*refunddatamodel.Refund, error) {
	var created *refunddatamodel.Refund
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		// FOR UPDATE where the dialect supports row locks
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var p paymentdatamodel.Payment
		err := q.Where("id = ? AND merchant_id = ?", paymentID, merchantID).First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return refundpkg.ErrPaymentNotFound
		}
		if err != nil {
			return err
		}

		refunded, err := sumActive(tx, paymentID)
		if err != nil {
			return err
		}

		rf, err := decide(&p, refunded)
		if err != nil {
			return err
		}
		if err := tx.Create(rf).Error; err != nil {
			return err
		}
		created = rf
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func sumActive(db *gorm.DB, paymentID string) (int64, error) {
	var total int64
	err := db.Model(&refunddatamodel.Refund{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("payment_id = ? AND status IN ?", paymentID, []string{refundpkg.StatusPending, refundpkg.StatusProcessed}).
		Scan(&total).Error
	return total, err
}

func (r *RefundRepository) SumActive(ctx context.Context, paymentID string) (int64, error) {
	return sumActive(r.db.WithContext(ctx), paymentID)
}

func (r *RefundRepository) GetByID(ctx context.Context, id string) (*refunddatamodel.Refund, error) {
	var rf refunddatamodel.Refund
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, refundpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rf, nil
}

func (r *RefundRepository) GetByIDForMerchant(ctx context.Context, id, merchantID string) (*refunddatamodel.Refund, error) {
	var rf refunddatamodel.Refund
	err := r.db.WithContext(ctx).Where("id = ? AND merchant_id = ?", id, merchantID).First(&rf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, refundpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rf, nil
}

func (r *RefundRepository) GetPayment(ctx context.Context, id string) (*paymentdatamodel.Payment, error) {
	var p paymentdatamodel.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, refundpkg.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RefundRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&refunddatamodel.Refund{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *RefundRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	return r.finalize(ctx, id, map[string]interface{}{
		"status":       refundpkg.StatusProcessed,
		"processed_at": at,
	})
}

func (r *RefundRepository) MarkFailed(ctx context.Context, id string) error {
	return r.finalize(ctx, id, map[string]interface{}{"status": refundpkg.StatusFailed})
}

func (r *RefundRepository) finalize(ctx context.Context, id string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&refunddatamodel.Refund{}).
		Where("id = ? AND status = ?", id, refundpkg.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return refundpkg.ErrNotPending
	}
	return nil
}
