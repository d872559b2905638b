package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	orderdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/order"
	orderpkg "github.com/frahmantamala/payment-gateway/internal/order"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) orderpkg.RepositoryAPI {
	return &OrderRepository{
		db: db,
	}
}

func (r *OrderRepository) Create(ctx context.Context, o *orderdatamodel.Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*orderdatamodel.Order, error) {
	var o orderdatamodel.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, orderpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) GetByIDForMerchant(ctx context.Context, id, merchantID string) (*orderdatamodel.Order, error) {
	var o orderdatamodel.Order
	err := r.db.WithContext(ctx).Where("id = ? AND merchant_id = ?", id, merchantID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, orderpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&orderdatamodel.Order{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}
