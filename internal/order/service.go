package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/datatypes"

	apperrors "github.com/frahmantamala/payment-gateway/internal"
	orderdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/order"
	"github.com/frahmantamala/payment-gateway/internal/core/idgen"
)

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) CreateOrder(ctx context.Context, merchantID string, req *CreateOrderRequest) (*Order, error) {
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}
	req.Normalize()

	id, err := idgen.Unique(ctx, idgen.PrefixOrder, s.repo.Exists)
	if err != nil {
		return nil, fmt.Errorf("generate order id: %w", err)
	}

	dm := &orderdatamodel.Order{
		ID:         id,
		MerchantID: merchantID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Receipt:    req.Receipt,
		Notes:      datatypes.JSON(req.Notes),
		Status:     StatusCreated,
	}
	if err := s.repo.Create(ctx, dm); err != nil {
		s.logger.Error("failed to create order", "error", err, "merchant_id", merchantID)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info("order created", "order_id", dm.ID, "merchant_id", merchantID, "amount", dm.Amount)
	return FromDataModel(dm), nil
}

// GetOrder returns the order only if it belongs to merchantID.
func (s *Service) GetOrder(ctx context.Context, merchantID, id string) (*Order, error) {
	dm, err := s.repo.GetByIDForMerchant(ctx, id, merchantID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return FromDataModel(dm), nil
}

// GetOrderByID looks an order up without a merchant scope, for public checkout flows.
func (s *Service) GetOrderByID(ctx context.Context, id string) (*Order, error) {
	dm, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	return FromDataModel(dm), nil
}

func (s *Service) mapError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperrors.NewNotFoundError("Order not found")
	}
	return fmt.Errorf("failed to load order: %w", err)
}
