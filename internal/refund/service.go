package refund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/frahmantamala/payment-gateway/internal"
	paymentdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
	refunddatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/refund"
	"github.com/frahmantamala/payment-gateway/internal/core/idgen"
	"github.com/frahmantamala/payment-gateway/internal/payment"
	"github.com/frahmantamala/payment-gateway/internal/queue"
)

type Service struct {
	repo   RepositoryAPI
	queue  queue.Enqueuer
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, q queue.Enqueuer, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		queue:  q,
		logger: logger,
	}
}

// CreateRefund validates against the payment and its active refunds, inserts a
// pending refund and queues it for processing.
func (s *Service) CreateRefund(ctx context.Context, merchantID, paymentID string, req *CreateRefundRequest) (*Refund, error) {
	id, err := idgen.Unique(ctx, idgen.PrefixRefund, s.repo.Exists)
	if err != nil {
		return nil, fmt.Errorf("generate refund id: %w", err)
	}

	dm, err := s.repo.CreateGuarded(ctx, paymentID, merchantID, func(p *paymentdatamodel.Payment, refunded int64) (*refunddatamodel.Refund, error) {
		if p.Status != payment.StatusSuccess {
			return nil, apperrors.NewBadRequestError("Payment not in refundable state")
		}
		if appErr := req.Validate(); appErr != nil {
			return nil, appErr
		}
		if refunded+req.Amount > p.Amount {
			return nil, apperrors.NewBadRequestError("Refund amount exceeds available amount")
		}
		return &refunddatamodel.Refund{
			ID:         id,
			PaymentID:  p.ID,
			MerchantID: merchantID,
			Amount:     req.Amount,
			Reason:     req.Reason,
			Status:     StatusPending,
		}, nil
	})
	if errors.Is(err, ErrPaymentNotFound) {
		return nil, apperrors.NewNotFoundError("Payment not found")
	}
	if err != nil {
		if _, ok := apperrors.IsAppError(err); ok {
			return nil, err
		}
		s.logger.Error("failed to create refund", "error", err, "payment_id", paymentID)
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	if _, err := s.queue.Enqueue(ctx, queue.Refund, queue.RefundJob{RefundID: dm.ID}); err != nil {
		s.logger.Error("failed to enqueue refund job", "error", err, "refund_id", dm.ID)
		return nil, fmt.Errorf("enqueue refund %s: %w", dm.ID, err)
	}

	s.logger.Info("refund created", "refund_id", dm.ID, "payment_id", paymentID, "amount", dm.Amount)
	return FromDataModel(dm), nil
}

func (s *Service) GetRefund(ctx context.Context, merchantID, id string) (*Refund, error) {
	dm, err := s.repo.GetByIDForMerchant(ctx, id, merchantID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.NewNotFoundError("Refund not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load refund: %w", err)
	}
	return FromDataModel(dm), nil
}
