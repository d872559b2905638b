package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/frahmantamala/payment-gateway/internal"
	paymentdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-gateway/internal/core/common/validation"
	"github.com/frahmantamala/payment-gateway/internal/core/idgen"
	"github.com/frahmantamala/payment-gateway/internal/order"
	"github.com/frahmantamala/payment-gateway/internal/queue"
)

// OrderReader is the slice of the order service payments depend on.
type OrderReader interface {
	GetOrder(ctx context.Context, merchantID, id string) (*order.Order, error)
	GetOrderByID(ctx context.Context, id string) (*order.Order, error)
}

// IdempotencyStore caches creation responses by client key.
type IdempotencyStore interface {
	Lookup(ctx context.Context, merchantID, key string) ([]byte, bool, error)
	Store(ctx context.Context, merchantID, key string, response []byte) error
}

type Service struct {
	repo        RepositoryAPI
	orders      OrderReader
	idempotency IdempotencyStore
	queue       queue.Enqueuer
	now         func() time.Time
	logger      *slog.Logger
}

func NewService(repo RepositoryAPI, orders OrderReader, idempotency IdempotencyStore, q queue.Enqueuer, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		orders:      orders,
		idempotency: idempotency,
		queue:       q,
		now:         time.Now,
		logger:      logger,
	}
}

// CreatePayment returns the response body to send with 201. A repeated
// idempotency key returns the cached body unchanged.
func (s *Service) CreatePayment(ctx context.Context, merchantID, idempotencyKey string, req *CreatePaymentRequest) ([]byte, error) {
	cached, hit, err := s.idempotency.Lookup(ctx, merchantID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if hit {
		s.logger.Info("payment creation replayed", "merchant_id", merchantID, "idempotency_key", idempotencyKey)
		return cached, nil
	}

	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}
	o, err := s.orders.GetOrder(ctx, merchantID, req.OrderID)
	if err != nil {
		return nil, err
	}

	p, err := s.create(ctx, o, req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(p.Created())
	if err != nil {
		return nil, fmt.Errorf("marshal payment response: %w", err)
	}
	if err := s.idempotency.Store(ctx, merchantID, idempotencyKey, body); err != nil {
		// payment is already queued, so report success
		s.logger.Error("failed to store idempotency key", "error", err, "payment_id", p.ID)
	}
	return body, nil
}

// CreatePublicPayment is the checkout variant: no merchant scope and no idempotency.
func (s *Service) CreatePublicPayment(ctx context.Context, req *CreatePaymentRequest) (*Payment, error) {
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}
	o, err := s.orders.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, o, req)
}

func (s *Service) create(ctx context.Context, o *order.Order, req *CreatePaymentRequest) (*Payment, error) {
	if appErr := req.ValidateMethod(s.now()); appErr != nil {
		return nil, appErr
	}

	id, err := idgen.Unique(ctx, idgen.PrefixPayment, s.repo.Exists)
	if err != nil {
		return nil, fmt.Errorf("generate payment id: %w", err)
	}

	dm := &paymentdatamodel.Payment{
		ID:         id,
		OrderID:    o.ID,
		MerchantID: o.MerchantID,
		Amount:     o.Amount,
		Currency:   o.Currency,
		Method:     req.Method,
		Status:     StatusPending,
	}
	switch req.Method {
	case MethodUPI:
		dm.VPA = req.VPA
	case MethodCard:
		network := validation.DetectNetwork(req.Card.Number)
		last4 := validation.LastFour(req.Card.Number)
		dm.CardNetwork = &network
		dm.CardLast4 = &last4
	}

	if err := s.repo.Create(ctx, dm); err != nil {
		s.logger.Error("failed to create payment", "error", err, "order_id", o.ID)
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	if _, err := s.queue.Enqueue(ctx, queue.Payment, queue.PaymentJob{PaymentID: dm.ID}); err != nil {
		s.logger.Error("failed to enqueue payment job", "error", err, "payment_id", dm.ID)
		return nil, fmt.Errorf("enqueue payment %s: %w", dm.ID, err)
	}

	s.logger.Info("payment created", "payment_id", dm.ID, "order_id", o.ID, "method", dm.Method, "amount", dm.Amount)
	return FromDataModel(dm), nil
}

func (s *Service) GetPayment(ctx context.Context, merchantID, id string) (*Payment, error) {
	dm, err := s.repo.GetByIDForMerchant(ctx, id, merchantID)
	if err != nil {
		return nil, mapError(err)
	}
	return FromDataModel(dm), nil
}

func (s *Service) GetPublicPayment(ctx context.Context, id string) (*PublicPayment, error) {
	dm, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return FromDataModel(dm).Public(), nil
}

// ListPayments returns the merchant's payments, newest first.
func (s *Service) ListPayments(ctx context.Context, merchantID string) ([]*Payment, error) {
	dms, err := s.repo.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	out := make([]*Payment, 0, len(dms))
	for _, dm := range dms {
		out = append(out, FromDataModel(dm))
	}
	return out, nil
}

func (s *Service) CapturePayment(ctx context.Context, merchantID, id string) (*Payment, error) {
	dm, err := s.repo.GetByIDForMerchant(ctx, id, merchantID)
	if err != nil {
		return nil, mapError(err)
	}
	if dm.Status != StatusSuccess {
		return nil, apperrors.NewBadRequestError("Payment not in capturable state")
	}

	if err := s.repo.MarkCaptured(ctx, id); err != nil {
		return nil, fmt.Errorf("capture payment %s: %w", id, err)
	}
	s.logger.Info("payment captured", "payment_id", id, "merchant_id", merchantID)

	dm, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return FromDataModel(dm), nil
}

func mapError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperrors.NewNotFoundError("Payment not found")
	}
	return fmt.Errorf("failed to load payment: %w", err)
}
