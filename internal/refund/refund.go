package refund

import (
	"context"
	"errors"
	"time"

	paymentdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
	refunddatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/refund"
)

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

var (
	ErrNotFound        = errors.New("refund not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrNotPending      = errors.New("refund is no longer pending")

	ErrPaymentNotRefundable = errors.New("payment is not in a refundable state")
	ErrExceedsPayment       = errors.New("active refunds exceed payment amount")
)

type Refund struct {
	ID          string     `json:"id"`
	PaymentID   string     `json:"payment_id"`
	MerchantID  string     `json:"merchant_id"`
	Amount      int64      `json:"amount"`
	Reason      *string    `json:"reason"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// CreatedRefund is the creation response.
type CreatedRefund struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"payment_id"`
	Amount    int64     `json:"amount"`
	Reason    *string   `json:"reason"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// WebhookRefund is the data.refund record of refund.processed.
type WebhookRefund struct {
	ID          string     `json:"id"`
	PaymentID   string     `json:"payment_id"`
	Amount      int64      `json:"amount"`
	Reason      *string    `json:"reason"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

func (r *Refund) Created() *CreatedRefund {
	return &CreatedRefund{
		ID:        r.ID,
		PaymentID: r.PaymentID,
		Amount:    r.Amount,
		Reason:    r.Reason,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
}

func (r *Refund) Webhook() *WebhookRefund {
	return &WebhookRefund{
		ID:          r.ID,
		PaymentID:   r.PaymentID,
		Amount:      r.Amount,
		Reason:      r.Reason,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		ProcessedAt: r.ProcessedAt,
	}
}

// DecideFunc inspects the locked payment and the sum of its pending and
// processed refunds, and returns the refund to insert or an error to abort.
type DecideFunc func(p *paymentdatamodel.Payment, refunded int64) (*refunddatamodel.Refund, error)

type RepositoryAPI interface {
	// CreateGuarded runs decide and the insert in one transaction holding the payment row.
	CreateGuarded(ctx context.Context, paymentID, merchantID string, decide DecideFunc) (*refunddatamodel.Refund, error)
	GetByID(ctx context.Context, id string) (*refunddatamodel.Refund, error)
	GetByIDForMerchant(ctx context.Context, id, merchantID string) (*refunddatamodel.Refund, error)
	GetPayment(ctx context.Context, id string) (*paymentdatamodel.Payment, error)
	SumActive(ctx context.Context, paymentID string) (int64, error)
	Exists(ctx context.Context, id string) (bool, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string) error
}

func FromDataModel(dm *refunddatamodel.Refund) *Refund {
	return &Refund{
		ID:          dm.ID,
		PaymentID:   dm.PaymentID,
		MerchantID:  dm.MerchantID,
		Amount:      dm.Amount,
		Reason:      dm.Reason,
		Status:      dm.Status,
		CreatedAt:   dm.CreatedAt,
		ProcessedAt: dm.ProcessedAt,
	}
}
