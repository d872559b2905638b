package payment

import (
	"context"
	"errors"
	"time"

	paymentdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
)

const (
	MethodUPI  = "upi"
	MethodCard = "card"

	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"

	DeclinedDescription = "Payment was declined by bank"
)

var (
	ErrNotFound = errors.New("payment not found")
	// ErrNotPending is returned when a terminal write loses to an earlier one.
	ErrNotPending = errors.New("payment is no longer pending")
)

type Payment struct {
	ID               string    `json:"id"`
	OrderID          string    `json:"order_id"`
	MerchantID       string    `json:"merchant_id"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	Method           string    `json:"method"`
	Status           string    `json:"status"`
	VPA              *string   `json:"vpa"`
	CardNetwork      *string   `json:"card_network"`
	CardLast4        *string   `json:"card_last4"`
	Captured         bool      `json:"captured"`
	ErrorCode        *string   `json:"error_code"`
	ErrorDescription *string   `json:"error_description"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CreatedPayment is the body returned by authenticated creation and cached for idempotent replays.
type CreatedPayment struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Method    string    `json:"method"`
	VPA       *string   `json:"vpa"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// PublicPayment omits merchant and error details for checkout pages.
type PublicPayment struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Method      string    `json:"method"`
	Status      string    `json:"status"`
	VPA         *string   `json:"vpa"`
	CardNetwork *string   `json:"card_network"`
	CardLast4   *string   `json:"card_last4"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p *Payment) Created() *CreatedPayment {
	return &CreatedPayment{
		ID:        p.ID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Method:    p.Method,
		VPA:       p.VPA,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}
}

func (p *Payment) Public() *PublicPayment {
	return &PublicPayment{
		ID:          p.ID,
		OrderID:     p.OrderID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Method:      p.Method,
		Status:      p.Status,
		VPA:         p.VPA,
		CardNetwork: p.CardNetwork,
		CardLast4:   p.CardLast4,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type RepositoryAPI interface {
	Create(ctx context.Context, p *paymentdatamodel.Payment) error
	GetByID(ctx context.Context, id string) (*paymentdatamodel.Payment, error)
	GetByIDForMerchant(ctx context.Context, id, merchantID string) (*paymentdatamodel.Payment, error)
	ListByMerchant(ctx context.Context, merchantID string) ([]*paymentdatamodel.Payment, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Finalize moves a pending payment to status in one statement, or returns ErrNotPending.
	Finalize(ctx context.Context, id, status string, errorCode, errorDescription *string) error
	// MarkCaptured sets captured only for successful payments.
	MarkCaptured(ctx context.Context, id string) error
}

func FromDataModel(dm *paymentdatamodel.Payment) *Payment {
	return &Payment{
		ID:               dm.ID,
		OrderID:          dm.OrderID,
		MerchantID:       dm.MerchantID,
		Amount:           dm.Amount,
		Currency:         dm.Currency,
		Method:           dm.Method,
		Status:           dm.Status,
		VPA:              dm.VPA,
		CardNetwork:      dm.CardNetwork,
		CardLast4:        dm.CardLast4,
		Captured:         dm.Captured,
		ErrorCode:        dm.ErrorCode,
		ErrorDescription: dm.ErrorDescription,
		CreatedAt:        dm.CreatedAt,
		UpdatedAt:        dm.UpdatedAt,
	}
}
