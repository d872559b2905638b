package order

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	orderdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/order"
)

const (
	StatusCreated = "created"

	DefaultCurrency = "INR"
)

var ErrNotFound = errors.New("order not found")

type Order struct {
	ID         string          `json:"id"`
	MerchantID string          `json:"merchant_id"`
	Amount     int64           `json:"amount"`
	Currency   string          `json:"currency"`
	Receipt    *string         `json:"receipt"`
	Notes      json.RawMessage `json:"notes"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// PublicOrder is what the hosted checkout may see without credentials.
type PublicOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

func (o *Order) Public() *PublicOrder {
	return &PublicOrder{
		ID:       o.ID,
		Amount:   o.Amount,
		Currency: o.Currency,
		Status:   o.Status,
	}
}

type RepositoryAPI interface {
	Create(ctx context.Context, o *orderdatamodel.Order) error
	GetByID(ctx context.Context, id string) (*orderdatamodel.Order, error)
	GetByIDForMerchant(ctx context.Context, id, merchantID string) (*orderdatamodel.Order, error)
	Exists(ctx context.Context, id string) (bool, error)
}

func FromDataModel(dm *orderdatamodel.Order) *Order {
	notes := json.RawMessage(dm.Notes)
	if len(notes) == 0 {
		notes = json.RawMessage(`{}`)
	}
	return &Order{
		ID:         dm.ID,
		MerchantID: dm.MerchantID,
		Amount:     dm.Amount,
		Currency:   dm.Currency,
		Receipt:    dm.Receipt,
		Notes:      notes,
		Status:     dm.Status,
		CreatedAt:  dm.CreatedAt,
		UpdatedAt:  dm.UpdatedAt,
	}
}
