package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	merchantdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/merchant"
	webhookdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/webhook"
)

const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"

	DefaultMaxAttempts       = 5
	DefaultTimeout           = 5 * time.Second
	DefaultResponseBodyLimit = 1000
)

var ErrLogNotFound = errors.New("webhook log not found")

// Log is the API view of a webhook log row.
type Log struct {
	ID            string          `json:"id"`
	MerchantID    string          `json:"-"`
	Event         string          `json:"event"`
	Payload       json.RawMessage `json:"-"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"created_at"`
	LastAttemptAt *time.Time      `json:"last_attempt_at"`
	NextRetryAt   *time.Time      `json:"-"`
	ResponseCode  *int            `json:"response_code"`
}

type LogPage struct {
	Data   []*Log `json:"data"`
	Total  int64  `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// Attempt is the outcome of one delivery, written onto the log row.
type Attempt struct {
	Status       string
	Attempts     int
	At           time.Time
	NextRetryAt  *time.Time
	ResponseCode *int
	ResponseBody *string
}

type RepositoryAPI interface {
	// FindOrCreate returns the newest log for (merchant, event, payload), creating a pending one if none exists.
	FindOrCreate(ctx context.Context, merchantID, event string, payload []byte) (*webhookdatamodel.WebhookLog, error)
	RecordAttempt(ctx context.Context, id string, a Attempt) error
	GetForMerchant(ctx context.Context, id, merchantID string) (*webhookdatamodel.WebhookLog, error)
	ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]*webhookdatamodel.WebhookLog, int64, error)
	ResetForRetry(ctx context.Context, id string, at time.Time) error
}

// MerchantStore reads and updates merchant webhook settings.
type MerchantStore interface {
	GetByID(ctx context.Context, id string) (*merchantdatamodel.Merchant, error)
	UpdateWebhookConfig(ctx context.Context, id string, url, secret *string) error
}

func FromDataModel(dm *webhookdatamodel.WebhookLog) *Log {
	return &Log{
		ID:            dm.ID,
		MerchantID:    dm.MerchantID,
		Event:         dm.Event,
		Payload:       json.RawMessage(dm.Payload),
		Status:        dm.Status,
		Attempts:      dm.Attempts,
		CreatedAt:     dm.CreatedAt,
		LastAttemptAt: dm.LastAttemptAt,
		NextRetryAt:   dm.NextRetryAt,
		ResponseCode:  dm.ResponseCode,
	}
}
