package events

import (
	"encoding/json"
	"time"
)

const (
	EventPaymentSuccess  = "payment.success"
	EventPaymentFailed   = "payment.failed"
	EventRefundProcessed = "refund.processed"
)

// WebhookEnvelope is the body POSTed to merchant webhook URLs.
type WebhookEnvelope struct {
	Event     string                 `json:"event"`
	Timestamp int64                  `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewWebhookPayload serializes the envelope once. The returned bytes are what gets
// signed and sent, so they must not be re-encoded afterwards.
func NewWebhookPayload(event string, at time.Time, key string, record interface{}) (json.RawMessage, error) {
	envelope := WebhookEnvelope{
		Event:     event,
		Timestamp: at.Unix(),
		Data:      map[string]interface{}{key: record},
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
