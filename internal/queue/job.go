package queue

import (
	"encoding/json"
	"time"
)

// Queue names. Each is claimed and retried independently.
const (
	Payment = "payment"
	Refund  = "refund"
	Webhook = "webhook"
)

// Names lists every queue the gateway runs.
var Names = []string{Payment, Webhook, Refund}

type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateDead      State = "dead"
)

// Job is the envelope stored by a Backend. Payload carries identifiers only;
// handlers re-fetch the records they act on.
type Job struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Payload      json.RawMessage `json:"payload"`
	State        State           `json:"state"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	LastError    string          `json:"last_error,omitempty"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

// PaymentJob is the payload of the payment queue.
type PaymentJob struct {
	PaymentID string `json:"paymentId"`
}

// RefundJob is the payload of the refund queue.
type RefundJob struct {
	RefundID string `json:"refundId"`
}

// WebhookJob is the payload of the webhook queue. Payload holds the exact
// serialized envelope that will be signed and delivered.
type WebhookJob struct {
	MerchantID string          `json:"merchantId"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
}
