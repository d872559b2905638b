package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/queue"
)

type DelivererConfig struct {
	Timeout           time.Duration
	MaxAttempts       int
	ResponseBodyLimit int
	Schedule          Schedule
}

func NewDelivererConfig(cfg internal.WebhookConfig) DelivererConfig {
	return DelivererConfig{
		Timeout:           cfg.Timeout,
		MaxAttempts:       cfg.MaxAttempts,
		ResponseBodyLimit: cfg.ResponseBodyLimit,
		Schedule:          ScheduleFor(cfg.TestIntervals),
	}
}

func (c *DelivererConfig) SetDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.ResponseBodyLimit <= 0 {
		c.ResponseBodyLimit = DefaultResponseBodyLimit
	}
	if len(c.Schedule) == 0 {
		c.Schedule = ProductionSchedule
	}
}

// Deliverer is the webhook queue handler. Failed deliveries are rescheduled on
// its own table rather than through the queue's generic retry.
type Deliverer struct {
	repo      RepositoryAPI
	merchants MerchantStore
	queue     queue.Enqueuer
	client    *http.Client
	cfg       DelivererConfig
	now       func() time.Time
	logger    *slog.Logger
}

func NewDeliverer(repo RepositoryAPI, merchants MerchantStore, q queue.Enqueuer, cfg DelivererConfig, logger *slog.Logger) *Deliverer {
	cfg.SetDefaults()
	return &Deliverer{
		repo:      repo,
		merchants: merchants,
		queue:     q,
		client:    &http.Client{Timeout: cfg.Timeout},
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the time source, for tests.
func (d *Deliverer) WithClock(now func() time.Time) *Deliverer {
	d.now = now
	return d
}

func (d *Deliverer) Handle(ctx context.Context, job *queue.Job) error {
	var wj queue.WebhookJob
	if err := job.Decode(&wj); err != nil {
		return queue.Permanent(fmt.Errorf("decode webhook job %s: %w", job.ID, err))
	}
	if wj.MerchantID == "" || len(wj.Payload) == 0 {
		return queue.Permanent(fmt.Errorf("webhook job %s is missing merchantId or payload", job.ID))
	}
	logger := d.logger.With("merchant_id", wj.MerchantID, "event", wj.Event, "job_id", job.ID)

	m, err := d.merchants.GetByID(ctx, wj.MerchantID)
	if err != nil {
		return fmt.Errorf("load merchant %s: %w", wj.MerchantID, err)
	}
	if m.WebhookURL == nil || *m.WebhookURL == "" {
		logger.Debug("no webhook url configured, skipping")
		return nil
	}
	secret := ""
	if m.WebhookSecret != nil {
		secret = *m.WebhookSecret
	}

	payload := []byte(wj.Payload)
	entry, err := d.repo.FindOrCreate(ctx, wj.MerchantID, wj.Event, payload)
	if err != nil {
		return fmt.Errorf("find webhook log: %w", err)
	}
	// a redelivered job must not add attempts to a finished log; manual retry resets it to pending first
	if entry.Status != StatusPending {
		logger.Info("webhook log already finished", "webhook_log_id", entry.ID, "status", entry.Status, "attempts", entry.Attempts)
		return nil
	}

	at := d.now()
	code, body, ok := d.post(ctx, *m.WebhookURL, payload, Sign(secret, payload))
	attempt := Attempt{
		Attempts:     entry.Attempts + 1,
		At:           at,
		ResponseCode: code,
		ResponseBody: &body,
	}
	logger = logger.With("webhook_log_id", entry.ID, "attempt", attempt.Attempts)

	switch {
	case ok:
		attempt.Status = StatusSuccess
	case attempt.Attempts < d.cfg.MaxAttempts:
		attempt.Status = StatusPending
		next := at.Add(d.cfg.Schedule.Delay(attempt.Attempts))
		attempt.NextRetryAt = &next
	default:
		attempt.Status = StatusFailed
	}

	if err := d.repo.RecordAttempt(ctx, entry.ID, attempt); err != nil {
		return fmt.Errorf("record webhook attempt: %w", err)
	}

	switch attempt.Status {
	case StatusSuccess:
		logger.Info("webhook delivered", "response_code", *code)
	case StatusFailed:
		logger.Warn("webhook delivery failed permanently")
	case StatusPending:
		delay := attempt.NextRetryAt.Sub(d.now())
		if delay < 0 {
			delay = 0
		}
		// the attempt is already recorded, so a queue-level retry would count it twice
		if _, err := queue.EnqueueWithRetry(ctx, d.queue, queue.Webhook, wj, queue.WithDelay(delay)); err != nil {
			logger.Error("webhook retry not scheduled, left pending for manual retry", "next_retry_at", attempt.NextRetryAt, "error", err)
			return nil
		}
		logger.Info("webhook delivery failed, retry scheduled", "next_retry_at", attempt.NextRetryAt)
	}
	return nil
}

// post sends one delivery. code is nil when no response arrived, in which case
// body holds the transport error.
func (d *Deliverer) post(ctx context.Context, url string, payload []byte, signature string) (*int, string, bool) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, d.truncate(err.Error()), false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, d.truncate(err.Error()), false
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, int64(d.cfg.ResponseBodyLimit)*4))
	code := resp.StatusCode
	return &code, d.truncate(string(raw)), code >= 200 && code < 300
}

// truncate cuts s to the configured number of characters.
func (d *Deliverer) truncate(s string) string {
	r := []rune(s)
	if len(r) <= d.cfg.ResponseBodyLimit {
		return s
	}
	return string(r[:d.cfg.ResponseBodyLimit])
}
