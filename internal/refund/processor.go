package refund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/frahmantamala/payment-gateway/internal/core/events"
	"github.com/frahmantamala/payment-gateway/internal/payment"
	"github.com/frahmantamala/payment-gateway/internal/queue"
)

// Processor is the refund queue handler.
type Processor struct {
	repo     RepositoryAPI
	queue    queue.Enqueuer
	minDelay time.Duration
	maxDelay time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewProcessor(repo RepositoryAPI, q queue.Enqueuer, minDelay, maxDelay time.Duration, logger *slog.Logger) *Processor {
	return &Processor{
		repo:     repo,
		queue:    q,
		minDelay: minDelay,
		maxDelay: maxDelay,
		now:      time.Now,
		logger:   logger,
	}
}

func (p *Processor) delay() time.Duration {
	if p.maxDelay <= p.minDelay {
		return p.minDelay
	}
	return p.minDelay + time.Duration(rand.Int63n(int64(p.maxDelay-p.minDelay)))
}

// Handle re-validates the refund against its payment and settles it. Business
// rule violations mark the refund failed and are not retried; any other error
// also marks it failed before being returned to the queue.
func (p *Processor) Handle(ctx context.Context, job *queue.Job) (err error) {
	var payload queue.RefundJob
	if err := job.Decode(&payload); err != nil {
		return queue.Permanent(fmt.Errorf("decode refund job %s: %w", job.ID, err))
	}
	if payload.RefundID == "" {
		return queue.Permanent(fmt.Errorf("refund job %s has no refundId", job.ID))
	}
	logger := p.logger.With("refund_id", payload.RefundID, "job_id", job.ID)

	dm, err := p.repo.GetByID(ctx, payload.RefundID)
	if err != nil {
		return fmt.Errorf("load refund %s: %w", payload.RefundID, err)
	}
	if dm.Status != StatusPending {
		logger.Info("refund already finalized", "status", dm.Status)
		return nil
	}

	defer func() {
		if err == nil {
			return
		}
		logger.Error("refund processing failed", "error", err)
		if markErr := p.repo.MarkFailed(context.WithoutCancel(ctx), dm.ID); markErr != nil && !errors.Is(markErr, ErrNotPending) {
			logger.Error("failed to mark refund failed", "error", markErr)
		}
	}()

	pay, err := p.repo.GetPayment(ctx, dm.PaymentID)
	if err != nil {
		return fmt.Errorf("load payment %s: %w", dm.PaymentID, err)
	}
	if pay.Status != payment.StatusSuccess {
		return queue.Permanent(fmt.Errorf("payment %s is %s: %w", pay.ID, pay.Status, ErrPaymentNotRefundable))
	}

	refunded, err := p.repo.SumActive(ctx, dm.PaymentID)
	if err != nil {
		return fmt.Errorf("sum refunds of %s: %w", dm.PaymentID, err)
	}
	if refunded > pay.Amount {
		return queue.Permanent(fmt.Errorf("refunds %d > payment %d: %w", refunded, pay.Amount, ErrExceedsPayment))
	}

	if err := payment.Sleep(ctx, p.delay()); err != nil {
		return err
	}

	now := p.now()
	if err := p.repo.MarkProcessed(ctx, dm.ID, now); err != nil {
		if errors.Is(err, ErrNotPending) {
			logger.Info("refund finalized concurrently")
			return nil
		}
		return fmt.Errorf("mark refund %s processed: %w", dm.ID, err)
	}

	dm.Status, dm.ProcessedAt = StatusProcessed, &now
	body, err := events.NewWebhookPayload(events.EventRefundProcessed, now, "refund", FromDataModel(dm).Webhook())
	if err != nil {
		return queue.Permanent(fmt.Errorf("build refund payload: %w", err))
	}
	if _, err := queue.EnqueueWithRetry(ctx, p.queue, queue.Webhook, queue.WebhookJob{
		MerchantID: dm.MerchantID,
		Event:      events.EventRefundProcessed,
		Payload:    body,
	}); err != nil {
		logger.Error("webhook lost, enqueue kept failing", "event", events.EventRefundProcessed, "error", err)
		return nil
	}

	logger.Info("refund processed", "amount", dm.Amount)
	return nil
}
