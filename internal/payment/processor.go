package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/core/events"
	"github.com/frahmantamala/payment-gateway/internal/queue"
)

// Simulator decides how long a payment takes to settle and whether it succeeds.
type Simulator interface {
	Outcome(method string) (delay time.Duration, success bool)
}

// RandomSimulator draws outcomes from the processing config. In test mode the
// delay and result are fixed.
type RandomSimulator struct {
	cfg internal.ProcessingConfig

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulator(cfg internal.ProcessingConfig) *RandomSimulator {
	return &RandomSimulator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *RandomSimulator) Outcome(method string) (time.Duration, bool) {
	if s.cfg.TestMode {
		return s.cfg.TestProcessingDelay, s.cfg.TestPaymentSuccess
	}

	rate := s.cfg.CardSuccessRate
	if method == MethodUPI {
		rate = s.cfg.UPISuccessRate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return randomDelay(s.rng, s.cfg.MinDelay, s.cfg.MaxDelay), s.rng.Float64() < rate
}

func randomDelay(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Processor is the payment queue handler.
type Processor struct {
	repo      RepositoryAPI
	queue     queue.Enqueuer
	simulator Simulator
	now       func() time.Time
	logger    *slog.Logger
}

func NewProcessor(repo RepositoryAPI, q queue.Enqueuer, simulator Simulator, logger *slog.Logger) *Processor {
	return &Processor{
		repo:      repo,
		queue:     q,
		simulator: simulator,
		now:       time.Now,
		logger:    logger,
	}
}

// Handle settles one payment and enqueues its webhook. A redelivered job for a
// payment that already left pending is acknowledged without side effects.
func (p *Processor) Handle(ctx context.Context, job *queue.Job) error {
	var payload queue.PaymentJob
	if err := job.Decode(&payload); err != nil {
		return queue.Permanent(fmt.Errorf("decode payment job %s: %w", job.ID, err))
	}
	if payload.PaymentID == "" {
		return queue.Permanent(fmt.Errorf("payment job %s has no paymentId", job.ID))
	}
	logger := p.logger.With("payment_id", payload.PaymentID, "job_id", job.ID)

	dm, err := p.repo.GetByID(ctx, payload.PaymentID)
	if err != nil {
		return fmt.Errorf("load payment %s: %w", payload.PaymentID, err)
	}
	if dm.Status != StatusPending {
		logger.Info("payment already finalized", "status", dm.Status)
		return nil
	}

	delay, success := p.simulator.Outcome(dm.Method)
	logger.Debug("processing payment", "method", dm.Method, "delay", delay)
	if err := Sleep(ctx, delay); err != nil {
		return err
	}

	var (
		status = StatusSuccess
		event  = events.EventPaymentSuccess
		code   *string
		desc   *string
	)
	if !success {
		c, d := string(internal.ErrCodePaymentFailed), DeclinedDescription
		status, event, code, desc = StatusFailed, events.EventPaymentFailed, &c, &d
	}

	if err := p.repo.Finalize(ctx, dm.ID, status, code, desc); err != nil {
		if errors.Is(err, ErrNotPending) {
			logger.Info("payment finalized concurrently")
			return nil
		}
		return fmt.Errorf("finalize payment %s: %w", dm.ID, err)
	}

	now := p.now()
	dm.Status, dm.ErrorCode, dm.ErrorDescription, dm.UpdatedAt = status, code, desc, now
	body, err := events.NewWebhookPayload(event, now, "payment", FromDataModel(dm))
	if err != nil {
		return queue.Permanent(fmt.Errorf("build %s payload: %w", event, err))
	}

	// the payment is terminal now, so a redelivery would not produce the webhook again
	if _, err := queue.EnqueueWithRetry(ctx, p.queue, queue.Webhook, queue.WebhookJob{
		MerchantID: dm.MerchantID,
		Event:      event,
		Payload:    body,
	}); err != nil {
		logger.Error("webhook lost, enqueue kept failing", "event", event, "status", status, "error", err)
		return nil
	}

	logger.Info("payment processed", "status", status)
	return nil
}
