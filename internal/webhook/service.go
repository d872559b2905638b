package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/queue"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type Service struct {
	repo      RepositoryAPI
	merchants MerchantStore
	queue     queue.Enqueuer
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, merchants MerchantStore, q queue.Enqueuer, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		merchants: merchants,
		queue:     q,
		now:       time.Now,
		logger:    logger,
	}
}

// ListLogs pages through the merchant's webhook logs, newest first.
func (s *Service) ListLogs(ctx context.Context, merchantID string, limit, offset int) (*LogPage, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	dms, total, err := s.repo.ListByMerchant(ctx, merchantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list webhook logs: %w", err)
	}
	page := &LogPage{Data: make([]*Log, 0, len(dms)), Total: total, Limit: limit, Offset: offset}
	for _, dm := range dms {
		page.Data = append(page.Data, FromDataModel(dm))
	}
	return page, nil
}

// RetryLog resets a log to a fresh pending state and queues its stored payload again.
func (s *Service) RetryLog(ctx context.Context, merchantID, id string) (*RetryResponse, error) {
	dm, err := s.repo.GetForMerchant(ctx, id, merchantID)
	if errors.Is(err, ErrLogNotFound) {
		return nil, apperrors.NewNotFoundError("Webhook log not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load webhook log: %w", err)
	}

	if err := s.repo.ResetForRetry(ctx, dm.ID, s.now()); err != nil {
		return nil, fmt.Errorf("reset webhook log %s: %w", dm.ID, err)
	}
	if _, err := s.queue.Enqueue(ctx, queue.Webhook, queue.WebhookJob{
		MerchantID: dm.MerchantID,
		Event:      dm.Event,
		Payload:    []byte(dm.Payload),
	}); err != nil {
		return nil, fmt.Errorf("enqueue webhook retry: %w", err)
	}

	s.logger.Info("webhook retry scheduled", "webhook_log_id", dm.ID, "merchant_id", merchantID)
	return &RetryResponse{ID: dm.ID, Status: StatusPending, Message: "Webhook retry scheduled"}, nil
}

// UpdateConfig stores the merchant's webhook URL and secret and echoes them with the secret masked.
func (s *Service) UpdateConfig(ctx context.Context, merchantID string, req *ConfigRequest) (*ConfigResponse, error) {
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}
	req.Normalize()

	if err := s.merchants.UpdateWebhookConfig(ctx, merchantID, req.WebhookURL, req.WebhookSecret); err != nil {
		return nil, fmt.Errorf("update webhook config: %w", err)
	}

	resp := &ConfigResponse{WebhookURL: req.WebhookURL}
	if req.WebhookSecret != nil {
		masked := MaskSecret(*req.WebhookSecret)
		resp.WebhookSecret = &masked
	}
	s.logger.Info("webhook config updated", "merchant_id", merchantID, "has_url", req.WebhookURL != nil)
	return resp, nil
}
