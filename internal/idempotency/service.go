package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	idempotencydatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/idempotency"
)

// Service caches creation responses per (merchant, key).
type Service struct {
	repo   RepositoryAPI
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		repo:   repo,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Lookup returns the cached response bytes. An empty key never hits.
func (s *Service) Lookup(ctx context.Context, merchantID, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, nil
	}

	rec, err := s.repo.FindActive(ctx, key, merchantID, s.now())
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup idempotency key: %w", err)
	}

	s.logger.Debug("idempotency hit", "merchant_id", merchantID, "key", key)
	return []byte(rec.Response), true, nil
}

// Store saves response for key, refreshing an existing row.
func (s *Service) Store(ctx context.Context, merchantID, key string, response []byte) error {
	if key == "" {
		return nil
	}

	now := s.now()
	rec := &idempotencydatamodel.IdempotencyKey{
		Key:        key,
		MerchantID: merchantID,
		Response:   string(response),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("store idempotency key: %w", err)
	}
	return nil
}

// PurgeExpired removes rows past their expiry.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	if n > 0 {
		s.logger.Info("expired idempotency keys purged", "count", n)
	}
	return n, nil
}
