package idempotency

import (
	"context"
	"errors"
	"time"

	idempotencydatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/idempotency"
)

// HeaderKey is the request header carrying the client key.
const HeaderKey = "Idempotency-Key"

// DefaultTTL bounds how long a cached response is replayed.
const DefaultTTL = 24 * time.Hour

var ErrNotFound = errors.New("idempotency record not found")

type RepositoryAPI interface {
	// FindActive returns the record unless it is missing or expired at now.
	FindActive(ctx context.Context, key, merchantID string, now time.Time) (*idempotencydatamodel.IdempotencyKey, error)
	Upsert(ctx context.Context, rec *idempotencydatamodel.IdempotencyKey) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
