package queue

import (
	"context"
	"time"
)

// Backend stores jobs and hands them out. Implementations must make Claim exclusive:
// a job is owned by one caller until it is acked, failed, or its lease expires.
type Backend interface {
	Enqueue(ctx context.Context, job *Job) error
	// Claim returns nil, nil when no job is due.
	Claim(ctx context.Context, queue string, lease time.Duration) (*Job, error)
	Ack(ctx context.Context, job *Job) error
	// Fail reschedules the job at retryAt, or moves it to the dead list when retryAt is nil.
	Fail(ctx context.Context, job *Job, retryAt *time.Time) error
	Stats(ctx context.Context, queue string) (*Stats, error)
	RetryDead(ctx context.Context, queue string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Dead      int64 `json:"dead"`
}

// BackendOptions holds retention limits shared by all backends.
type BackendOptions struct {
	KeepCompleted int
	KeepFailed    int
	Now           func() time.Time
}

func (o *BackendOptions) SetDefaults() {
	if o.KeepCompleted <= 0 {
		o.KeepCompleted = 100
	}
	if o.KeepFailed <= 0 {
		o.KeepFailed = 500
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
