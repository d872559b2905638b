package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/wait"
)

// Enqueuer is the producer side of the queue, injected into services and workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, payload interface{}, opts ...EnqueueOption) (*Job, error)
}

// EnqueueOptions is the resolved form of a set of EnqueueOption.
type EnqueueOptions struct {
	Delay time.Duration
}

type EnqueueOption func(*EnqueueOptions)

// WithDelay makes the job claimable only after d has elapsed.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) {
		if d > 0 {
			o.Delay = d
		}
	}
}

// EnqueueBackoff is the retry policy of EnqueueWithRetry: four tries over roughly 700ms.
var EnqueueBackoff = wait.Backoff{
	Duration: 100 * time.Millisecond,
	Factor:   2,
	Jitter:   0.1,
	Steps:    4,
}

// EnqueueWithRetry retries transient Enqueue failures with EnqueueBackoff. Workers
// use it for follow-up jobs that must not be lost once their own state is written.
func EnqueueWithRetry(ctx context.Context, q Enqueuer, queue string, payload interface{}, opts ...EnqueueOption) (*Job, error) {
	var (
		job     *Job
		lastErr error
	)
	err := wait.ExponentialBackoffWithContext(ctx, EnqueueBackoff, func(ctx context.Context) (bool, error) {
		job, lastErr = q.Enqueue(ctx, queue, payload, opts...)
		return lastErr == nil, nil
	})
	if err != nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return job, nil
}

func ResolveOptions(opts ...EnqueueOption) EnqueueOptions {
	var o EnqueueOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type Client struct {
	backend     Backend
	maxAttempts int
	now         func() time.Time
}

func NewClient(backend Backend, maxAttempts int) *Client {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Client{
		backend:     backend,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

func (c *Client) Backend() Backend {
	return c.backend
}

func (c *Client) Enqueue(ctx context.Context, queue string, payload interface{}, opts ...EnqueueOption) (*Job, error) {
	o := ResolveOptions(opts...)

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s job payload: %w", queue, err)
	}

	now := c.now()
	job := &Job{
		ID:           uuid.New().String(),
		Queue:        queue,
		Payload:      raw,
		State:        StateWaiting,
		MaxAttempts:  c.maxAttempts,
		EnqueuedAt:   now,
		ScheduledFor: now.Add(o.Delay),
	}
	if o.Delay > 0 {
		job.State = StateDelayed
	}

	if err := c.backend.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Stats collects counts for the given queues, or all of Names when none are passed.
func (c *Client) Stats(ctx context.Context, queues ...string) (map[string]*Stats, error) {
	if len(queues) == 0 {
		queues = Names
	}
	out := make(map[string]*Stats, len(queues))
	for _, q := range queues {
		s, err := c.backend.Stats(ctx, q)
		if err != nil {
			return nil, err
		}
		out[q] = s
	}
	return out, nil
}

func (c *Client) RetryDead(ctx context.Context, queue string) (int64, error) {
	return c.backend.RetryDead(ctx, queue)
}
