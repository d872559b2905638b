package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/frahmantamala/payment-gateway/internal/core/events"
)

// Handler processes one job. Returning nil acks it; any error goes through the
// retry policy unless wrapped with Permanent.
type Handler func(ctx context.Context, job *Job) error

type Options struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	PollInterval    time.Duration
	LeaseDuration   time.Duration
	JobTimeout      time.Duration
	ShutdownTimeout time.Duration
}

func (o *Options) SetDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 45 * time.Second
	}
	if o.LeaseDuration <= o.JobTimeout {
		o.LeaseDuration = o.JobTimeout + 15*time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 30 * time.Second
	}
}

// Backoff returns the delay before the next try after attempts failures: base * 2^(attempts-1).
func (o Options) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return o.BackoffBase * time.Duration(1<<uint(attempts-1))
}

type registration struct {
	queue       string
	concurrency int
	handler     Handler
}

// Consumer claims jobs from a Backend and runs them through registered handlers.
// Each queue gets its own claimer and worker pool, so a stalled queue never
// holds up another.
type Consumer struct {
	backend Backend
	opts    Options
	bus     *events.EventBus
	logger  *slog.Logger
	now     func() time.Time

	mu            sync.Mutex
	registrations []registration
	workerWG      sync.WaitGroup
}

// NewConsumer builds a consumer. bus may be nil; when set, job lifecycle events
// are published on it.
func NewConsumer(backend Backend, opts Options, bus *events.EventBus, logger *slog.Logger) *Consumer {
	opts.SetDefaults()
	return &Consumer{
		backend: backend,
		opts:    opts,
		bus:     bus,
		logger:  logger,
		now:     time.Now,
	}
}

func (c *Consumer) Register(queue string, concurrency int, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations = append(c.registrations, registration{queue: queue, concurrency: concurrency, handler: handler})
}

// Run blocks until ctx is cancelled. It then stops claiming, waits up to the
// shutdown timeout for in-flight handlers, and returns. Closing the backend is
// left to the caller.
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.Lock()
	regs := append([]registration(nil), c.registrations...)
	c.mu.Unlock()

	if len(regs) == 0 {
		return &HandlerNotRegisteredError{Queue: "*"}
	}

	// handlers keep running after ctx is cancelled so they can finish cleanly
	handlerCtx := context.WithoutCancel(ctx)

	var claimWG sync.WaitGroup
	for _, reg := range regs {
		reg := reg
		p := newPool(reg.queue, reg.concurrency, c.logger)
		p.start(ctx, &c.workerWG, func(job *Job) {
			c.process(handlerCtx, reg, job)
		})

		claimWG.Add(1)
		go func() {
			defer claimWG.Done()
			c.claimLoop(ctx, p)
		}()

		c.logger.Info("queue consumer started", "queue", reg.queue, "concurrency", reg.concurrency)
	}

	<-ctx.Done()
	claimWG.Wait()
	return c.drain()
}

func (c *Consumer) drain() error {
	done := make(chan struct{})
	go func() {
		c.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("all queue workers finished")
		return nil
	case <-time.After(c.opts.ShutdownTimeout):
		return fmt.Errorf("shutdown timeout after %v: workers still active", c.opts.ShutdownTimeout)
	}
}

func (c *Consumer) claimLoop(ctx context.Context, p *pool) {
	_ = wait.PollUntilContextCancel(ctx, c.opts.PollInterval, true, func(ctx context.Context) (bool, error) {
		for {
			ch, ok := p.tryAcquire()
			if !ok {
				return false, nil
			}

			job, err := c.backend.Claim(ctx, p.queue, c.opts.LeaseDuration)
			if err != nil || job == nil {
				p.release(ch)
				if err != nil && ctx.Err() == nil {
					c.logger.Error("failed to claim job", "queue", p.queue, "error", err)
				}
				return false, nil
			}

			select {
			case ch <- job:
			case <-ctx.Done():
				c.requeue(job)
				return true, nil
			}
		}
	})
}

// requeue hands back a job that was claimed but never started.
func (c *Consumer) requeue(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := c.now()
	if err := c.backend.Fail(ctx, job, &now); err != nil {
		c.logger.Warn("failed to requeue unstarted job", "queue", job.Queue, "job_id", job.ID, "error", err)
	}
}

func (c *Consumer) process(ctx context.Context, reg registration, job *Job) {
	c.publish(ctx, events.NewJobEvent(events.EventJobActive, job.Queue, job.ID, job.Attempts, nil))

	err := c.invoke(ctx, reg.handler, job)

	if err == nil {
		if ackErr := c.backend.Ack(ctx, job); ackErr != nil {
			c.logger.Error("failed to ack job", "queue", job.Queue, "job_id", job.ID, "error", ackErr)
			return
		}
		c.publish(ctx, events.NewJobEvent(events.EventJobCompleted, job.Queue, job.ID, job.Attempts, nil))
		return
	}

	c.fail(ctx, job, err)
}

func (c *Consumer) invoke(ctx context.Context, handler Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, c.opts.JobTimeout)
	defer cancel()

	err = handler(jobCtx, job)
	if err == nil && errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("job timeout after %v", c.opts.JobTimeout)
	}
	return err
}

func (c *Consumer) fail(ctx context.Context, job *Job, cause error) {
	job.Attempts++
	job.LastError = cause.Error()

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = c.opts.MaxAttempts
	}

	if IsPermanent(cause) || job.Attempts >= maxAttempts {
		if err := c.backend.Fail(ctx, job, nil); err != nil {
			c.logger.Error("failed to dead-letter job", "queue", job.Queue, "job_id", job.ID, "error", err)
			return
		}
		c.publish(ctx, events.NewJobEvent(events.EventJobDead, job.Queue, job.ID, job.Attempts, cause))
		return
	}

	retryAt := c.now().Add(c.opts.Backoff(job.Attempts))
	if err := c.backend.Fail(ctx, job, &retryAt); err != nil {
		c.logger.Error("failed to reschedule job", "queue", job.Queue, "job_id", job.ID, "error", err)
		return
	}
	c.publish(ctx, events.NewJobEvent(events.EventJobRetrying, job.Queue, job.ID, job.Attempts, cause))
}

func (c *Consumer) publish(ctx context.Context, event *events.JobEvent) {
	if c.bus == nil {
		return
	}
	_ = c.bus.Publish(ctx, event)
}
