package queue_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-gateway/internal/core/events"
	"github.com/frahmantamala/payment-gateway/internal/queue"
)

var _ = Describe("Consumer", func() {
	var (
		backend *queue.MemoryBackend
		client  *queue.Client
		logger  *slog.Logger
		opts    queue.Options
		ctx     context.Context
		cancel  context.CancelFunc
		done    chan error
	)

	BeforeEach(func() {
		backend = queue.NewMemoryBackend(queue.BackendOptions{})
		client = queue.NewClient(backend, 3)
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		opts = queue.Options{
			MaxAttempts:     3,
			BackoffBase:     10 * time.Millisecond,
			PollInterval:    5 * time.Millisecond,
			JobTimeout:      time.Second,
			ShutdownTimeout: 2 * time.Second,
		}
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
	})

	AfterEach(func() {
		cancel()
	})

	run := func(c *queue.Consumer) {
		go func() { done <- c.Run(ctx) }()
	}

	It("acks jobs whose handler succeeds", func() {
		var handled int32
		var mu sync.Mutex
		var got queue.PaymentJob
		consumer := queue.NewConsumer(backend, opts, nil, logger)
		consumer.Register(queue.Payment, 2, func(ctx context.Context, job *queue.Job) error {
			mu.Lock()
			defer mu.Unlock()
			atomic.AddInt32(&handled, 1)
			return job.Decode(&got)
		})

		_, err := client.Enqueue(context.Background(), queue.Payment, queue.PaymentJob{PaymentID: "pay_1"})
		Expect(err).NotTo(HaveOccurred())
		run(consumer)

		Eventually(func() int64 {
			s, _ := backend.Stats(context.Background(), queue.Payment)
			return s.Completed
		}).Should(Equal(int64(1)))
		Expect(atomic.LoadInt32(&handled)).To(Equal(int32(1)))
		mu.Lock()
		defer mu.Unlock()
		Expect(got.PaymentID).To(Equal("pay_1"))
	})

	It("retries with backoff then dead-letters after the attempt cap", func() {
		var calls int32
		consumer := queue.NewConsumer(backend, opts, nil, logger)
		consumer.Register(queue.Refund, 1, func(ctx context.Context, job *queue.Job) error {
			atomic.AddInt32(&calls, 1)
			return errors.New("store unavailable")
		})

		_, err := client.Enqueue(context.Background(), queue.Refund, queue.RefundJob{RefundID: "rfnd_1"})
		Expect(err).NotTo(HaveOccurred())
		run(consumer)

		Eventually(func() int64 {
			s, _ := backend.Stats(context.Background(), queue.Refund)
			return s.Dead
		}).Should(Equal(int64(1)))
		Expect(atomic.LoadInt32(&calls)).To(Equal(int32(3)))
	})

	It("does not retry permanent failures", func() {
		var calls int32
		consumer := queue.NewConsumer(backend, opts, nil, logger)
		consumer.Register(queue.Refund, 1, func(ctx context.Context, job *queue.Job) error {
			atomic.AddInt32(&calls, 1)
			return queue.Permanent(errors.New("refund exceeds payment"))
		})

		_, err := client.Enqueue(context.Background(), queue.Refund, queue.RefundJob{RefundID: "rfnd_2"})
		Expect(err).NotTo(HaveOccurred())
		run(consumer)

		Eventually(func() int64 {
			s, _ := backend.Stats(context.Background(), queue.Refund)
			return s.Dead
		}).Should(Equal(int64(1)))
		Consistently(func() int32 { return atomic.LoadInt32(&calls) }, 50*time.Millisecond).Should(Equal(int32(1)))
	})

	It("turns handler panics into failures", func() {
		consumer := queue.NewConsumer(backend, queue.Options{MaxAttempts: 1, PollInterval: 5 * time.Millisecond}, nil, logger)
		consumer.Register(queue.Webhook, 1, func(ctx context.Context, job *queue.Job) error {
			panic("nil merchant")
		})

		_, err := client.Enqueue(context.Background(), queue.Webhook, queue.WebhookJob{MerchantID: "m"})
		Expect(err).NotTo(HaveOccurred())
		run(consumer)

		Eventually(func() int64 {
			s, _ := backend.Stats(context.Background(), queue.Webhook)
			return s.Dead
		}).Should(Equal(int64(1)))
	})

	It("keeps a blocked queue from stalling the others", func() {
		release := make(chan struct{})
		var webhooks int32
		consumer := queue.NewConsumer(backend, opts, nil, logger)
		consumer.Register(queue.Payment, 1, func(ctx context.Context, job *queue.Job) error {
			<-release
			return nil
		})
		consumer.Register(queue.Webhook, 1, func(ctx context.Context, job *queue.Job) error {
			atomic.AddInt32(&webhooks, 1)
			return nil
		})

		_, err := client.Enqueue(context.Background(), queue.Payment, queue.PaymentJob{PaymentID: "slow"})
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 3; i++ {
			_, err := client.Enqueue(context.Background(), queue.Webhook, queue.WebhookJob{MerchantID: "m"})
			Expect(err).NotTo(HaveOccurred())
		}
		run(consumer)

		Eventually(func() int32 { return atomic.LoadInt32(&webhooks) }).Should(Equal(int32(3)))
		close(release)
	})

	It("drains in-flight handlers on shutdown", func() {
		started := make(chan struct{})
		var finished int32
		consumer := queue.NewConsumer(backend, opts, nil, logger)
		consumer.Register(queue.Payment, 1, func(ctx context.Context, job *queue.Job) error {
			close(started)
			time.Sleep(50 * time.Millisecond)
			if ctx.Err() == nil {
				atomic.StoreInt32(&finished, 1)
			}
			return nil
		})

		_, err := client.Enqueue(context.Background(), queue.Payment, queue.PaymentJob{PaymentID: "pay_drain"})
		Expect(err).NotTo(HaveOccurred())
		run(consumer)

		Eventually(started).Should(BeClosed())
		cancel()

		Eventually(done).Should(Receive(BeNil()))
		Expect(atomic.LoadInt32(&finished)).To(Equal(int32(1)))
		s, _ := backend.Stats(context.Background(), queue.Payment)
		Expect(s.Completed).To(Equal(int64(1)))
	})

	It("publishes lifecycle events on the bus", func() {
		bus := events.NewEventBus(logger)
		var mu sync.Mutex
		var seen []string
		record := func(ctx context.Context, e events.Event) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, e.EventType())
			return nil
		}
		bus.Subscribe(events.EventJobActive, record)
		bus.Subscribe(events.EventJobCompleted, record)

		consumer := queue.NewConsumer(backend, opts, bus, logger)
		consumer.Register(queue.Payment, 1, func(ctx context.Context, job *queue.Job) error { return nil })

		_, err := client.Enqueue(context.Background(), queue.Payment, queue.PaymentJob{PaymentID: "pay_evt"})
		Expect(err).NotTo(HaveOccurred())
		run(consumer)

		Eventually(func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), seen...)
		}).Should(ConsistOf(events.EventJobActive, events.EventJobCompleted))
	})
})

var _ = Describe("Options.Backoff", func() {
	It("doubles from the base delay", func() {
		o := queue.Options{BackoffBase: 2 * time.Second}
		Expect(o.Backoff(1)).To(Equal(2 * time.Second))
		Expect(o.Backoff(2)).To(Equal(4 * time.Second))
		Expect(o.Backoff(3)).To(Equal(8 * time.Second))
	})
})
