package queue_test

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/frahmantamala/payment-gateway/internal/queue"
)

func newJob(id, q string, scheduledFor time.Time) *queue.Job {
	return &queue.Job{
		ID:           id,
		Queue:        q,
		Payload:      json.RawMessage(`{"paymentId":"` + id + `"}`),
		MaxAttempts:  3,
		EnqueuedAt:   scheduledFor,
		ScheduledFor: scheduledFor,
	}
}

func describeBackend(name string, build func(clock *fakeClock, opts queue.BackendOptions) queue.Backend) {
	Describe(name, func() {
		var (
			ctx     context.Context
			clock   *fakeClock
			backend queue.Backend
			lease   = time.Minute
		)

		BeforeEach(func() {
			ctx = context.Background()
			clock = newFakeClock()
			backend = build(clock, queue.BackendOptions{KeepCompleted: 2, KeepFailed: 2, Now: clock.Now})
		})

		AfterEach(func() {
			Expect(backend.Close()).To(Succeed())
		})

		It("hands out jobs in FIFO order", func() {
			Expect(backend.Enqueue(ctx, newJob("a", queue.Payment, clock.Now()))).To(Succeed())
			Expect(backend.Enqueue(ctx, newJob("b", queue.Payment, clock.Now()))).To(Succeed())

			first, err := backend.Claim(ctx, queue.Payment, lease)
			Expect(err).NotTo(HaveOccurred())
			second, err := backend.Claim(ctx, queue.Payment, lease)
			Expect(err).NotTo(HaveOccurred())
			third, err := backend.Claim(ctx, queue.Payment, lease)
			Expect(err).NotTo(HaveOccurred())

			Expect(first.ID).To(Equal("a"))
			Expect(second.ID).To(Equal("b"))
			Expect(third).To(BeNil())
		})

		It("keeps queues independent", func() {
			Expect(backend.Enqueue(ctx, newJob("w1", queue.Webhook, clock.Now()))).To(Succeed())

			job, err := backend.Claim(ctx, queue.Payment, lease)
			Expect(err).NotTo(HaveOccurred())
			Expect(job).To(BeNil())

			job, err = backend.Claim(ctx, queue.Webhook, lease)
			Expect(err).NotTo(HaveOccurred())
			Expect(job.ID).To(Equal("w1"))
		})

		It("holds delayed jobs until they are due", func() {
			Expect(backend.Enqueue(ctx, newJob("later", queue.Webhook, clock.Now().Add(time.Minute)))).To(Succeed())

			job, err := backend.Claim(ctx, queue.Webhook, lease)
			Expect(err).NotTo(HaveOccurred())
			Expect(job).To(BeNil())

			stats, err := backend.Stats(ctx, queue.Webhook)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Delayed).To(Equal(int64(1)))

			clock.Advance(time.Minute)
			job, err = backend.Claim(ctx, queue.Webhook, lease)
			Expect(err).NotTo(HaveOccurred())
			Expect(job).NotTo(BeNil())
			Expect(job.ID).To(Equal("later"))
		})

		It("redelivers a job whose lease expired without ack", func() {
			Expect(backend.Enqueue(ctx, newJob("crash", queue.Refund, clock.Now()))).To(Succeed())
			claimed, err := backend.Claim(ctx, queue.Refund, lease)
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).NotTo(BeNil())

			again, err := backend.Claim(ctx, queue.Refund, lease)
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(BeNil())

			clock.Advance(lease + time.Second)
			again, err = backend.Claim(ctx, queue.Refund, lease)
			Expect(err).NotTo(HaveOccurred())
			Expect(again).NotTo(BeNil())
			Expect(again.ID).To(Equal("crash"))

			By("rejecting the stale owner's ack once ownership moved")
			Expect(backend.Ack(ctx, again)).To(Succeed())
			Expect(queue.IsJobNotFound(backend.Ack(ctx, claimed))).To(BeTrue())
		})

		It("reschedules failed jobs and dead-letters when asked", func() {
			Expect(backend.Enqueue(ctx, newJob("f", queue.Payment, clock.Now()))).To(Succeed())
			job, err := backend.Claim(ctx, queue.Payment, lease)
			Expect(err).NotTo(HaveOccurred())

			retryAt := clock.Now().Add(2 * time.Second)
			job.Attempts = 1
			Expect(backend.Fail(ctx, job, &retryAt)).To(Succeed())

			clock.Advance(2 * time.Second)
			job, err = backend.Claim(ctx, queue.Payment, lease)
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Attempts).To(Equal(1))

			job.Attempts = 3
			Expect(backend.Fail(ctx, job, nil)).To(Succeed())

			stats, err := backend.Stats(ctx, queue.Payment)
			Expect(err).NotTo(HaveOccurred())
			Expect(*stats).To(Equal(queue.Stats{Dead: 1}))
		})

		It("trims completed and dead lists to the retention limits", func() {
			for _, id := range []string{"1", "2", "3"} {
				Expect(backend.Enqueue(ctx, newJob(id, queue.Payment, clock.Now()))).To(Succeed())
				job, err := backend.Claim(ctx, queue.Payment, lease)
				Expect(err).NotTo(HaveOccurred())
				Expect(backend.Ack(ctx, job)).To(Succeed())
			}

			stats, err := backend.Stats(ctx, queue.Payment)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Completed).To(Equal(int64(2)))
		})

		It("moves dead jobs back to waiting with attempts reset", func() {
			Expect(backend.Enqueue(ctx, newJob("d", queue.Refund, clock.Now()))).To(Succeed())
			job, err := backend.Claim(ctx, queue.Refund, lease)
			Expect(err).NotTo(HaveOccurred())
			job.Attempts = 3
			job.LastError = "boom"
			Expect(backend.Fail(ctx, job, nil)).To(Succeed())

			moved, err := backend.RetryDead(ctx, queue.Refund)
			Expect(err).NotTo(HaveOccurred())
			Expect(moved).To(Equal(int64(1)))

			job, err = backend.Claim(ctx, queue.Refund, lease)
			Expect(err).NotTo(HaveOccurred())
			Expect(job.ID).To(Equal("d"))
			Expect(job.Attempts).To(Equal(0))
			Expect(job.LastError).To(BeEmpty())
		})
	})
}

var _ = Describe("Backends", func() {
	describeBackend("MemoryBackend", func(clock *fakeClock, opts queue.BackendOptions) queue.Backend {
		return queue.NewMemoryBackend(opts)
	})

	describeBackend("RedisBackend", func(clock *fakeClock, opts queue.BackendOptions) queue.Backend {
		mr := miniredis.RunT(GinkgoT())
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		backend, err := queue.NewRedisBackend(context.Background(), client, "test", opts)
		Expect(err).NotTo(HaveOccurred())
		return backend
	})
})
