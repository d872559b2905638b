package refund_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/payment-gateway/internal"
	paymentdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
	refunddatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/refund"
	"github.com/frahmantamala/payment-gateway/internal/core/events"
	"github.com/frahmantamala/payment-gateway/internal/queue"
	"github.com/frahmantamala/payment-gateway/internal/queue/queuetest"
	"github.com/frahmantamala/payment-gateway/internal/refund"
	"github.com/frahmantamala/payment-gateway/internal/refund/postgres"
	"github.com/frahmantamala/payment-gateway/internal/storetest"
	"github.com/frahmantamala/payment-gateway/internal/transport"
)

func TestRefund(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Refund Suite")
}

var _ = Describe("Refund", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		logger    *slog.Logger
		repo      refund.RepositoryAPI
		recorder  *queuetest.Recorder
		service   *refund.Service
		processor *refund.Processor
	)

	seedPayment := func(id, status string, amount int64) {
		Expect(db.Create(&paymentdatamodel.Payment{
			ID: id, OrderID: "order_1", MerchantID: "m1", Amount: amount,
			Currency: "INR", Method: "upi", Status: status,
		}).Error).To(Succeed())
	}

	seedRefund := func(id, paymentID, status string, amount int64) {
		Expect(db.Create(&refunddatamodel.Refund{
			ID: id, PaymentID: paymentID, MerchantID: "m1", Amount: amount, Status: status,
		}).Error).To(Succeed())
	}

	appErrOf := func(err error) *internal.AppError {
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		return appErr
	}

	statusOf := func(id string) string {
		rf, err := repo.GetByID(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		return rf.Status
	}

	BeforeEach(func() {
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		db = storetest.MustNewDB()
		storetest.SeedMerchant(db, "m1", nil, nil)
		repo = postgres.NewRefundRepository(db)
		recorder = queuetest.NewRecorder()
		service = refund.NewService(repo, recorder, logger)
		processor = refund.NewProcessor(repo, recorder, 0, 0, logger)
		seedPayment("pay_1", "success", 50000)
	})

	Describe("Service.CreateRefund", func() {
		It("creates a pending refund and queues it", func() {
			rf, err := service.CreateRefund(ctx, "m1", "pay_1", &refund.CreateRefundRequest{Amount: 20000})

			Expect(err).NotTo(HaveOccurred())
			Expect(rf.ID).To(HavePrefix("rfnd_"))
			Expect(rf.Status).To(Equal(refund.StatusPending))
			jobs := recorder.Jobs(queue.Refund)
			Expect(jobs).To(HaveLen(1))
			Expect(string(jobs[0].Payload)).To(MatchJSON(`{"refundId":"` + rf.ID + `"}`))
		})

		It("rejects 30000 when 25000 is already pending on a 50000 payment", func() {
			seedRefund("rfnd_existing", "pay_1", refund.StatusPending, 25000)

			_, err := service.CreateRefund(ctx, "m1", "pay_1", &refund.CreateRefundRequest{Amount: 30000})

			appErr := appErrOf(err)
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(appErr.Message).To(Equal("Refund amount exceeds available amount"))
			Expect(recorder.Jobs(queue.Refund)).To(BeEmpty())
		})

		It("ignores failed refunds in the available amount", func() {
			seedRefund("rfnd_failed", "pay_1", refund.StatusFailed, 50000)

			_, err := service.CreateRefund(ctx, "m1", "pay_1", &refund.CreateRefundRequest{Amount: 50000})

			Expect(err).NotTo(HaveOccurred())
		})

		It("refuses payments that did not succeed", func() {
			seedPayment("pay_pending", "pending", 1000)

			_, err := service.CreateRefund(ctx, "m1", "pay_pending", &refund.CreateRefundRequest{Amount: 100})

			Expect(appErrOf(err).Message).To(Equal("Payment not in refundable state"))
		})

		It("rejects non-positive amounts", func() {
			_, err := service.CreateRefund(ctx, "m1", "pay_1", &refund.CreateRefundRequest{Amount: 0})

			Expect(appErrOf(err).Message).To(Equal("Invalid refund amount"))
		})

		It("hides payments of other merchants", func() {
			_, err := service.CreateRefund(ctx, "m2", "pay_1", &refund.CreateRefundRequest{Amount: 100})

			Expect(appErrOf(err).Code).To(Equal(internal.ErrCodeNotFound))
		})

		It("never lets active refunds exceed the payment under concurrent requests", func() {
			errs := make(chan error, 5)
			for i := 0; i < 5; i++ {
				go func() {
					defer GinkgoRecover()
					_, err := service.CreateRefund(ctx, "m1", "pay_1", &refund.CreateRefundRequest{Amount: 20000})
					errs <- err
				}()
			}
			for i := 0; i < 5; i++ {
				<-errs
			}

			total, err := repo.SumActive(ctx, "pay_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeNumerically("<=", 50000))
			Expect(recorder.Jobs(queue.Refund)).To(HaveLen(2))
		})
	})

	Describe("Processor", func() {
		It("processes the refund and enqueues refund.processed", func() {
			rf, err := service.CreateRefund(ctx, "m1", "pay_1", &refund.CreateRefundRequest{Amount: 1000, Reason: strPtr("customer request")})
			Expect(err).NotTo(HaveOccurred())

			Expect(processor.Handle(ctx, recorder.Jobs(queue.Refund)[0])).To(Succeed())

			stored, err := repo.GetByID(ctx, rf.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(refund.StatusProcessed))
			Expect(stored.ProcessedAt).NotTo(BeNil())

			webhooks := recorder.Jobs(queue.Webhook)
			Expect(webhooks).To(HaveLen(1))
			var wj queue.WebhookJob
			Expect(webhooks[0].Decode(&wj)).To(Succeed())
			Expect(wj.Event).To(Equal(events.EventRefundProcessed))

			var envelope struct {
				Event string `json:"event"`
				Data  struct {
					Refund map[string]interface{} `json:"refund"`
				} `json:"data"`
			}
			Expect(json.Unmarshal(wj.Payload, &envelope)).To(Succeed())
			Expect(envelope.Data.Refund).To(HaveKeyWithValue("id", rf.ID))
			Expect(envelope.Data.Refund).To(HaveKeyWithValue("status", "processed"))
			Expect(envelope.Data.Refund).To(HaveKeyWithValue("reason", "customer request"))
			Expect(envelope.Data.Refund).To(HaveKey("processed_at"))
			Expect(envelope.Data.Refund).NotTo(HaveKey("merchant_id"))
		})

		It("fails the refund without retry when active refunds exceed the payment", func() {
			seedRefund("rfnd_a", "pay_1", refund.StatusProcessed, 40000)
			seedRefund("rfnd_b", "pay_1", refund.StatusPending, 20000)
			job := &queue.Job{ID: "j1", Queue: queue.Refund, Payload: json.RawMessage(`{"refundId":"rfnd_b"}`)}

			err := processor.Handle(ctx, job)

			Expect(queue.IsPermanent(err)).To(BeTrue())
			Expect(errors.Is(err, refund.ErrExceedsPayment)).To(BeTrue())
			Expect(statusOf("rfnd_b")).To(Equal(refund.StatusFailed))
			Expect(recorder.Jobs(queue.Webhook)).To(BeEmpty())
		})

		It("fails the refund when the payment is no longer successful", func() {
			seedPayment("pay_failed", "failed", 1000)
			seedRefund("rfnd_c", "pay_failed", refund.StatusPending, 500)

			err := processor.Handle(ctx, &queue.Job{ID: "j1", Payload: json.RawMessage(`{"refundId":"rfnd_c"}`)})

			Expect(errors.Is(err, refund.ErrPaymentNotRefundable)).To(BeTrue())
			Expect(statusOf("rfnd_c")).To(Equal(refund.StatusFailed))
		})

		It("retries a briefly failing webhook enqueue", func() {
			seedRefund("rfnd_d", "pay_1", refund.StatusPending, 500)
			recorder.FailNext = 3

			err := processor.Handle(ctx, &queue.Job{ID: "j1", Payload: json.RawMessage(`{"refundId":"rfnd_d"}`)})

			Expect(err).NotTo(HaveOccurred())
			Expect(statusOf("rfnd_d")).To(Equal(refund.StatusProcessed))
			Expect(recorder.Jobs(queue.Webhook)).To(HaveLen(1))
		})

		It("keeps the processed refund when the webhook cannot be queued", func() {
			seedRefund("rfnd_f", "pay_1", refund.StatusPending, 500)
			recorder.Err = errors.New("redis down")

			err := processor.Handle(ctx, &queue.Job{ID: "j1", Payload: json.RawMessage(`{"refundId":"rfnd_f"}`)})

			Expect(err).NotTo(HaveOccurred())
			Expect(statusOf("rfnd_f")).To(Equal(refund.StatusProcessed))
		})

		It("leaves finalized refunds alone on redelivery", func() {
			seedRefund("rfnd_e", "pay_1", refund.StatusFailed, 500)

			err := processor.Handle(ctx, &queue.Job{ID: "j1", Payload: json.RawMessage(`{"refundId":"rfnd_e"}`)})

			Expect(err).NotTo(HaveOccurred())
			Expect(statusOf("rfnd_e")).To(Equal(refund.StatusFailed))
		})

		It("returns a retryable error for missing refunds", func() {
			err := processor.Handle(ctx, &queue.Job{ID: "j1", Payload: json.RawMessage(`{"refundId":"rfnd_missing"}`)})

			Expect(errors.Is(err, refund.ErrNotFound)).To(BeTrue())
			Expect(queue.IsPermanent(err)).To(BeFalse())
		})

		It("marks the refund failed when its payment vanished", func() {
			seedRefund("rfnd_f", "pay_gone", refund.StatusPending, 500)

			err := processor.Handle(ctx, &queue.Job{ID: "j1", Payload: json.RawMessage(`{"refundId":"rfnd_f"}`)})

			Expect(errors.Is(err, refund.ErrPaymentNotFound)).To(BeTrue())
			Expect(statusOf("rfnd_f")).To(Equal(refund.StatusFailed))
		})
	})

	Describe("Handler", func() {
		var router chi.Router

		BeforeEach(func() {
			handler := refund.NewHandler(service, transport.NewBaseHandler(logger))
			router = chi.NewRouter()
			router.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					next.ServeHTTP(w, r.WithContext(internal.ContextWithMerchantID(r.Context(), "m1")))
				})
			})
			router.Post("/payments/{paymentId}/refunds", handler.CreateRefund)
			router.Get("/refunds/{refundId}", handler.GetRefund)
		})

		It("creates and fetches a refund", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/pay_1/refunds", strings.NewReader(`{"amount":5000,"reason":"dup"}`)))
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var created map[string]interface{}
			Expect(json.Unmarshal(rec.Body.Bytes(), &created)).To(Succeed())
			Expect(created).To(HaveKeyWithValue("payment_id", "pay_1"))
			Expect(created).To(HaveKeyWithValue("status", "pending"))
			Expect(created).NotTo(HaveKey("merchant_id"))

			rec = httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/refunds/"+created["id"].(string), nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("renders 404 for unknown refunds", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/refunds/rfnd_nope", nil))

			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(rec.Body.String()).To(MatchJSON(`{"error":{"code":"NOT_FOUND_ERROR","description":"Refund not found"}}`))
		})
	})
})

func strPtr(s string) *string { return &s }

