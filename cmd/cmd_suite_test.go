package cmd

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/auth"
	"github.com/frahmantamala/payment-gateway/internal/core/events"
	"github.com/frahmantamala/payment-gateway/internal/queue"
	"github.com/frahmantamala/payment-gateway/internal/storetest"
	"github.com/frahmantamala/payment-gateway/internal/webhook"
)

func TestCmd(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Payment Gateway Suite")
}

type delivery struct {
	body      []byte
	signature string
}

type merchantEndpoint struct {
	mu  sync.Mutex
	got []delivery
}

func (m *merchantEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	m.mu.Lock()
	m.got = append(m.got, delivery{body: body, signature: r.Header.Get(webhook.SignatureHeader)})
	m.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (m *merchantEndpoint) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, d := range m.got {
		var env events.WebhookEnvelope
		if json.Unmarshal(d.body, &env) == nil {
			out = append(out, env.Event)
		}
	}
	return out
}

var _ = Describe("Payment gateway", func() {
	var (
		lg       *slog.Logger
		cfg      *internal.Config
		infra    *Infra
		services *Services
		router   *chi.Mux
		endpoint *merchantEndpoint
		hookSrv  *httptest.Server
		cancel   context.CancelFunc
		done     <-chan error
	)

	BeforeEach(func() {
		lg = slog.New(slog.NewTextHandler(io.Discard, nil))
		cfg = &internal.Config{}
		cfg.Queue.Driver = "memory"
		cfg.Queue.PollInterval = 5 * time.Millisecond
		cfg.Queue.BackoffBase = 10 * time.Millisecond
		cfg.Processing.TestMode = true
		cfg.Processing.TestProcessingDelay = time.Millisecond
		cfg.Processing.TestPaymentSuccess = true
		cfg.Security.JWTSecret = strings.Repeat("s", 32)
		cfg.Security.BCryptCost = 4
		cfg.SetDefaults()

		gormDB := storetest.MustNewDB()
		sqlDB, err := gormDB.DB()
		Expect(err).NotTo(HaveOccurred())

		backend, err := newBackend(context.Background(), cfg)
		Expect(err).NotTo(HaveOccurred())
		infra = &Infra{
			Config:  cfg,
			DB:      sqlx.NewDb(sqlDB, "sqlite3"),
			Gorm:    gormDB,
			Backend: backend,
			Queue:   queue.NewClient(backend, cfg.Queue.MaxAttempts),
			Logger:  lg,
		}

		services = newServices(cfg, infra.Gorm, infra.Queue, lg)
		_, err = services.Auth.SeedTestMerchant(context.Background())
		Expect(err).NotTo(HaveOccurred())

		router, err = newRouter("*", true, services, infra, lg)
		Expect(err).NotTo(HaveOccurred())

		endpoint = &merchantEndpoint{}
		hookSrv = httptest.NewServer(endpoint)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done, err = startInProcessWorkers(ctx, cfg, infra, services, lg)
		Expect(err).NotTo(HaveOccurred())
		Expect(done).NotTo(BeNil())
	})

	AfterEach(func() {
		cancel()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))
		hookSrv.Close()
		infra.Close()
	})

	call := func(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	merchant := map[string]string{
		auth.HeaderAPIKey:    auth.TestMerchantAPIKey,
		auth.HeaderAPISecret: auth.TestMerchantAPISecret,
	}

	withHeader := func(base map[string]string, k, v string) map[string]string {
		out := map[string]string{k: v}
		for bk, bv := range base {
			out[bk] = bv
		}
		return out
	}

	decode := func(rec *httptest.ResponseRecorder) map[string]interface{} {
		var out map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed(), rec.Body.String())
		return out
	}

	It("takes a payment and a refund through the workers and notifies the merchant", func() {
		rec := call(http.MethodPut, "/api/v1/webhooks", `{"webhook_url":"`+hookSrv.URL+`","webhook_secret":"whsec_test_abc123"}`, merchant)
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())

		rec = call(http.MethodPost, "/api/v1/orders", `{"amount":50000,"currency":"INR","receipt":"r-1"}`, merchant)
		Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())
		orderID := decode(rec)["id"].(string)

		payBody := `{"order_id":"` + orderID + `","method":"upi","vpa":"user@paytm"}`
		first := call(http.MethodPost, "/api/v1/payments", payBody, withHeader(merchant, "Idempotency-Key", "idem-1"))
		Expect(first.Code).To(Equal(http.StatusCreated), first.Body.String())
		replay := call(http.MethodPost, "/api/v1/payments", payBody, withHeader(merchant, "Idempotency-Key", "idem-1"))
		Expect(replay.Code).To(Equal(http.StatusCreated))
		Expect(replay.Body.Bytes()).To(Equal(first.Body.Bytes()))

		paymentID := decode(first)["id"].(string)
		Expect(decode(first)["status"]).To(Equal("pending"))

		Eventually(func() interface{} {
			return decode(call(http.MethodGet, "/api/v1/payments/"+paymentID, "", merchant))["status"]
		}, 5*time.Second, 20*time.Millisecond).Should(Equal("success"))

		rec = call(http.MethodPost, "/api/v1/payments/"+paymentID+"/refunds", `{"amount":20000,"reason":"damaged"}`, merchant)
		Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())
		refundID := decode(rec)["id"].(string)

		rec = call(http.MethodPost, "/api/v1/payments/"+paymentID+"/refunds", `{"amount":40000}`, merchant)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(rec.Body.String()).To(ContainSubstring("Refund amount exceeds available amount"))

		Eventually(func() interface{} {
			return decode(call(http.MethodGet, "/api/v1/refunds/"+refundID, "", merchant))["status"]
		}, 5*time.Second, 20*time.Millisecond).Should(Equal("processed"))

		Eventually(endpoint.events, 5*time.Second, 20*time.Millisecond).Should(ConsistOf(
			events.EventPaymentSuccess, events.EventRefundProcessed,
		))
		endpoint.mu.Lock()
		for _, d := range endpoint.got {
			Expect(webhook.Verify(auth.TestMerchantWebhookSecret, d.body, d.signature)).To(BeTrue())
		}
		endpoint.mu.Unlock()

		Eventually(func() float64 {
			return decode(call(http.MethodGet, "/api/v1/webhooks", "", merchant))["total"].(float64)
		}, 5*time.Second, 20*time.Millisecond).Should(Equal(2.0))

		Eventually(func() map[string]interface{} {
			return decode(call(http.MethodGet, "/api/v1/test/jobs/status", "", nil))
		}, 5*time.Second, 20*time.Millisecond).Should(And(
			HaveKeyWithValue("completed", 4.0),
			HaveKeyWithValue("worker_status", "running"),
		))
	})

	It("accepts a bearer token issued for the api credentials", func() {
		rec := call(http.MethodPost, "/api/v1/auth/token", `{"api_key":"key_test_abc123","api_secret":"secret_test_xyz789"}`, nil)
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())
		token := decode(rec)["access_token"].(string)

		rec = call(http.MethodPost, "/api/v1/orders", `{"amount":100}`, map[string]string{"Authorization": "Bearer " + token})
		Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())
		Expect(decode(rec)["merchant_id"]).To(Equal(auth.TestMerchantID))
	})

	It("rejects requests without credentials", func() {
		rec := call(http.MethodGet, "/api/v1/payments", "", nil)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(rec.Body.String()).To(MatchJSON(`{"error":{"code":"AUTHENTICATION_ERROR","description":"Invalid API credentials"}}`))
	})

	It("rejects bodies that do not match the openapi document", func() {
		rec := call(http.MethodPost, "/api/v1/orders", `{"amount":"lots"}`, merchant)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(decode(rec)["error"]).To(HaveKeyWithValue("code", "BAD_REQUEST_ERROR"))
	})

	It("keeps the handler's validation message for well-typed bodies", func() {
		rec := call(http.MethodPost, "/api/v1/orders", `{"amount":99}`, merchant)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(decode(rec)["error"]).To(HaveKeyWithValue("description", "amount must be at least 100"))
	})

	It("serves the test merchant, health and the api document", func() {
		rec := call(http.MethodGet, "/api/v1/test/merchant", "", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(decode(rec)).To(HaveKeyWithValue("api_key", auth.TestMerchantAPIKey))

		rec = call(http.MethodGet, "/health", "", nil)
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())
		Expect(decode(rec)["components"]).To(HaveKey("queue"))

		rec = call(http.MethodGet, "/ping", "", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		rec = call(http.MethodGet, "/openapi.yml", "", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("openapi: 3.0.3"))

		rec = call(http.MethodGet, "/nowhere", "", nil)
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("refuses to register an unknown queue", func() {
		consumer := queue.NewConsumer(infra.Backend, consumerOptions(cfg.Queue), nil, lg)
		err := services.registerWorkers(consumer, cfg, infra.Queue, []string{"email"}, lg)
		Expect(err).To(HaveOccurred())
	})

	It("leaves a shared queue driver to the worker process", func() {
		shared := *cfg
		shared.Queue.Driver = "redis"
		workers, err := startInProcessWorkers(context.Background(), &shared, infra, services, lg)
		Expect(err).NotTo(HaveOccurred())
		Expect(workers).To(BeNil())
	})

	It("drains the in-process workers when the server context ends", func() {
		rec := call(http.MethodPost, "/api/v1/orders", `{"amount":1000,"currency":"INR"}`, merchant)
		Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())
		orderID := decode(rec)["id"].(string)

		rec = call(http.MethodPost, "/api/v1/payments", `{"order_id":"`+orderID+`","method":"upi","vpa":"user@paytm"}`, merchant)
		Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())
		paymentID := decode(rec)["id"].(string)

		Eventually(func() interface{} {
			return decode(call(http.MethodGet, "/api/v1/payments/"+paymentID, "", merchant))["status"]
		}, 5*time.Second, 20*time.Millisecond).Should(Equal("success"))

		cancel()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))
		done = closedDone()
	})
})

func closedDone() <-chan error {
	ch := make(chan error, 1)
	ch <- nil
	return ch
}
