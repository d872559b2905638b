package order_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/order"
	"github.com/frahmantamala/payment-gateway/internal/order/postgres"
	"github.com/frahmantamala/payment-gateway/internal/storetest"
	"github.com/frahmantamala/payment-gateway/internal/transport"
)

func TestOrder(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Order Suite")
}

var _ = Describe("Order", func() {
	var (
		ctx     context.Context
		service *order.Service
		handler *order.Handler
		router  chi.Router
		logger  *slog.Logger
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		db := storetest.MustNewDB()
		service = order.NewService(postgres.NewOrderRepository(db), logger)
		handler = order.NewHandler(service, transport.NewBaseHandler(logger))

		router = chi.NewRouter()
		router.Group(func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					next.ServeHTTP(w, r.WithContext(internal.ContextWithMerchantID(r.Context(), "m1")))
				})
			})
			r.Post("/orders", handler.CreateOrder)
			r.Get("/orders/{orderId}", handler.GetOrder)
		})
		router.Get("/orders/{orderId}/public", handler.GetPublicOrder)
	})

	Describe("Service.CreateOrder", func() {
		It("creates an order with defaults applied", func() {
			// Given
			req := &order.CreateOrderRequest{Amount: 50000}

			// When
			o, err := service.CreateOrder(ctx, "m1", req)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(o.ID).To(HavePrefix("order_"))
			Expect(o.Currency).To(Equal("INR"))
			Expect(o.Status).To(Equal(order.StatusCreated))
			Expect(string(o.Notes)).To(Equal("{}"))
		})

		It("rejects amounts below 100", func() {
			_, err := service.CreateOrder(ctx, "m1", &order.CreateOrderRequest{Amount: 99})

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(appErr.Message).To(Equal("amount must be at least 100"))
		})

		It("rejects notes that are not an object", func() {
			_, err := service.CreateOrder(ctx, "m1", &order.CreateOrderRequest{Amount: 100, Notes: json.RawMessage(`[1,2]`)})

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Service.GetOrder", func() {
		It("hides orders of other merchants", func() {
			o, err := service.CreateOrder(ctx, "m1", &order.CreateOrderRequest{Amount: 1000})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.GetOrder(ctx, "m2", o.ID)

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeNotFound))
		})
	})

	Describe("Handler", func() {
		It("creates and fetches an order over HTTP", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"amount":50000,"receipt":"rcpt_1","notes":{"k":"v"}}`)))
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var created order.Order
			Expect(json.Unmarshal(rec.Body.Bytes(), &created)).To(Succeed())
			Expect(*created.Receipt).To(Equal("rcpt_1"))

			rec = httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/"+created.ID+"/public", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"id":"` + created.ID + `","amount":50000,"currency":"INR","status":"created"}`))
		})

		It("renders validation failures in the error envelope", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"amount":10}`)))

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			var body map[string]map[string]interface{}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body["error"]).To(HaveKeyWithValue("code", "BAD_REQUEST_ERROR"))
			Expect(body["error"]).To(HaveKeyWithValue("description", "amount must be at least 100"))
		})

		It("returns 404 for unknown orders", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/order_missing", nil))

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})
})
