package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/payment-gateway/internal/auth"
	"github.com/frahmantamala/payment-gateway/internal/order"
	"github.com/frahmantamala/payment-gateway/internal/payment"
	"github.com/frahmantamala/payment-gateway/internal/refund"
	"github.com/frahmantamala/payment-gateway/internal/transport/middleware"
	"github.com/frahmantamala/payment-gateway/internal/transport/swagger"
	"github.com/frahmantamala/payment-gateway/internal/webhook"
)

type Handlers struct {
	Auth     *auth.Handler
	Orders   *order.Handler
	Payments *payment.Handler
	Refunds  *refund.Handler
	Webhooks *webhook.Handler
	Health   *HealthHandler
	Jobs     *JobsHandler
}

type Options struct {
	AllowedOrigins string
	// Validator is optional; when nil requests reach handlers unvalidated.
	Validator *middleware.OpenAPIValidator
	Spec      []byte
}

func RegisterAllRoutes(router chi.Router, h Handlers, opts Options, logger *slog.Logger) {
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	if len(opts.Spec) > 0 {
		router.Get(swagger.SpecPath, swagger.SpecHandler(opts.Spec))
		router.Handle("/swagger/*", swagger.Handler())
	}

	if h.Health != nil {
		router.Get("/health", h.Health.Health)
		router.Get("/ping", h.Health.Ping)
	}

	router.Route("/api/v1", func(r chi.Router) {
		if opts.Validator != nil {
			r.Use(opts.Validator.Middleware)
		}

		r.Post("/auth/token", h.Auth.IssueToken)

		// public checkout and test endpoints
		r.Get("/orders/{orderId}/public", h.Orders.GetPublicOrder)
		r.Post("/payments/public", h.Payments.CreatePublicPayment)
		r.Get("/payments/{paymentId}/public", h.Payments.GetPublicPayment)
		r.Get("/test/merchant", h.Auth.TestMerchant)
		if h.Jobs != nil {
			r.Get("/test/jobs/status", h.Jobs.Status)
		}

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Post("/orders", h.Orders.CreateOrder)
			pr.Get("/orders/{orderId}", h.Orders.GetOrder)

			pr.Post("/payments", h.Payments.CreatePayment)
			pr.Get("/payments", h.Payments.ListPayments)
			pr.Get("/payments/{paymentId}", h.Payments.GetPayment)
			pr.Post("/payments/{paymentId}/capture", h.Payments.CapturePayment)
			pr.Post("/payments/{paymentId}/refunds", h.Refunds.CreateRefund)

			pr.Get("/refunds/{refundId}", h.Refunds.GetRefund)

			pr.Get("/webhooks", h.Webhooks.ListLogs)
			pr.Put("/webhooks", h.Webhooks.UpdateConfig)
			pr.Post("/webhooks/{webhookId}/retry", h.Webhooks.RetryLog)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": map[string]string{"code": "NOT_FOUND_ERROR", "description": "Route not found"},
		})
	})
}
