package payment

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/idempotency"
	"github.com/frahmantamala/payment-gateway/internal/transport"
)

type ServiceAPI interface {
	CreatePayment(ctx context.Context, merchantID, idempotencyKey string, req *CreatePaymentRequest) ([]byte, error)
	CreatePublicPayment(ctx context.Context, req *CreatePaymentRequest) (*Payment, error)
	GetPayment(ctx context.Context, merchantID, id string) (*Payment, error)
	GetPublicPayment(ctx context.Context, id string) (*PublicPayment, error)
	ListPayments(ctx context.Context, merchantID string) ([]*Payment, error)
	CapturePayment(ctx context.Context, merchantID, id string) (*Payment, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI, base *transport.BaseHandler) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     service,
	}
}

// CreatePayment handles POST /api/v1/payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	body, err := h.Service.CreatePayment(r.Context(), errors.MerchantIDFromContext(r.Context()), r.Header.Get(idempotency.HeaderKey), &req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteRawJSON(w, http.StatusCreated, body)
}

// CreatePublicPayment handles POST /api/v1/payments/public
func (h *Handler) CreatePublicPayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	p, err := h.Service.CreatePublicPayment(r.Context(), &req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, p)
}

// ListPayments handles GET /api/v1/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Service.ListPayments(r.Context(), errors.MerchantIDFromContext(r.Context()))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, payments)
}

// GetPayment handles GET /api/v1/payments/{paymentId}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetPayment(r.Context(), errors.MerchantIDFromContext(r.Context()), chi.URLParam(r, "paymentId"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// GetPublicPayment handles GET /api/v1/payments/{paymentId}/public
func (h *Handler) GetPublicPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetPublicPayment(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// CapturePayment handles POST /api/v1/payments/{paymentId}/capture
func (h *Handler) CapturePayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.CapturePayment(r.Context(), errors.MerchantIDFromContext(r.Context()), chi.URLParam(r, "paymentId"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}
