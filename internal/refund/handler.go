package refund

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/transport"
)

type ServiceAPI interface {
	CreateRefund(ctx context.Context, merchantID, paymentID string, req *CreateRefundRequest) (*Refund, error)
	GetRefund(ctx context.Context, merchantID, id string) (*Refund, error)
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

// CreateRefund handles POST /api/v1/payments/{paymentId}/refunds
func (h *Handler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	var req CreateRefundRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	rf, err := h.Service.CreateRefund(r.Context(), errors.MerchantIDFromContext(r.Context()), chi.URLParam(r, "paymentId"), &req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, rf.Created())
}

// GetRefund handles GET /api/v1/refunds/{refundId}
func (h *Handler) GetRefund(w http.ResponseWriter, r *http.Request) {
	rf, err := h.Service.GetRefund(r.Context(), errors.MerchantIDFromContext(r.Context()), chi.URLParam(r, "refundId"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, rf)
}
