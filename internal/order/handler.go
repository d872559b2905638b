package order

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/transport"
)

type ServiceAPI interface {
	CreateOrder(ctx context.Context, merchantID string, req *CreateOrderRequest) (*Order, error)
	GetOrder(ctx context.Context, merchantID, id string) (*Order, error)
	GetOrderByID(ctx context.Context, id string) (*Order, error)
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

// CreateOrder handles POST /api/v1/orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	o, err := h.Service.CreateOrder(r.Context(), errors.MerchantIDFromContext(r.Context()), &req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, o)
}

// GetOrder handles GET /api/v1/orders/{orderId}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Service.GetOrder(r.Context(), errors.MerchantIDFromContext(r.Context()), chi.URLParam(r, "orderId"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, o)
}

// GetPublicOrder handles GET /api/v1/orders/{orderId}/public
func (h *Handler) GetPublicOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Service.GetOrderByID(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, o.Public())
}
