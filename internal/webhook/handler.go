package webhook

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/transport"
)

type ServiceAPI interface {
	ListLogs(ctx context.Context, merchantID string, limit, offset int) (*LogPage, error)
	RetryLog(ctx context.Context, merchantID, id string) (*RetryResponse, error)
	UpdateConfig(ctx context.Context, merchantID string, req *ConfigRequest) (*ConfigResponse, error)
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

// ListLogs handles GET /api/v1/webhooks
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	page, err := h.Service.ListLogs(r.Context(), errors.MerchantIDFromContext(r.Context()), limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, page)
}

// RetryLog handles POST /api/v1/webhooks/{webhookId}/retry
func (h *Handler) RetryLog(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Service.RetryLog(r.Context(), errors.MerchantIDFromContext(r.Context()), chi.URLParam(r, "webhookId"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// UpdateConfig handles PUT /api/v1/webhooks
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	resp, err := h.Service.UpdateConfig(r.Context(), errors.MerchantIDFromContext(r.Context()), &req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}
