package auth

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/transport"
	"github.com/frahmantamala/payment-gateway/pkg/logger"
)

type ServiceAPI interface {
	Authenticate(ctx context.Context, apiKey, apiSecret string) (*Merchant, error)
	IssueToken(ctx context.Context, dto TokenRequest) (*AuthTokens, error)
	MerchantFromToken(ctx context.Context, token string) (*Merchant, error)
	GetTestMerchant(ctx context.Context) (*Merchant, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI, base *transport.BaseHandler) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     svc,
	}
}

// IssueToken handles POST /api/v1/auth/token
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var dto TokenRequest
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	tokens, err := h.Service.IssueToken(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, tokens)
}

// TestMerchant handles GET /api/v1/test/merchant
func (h *Handler) TestMerchant(w http.ResponseWriter, r *http.Request) {
	m, err := h.Service.GetTestMerchant(r.Context())
	if errors.Is(err, ErrMerchantNotFound) {
		h.WriteJSON(w, http.StatusNotFound, TestMerchantResponse{Seeded: false})
		return
	}
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, TestMerchantResponse{
		ID:     m.ID,
		Email:  m.Email,
		APIKey: m.APIKey,
		Seeded: true,
	})
}

// AuthMiddleware accepts either a Bearer token or the X-Api-Key/X-Api-Secret pair.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			m   *Merchant
			err error
		)

		if token := h.ExtractTokenFromHeader(r); token != "" {
			m, err = h.Service.MerchantFromToken(r.Context(), token)
		} else {
			m, err = h.Service.Authenticate(r.Context(), r.Header.Get(HeaderAPIKey), r.Header.Get(HeaderAPISecret))
		}
		if err != nil {
			if _, ok := apperrors.IsAppError(err); !ok {
				h.Logger.Error("merchant authentication failed", "error", err)
			}
			h.HandleServiceError(w, err)
			return
		}

		ctx := apperrors.ContextWithMerchantID(r.Context(), m.ID)
		ctx = logger.With(ctx, "merchant_id", m.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
