package auth

import (
	errors "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/core/common/validation"
)

// TokenRequest exchanges API credentials for a bearer token.
type TokenRequest struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

func (d TokenRequest) Validate() *errors.AppError {
	validator := validation.NewValidator()
	validator.Field("api_key", d.APIKey).Required(errors.ErrCodeBadRequest)
	validator.Field("api_secret", d.APISecret).Required(errors.ErrCodeBadRequest)
	return validator.Validate()
}

// TestMerchantResponse is served by the test merchant lookup.
type TestMerchantResponse struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	APIKey string `json:"api_key"`
	Seeded bool   `json:"seeded"`
}
