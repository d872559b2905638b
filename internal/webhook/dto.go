package webhook

import (
	"net/url"

	errors "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/core/common/validation"
)

type ConfigRequest struct {
	WebhookURL    *string `json:"webhook_url"`
	WebhookSecret *string `json:"webhook_secret"`
}

func (r *ConfigRequest) Validate() *errors.AppError {
	validator := validation.NewValidator()
	if r.WebhookURL != nil && *r.WebhookURL != "" {
		validator.Field("webhook_url", *r.WebhookURL).
			MaxLength(2048).
			Custom(func(v interface{}) *errors.AppError {
				u, err := url.Parse(*r.WebhookURL)
				if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
					return errors.NewValidationFieldError("webhook_url", "webhook_url must be an http(s) URL", errors.ErrCodeBadRequest)
				}
				return nil
			})
	}
	if r.WebhookSecret != nil {
		validator.Field("webhook_secret", *r.WebhookSecret).MaxLength(255)
	}
	return validator.Validate()
}

// Normalize turns empty strings into nil so they clear the stored value.
func (r *ConfigRequest) Normalize() {
	if r.WebhookURL != nil && *r.WebhookURL == "" {
		r.WebhookURL = nil
	}
	if r.WebhookSecret != nil && *r.WebhookSecret == "" {
		r.WebhookSecret = nil
	}
}

type ConfigResponse struct {
	WebhookURL    *string `json:"webhook_url"`
	WebhookSecret *string `json:"webhook_secret"`
}

type RetryResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// MaskSecret keeps the first ten characters.
func MaskSecret(secret string) string {
	r := []rune(secret)
	if len(r) > 10 {
		r = r[:10]
	}
	return string(r) + "***"
}
