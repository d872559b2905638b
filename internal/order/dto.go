package order

import (
	"bytes"
	"encoding/json"

	errors "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/core/common/validation"
)

type CreateOrderRequest struct {
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Receipt  *string         `json:"receipt"`
	Notes    json.RawMessage `json:"notes"`
}

func (r *CreateOrderRequest) Validate() *errors.AppError {
	if appErr := validation.ValidateOrderAmount(r.Amount); appErr != nil {
		return appErr
	}

	validator := validation.NewValidator()
	if r.Receipt != nil {
		validator.Field("receipt", *r.Receipt).MaxLength(255)
	}
	validator.Field("notes", r.Notes).Custom(func(v interface{}) *errors.AppError {
		notes := bytes.TrimSpace(r.Notes)
		if len(notes) == 0 || bytes.Equal(notes, []byte("null")) {
			return nil
		}
		var obj map[string]interface{}
		if err := json.Unmarshal(notes, &obj); err != nil {
			return errors.NewValidationFieldError("notes", "notes must be a JSON object", errors.ErrCodeBadRequest)
		}
		return nil
	})
	return validator.Validate()
}

// Normalize applies defaults once validation passed.
func (r *CreateOrderRequest) Normalize() {
	if r.Currency == "" {
		r.Currency = DefaultCurrency
	}
	notes := bytes.TrimSpace(r.Notes)
	if len(notes) == 0 || bytes.Equal(notes, []byte("null")) {
		r.Notes = json.RawMessage(`{}`)
	}
	if r.Receipt != nil && *r.Receipt == "" {
		r.Receipt = nil
	}
}
