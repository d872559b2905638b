package refund

import (
	errors "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/core/common/validation"
)

type CreateRefundRequest struct {
	Amount int64   `json:"amount"`
	Reason *string `json:"reason"`
}

func (r *CreateRefundRequest) Validate() *errors.AppError {
	if appErr := validation.ValidateRefundAmount(r.Amount); appErr != nil {
		return appErr
	}
	if r.Reason != nil {
		validator := validation.NewValidator()
		validator.Field("reason", *r.Reason).MaxLength(500)
		return validator.Validate()
	}
	return nil
}
