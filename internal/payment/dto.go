package payment

import (
	"encoding/json"
	"strconv"
	"time"

	errors "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/core/common/validation"
)

// ExpiryField accepts both "12" and 12 on the wire.
type ExpiryField string

func (e *ExpiryField) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*e = ExpiryField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return err
	}
	*e = ExpiryField(n.String())
	return nil
}

type CardRequest struct {
	Number      string      `json:"number"`
	ExpiryMonth ExpiryField `json:"expiry_month"`
	ExpiryYear  ExpiryField `json:"expiry_year"`
	CVV         string      `json:"cvv"`
	HolderName  string      `json:"holder_name,omitempty"`
}

type CreatePaymentRequest struct {
	OrderID string       `json:"order_id"`
	Method  string       `json:"method"`
	VPA     *string      `json:"vpa,omitempty"`
	Card    *CardRequest `json:"card,omitempty"`
}

// Validate checks the fields needed before the order lookup.
func (r *CreatePaymentRequest) Validate() *errors.AppError {
	validator := validation.NewValidator()
	validator.Field("order_id", r.OrderID).Required(errors.ErrCodeBadRequest)
	validator.Field("method", r.Method).OneOf(MethodUPI, MethodCard)
	return validator.Validate()
}

// ValidateMethod checks the method specific fields. Raw card data never leaves this request.
func (r *CreatePaymentRequest) ValidateMethod(now time.Time) *errors.AppError {
	switch r.Method {
	case MethodUPI:
		vpa := ""
		if r.VPA != nil {
			vpa = *r.VPA
		}
		return validation.ValidateVPA(vpa)
	case MethodCard:
		var card *validation.CardInput
		if r.Card != nil {
			card = &validation.CardInput{
				Number:      r.Card.Number,
				ExpiryMonth: string(r.Card.ExpiryMonth),
				ExpiryYear:  string(r.Card.ExpiryYear),
				CVV:         r.Card.CVV,
			}
		}
		return validation.ValidateCard(card, now)
	}
	return errors.NewBadRequestError("method must be one of [upi card]")
}
