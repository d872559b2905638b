package validation

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	errors "github.com/frahmantamala/payment-gateway/internal"
)

const (
	NetworkVisa       = "visa"
	NetworkMastercard = "mastercard"
	NetworkAmex       = "amex"
	NetworkRupay      = "rupay"
	NetworkUnknown    = "unknown"
)

var (
	vpaPattern        = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9]+$`)
	mastercardPattern = regexp.MustCompile(`^5[1-5]`)
	amexPattern       = regexp.MustCompile(`^3[47]`)
	rupayPattern      = regexp.MustCompile(`^(60|65|8[1-9])`)
)

func IsValidVPA(vpa string) bool {
	return vpaPattern.MatchString(vpa)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LuhnCheck ignores non-digit separators and accepts 13 to 19 digits.
func LuhnCheck(cardNumber string) bool {
	num := digitsOnly(cardNumber)
	if len(num) < 13 || len(num) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(num) - 1; i >= 0; i-- {
		d := int(num[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func DetectNetwork(cardNumber string) string {
	n := digitsOnly(cardNumber)
	switch {
	case strings.HasPrefix(n, "4"):
		return NetworkVisa
	case mastercardPattern.MatchString(n):
		return NetworkMastercard
	case amexPattern.MatchString(n):
		return NetworkAmex
	case rupayPattern.MatchString(n):
		return NetworkRupay
	}
	return NetworkUnknown
}

// IsValidExpiry accepts the current month or later. Two digit years are read as 20YY.
func IsValidExpiry(month, year string, now time.Time) bool {
	mm, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil || mm < 1 || mm > 12 {
		return false
	}
	yy, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return false
	}
	if yy < 100 {
		yy += 2000
	}

	expiry := time.Date(yy, time.Month(mm), 1, 0, 0, 0, 0, time.UTC)
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return !expiry.Before(current)
}

func LastFour(cardNumber string) string {
	n := digitsOnly(cardNumber)
	if len(n) <= 4 {
		return n
	}
	return n[len(n)-4:]
}

func ValidateVPA(vpa string) *errors.AppError {
	validator := NewValidator()
	validator.Field("vpa", vpa).
		Custom(func(v interface{}) *errors.AppError {
			if !IsValidVPA(vpa) {
				return errors.NewValidationFieldError("vpa", "Invalid VPA format", errors.ErrCodeInvalidVPA)
			}
			return nil
		})
	return validator.Validate()
}

type CardInput struct {
	Number      string
	ExpiryMonth string
	ExpiryYear  string
	CVV         string
}

func ValidateCard(card *CardInput, now time.Time) *errors.AppError {
	if card == nil || card.Number == "" || card.ExpiryMonth == "" || card.ExpiryYear == "" || card.CVV == "" {
		return errors.NewValidationFieldError("card", "Missing card fields", errors.ErrCodeInvalidCard)
	}

	validator := NewValidator()
	validator.Field("card.number", card.Number).
		Custom(func(v interface{}) *errors.AppError {
			if !LuhnCheck(card.Number) {
				return errors.NewValidationFieldError("card.number", "Card number invalid", errors.ErrCodeInvalidCard)
			}
			return nil
		})
	validator.Field("card.expiry", card.ExpiryMonth+"/"+card.ExpiryYear).
		Custom(func(v interface{}) *errors.AppError {
			if !IsValidExpiry(card.ExpiryMonth, card.ExpiryYear, now) {
				return errors.NewValidationFieldError("card.expiry", "Card expiry is invalid or expired", errors.ErrCodeExpiredCard)
			}
			return nil
		})
	return validator.Validate()
}
