package validation_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/core/common/validation"
)

func TestValidation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Validation Suite")
}

var _ = Describe("payment method validation", func() {
	now := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

	DescribeTable("IsValidVPA",
		func(vpa string, expected bool) {
			Expect(validation.IsValidVPA(vpa)).To(Equal(expected))
		},
		Entry("plain handle", "user@upi", true),
		Entry("dots and dashes", "first.last-1_x@okbank", true),
		Entry("missing bank", "user@", false),
		Entry("missing at sign", "userupi", false),
		Entry("dotted bank", "user@ok.bank", false),
		Entry("empty", "", false),
	)

	DescribeTable("LuhnCheck",
		func(number string, expected bool) {
			Expect(validation.LuhnCheck(number)).To(Equal(expected))
		},
		Entry("visa test card", "4111111111111111", true),
		Entry("with spaces", "4111 1111 1111 1111", true),
		Entry("bad checksum", "4111111111111112", false),
		Entry("too short", "411111111111", false),
		Entry("too long", "41111111111111111111", false),
	)

	DescribeTable("DetectNetwork",
		func(number, expected string) {
			Expect(validation.DetectNetwork(number)).To(Equal(expected))
		},
		Entry("visa", "4111111111111111", validation.NetworkVisa),
		Entry("mastercard", "5500000000000004", validation.NetworkMastercard),
		Entry("amex", "378282246310005", validation.NetworkAmex),
		Entry("rupay 60", "6011111111111117", validation.NetworkRupay),
		Entry("rupay 8x", "8111111111111111", validation.NetworkRupay),
		Entry("unknown", "9111111111111111", validation.NetworkUnknown),
		Entry("50 is not mastercard", "5011111111111111", validation.NetworkUnknown),
	)

	DescribeTable("IsValidExpiry",
		func(month, year string, expected bool) {
			Expect(validation.IsValidExpiry(month, year, now)).To(Equal(expected))
		},
		Entry("current month", "03", "2026", true),
		Entry("two digit year", "12", "27", true),
		Entry("previous month", "02", "26", false),
		Entry("month out of range", "13", "2030", false),
		Entry("not a number", "ab", "2030", false),
	)

	Describe("ValidateCard", func() {
		It("reports missing fields as INVALID_CARD", func() {
			err := validation.ValidateCard(&validation.CardInput{Number: "4111111111111111"}, now)

			Expect(err).NotTo(BeNil())
			Expect(err.Code).To(Equal(internal.ErrCodeInvalidCard))
			Expect(err.Message).To(Equal("Missing card fields"))
		})

		It("reports expired cards as EXPIRED_CARD", func() {
			err := validation.ValidateCard(&validation.CardInput{
				Number: "4111111111111111", ExpiryMonth: "01", ExpiryYear: "2020", CVV: "123",
			}, now)

			Expect(err).NotTo(BeNil())
			Expect(err.Code).To(Equal(internal.ErrCodeExpiredCard))
		})

		It("accepts a valid card", func() {
			err := validation.ValidateCard(&validation.CardInput{
				Number: "4111111111111111", ExpiryMonth: "12", ExpiryYear: "2030", CVV: "123",
			}, now)

			Expect(err).To(BeNil())
		})
	})

	Describe("ValidateOrderAmount", func() {
		It("rejects amounts below 100", func() {
			err := validation.ValidateOrderAmount(99)

			Expect(err).NotTo(BeNil())
			Expect(err.Code).To(Equal(internal.ErrCodeBadRequest))
			Expect(err.Message).To(Equal("amount must be at least 100"))
		})

		It("accepts 100", func() {
			Expect(validation.ValidateOrderAmount(100)).To(BeNil())
		})
	})
})
