package validation_test

import (
	"testing"

	"github.com/frahmantamala/hospitality-access/internal"
	"github.com/frahmantamala/hospitality-access/internal/core/common/validation"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestValidation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Validation Suite")
}

var _ = Describe("ValidationBuilder", func() {
	It("passes clean input", func() {
		v := validation.NewValidator()
		validation.ValidateUsername(v, "alice")
		validation.ValidatePassword(v, "password", "p@ss1234")
		Expect(v.Validate()).To(BeNil())
	})

	It("reports one error per failing field", func() {
		v := validation.NewValidator()
		validation.ValidateUsername(v, "")
		validation.ValidatePassword(v, "password", "short")

		err := v.Validate()
		Expect(err).NotTo(BeNil())
		Expect(err.StatusCode).To(Equal(400))

		details, ok := err.Details.(internal.ValidationErrors)
		Expect(ok).To(BeTrue())
		Expect(details.Errors).To(HaveLen(2))
		Expect(details.Errors[0].Field).To(Equal("username"))
		Expect(details.Errors[0].Message).To(Equal("username is required"))
		Expect(details.Errors[1].Message).To(Equal("password must be at least 8 characters"))
	})

	It("rejects usernames with spaces or symbols", func() {
		v := validation.NewValidator()
		validation.ValidateUsername(v, "al ice")
		err := v.Validate()
		Expect(err).NotTo(BeNil())
		Expect(err.Details.(internal.ValidationErrors).Errors[0].Code).To(Equal(string(internal.ErrCodeInvalidUsername)))
	})

	It("restricts values with OneOf", func() {
		v := validation.NewValidator()
		v.Field("effect", "maybe").OneOf([]string{"allow", "deny"}, internal.ErrCodeValidationFailed)
		Expect(v.Validate()).NotTo(BeNil())
	})
})
