package apperr

import (
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("AppError", func() {
	Describe("basic error creation", func() {
		It("should create error with correct properties", func() {
			err := New(ErrorTypeValidation, "test message")

			Expect(err.Type).To(Equal(ErrorTypeValidation))
			Expect(err.Message).To(Equal("test message"))
			Expect(err.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(err.Details).To(BeEmpty())
			Expect(err.Cause).To(BeNil())
		})

		It("should implement the error interface", func() {
			err := New(ErrorTypeValidation, "test message")
			Expect(err.Error()).To(Equal("validation: test message"))
		})

		It("should include details in the error string when present", func() {
			err := New(ErrorTypeValidation, "test message").WithDetails("extra info")
			Expect(err.Error()).To(Equal("validation: test message (extra info)"))
		})
	})

	Describe("error wrapping", func() {
		It("should wrap an underlying error", func() {
			originalErr := errors.New("original error")
			wrapped := Wrap(originalErr, ErrorTypeDatabase, "operation failed")

			Expect(wrapped.Type).To(Equal(ErrorTypeDatabase))
			Expect(wrapped.Message).To(Equal("operation failed"))
			Expect(wrapped.Cause).To(Equal(originalErr))
			Expect(wrapped.Unwrap()).To(Equal(originalErr))
		})

		It("should format wrapped errors with arguments", func() {
			originalErr := errors.New("connection refused")
			wrapped := Wrapf(originalErr, ErrorTypeNetwork, "failed to connect to %s:%d", "localhost", 5432)

			Expect(wrapped.Message).To(Equal("failed to connect to localhost:5432"))
			Expect(wrapped.Cause).To(Equal(originalErr))
		})
	})

	Describe("adding details", func() {
		It("should add details to an existing error in place", func() {
			err := New(ErrorTypeAuth, "authentication failed")
			detailed := err.WithDetails("invalid token")

			Expect(detailed.Details).To(Equal("invalid token"))
			Expect(detailed).To(BeIdenticalTo(err))
		})

		It("should add formatted details", func() {
			err := New(ErrorTypeAuth, "authentication failed")
			detailed := err.WithDetailsf("user %s, attempt %d", "alice", 3)
			Expect(detailed.Details).To(Equal("user alice, attempt 3"))
		})
	})

	Describe("HTTP status code mapping", func() {
		It("should map every error type to the expected HTTP status code", func() {
			cases := []struct {
				errType    ErrorType
				statusCode int
			}{
				{ErrorTypeValidation, http.StatusBadRequest},
				{ErrorTypeAuth, http.StatusUnauthorized},
				{ErrorTypeNotFound, http.StatusNotFound},
				{ErrorTypeConflict, http.StatusConflict},
				{ErrorTypeTimeout, http.StatusRequestTimeout},
				{ErrorTypeRateLimit, http.StatusTooManyRequests},
				{ErrorTypeDatabase, http.StatusInternalServerError},
				{ErrorTypeNetwork, http.StatusInternalServerError},
				{ErrorTypeInternal, http.StatusInternalServerError},
			}

			for _, tc := range cases {
				err := New(tc.errType, "test message")
				Expect(err.StatusCode).To(Equal(tc.statusCode))
			}
		})
	})

	Describe("predefined constructors", func() {
		It("builds a validation error", func() {
			err := NewValidationError("invalid input")
			Expect(err.Type).To(Equal(ErrorTypeValidation))
			Expect(err.Message).To(Equal("invalid input"))
		})

		It("builds a database error", func() {
			original := errors.New("connection lost")
			err := NewDatabaseError("claim_due", original)
			Expect(err.Type).To(Equal(ErrorTypeDatabase))
			Expect(err.Message).To(ContainSubstring("database operation failed: claim_due"))
			Expect(err.Cause).To(Equal(original))
		})

		It("builds a not-found error", func() {
			err := NewNotFoundError("timer")
			Expect(err.Type).To(Equal(ErrorTypeNotFound))
			Expect(err.Message).To(Equal("timer not found"))
		})

		It("builds a conflict error", func() {
			err := NewConflictError("timer is already in a terminal state")
			Expect(err.Type).To(Equal(ErrorTypeConflict))
		})
	})

	Describe("error type checking", func() {
		It("identifies error types correctly", func() {
			validationErr := NewValidationError("test")
			authErr := NewAuthError("test")

			Expect(IsType(validationErr, ErrorTypeValidation)).To(BeTrue())
			Expect(IsType(validationErr, ErrorTypeAuth)).To(BeFalse())
			Expect(IsType(authErr, ErrorTypeAuth)).To(BeTrue())
		})

		It("treats non-AppError values as internal", func() {
			regular := errors.New("regular error")
			Expect(IsType(regular, ErrorTypeValidation)).To(BeFalse())
			Expect(GetType(regular)).To(Equal(ErrorTypeInternal))
		})

		It("reports the correct status code", func() {
			Expect(GetStatusCode(NewValidationError("test"))).To(Equal(http.StatusBadRequest))
			Expect(GetStatusCode(errors.New("regular error"))).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("safe error messages", func() {
		It("passes validation messages through but redacts everything else", func() {
			Expect(SafeErrorMessage(NewValidationError("execute_at must be at least 5 seconds in the future"))).
				To(Equal("execute_at must be at least 5 seconds in the future"))
			Expect(SafeErrorMessage(New(ErrorTypeNotFound, "internal detail"))).To(Equal(ErrorMessages.ResourceNotFound))
			Expect(SafeErrorMessage(New(ErrorTypeDatabase, "internal detail"))).To(Equal("An internal error occurred"))
		})

		It("returns a generic message for non-AppError values", func() {
			Expect(SafeErrorMessage(errors.New("internal panic"))).To(Equal("An unexpected error occurred"))
		})
	})

	Describe("logging fields", func() {
		It("generates structured fields for a wrapped error with details", func() {
			original := errors.New("connection failed")
			err := Wrapf(original, ErrorTypeDatabase, "claim failed").WithDetails("timer_id: abc")

			fields := LogFields(err)
			Expect(fields).To(HaveKeyWithValue("error_type", "database"))
			Expect(fields).To(HaveKeyWithValue("status_code", http.StatusInternalServerError))
			Expect(fields).To(HaveKeyWithValue("error_details", "timer_id: abc"))
			Expect(fields).To(HaveKeyWithValue("underlying_error", "connection failed"))
		})

		It("omits optional keys when absent", func() {
			fields := LogFields(NewValidationError("invalid"))
			Expect(fields).NotTo(HaveKey("error_details"))
			Expect(fields).NotTo(HaveKey("underlying_error"))
		})

		It("handles plain errors", func() {
			fields := LogFields(errors.New("regular error"))
			Expect(fields).To(HaveKey("error"))
			Expect(fields).NotTo(HaveKey("error_type"))
		})
	})

	Describe("error chaining", func() {
		It("returns nil for an empty or all-nil list", func() {
			Expect(Chain()).To(BeNil())
			Expect(Chain(nil, nil)).To(BeNil())
		})

		It("returns the single error unchanged", func() {
			original := errors.New("single error")
			Expect(Chain(original)).To(Equal(original))
		})

		It("filters nils and joins the rest", func() {
			err1 := errors.New("error 1")
			err2 := errors.New("error 2")

			err := Chain(err1, nil, err2, nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("error 1"))
			Expect(err.Error()).To(ContainSubstring("error 2"))
			Expect(err.Error()).To(ContainSubstring(" -> "))
		})
	})
})
