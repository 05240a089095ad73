package utils

import (
	"fmt"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/turtacn/keystore/pkg/errors"
)

// MaxOwnerIDLength matches the owner column width of the SQL backends.
const MaxOwnerIDLength = 255

// Validator holds the singleton instance of the validator.
var defaultValidator *validator.Validate

func init() {
	defaultValidator = validator.New()
	// Register custom validation functions
	_ = defaultValidator.RegisterValidation("printable", validatePrintable)
}

// ValidateOwnerID checks a user id taken from a URL segment or a command line.
// Ids are otherwise opaque: any printable text up to MaxOwnerIDLength runes is accepted.
func ValidateOwnerID(id string) error {
	err := defaultValidator.Var(id, fmt.Sprintf("required,max=%d,printable", MaxOwnerIDLength))
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return errors.ErrInvalidRequest("user id " + formatValidationError(fieldErrs[0]))
	}
	return errors.ErrInvalidRequest("user id is invalid").WithCause(err)
}

// validatePrintable rejects control characters and invalid UTF-8.
func validatePrintable(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// formatValidationError creates a user-friendly error message for a validation error.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "printable":
		return "must not contain control characters"
	default:
		return fmt.Sprintf("failed on the '%s' tag", fe.Tag())
	}
}

//Personal.AI order the ending
