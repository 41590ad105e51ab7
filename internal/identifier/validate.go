package identifier

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrEmpty is returned when the identifier is blank.
	ErrEmpty = errors.New("identifier is required")
	// ErrMalformed is returned when a normalized identifier is neither a valid E.164 phone number nor a valid email.
	ErrMalformed = errors.New("identifier is not a valid phone number or email")
)

var validate = validator.New()

// Validate checks a normalized identifier. Normalize itself never rejects input; callers that
// accept identifiers from users validate the normalized form before using it as a key.
func Validate(id Identifier) error {
	if id == "" {
		return ErrEmpty
	}
	var tag string
	switch id.Kind() {
	case KindEmail:
		tag = "email"
	case KindPhone:
		tag = "e164"
	default:
		return ErrMalformed
	}
	if err := validate.Var(string(id), tag); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformed, id.Kind())
	}
	return nil
}
