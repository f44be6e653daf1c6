package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrNoMatches is returned when a successful upstream reply carries no
// matches list for the requested league and gameweek.
var ErrNoMatches = errors.New("no matches found for the given league code and gameweek")

// ValidationError reports caller input rejected before any upstream contact.
type ValidationError struct {
	Field string
	Value any
	Rule  string
}

func (e *ValidationError) Error() string {
	switch e.Rule {
	case "oneof":
		return fmt.Sprintf("invalid %s %v: must be one of %s", e.Field, e.Value, strings.Join(LeagueCodes(), ", "))
	case "min", "max":
		return fmt.Sprintf("invalid %s %v: must be between %d and %d", e.Field, e.Value, MinGameweek, MaxGameweek)
	case "gt":
		return fmt.Sprintf("invalid %s %v: must be positive", e.Field, e.Value)
	case "required":
		return fmt.Sprintf("%s is required", e.Field)
	default:
		return fmt.Sprintf("invalid %s %v", e.Field, e.Value)
	}
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// fromValidator converts the first failed rule into a *ValidationError.
func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate input: %w", err)
	}
	fe := verrs[0]
	return &ValidationError{
		Field: fieldName(fe),
		Value: fe.Value(),
		Rule:  fe.Tag(),
	}
}

func fieldName(fe validator.FieldError) string {
	if name := fe.Field(); name != "" {
		return name
	}
	return strings.ToLower(fe.StructField())
}
