package distance

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned by Parse for missing or malformed parameters.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrFieldNotFound is returned when a reference field is absent from a record.
	ErrFieldNotFound = errors.New("field not found")

	// ErrDimensionMismatch is returned when a record vector and the reference
	// vector have different lengths.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrZeroVector is returned by cosine evaluation when either vector has zero magnitude.
	ErrZeroVector = errors.New("zero vector")

	// ErrInvalidField is returned when a record field cannot be parsed as integers.
	ErrInvalidField = errors.New("invalid field")
)

// DimensionError reports a per-field length mismatch between reference and record.
type DimensionError struct {
	Field    string
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: field %q has %d elements in the record, expected %d",
		e.Field, e.Actual, e.Expected)
}

// Is makes errors.Is(err, ErrDimensionMismatch) hold.
func (e *DimensionError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// Code maps an error to a stable snake_case identifier for APIs and metric labels.
// A nil error maps to "ok".
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, ErrFieldNotFound):
		return "field_not_found"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrZeroVector):
		return "zero_vector"
	case errors.Is(err, ErrInvalidField):
		return "invalid_field"
	default:
		return "internal"
	}
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
