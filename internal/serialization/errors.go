package serialization

import (
	"fmt"

	"github.com/pkg/errors"
)

// Common errors.
var (
	ErrShortBuffer   = errors.New("buffer too short for field")
	ErrTrailingBytes = errors.New("unconsumed bytes after last field")
	ErrInvalidValue  = errors.New("field value out of range")
)

// FieldError reports which field failed and at what offset.
type FieldError struct {
	Field  string // Field kind (e.g., "int32", "desc.dims")
	Offset int    // Byte offset of the field
	Err    error  // Underlying sentinel
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s at offset %d: %v", e.Field, e.Offset, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *FieldError) Unwrap() error {
	return e.Err
}
