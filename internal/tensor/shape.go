package tensor

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// MaxDims is the maximum rank a descriptor can carry.
const MaxDims = 8

// Dynamic marks a dimension whose extent is only known at execution time.
const Dynamic = -1

// Shape represents the dimensions of a tensor. A dimension may be Dynamic
// while shapes are still being negotiated.
type Shape []int

// NumElements returns the total number of elements in the tensor.
// It returns 0 if any dimension is dynamic.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		if dim < 0 {
			return 0
		}
		n *= dim
	}
	return n
}

// Validate checks that the shape is concrete and fits in a descriptor.
func (s Shape) Validate() error {
	if len(s) > MaxDims {
		return errors.Errorf("rank %d exceeds maximum of %d", len(s), MaxDims)
	}
	for i, dim := range s {
		if dim <= 0 {
			return errors.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// IsDynamic reports whether any dimension is Dynamic.
func (s Shape) IsDynamic() bool {
	for _, dim := range s {
		if dim < 0 {
			return true
		}
	}
	return false
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// String formats the shape as "(2, ?, 3)".
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, dim := range s {
		if dim < 0 {
			parts[i] = "?"
		} else {
			parts[i] = fmt.Sprint(dim)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
