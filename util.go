package serial

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Ptr returns a pointer to v. Handy for populating nullable fields.
func Ptr[T any](v T) *T { return &v }

// fitsLenPrefix reports whether n can be represented by the uint32 wire
// length prefix.
func fitsLenPrefix[T constraints.Integer](n T) bool {
	return uint64(n) <= math.MaxUint32
}
