// Package sample is a fixture for generator tests that read source
// from disk instead of string literals.
package sample

// Percent converts part of a whole into a percentage, rounding down.
func Percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return part * 100 / whole
}

// InRange reports whether v lies inside the half-open range [lo, hi).
func InRange(v, lo, hi int) bool {
	return v >= lo && v < hi
}

// Abs returns the absolute value of n.
func Abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
