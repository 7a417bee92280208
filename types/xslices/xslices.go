// Package xslices provides the few generic slice helpers used by the
// execgraph packages.
package xslices

import (
	"github.com/gomlx/exceptions"
	"golang.org/x/exp/constraints"
)

// Max returns the largest value of the slice. It panics if the slice is
// empty.
func Max[T constraints.Ordered](values []T) T {
	if len(values) == 0 {
		exceptions.Panicf("xslices.Max() of an empty slice")
	}
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// Map executes the given function sequentially for every element on in, and
// returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Filter returns a new slice with only the elements for which fn returns
// true, preserving order.
func Filter[T any](in []T, fn func(e T) bool) (out []T) {
	for _, e := range in {
		if fn(e) {
			out = append(out, e)
		}
	}
	return
}
