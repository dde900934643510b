// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package sets

import (
	"cmp"
	"iter"
	"slices"
)

// Sorted is a sorted list of unique items.
// The zero value is an empty set.
// nil is treated like an empty set, but any attempts to add to it will panic.
type Sorted[T cmp.Ordered] struct {
	elems []T
}

// NewSorted returns a new set with the given elements.
func NewSorted[T cmp.Ordered](elem ...T) *Sorted[T] {
	s := new(Sorted[T])
	s.Add(elem...)
	return s
}

// Add adds the arguments to the set.
func (s *Sorted[T]) Add(elem ...T) {
	for _, x := range elem {
		i, present := slices.BinarySearch(s.elems, x)
		if !present {
			s.elems = slices.Insert(s.elems, i, x)
		}
	}
}

// Has reports whether the set contains x.
func (s *Sorted[T]) Has(x T) bool {
	if s == nil {
		return false
	}
	_, present := slices.BinarySearch(s.elems, x)
	return present
}

// Len returns the number of elements in the set.
func (s *Sorted[T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.elems)
}

// At returns the i'th element in ascending order of the set.
func (s *Sorted[T]) At(i int) T {
	return s.elems[i]
}

// Clone returns a new set that contains the same elements as s.
func (s *Sorted[T]) Clone() *Sorted[T] {
	if s == nil {
		return new(Sorted[T])
	}
	return &Sorted[T]{elems: slices.Clone(s.elems)}
}

// Values returns an iterator of the elements of s in ascending order.
func (s *Sorted[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; i < s.Len(); i++ {
			if !yield(s.elems[i]) {
				return
			}
		}
	}
}
