package index

import "cmp"

// Ordering is a three-way comparator: negative when a sorts before b, zero
// when the keys are equal, positive otherwise.
type Ordering[T any] func(a, b T) int

// Asc orders by key ascending.
func Asc[T any, K cmp.Ordered](key func(T) K) Ordering[T] {
	return func(a, b T) int {
		return cmp.Compare(key(a), key(b))
	}
}

// Desc orders by key descending.
func Desc[T any, K cmp.Ordered](key func(T) K) Ordering[T] {
	return func(a, b T) int {
		return cmp.Compare(key(b), key(a))
	}
}

// AscFunc orders by a key that is not cmp.Ordered, using compare.
func AscFunc[T, K any](key func(T) K, compare func(K, K) int) Ordering[T] {
	return func(a, b T) int {
		return compare(key(a), key(b))
	}
}

// DescFunc is AscFunc reversed.
func DescFunc[T, K any](key func(T) K, compare func(K, K) int) Ordering[T] {
	return func(a, b T) int {
		return compare(key(b), key(a))
	}
}

// Then chains orderings lexicographically; the first non-zero result wins.
func Then[T any](orders ...Ordering[T]) Ordering[T] {
	return func(a, b T) int {
		for _, o := range orders {
			if c := o(a, b); c != 0 {
				return c
			}
		}
		return 0
	}
}

// Bool orders false before true.
func Bool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
