package index

import (
	"errors"
	"fmt"
	"iter"

	"github.com/google/btree"
)

// degree of the underlying B-tree nodes.
const degree = 16

// ErrUnsorted is returned by Verify when two adjacent entries are not in
// strictly increasing order.
var ErrUnsorted = errors.New("index entries out of order")

// Index is one named total ordering over records of type T.
//
// Entries are value copies. Only the fields read by the ordering matter to an
// index; callers resolve the rest from the primary index by id. This lets an
// update skip every index whose key did not move.
//
// Index is not safe for concurrent mutation. A Clone may be read from other
// goroutines while the original keeps changing.
type Index[T any] struct {
	name   string
	order  Ordering[T]
	unique bool
	tree   *btree.BTreeG[T]
}

// New creates an empty index. A unique index rejects a second entry whose
// ordering compares equal to an existing one; a non-unique index must end its
// ordering with a field that is distinct per record.
func New[T any](name string, order Ordering[T], unique bool) *Index[T] {
	return &Index[T]{
		name:   name,
		order:  order,
		unique: unique,
		tree: btree.NewG(degree, func(a, b T) bool {
			return order(a, b) < 0
		}),
	}
}

func (ix *Index[T]) Name() string { return ix.name }

func (ix *Index[T]) Unique() bool { return ix.unique }

func (ix *Index[T]) Len() int { return ix.tree.Len() }

// Compare exposes the index ordering.
func (ix *Index[T]) Compare(a, b T) int { return ix.order(a, b) }

// Get returns the entry whose key equals pivot's key.
func (ix *Index[T]) Get(pivot T) (T, bool) {
	return ix.tree.Get(pivot)
}

// Has reports whether an entry with pivot's key exists.
func (ix *Index[T]) Has(pivot T) bool {
	return ix.tree.Has(pivot)
}

// Insert adds item, returning false if an entry with an equal key was
// already present (the entry is replaced in that case).
func (ix *Index[T]) Insert(item T) bool {
	_, replaced := ix.tree.ReplaceOrInsert(item)
	return !replaced
}

// Delete removes the entry whose key equals item's key.
func (ix *Index[T]) Delete(item T) bool {
	_, ok := ix.tree.Delete(item)
	return ok
}

// Moved reports whether the key of old and updated differ under this
// ordering.
func (ix *Index[T]) Moved(old, updated T) bool {
	return ix.order(old, updated) != 0
}

// Reseat moves an entry from old's key position to updated's. It is a no-op
// when the key did not change, so repeating it is idempotent.
func (ix *Index[T]) Reseat(old, updated T) bool {
	if !ix.Moved(old, updated) {
		return false
	}
	ix.tree.Delete(old)
	ix.tree.ReplaceOrInsert(updated)
	return true
}

// Clone returns a copy-on-write copy. Clone itself mutates shared node
// ownership and must not race with writers.
func (ix *Index[T]) Clone() *Index[T] {
	return &Index[T]{
		name:   ix.name,
		order:  ix.order,
		unique: ix.unique,
		tree:   ix.tree.Clone(),
	}
}

// All yields every entry in index order.
func (ix *Index[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		ix.tree.Ascend(func(item T) bool {
			return yield(item)
		})
	}
}

// Range yields entries at or after pivot for as long as within returns true.
// A nil within runs to the end of the index.
//
// The sequence holds no state between calls: ranging again restarts from
// pivot, and a consumer that stops early leaves nothing to clean up.
func (ix *Index[T]) Range(pivot T, within func(T) bool) iter.Seq[T] {
	return func(yield func(T) bool) {
		ix.tree.AscendGreaterOrEqual(pivot, func(item T) bool {
			if within != nil && !within(item) {
				return false
			}
			return yield(item)
		})
	}
}

// Between yields entries in [lower, upper).
func (ix *Index[T]) Between(lower, upper T) iter.Seq[T] {
	return func(yield func(T) bool) {
		ix.tree.AscendRange(lower, upper, func(item T) bool {
			return yield(item)
		})
	}
}

// Verify checks that adjacent entries are strictly increasing.
func (ix *Index[T]) Verify() error {
	var (
		prev    T
		started bool
		pos     int
		err     error
	)
	ix.tree.Ascend(func(item T) bool {
		if started && ix.order(prev, item) >= 0 {
			err = fmt.Errorf("%w: index %s at position %d", ErrUnsorted, ix.name, pos)
			return false
		}
		prev, started = item, true
		pos++
		return true
	})
	return err
}

// Take yields at most n items of seq.
func Take[T any](seq iter.Seq[T], n int) iter.Seq[T] {
	return func(yield func(T) bool) {
		if n <= 0 {
			return
		}
		i := 0
		for v := range seq {
			if !yield(v) {
				return
			}
			i++
			if i >= n {
				return
			}
		}
	}
}

// Collect gathers up to n items of seq into a slice; n <= 0 means no limit.
func Collect[T any](seq iter.Seq[T], n int) []T {
	out := make([]T, 0, max(n, 0))
	for v := range seq {
		out = append(out, v)
		if n > 0 && len(out) >= n {
			break
		}
	}
	return out
}
