package objectstore

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"github.com/roach88/tagstate/internal/index"
)

// PrimaryIndex is the name of the id-ordered index every table carries.
const PrimaryIndex = "by_id"

// IndexDef declares one secondary index of a table.
type IndexDef[T any] struct {
	Name   string
	Order  index.Ordering[T]
	Unique bool
}

// View is the read side of a table. A View obtained from a Snapshot never
// changes; the View embedded in a live Table follows its mutations.
type View[T Record[T]] struct {
	kind    Kind
	primary *index.Index[T]
	indexes []*index.Index[T]
	byName  map[string]*index.Index[T]
}

// Kind returns the record kind stored in this view.
func (v *View[T]) Kind() Kind { return v.kind }

// Len returns the number of records.
func (v *View[T]) Len() int { return v.primary.Len() }

func keyOf[T Record[T]](id ID) T {
	var zero T
	return zero.WithID(id)
}

// Get returns the record with id.
func (v *View[T]) Get(id ID) (T, bool) {
	return v.primary.Get(keyOf[T](id))
}

// MustFind returns the record with id or a NOT_FOUND error.
func (v *View[T]) MustFind(id ID) (T, error) {
	rec, ok := v.Get(id)
	if !ok {
		return rec, NewNotFoundError(v.kind, fmt.Sprintf("id=%d", id))
	}
	return rec, nil
}

// Scan yields every record in id order.
func (v *View[T]) Scan() iter.Seq[T] {
	return v.primary.All()
}

func (v *View[T]) lookupIndex(name string) *index.Index[T] {
	ix, ok := v.byName[name]
	if !ok {
		panic(fmt.Sprintf("objectstore: %s has no index %q", v.kind, name))
	}
	return ix
}

// IndexNames lists the secondary indexes in declaration order.
func (v *View[T]) IndexNames() []string {
	names := make([]string, len(v.indexes))
	for i, ix := range v.indexes {
		names[i] = ix.Name()
	}
	return names
}

// Find looks up the record whose key in the named index equals key's. It is
// meant for unique indexes; on a non-unique index it only matches when key
// also carries the tie-break id.
func (v *View[T]) Find(indexName string, key T) (T, bool) {
	entry, ok := v.lookupIndex(indexName).Get(key)
	if !ok {
		return entry, false
	}
	return v.Get(entry.RecordID())
}

// Range yields records in the named index's order starting at pivot, for as
// long as within accepts the index entry. within only sees the fields that
// make up the index key. Unknown index names panic.
func (v *View[T]) Range(indexName string, pivot T, within func(T) bool) iter.Seq[T] {
	return v.materialize(v.lookupIndex(indexName).Range(pivot, within))
}

// Between yields records with index keys in [lower, upper).
func (v *View[T]) Between(indexName string, lower, upper T) iter.Seq[T] {
	return v.materialize(v.lookupIndex(indexName).Between(lower, upper))
}

// Ordered yields every record in the named index's order.
func (v *View[T]) Ordered(indexName string) iter.Seq[T] {
	return v.materialize(v.lookupIndex(indexName).All())
}

// materialize replaces index key copies with the current primary record.
func (v *View[T]) materialize(entries iter.Seq[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for entry := range entries {
			rec, ok := v.Get(entry.RecordID())
			if !ok {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// Verify checks every index against the primary records: same cardinality,
// strictly sorted, and every entry's key equal to the key recomputed from the
// primary record.
func (v *View[T]) Verify() error {
	if err := v.primary.Verify(); err != nil {
		return NewIndexCorruptionError(v.kind, PrimaryIndex, "%v", err)
	}
	for _, ix := range v.indexes {
		if ix.Len() != v.primary.Len() {
			return NewIndexCorruptionError(v.kind, ix.Name(),
				"index holds %d entries, primary holds %d", ix.Len(), v.primary.Len())
		}
		if err := ix.Verify(); err != nil {
			return NewIndexCorruptionError(v.kind, ix.Name(), "%v", err)
		}
		for entry := range ix.All() {
			rec, ok := v.Get(entry.RecordID())
			if !ok {
				return NewIndexCorruptionError(v.kind, ix.Name(),
					"entry for missing record %d", entry.RecordID())
			}
			if ix.Moved(entry, rec) {
				return NewIndexCorruptionError(v.kind, ix.Name(),
					"stale key for record %d", entry.RecordID())
			}
		}
	}
	return nil
}

func (v *View[T]) writeDigest(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s\n", v.kind); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for rec := range v.Scan() {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode %s %d: %w", v.kind, rec.RecordID(), err)
		}
	}
	return nil
}

func (v *View[T]) clone() *View[T] {
	out := &View[T]{
		kind:    v.kind,
		primary: v.primary.Clone(),
		indexes: make([]*index.Index[T], len(v.indexes)),
		byName:  make(map[string]*index.Index[T], len(v.byName)),
	}
	for i, ix := range v.indexes {
		c := ix.Clone()
		out.indexes[i] = c
		out.byName[c.Name()] = c
	}
	return out
}

// Table owns the records of one kind and keeps every index in step with
// them. Mutations made while an undo session is open are recorded so the
// session can revert them.
type Table[T Record[T]] struct {
	View[T]
	store  *Store
	nextID ID
}

// NextID returns the id the next Insert will assign.
func (t *Table[T]) NextID() ID { return t.nextID }

// Insert assigns the next id to rec and adds it to every index.
func (t *Table[T]) Insert(rec T) (T, error) {
	id := t.nextID
	rec = rec.WithID(id)
	for _, ix := range t.indexes {
		if !ix.Unique() {
			continue
		}
		if existing, ok := ix.Get(rec); ok {
			var zero T
			return zero, NewDuplicateKeyError(t.kind, ix.Name(), existing.RecordID())
		}
	}

	t.insertEntries(rec)
	t.nextID++
	t.store.record(func() {
		t.removeEntries(rec)
		t.nextID = id
	})
	return rec, nil
}

// Update applies mutate to a copy of the record and reseats it in every
// index whose key changed. The mutator must not change the id.
func (t *Table[T]) Update(id ID, mutate func(*T)) (T, error) {
	old, ok := t.Get(id)
	if !ok {
		var zero T
		return zero, NewNotFoundError(t.kind, fmt.Sprintf("id=%d", id))
	}
	updated := old
	mutate(&updated)
	if updated.RecordID() != id {
		return old, NewIndexCorruptionError(t.kind, PrimaryIndex,
			"mutator changed id %d to %d", id, updated.RecordID())
	}
	for _, ix := range t.indexes {
		if !ix.Unique() || !ix.Moved(old, updated) {
			continue
		}
		if existing, ok := ix.Get(updated); ok && existing.RecordID() != id {
			return old, NewDuplicateKeyError(t.kind, ix.Name(), existing.RecordID())
		}
	}

	t.reseatEntries(old, updated)
	t.store.record(func() {
		t.reseatEntries(updated, old)
	})
	return updated, nil
}

// Remove deletes the record from the primary index and every secondary index.
func (t *Table[T]) Remove(id ID) (T, error) {
	rec, ok := t.Get(id)
	if !ok {
		return rec, NewNotFoundError(t.kind, fmt.Sprintf("id=%d", id))
	}
	t.removeEntries(rec)
	t.store.record(func() {
		t.insertEntries(rec)
	})
	return rec, nil
}

// Reseat re-applies the current record to every index. With no intervening
// change it moves nothing.
func (t *Table[T]) Reseat(id ID) error {
	rec, ok := t.Get(id)
	if !ok {
		return NewNotFoundError(t.kind, fmt.Sprintf("id=%d", id))
	}
	t.reseatEntries(rec, rec)
	return nil
}

func (t *Table[T]) insertEntries(rec T) {
	t.primary.Insert(rec)
	for _, ix := range t.indexes {
		ix.Insert(rec)
	}
}

func (t *Table[T]) removeEntries(rec T) {
	t.primary.Delete(rec)
	for _, ix := range t.indexes {
		ix.Delete(rec)
	}
}

func (t *Table[T]) reseatEntries(old, updated T) {
	// Same id, so this replaces the value in place.
	t.primary.Insert(updated)
	for _, ix := range t.indexes {
		ix.Reseat(old, updated)
	}
}

// snapshotView implements table.
func (t *Table[T]) snapshotView() viewer { return t.View.clone() }

// liveView implements table.
func (t *Table[T]) liveView() viewer { return &t.View }
