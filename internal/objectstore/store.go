package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/roach88/tagstate/internal/index"
)

// viewer is the type-erased read side of a table.
type viewer interface {
	Kind() Kind
	Len() int
	Verify() error
	writeDigest(w io.Writer) error
}

// table is the type-erased handle the Store keeps per registered kind.
type table interface {
	snapshotView() viewer
	liveView() viewer
}

// Store is a registry of typed tables sharing one undo history.
//
// A Store is not safe for concurrent use. Callers serialize writers and hand
// readers a Snapshot.
type Store struct {
	tables   map[Kind]table
	stack    []*undoState
	revision int64
}

// New creates an empty store.
func New() *Store {
	return &Store{tables: make(map[Kind]table)}
}

// Register creates the table for kind with the given secondary indexes.
// Registering a kind twice, or two indexes with one name, is an error.
func Register[T Record[T]](s *Store, kind Kind, defs ...IndexDef[T]) (*Table[T], error) {
	if _, exists := s.tables[kind]; exists {
		return nil, fmt.Errorf("register %s: kind already registered", kind)
	}
	t := &Table[T]{
		View: View[T]{
			kind:    kind,
			primary: index.New(PrimaryIndex, index.Asc(func(r T) ID { return r.RecordID() }), true),
			indexes: make([]*index.Index[T], 0, len(defs)),
			byName:  make(map[string]*index.Index[T], len(defs)),
		},
		store:  s,
		nextID: 1,
	}
	for _, def := range defs {
		if def.Name == PrimaryIndex {
			return nil, fmt.Errorf("register %s: index name %q is reserved", kind, def.Name)
		}
		if _, dup := t.byName[def.Name]; dup {
			return nil, fmt.Errorf("register %s: duplicate index %q", kind, def.Name)
		}
		ix := index.New(def.Name, def.Order, def.Unique)
		t.indexes = append(t.indexes, ix)
		t.byName[def.Name] = ix
	}
	s.tables[kind] = t
	return t, nil
}

// Lookup returns the table registered for kind.
func Lookup[T Record[T]](s *Store, kind Kind) (*Table[T], error) {
	h, ok := s.tables[kind]
	if !ok {
		return nil, fmt.Errorf("lookup %s: kind not registered", kind)
	}
	t, ok := h.(*Table[T])
	if !ok {
		return nil, fmt.Errorf("lookup %s: registered with a different record type", kind)
	}
	return t, nil
}

// Kinds returns the registered kinds in ascending order.
func (s *Store) Kinds() []Kind {
	kinds := make([]Kind, 0, len(s.tables))
	for k := range s.tables {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

func (s *Store) liveViews() []viewer {
	views := make([]viewer, 0, len(s.tables))
	for _, k := range s.Kinds() {
		views = append(views, s.tables[k].liveView())
	}
	return views
}

// Verify checks every index of every table.
func (s *Store) Verify() error {
	return verifyAll(s.liveViews())
}

// Digest hashes every record of every table in kind then id order.
func (s *Store) Digest() (string, error) {
	return digestAll(s.liveViews())
}

// Snapshot returns an immutable view of every table. It is O(number of
// indexes); the trees are shared copy-on-write with the live tables.
func (s *Store) Snapshot() *Snapshot {
	snap := &Snapshot{
		revision: s.revision,
		views:    make(map[Kind]viewer, len(s.tables)),
	}
	for k, t := range s.tables {
		snap.views[k] = t.snapshotView()
	}
	return snap
}

// Snapshot is a frozen copy of a Store. It is safe for concurrent readers.
type Snapshot struct {
	revision int64
	views    map[Kind]viewer
}

// ViewOf returns the frozen view of kind in snap.
func ViewOf[T Record[T]](snap *Snapshot, kind Kind) (*View[T], error) {
	v, ok := snap.views[kind]
	if !ok {
		return nil, fmt.Errorf("view %s: kind not registered", kind)
	}
	typed, ok := v.(*View[T])
	if !ok {
		return nil, fmt.Errorf("view %s: registered with a different record type", kind)
	}
	return typed, nil
}

// Revision is the store revision the snapshot was taken at.
func (snap *Snapshot) Revision() int64 { return snap.revision }

func (snap *Snapshot) ordered() []viewer {
	kinds := make([]Kind, 0, len(snap.views))
	for k := range snap.views {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	views := make([]viewer, len(kinds))
	for i, k := range kinds {
		views[i] = snap.views[k]
	}
	return views
}

// Verify checks every index in the snapshot.
func (snap *Snapshot) Verify() error {
	return verifyAll(snap.ordered())
}

// Digest hashes the snapshot contents; equal states give equal digests.
func (snap *Snapshot) Digest() (string, error) {
	return digestAll(snap.ordered())
}

func verifyAll(views []viewer) error {
	var errs []error
	for _, v := range views {
		if err := v.Verify(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const digestDomain = "tagstate/state/v1"

func digestAll(views []viewer) (string, error) {
	h := sha256.New()
	h.Write([]byte(digestDomain))
	h.Write([]byte{0x00})
	for _, v := range views {
		if err := v.writeDigest(h); err != nil {
			return "", fmt.Errorf("digest %s: %w", v.Kind(), err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
