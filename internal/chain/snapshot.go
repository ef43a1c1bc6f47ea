package chain

import (
	"fmt"

	"github.com/roach88/tagstate/internal/ledger"
	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/tags"
)

// Snapshot is an immutable view of the whole state. It is safe for any
// number of concurrent readers and stays valid while the database moves on.
type Snapshot struct {
	ledger.Reader
	Tags tags.Reader

	raw *objectstore.Snapshot
}

// Snapshot returns a view of the current state. Consecutive calls with no
// write in between share one snapshot.
func (d *Database) Snapshot() (*Snapshot, error) {
	// Cloning a tree marks the live one copy-on-write, which is a write.
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snap != nil && d.snapVersion == d.version {
		return d.snap, nil
	}

	raw := d.store.Snapshot()
	lr, err := ledger.NewReader(raw)
	if err != nil {
		return nil, fmt.Errorf("snapshot ledger: %w", err)
	}
	tr, err := tags.NewReader(raw)
	if err != nil {
		return nil, fmt.Errorf("snapshot tags: %w", err)
	}
	d.snap = &Snapshot{Reader: lr, Tags: tr, raw: raw}
	d.snapVersion = d.version
	return d.snap, nil
}

// Verify checks every index in the snapshot and recomputes the tag
// aggregates.
func (s *Snapshot) Verify() error {
	if err := s.raw.Verify(); err != nil {
		return err
	}
	return s.Tags.Verify()
}

// Digest hashes the snapshot; it equals Database.Digest at the same state.
func (s *Snapshot) Digest() (string, error) {
	return s.raw.Digest()
}
