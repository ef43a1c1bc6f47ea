// Package chain applies operations and blocks to the record store.
//
// A Database owns one objectstore.Store holding the ledger tables and the
// tag tables. Writes go through ApplyOperation or ApplyBlock, both of which
// run under the write lock:
//
//  1. the operation is validated statelessly,
//  2. its evaluator, looked up in a sealed registry, validates it against the
//     ledger and mutates it,
//  3. every observer (the tag maintainer first) brings its derived tables in
//     line with the new ledger state.
//
// Each operation runs in its own undo session. A failing operation is undone
// completely, so readers never see a half-applied operation. A block runs in
// an outer session that is pushed onto the undo history when the block
// succeeds; PopBlock reverts the newest one exactly, which is what a fork
// switch needs.
//
// INCONSISTENT_AGGREGATE and INDEX_CORRUPTION errors are fatal: the failing
// work is undone and the database refuses every later write with ErrHalted.
// Continuing would risk state that differs from every other node.
//
// Readers take a Snapshot, a copy-on-write clone of every table, and never
// block writers while iterating.
package chain
