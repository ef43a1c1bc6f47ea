package journal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tagstate/internal/chain"
	"github.com/roach88/tagstate/internal/config"
	"github.com/roach88/tagstate/internal/protocol"
	"github.com/roach88/tagstate/internal/testutil"
)

var _ chain.BlockSink = (*Journal)(nil)

func openTest(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j, path
}

func openChain(t *testing.T) *chain.Database {
	t.Helper()
	db, err := chain.Open(config.Default(), chain.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return db
}

func sampleBlocks() []protocol.Block {
	clock := testutil.NewBlockClock()
	return []protocol.Block{
		clock.Next(
			testutil.Account("alice", 1000, "1.000 GBG"),
			testutil.Account("bob", 1000, "1.000 GBG"),
		),
		clock.Next(),
		clock.Next(
			testutil.Post("alice", "hello", "go", "rust"),
			testutil.Vote("bob", "alice", "hello", 10000),
			testutil.Promote("bob", "alice", "hello", "0.500 GBG"),
		),
	}
}

func TestOpen_Pragmas(t *testing.T) {
	j, _ := openTest(t)
	ctx := context.Background()

	mode, err := j.pragma(ctx, "journal_mode")
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
	fk, err := j.pragma(ctx, "foreign_keys")
	require.NoError(t, err)
	assert.Equal(t, "1", fk)
	version, err := j.pragma(ctx, "user_version")
	require.NoError(t, err)
	assert.Equal(t, "2", version)

	parsed, err := uuid.Parse(j.SessionID())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestAppendAndRead(t *testing.T) {
	j, path := openTest(t)
	ctx := context.Background()
	blocks := sampleBlocks()
	for _, b := range blocks {
		require.NoError(t, j.AppendBlock(ctx, b))
	}

	head, err := j.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), head)

	got, err := j.ReadBlocks(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, blocks, got)

	tail, err := j.ReadBlocks(ctx, 3)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Len(t, tail[0].Operations, 3)

	// A second session sees the same log and stamps its own id.
	require.NoError(t, j.Close())
	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()
	assert.NotEqual(t, j.SessionID(), j2.SessionID())

	clock := testutil.NewBlockClockAt(blocks[2].Timestamp)
	clock.Rewind(3)
	require.NoError(t, j2.AppendBlock(ctx, clock.Next()))
	infos, err := j2.Blocks(ctx, 3)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, j.SessionID(), infos[0].SessionID)
	assert.Equal(t, j2.SessionID(), infos[1].SessionID)
	assert.Equal(t, 3, infos[0].Operations)
}

func TestAppend_OutOfOrder(t *testing.T) {
	j, _ := openTest(t)
	ctx := context.Background()
	blocks := sampleBlocks()

	require.NoError(t, j.AppendBlock(ctx, blocks[0]))
	assert.ErrorIs(t, j.AppendBlock(ctx, blocks[2]), ErrOutOfOrder)
	assert.ErrorIs(t, j.AppendBlock(ctx, blocks[0]), ErrOutOfOrder)

	head, err := j.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), head)
}

func TestTruncateAfter(t *testing.T) {
	j, _ := openTest(t)
	ctx := context.Background()
	for _, b := range sampleBlocks() {
		require.NoError(t, j.AppendBlock(ctx, b))
	}

	n, err := j.TruncateAfter(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var ops int
	require.NoError(t, j.db.QueryRow(`SELECT COUNT(*) FROM operations`).Scan(&ops))
	assert.Equal(t, 2, ops)

	got, err := j.ReadBlocks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(1), got[0].Number)

	// The fork continues from the truncation point.
	require.NoError(t, j.AppendBlock(ctx, sampleBlocks()[1]))
}

func TestEmptyJournal(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()

	head, err := j.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), head)

	got, err := j.ReadBlocks(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReplayRebuildsState(t *testing.T) {
	j, _ := openTest(t)
	ctx := context.Background()

	live := openChain(t)
	p := chain.NewPipeline(live, j, slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, b := range sampleBlocks() {
		require.True(t, p.Enqueue(b))
	}
	p.Close()
	require.NoError(t, p.Run(ctx))
	want, err := live.Digest()
	require.NoError(t, err)

	replayed := openChain(t)
	blocks, err := j.ReadBlocks(ctx, 1)
	require.NoError(t, err)
	for _, b := range blocks {
		require.NoError(t, replayed.ApplyBlock(ctx, b))
	}
	got, err := replayed.Digest()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
