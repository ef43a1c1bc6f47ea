package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tagstate/internal/journal"
	"github.com/roach88/tagstate/internal/protocol"
)

func journalHead(t *testing.T, path string) uint32 {
	t.Helper()
	j, err := journal.Open(path)
	require.NoError(t, err)
	defer j.Close()
	head, err := j.Head(context.Background())
	require.NoError(t, err)
	return head
}

func TestApply_Text(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "base.yaml", baseScript)
	path := filepath.Join(dir, "chain.db")

	out, err := execute(t, "apply", "--journal", path, script)
	require.NoError(t, err)

	assert.Contains(t, out, "Blocks: 0 restored, 3 applied, 0 popped, 1 rejected")
	assert.Contains(t, out, "block 4 VALIDATION_FAILED")
	assert.Contains(t, out, "Head: 3")
	assert.Equal(t, uint32(3), journalHead(t, path))
}

func TestApply_StrictJSON(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "base.yaml", baseScript)
	path := filepath.Join(dir, "chain.db")

	out, err := execute(t, "--format", "json", "apply", "--journal", path, "--strict", script)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ApplyResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRejected, resp.Error.Code)
	assert.Equal(t, 3, result.Applied)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, uint32(4), result.Rejected[0].Number)
	assert.Equal(t, "VALIDATION_FAILED", result.Rejected[0].Code)
	assert.NotEmpty(t, result.Session)
	assert.Len(t, result.Digest, 64)
}

func TestApply_ContinuesJournal(t *testing.T) {
	path := seedJournal(t)
	dir := filepath.Dir(path)

	more := writeFile(t, dir, "more.yaml", `
blocks:
  - ops:
      - comment: {parent_permlink: rust, author: bob, permlink: b1, title: Hi, body: there}
`)
	out, err := execute(t, "--format", "json", "apply", "--journal", path, more)
	require.NoError(t, err)

	var result ApplyResult
	decodeResponse(t, out, &result)
	assert.Equal(t, 3, result.Restored)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, uint32(4), result.Head)
	assert.Equal(t, uint32(4), journalHead(t, path))
}

func TestApply_RejectedNumberIsReused(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "mixed.yaml", `
blocks:
  - ops:
      - account_create: {new_account_name: alice, vesting_shares: 1000000000, balance: "10.000 GBG"}
  - ops:
      - vote: {voter: mallory, author: alice, permlink: a1, weight: 10000}
  - ops:
      - comment: {parent_permlink: go, author: alice, permlink: a1, title: Hello, body: world}
  - pop: 1
  - ops:
      - comment: {parent_permlink: go, author: alice, permlink: a2, title: Again, body: world}
`)
	path := filepath.Join(dir, "chain.db")

	out, err := execute(t, "--format", "json", "apply", "--journal", path, script)
	require.NoError(t, err)

	var result ApplyResult
	decodeResponse(t, out, &result)
	assert.Equal(t, 3, result.Applied)
	assert.Equal(t, 1, result.Popped)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, uint32(2), result.Rejected[0].Number)
	assert.Equal(t, uint32(2), result.Head)

	j, err := journal.Open(path)
	require.NoError(t, err)
	defer j.Close()
	blocks, err := j.ReadBlocks(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, uint32(2), blocks[1].Number)
	require.Len(t, blocks[1].Operations, 1)
	c, ok := blocks[1].Operations[0].(protocol.Comment)
	require.True(t, ok)
	assert.Equal(t, "a2", c.Permlink)
}

func TestApply_PopTruncatesJournal(t *testing.T) {
	path := seedJournal(t)
	pop := writeFile(t, filepath.Dir(path), "pop.yaml", "blocks:\n  - pop: 2\n")

	out, err := execute(t, "--format", "json", "apply", "--journal", path, pop)
	require.NoError(t, err)

	var result ApplyResult
	decodeResponse(t, out, &result)
	assert.Equal(t, 2, result.Popped)
	assert.Equal(t, uint32(1), result.Head)
	assert.Equal(t, uint32(1), journalHead(t, path))
}

func TestApply_SameDigestAsOneRun(t *testing.T) {
	dir := t.TempDir()
	whole := writeFile(t, dir, "whole.yaml", baseScript)
	first := writeFile(t, dir, "first.yaml", `
blocks:
  - ops:
      - account_create: {new_account_name: alice, vesting_shares: 1000000000, balance: "10.000 GBG"}
      - account_create: {new_account_name: bob, vesting_shares: 1000000000, balance: "10.000 GBG"}
`)
	rest := writeFile(t, dir, "rest.yaml", `
blocks:
  - ops:
      - comment: {parent_permlink: go, author: alice, permlink: a1, title: Hello, body: world}
  - ops:
      - vote: {voter: bob, author: alice, permlink: a1, weight: 10000}
`)

	out, err := execute(t, "--format", "json", "apply", "--journal", filepath.Join(dir, "a.db"), whole)
	require.NoError(t, err)
	var once ApplyResult
	decodeResponse(t, out, &once)

	b := filepath.Join(dir, "b.db")
	_, err = execute(t, "apply", "--journal", b, first)
	require.NoError(t, err)
	out, err = execute(t, "--format", "json", "apply", "--journal", b, rest)
	require.NoError(t, err)
	var twice ApplyResult
	decodeResponse(t, out, &twice)

	assert.Equal(t, once.Head, twice.Head)
	assert.Equal(t, once.Digest, twice.Digest)
}

func TestApply_Metrics(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "base.yaml", baseScript)
	metricsPath := filepath.Join(dir, "metrics.prom")

	_, err := execute(t, "apply", "--journal", filepath.Join(dir, "chain.db"), "--metrics", metricsPath, script)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tagstate_blocks_applied_total 3")
	assert.Contains(t, string(data), `tagstate_operations_rejected_total{code="VALIDATION_FAILED",kind="vote"} 1`)
}

func TestApply_Errors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.db")

	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"missing file", "", "read script"},
		{"no blocks", "blocks: []\n", "no blocks"},
		{"unknown field", "blocks: [{ops: []}]\nqueries: []\n", "parse script"},
		{"bad op", "blocks:\n  - ops:\n      - vote: {voter: bob, stake: 1}\n", "blocks[0].ops[0]"},
		{"pop past genesis", "blocks:\n  - pop: 1\n", "pop failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := filepath.Join(dir, "missing.yaml")
			if tt.script != "" {
				script = writeFile(t, dir, "script.yaml", tt.script)
			}
			_, err := execute(t, "apply", "--journal", path, script)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
