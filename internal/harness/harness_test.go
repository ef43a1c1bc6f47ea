package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tagstate/internal/protocol"
	"github.com/roach88/tagstate/internal/query"
)

func TestRunWithGolden_Scenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)
		t.Run(s.Name, func(t *testing.T) {
			result := RunWithGolden(t, s)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.NotEmpty(t, result.Digest)
		})
	}
}

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

const accounts = `
  - ops:
      - account_create: {new_account_name: alice, vesting_shares: 1000000000, balance: "10.000 GBG"}
      - account_create: {new_account_name: bob, vesting_shares: 1000000000, balance: "10.000 GBG"}
`

func TestRun_UnexpectedRejection(t *testing.T) {
	s := mustParse(t, `
name: unexpected
description: a vote on a missing post
blocks:`+accounts+`
  - ops:
      - vote: {voter: bob, author: alice, permlink: missing, weight: 10000}
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected applied, got VALIDATION_FAILED")
	assert.Contains(t, result.Errors[0], "alice/missing")
	assert.Equal(t, uint32(1), result.Head)
}

func TestRun_ExpectedRejectionPasses(t *testing.T) {
	s := mustParse(t, `
name: expected
description: duplicate account
blocks:`+accounts+`
  - ops:
      - account_create: {new_account_name: alice, vesting_shares: 1, balance: "0.000 GBG"}
    expect: VALIDATION_FAILED
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Blocks, 2)
	assert.Equal(t, "VALIDATION_FAILED", result.Blocks[1].Outcome)
	assert.NotEmpty(t, result.Blocks[1].Error)
}

func TestRun_AssertionFailures(t *testing.T) {
	s := mustParse(t, `
name: failing
description: every assertion is wrong
blocks:`+accounts+`
  - ops:
      - comment: {parent_permlink: go, author: alice, permlink: a1, body: x}
queries:
  - name: created
    discussions: {sort: created, tag: go, limit: 10}
assertions:
  - {type: head, block: 7}
  - {type: order, query: created, order: [bob/a1]}
  - {type: entry_tags, comment: alice/a1, tags: [go]}
  - {type: tag_stats, tag: rust, expect: {top_posts: 1}}
  - {type: account, account: alice, expect: {balance: "1.000 GBG"}}
  - {type: comment, comment: alice/a1, expect: {depth: 0, missing_field: 1}}
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "assertion[0] head failed")
	assert.Contains(t, result.Errors[1], "Actual: alice/a1")
	assert.Contains(t, result.Errors[2], `["" "go"]`)
	assert.Contains(t, result.Errors[3], "no stats")
	assert.Contains(t, result.Errors[4], "want 1.000 GBG, got 10.000 GBG")
	assert.Contains(t, result.Errors[5], "missing_field: missing")
}

func TestRun_BlockTimes(t *testing.T) {
	s := mustParse(t, `
name: times
description: explicit times and skips
start: "2016-06-01T00:00:00"
blocks:
  - skip: 6
  - {}
  - skip: 60
  - time: "2016-06-02T00:00:00"
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	var got []string
	for _, b := range result.Blocks {
		got = append(got, b.Time.String())
	}
	assert.Equal(t, []string{
		"2016-06-01T00:00:06",
		"2016-06-01T00:00:09",
		"2016-06-01T00:01:12",
		"2016-06-02T00:00:00",
	}, got)
	assert.Equal(t, uint32(4), result.Head)
}

func TestRun_BlockBeforeHeadIsRejected(t *testing.T) {
	s := mustParse(t, `
name: backwards
description: a block older than the head
blocks:
  - {}
  - time: "2015-12-31T00:00:00"
    expect: VALIDATION_FAILED
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, uint32(1), result.Head)
}

func TestRun_PopPastGenesis(t *testing.T) {
	s := mustParse(t, `
name: pop
description: nothing to pop
blocks:
  - pop: 1
`)
	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pop")
}

func TestRun_BadConfig(t *testing.T) {
	s := mustParse(t, `
name: config
description: negative cashout window
config: "chain: cashout_window: -1"
blocks:
  - {}
`)
	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario config")
}

func TestRun_QueryErrorsAreRecorded(t *testing.T) {
	s := mustParse(t, `
name: query_error
description: a page larger than the limit
config: "query: max_limit: 5"
blocks:
  - {}
queries:
  - name: big
    discussions: {sort: trending, tag: go, limit: 6}
  - name: fine
    discussions: {sort: trending, tag: go, limit: 5}
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `query "big"`)

	out, ok := result.Query("fine")
	require.True(t, ok)
	assert.Equal(t, KindDiscussions, out.Kind)
	assert.Empty(t, out.Value)
	_, ok = result.Query("big")
	assert.False(t, ok)
}

func TestRender(t *testing.T) {
	result := NewResult()
	result.Blocks = []BlockEvent{
		{Number: 1, Time: protocol.TimePointSec(1451606400), Operations: 2, Outcome: OutcomeApplied},
		{Number: 1, Outcome: OutcomePopped},
	}
	result.Queries = []QueryOutput{
		{Name: "used", Kind: KindTagsUsedByAuthor, Value: []query.TagCount{{Tag: "go", Count: 3}}},
	}

	want := strings.Join([]string{
		"scenario demo",
		"block 1 2016-01-01T00:00:00 ops=2 applied",
		"block 1 popped",
		"head 0",
		"query used (tags_used_by_author)",
		`  "go" count=3`,
		"",
	}, "\n")
	assert.Equal(t, want, string(Render("demo", result)))
}

func TestMatchExpect(t *testing.T) {
	a := Assertion{Type: AssertAccount, Expect: map[string]any{"name": "alice", "vesting_shares": 5}}
	actual := struct {
		Name    string `json:"name"`
		Vesting int64  `json:"vesting_shares"`
		Extra   bool   `json:"extra"`
	}{"alice", 5, true}

	assert.NoError(t, matchExpect(0, a, actual))

	actual.Vesting = 6
	err := matchExpect(0, a, actual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vesting_shares: want 5, got 6")
}
