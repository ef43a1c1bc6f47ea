package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tagstate/internal/query"
)

func TestQuery_Text(t *testing.T) {
	path := seedJournal(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "discussions",
			args: []string{"discussions", "--sort", "trending", "--tag", "go"},
			want: "  alice/a1 tag=\"go\" net_rshares=1000000000 net_votes=1 children=0 promoted=0 payout=0.000 GBG\n",
		},
		{
			name: "tag",
			args: []string{"tag", "go"},
			want: "  \"go\" top_posts=1 comments=0 net_votes=1 payout=0.000 GBG\n",
		},
		{
			name: "peers",
			args: []string{"peers", "--voter", "bob"},
			want: "  bob->alice direct=1/2 indirect=0/1\n",
		},
		{
			name: "author tags",
			args: []string{"author-tags", "--author", "alice"},
			want: "  \"\" count=1\n  \"go\" count=1\n",
		},
		{
			name: "author rewards",
			args: []string{"author-tags", "--author", "alice", "--rewards"},
			want: "  alice tag=\"\" posts=1 rewards=0.000 GBG\n  alice tag=\"go\" posts=1 rewards=0.000 GBG\n",
		},
		{
			name: "comment tags",
			args: []string{"comment-tags", "alice/a1"},
			want: "  alice/a1 tag=\"\" net_rshares=1000000000 net_votes=1 children=0 promoted=0 payout=0.000 GBG\n" +
				"  alice/a1 tag=\"go\" net_rshares=1000000000 net_votes=1 children=0 promoted=0 payout=0.000 GBG\n",
		},
		{
			name: "unknown voter",
			args: []string{"peers", "--voter", "mallory"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"query", "--journal", path}, tt.args...)
			out, err := execute(t, args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestQuery_JSON(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "--format", "json", "query", "--journal", path, "discussions", "--tag", "go", "--sort", "Created")
	require.NoError(t, err)

	var ds []query.Discussion
	resp := decodeResponse(t, out, &ds)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, ds, 1)
	assert.Equal(t, "alice", ds[0].Author)
	assert.Equal(t, "go", ds[0].Category)

	out, err = execute(t, "--format", "json", "query", "--journal", path, "tags", "--limit", "5")
	require.NoError(t, err)
	var tagsOut []query.TagInfo
	decodeResponse(t, out, &tagsOut)
	require.Len(t, tagsOut, 2)
	assert.ElementsMatch(t, []string{"", "go"}, []string{tagsOut[0].Name, tagsOut[1].Name})
}

func TestQuery_Errors(t *testing.T) {
	path := seedJournal(t)

	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"unknown sort", []string{"discussions", "--sort", "best"}, ExitCommandError, "invalid --sort"},
		{"bad parent", []string{"discussions", "--parent", "alice"}, ExitCommandError, "invalid --parent"},
		{"limit too large", []string{"discussions", "--limit", "1001"}, ExitCommandError, "query failed"},
		{"unknown cursor", []string{"discussions", "--tag", "go", "--start", "bob/zz"}, ExitCommandError, "query failed"},
		{"missing tag", []string{"tag", "rust"}, ExitFailure, `tag "rust" not found`},
		{"bad ref", []string{"comment-tags", "alice"}, ExitCommandError, "author/permlink"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"query", "--journal", path}, tt.args...)
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
