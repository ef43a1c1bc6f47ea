package query

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tagstate/internal/chain"
	"github.com/roach88/tagstate/internal/config"
	"github.com/roach88/tagstate/internal/testutil"
)

// fixture builds three posts under "go" with distinct net rshares
// (bob/b1 > alice/a1 > carol/c1) and one reply to alice/a1.
func fixture(t *testing.T) (*chain.Database, *testutil.BlockClock) {
	t.Helper()
	db, err := chain.Open(config.Default(), chain.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	clock := testutil.NewBlockClock()
	ctx := context.Background()

	const vesting = 1_000_000_000
	require.NoError(t, db.ApplyBlock(ctx, clock.Next(
		testutil.Account("alice", vesting, "10.000 GBG"),
		testutil.Account("bob", vesting, "10.000 GBG"),
		testutil.Account("carol", 2*vesting, "10.000 GBG"),
	)))
	require.NoError(t, db.ApplyBlock(ctx, clock.Next(
		testutil.Post("alice", "a1", "go"),
		testutil.Post("bob", "b1", "go"),
		testutil.Post("carol", "c1", "go", "rust"),
		testutil.Reply("bob", "r1", "alice", "a1"),
	)))
	require.NoError(t, db.ApplyBlock(ctx, clock.Next(
		testutil.Vote("bob", "alice", "a1", 10000),
		testutil.Vote("alice", "carol", "c1", 5000),
		testutil.Vote("carol", "bob", "b1", 10000),
	)))
	return db, clock
}

func service(t *testing.T, db *chain.Database) *Service {
	t.Helper()
	snap, err := db.Snapshot()
	require.NoError(t, err)
	return New(snap, 0)
}

func permlinks(ds []Discussion) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Permlink
	}
	return out
}

func TestDiscussions_Sorts(t *testing.T) {
	db, _ := fixture(t)
	s := service(t, db)

	tests := []struct {
		sort Sort
		want []string
	}{
		{SortPayout, []string{"b1", "a1", "c1"}},
		{SortTrending, []string{"b1", "a1", "c1"}},
		{SortHot, []string{"b1", "a1", "c1"}},
		{SortComments, []string{"b1", "a1", "c1"}},
		{SortCreated, []string{"a1", "b1", "c1"}},
		{SortChildren, []string{"a1", "b1", "c1"}},
		{SortVotes, []string{"a1", "b1", "c1"}},
		{SortPromoted, []string{"a1", "b1", "c1"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.sort), func(t *testing.T) {
			got, err := s.Discussions(DiscussionQuery{Sort: tt.sort, Tag: "go", Limit: 10})
			require.NoError(t, err)
			assert.Equal(t, tt.want, permlinks(got))
		})
	}
}

func TestDiscussions_Paging(t *testing.T) {
	db, _ := fixture(t)
	s := service(t, db)

	first, err := s.Discussions(DiscussionQuery{Sort: SortPayout, Tag: "go", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"b1", "a1"}, permlinks(first))

	last := first[len(first)-1]
	next, err := s.Discussions(DiscussionQuery{
		Sort:  SortPayout,
		Tag:   "go",
		Start: Cursor{Author: last.Author, Permlink: last.Permlink},
		Limit: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "c1"}, permlinks(next))
}

func TestDiscussions_Replies(t *testing.T) {
	db, _ := fixture(t)
	s := service(t, db)

	got, err := s.Discussions(DiscussionQuery{
		Sort: SortCreated, Tag: "go", ParentAuthor: "alice", ParentPermlink: "a1", Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].Author)
	assert.Equal(t, "alice", got[0].ParentAuthor)
	assert.Equal(t, "a1", got[0].ParentPermlink)
	assert.Equal(t, uint16(1), got[0].Depth)

	got, err = s.Discussions(DiscussionQuery{
		Sort: SortCreated, Tag: "go", ParentAuthor: "alice", ParentPermlink: "nope", Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDiscussions_Invalid(t *testing.T) {
	db, _ := fixture(t)
	s := service(t, db)

	tests := []struct {
		name string
		q    DiscussionQuery
	}{
		{"zero limit", DiscussionQuery{Sort: SortHot, Tag: "go"}},
		{"limit too large", DiscussionQuery{Sort: SortHot, Tag: "go", Limit: 1001}},
		{"unknown sort", DiscussionQuery{Sort: "best", Tag: "go", Limit: 1}},
		{"missing start", DiscussionQuery{Sort: SortHot, Tag: "go", Limit: 1,
			Start: Cursor{Author: "alice", Permlink: "zzz"}}},
		{"start not tagged", DiscussionQuery{Sort: SortHot, Tag: "rust", Limit: 1,
			Start: Cursor{Author: "alice", Permlink: "a1"}}},
		{"start is a reply", DiscussionQuery{Sort: SortHot, Tag: "go", Limit: 1,
			Start: Cursor{Author: "bob", Permlink: "r1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Discussions(tt.q)
			assert.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}

func TestListings(t *testing.T) {
	db, _ := fixture(t)
	s := service(t, db)

	got, err := s.NetRshares("go", Cursor{}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "a1", "c1", "r1"}, permlinks(got))

	got, err = s.Cashout("go", Cursor{}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	got, err = s.Blog("go", "alice", Cursor{}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, permlinks(got))

	got, err = s.Blog("go", "mallory", Cursor{}, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.RewardFund("go", false, Cursor{}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, permlinks(got))

	got, err = s.RewardFund("go", true, Cursor{Author: "alice", Permlink: "a1"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "c1"}, permlinks(got))

	_, err = s.Cashout("go", Cursor{}, 0)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestTagsOfComment(t *testing.T) {
	db, _ := fixture(t)
	s := service(t, db)

	var names []string
	for _, d := range s.TagsOfComment("carol", "c1") {
		names = append(names, d.Tag)
	}
	assert.Equal(t, []string{"", "go", "rust"}, names)
	assert.Empty(t, s.TagsOfComment("carol", "missing"))
	assert.Len(t, s.TagEntriesByAuthor("bob"), 4)
	assert.Empty(t, s.TagEntriesByAuthor("mallory"))
}

func TestTags(t *testing.T) {
	db, _ := fixture(t)
	s := service(t, db)

	goTag, ok := s.Tag("go")
	require.True(t, ok)
	assert.Equal(t, uint32(3), goTag.TopPosts)
	assert.Equal(t, uint32(1), goTag.Comments)
	_, ok = s.Tag("zig")
	assert.False(t, ok)

	trending, err := s.TrendingTags("", 10)
	require.NoError(t, err)
	var names []string
	for _, ti := range trending {
		names = append(names, ti.Name)
	}
	assert.Equal(t, []string{"", "go", "rust"}, names)

	after, err := s.TrendingTags("go", 10)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, "go", after[0].Name)

	_, err = s.TrendingTags("zig", 10)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestPeersAndAuthors(t *testing.T) {
	db, clock := fixture(t)
	require.NoError(t, db.ApplyBlock(context.Background(), clock.Next(
		testutil.Reward("alice", "a1", "3.000 GBG"),
		testutil.Reward("carol", "c1", "1.000 GBG"),
	)))
	s := service(t, db)

	peers, err := s.Peers("bob", 10)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "alice", peers[0].Peer)

	p, ok := s.PeerStats("bob", "alice")
	require.True(t, ok)
	assert.Equal(t, int32(2), p.DirectVotes)
	assert.Equal(t, int32(1), p.DirectPositiveVotes)
	_, ok = s.PeerStats("alice", "mallory")
	assert.False(t, ok)

	assert.Equal(t, []TagCount{{"", 1}, {"go", 1}, {"rust", 1}}, s.TagsUsedByAuthor("carol"))
	assert.Equal(t, []TagCount{{"", 2}, {"go", 2}}, s.TagsUsedByAuthor("bob"))

	top, err := s.TopAuthors("go", 10)
	require.NoError(t, err)
	var authors []string
	for _, a := range top {
		authors = append(authors, a.Author)
	}
	assert.Equal(t, []string{"alice", "carol", "bob"}, authors)
	assert.Equal(t, "3.000 GBG", top[0].TotalRewards.String())

	rewards := s.AuthorTagRewards("carol")
	require.Len(t, rewards, 3)
	assert.Equal(t, "rust", rewards[2].Tag)
	assert.Equal(t, "1.000 GBG", rewards[2].TotalRewards.String())
}

func TestService_SnapshotIsolation(t *testing.T) {
	db, clock := fixture(t)
	s := service(t, db)

	require.NoError(t, db.ApplyBlock(context.Background(), clock.Next(
		testutil.Post("alice", "a2", "go"),
	)))
	got, err := s.Discussions(DiscussionQuery{Sort: SortCreated, Tag: "go", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, uint32(3), s.Head().HeadBlockNumber)

	fresh := service(t, db)
	got, err = fresh.Discussions(DiscussionQuery{Sort: SortCreated, Tag: "go", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "a2", got[0].Permlink)
}

func TestParseSort(t *testing.T) {
	s, err := ParseSort(" Trending ")
	require.NoError(t, err)
	assert.Equal(t, SortTrending, s)
	_, err = ParseSort("best")
	assert.ErrorIs(t, err, ErrInvalidQuery)
	assert.Len(t, Sorts(), 9)
}
