package tags

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tagstate/internal/index"
	"github.com/roach88/tagstate/internal/ledger"
	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/protocol"
	"github.com/roach88/tagstate/internal/score"
)

const contentConstant = 2_000_000_000_000

type fixture struct {
	t     *testing.T
	store *objectstore.Store
	st    *ledger.State
	m     *Maintainer
}

func newFixture(t *testing.T, accounts ...string) *fixture {
	t.Helper()
	s := objectstore.New()
	st, err := ledger.Register(s)
	require.NoError(t, err)
	m, err := Register(s, st, DefaultOptions(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	for _, name := range accounts {
		_, err := st.CreateAccount(ledger.Account{Name: name})
		require.NoError(t, err)
	}
	return &fixture{t: t, store: s, st: st, m: m}
}

func (f *fixture) account(name string) ledger.Account {
	f.t.Helper()
	a, err := f.st.MustAccount(name)
	require.NoError(f.t, err)
	return a
}

func (f *fixture) comment(author, permlink string) ledger.Comment {
	f.t.Helper()
	c, err := f.st.MustComment(author, permlink)
	require.NoError(f.t, err)
	return c
}

func metadata(tags ...string) string {
	b, _ := json.Marshal(map[string]any{"tags": tags})
	return string(b)
}

// post creates a comment the way the comment evaluator does and notifies the
// maintainer.
func (f *fixture) post(author, permlink, parentAuthor, parentPermlink, category, meta string, created protocol.TimePointSec) ledger.Comment {
	f.t.Helper()
	c := ledger.Comment{
		Author:       f.account(author).ID,
		Permlink:     permlink,
		Category:     category,
		JSONMetadata: meta,
		Created:      created,
		LastUpdate:   created,
		Active:       created,
		CashoutTime:  created.Add(7 * 24 * 3600),
	}
	if parentAuthor != "" {
		parent := f.comment(parentAuthor, parentPermlink)
		c.Parent = parent.ID
		c.Root = parent.Root
		c.Depth = parent.Depth + 1
		c.Category = parent.Category
	}
	created2, err := f.st.CreateComment(c)
	require.NoError(f.t, err)
	require.NoError(f.t, f.st.UpdateAncestors(created2, func(p *ledger.Comment) {
		p.Children++
		p.Active = created
	}))
	require.NoError(f.t, f.m.OnOperation(context.Background(), protocol.Comment{
		ParentAuthor: parentAuthor, ParentPermlink: parentPermlink,
		Author: author, Permlink: permlink, JSONMetadata: meta,
	}))
	return f.comment(author, permlink)
}

// addRshares moves net rshares of c by delta and refreshes its tags.
func (f *fixture) addRshares(c ledger.Comment, delta int64) ledger.Comment {
	f.t.Helper()
	old := score.VShares(c.NetRshares, contentConstant)
	updated, err := f.st.UpdateComment(c.ID, func(c *ledger.Comment) {
		c.NetRshares += delta
		if delta > 0 {
			c.NetVotes++
		} else {
			c.NetVotes--
		}
	})
	require.NoError(f.t, err)
	require.NoError(f.t, f.st.AdjustRshares2(updated, old, score.VShares(updated.NetRshares, contentConstant)))
	updated, _ = f.st.Comments.Get(c.ID)
	require.NoError(f.t, f.m.OnCommentChanged(updated, false))
	return updated
}

func (f *fixture) payout(c ledger.Comment) {
	f.t.Helper()
	_, err := f.st.UpdateComment(c.ID, func(c *ledger.Comment) {
		c.CashoutTime = protocol.MaxTime
		c.NetRshares = 0
	})
	require.NoError(f.t, err)
	author := f.st.AuthorName(c.Author)
	require.NoError(f.t, f.m.OnOperation(context.Background(),
		protocol.CommentPayoutUpdate{Author: author, Permlink: c.Permlink}))
}

func names(seq func(func(Tag) bool)) []string {
	var out []string
	for t := range seq {
		out = append(out, t.Name)
	}
	return out
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		name     string
		category string
		meta     string
		rshares  int64
		want     []string
	}{
		{"category only", "Go", "", 0, []string{"", "go"}},
		{"metadata and category", "go", metadata("rust", "zig"), 0, []string{"", "go", "rust", "zig"}},
		{"duplicates collapse", "go", metadata("go", "GO"), 0, []string{"", "go"}},
		{"limit of five in byte order", "", metadata("f", "e", "d", "c", "b", "a"), 0, []string{"", "a", "b", "c", "d", "e"}},
		{"malformed metadata", "go", `{"tags": "nope"`, 0, []string{"", "go"}},
		{"non-string tags ignored", "", `{"tags": [1, "x", null]}`, 0, []string{"", "x"}},
		{"overlong tag skipped", "", metadata("abcdefghijklmnopqrstuvwxyz0123456789"), 0, []string{""}},
		{"negative spam leaves universal", "", metadata("spam"), -1, []string{"spam"}},
		{"positive spam keeps universal", "", metadata("spam"), 1, []string{"", "spam"}},
		{"negative safe keeps universal", "", metadata("go"), -1, []string{"", "go"}},
		{"nfc and lowercase", "", metadata("Café"), 0, []string{"", "café"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTags(tt.category, tt.meta, tt.rshares, 5, 32)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaintainer_PostCreatesEntriesAndStats(t *testing.T) {
	f := newFixture(t, "alice")
	p := f.post("alice", "hello", "", "", "go", metadata("rust"), 1000)

	assert.Equal(t, []string{"", "go", "rust"}, names(f.m.EntriesOf(p.ID)))
	for _, name := range []string{"", "go", "rust"} {
		s, ok := f.m.StatsOf(name)
		require.True(t, ok, name)
		assert.Equal(t, uint32(1), s.TopPosts)
		assert.Equal(t, uint32(0), s.Comments)

		a, ok := f.m.AuthorStats(p.Author, name)
		require.True(t, ok)
		assert.Equal(t, uint32(1), a.TotalPosts)
	}
	e, ok := f.m.Entry(p.ID, "go")
	require.True(t, ok)
	assert.True(t, e.IsPost())
	assert.Equal(t, p.CashoutTime, e.Cashout)
	assert.Equal(t, score.DefaultParams().Hot(0, 1000), e.Hot)
	require.NoError(t, f.m.Verify())
}

func TestMaintainer_ReplyUpdatesParents(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	p := f.post("alice", "hello", "", "", "go", "", 1000)
	r := f.post("bob", "re-hello", "alice", "hello", "", metadata("rust"), 1100)

	assert.Equal(t, []string{"", "go", "rust"}, names(f.m.EntriesOf(r.ID)))
	s, _ := f.m.StatsOf("go")
	assert.Equal(t, uint32(1), s.TopPosts)
	assert.Equal(t, uint32(1), s.Comments)

	parent, ok := f.m.Entry(p.ID, "go")
	require.True(t, ok)
	assert.Equal(t, int32(1), parent.Children)
	assert.Equal(t, protocol.TimePointSec(1100), parent.Active)

	r = f.addRshares(r, 50_000_000)
	parent, _ = f.m.Entry(p.ID, "go")
	assert.Equal(t, score.VShares(50_000_000, contentConstant), parent.ChildrenRshares2)
	require.NoError(t, f.m.Verify())
}

func TestMaintainer_PayoutRemovesEntries(t *testing.T) {
	f := newFixture(t, "alice")
	p := f.post("alice", "hello", "", "", "go", metadata("rust"), 1000)
	p = f.addRshares(p, 20_000_000)

	f.payout(p)

	assert.Empty(t, names(f.m.EntriesOf(p.ID)))
	for _, name := range []string{"", "go", "rust"} {
		s, ok := f.m.StatsOf(name)
		require.True(t, ok)
		assert.Equal(t, uint32(0), s.TopPosts)
		assert.Equal(t, int32(0), s.NetVotes)
		assert.True(t, s.TotalChildrenRshares2.IsZero())

		a, _ := f.m.AuthorStats(p.Author, name)
		assert.Equal(t, uint32(0), a.TotalPosts)
	}
	require.NoError(t, f.m.Verify())
}

func TestMaintainer_EditRetags(t *testing.T) {
	f := newFixture(t, "alice")
	p := f.post("alice", "hello", "", "", "go", metadata("rust"), 1000)

	_, err := f.st.UpdateComment(p.ID, func(c *ledger.Comment) { c.JSONMetadata = metadata("zig") })
	require.NoError(t, err)
	require.NoError(t, f.m.OnOperation(context.Background(),
		protocol.Comment{Author: "alice", Permlink: "hello"}))

	assert.Equal(t, []string{"", "go", "zig"}, names(f.m.EntriesOf(p.ID)))
	s, _ := f.m.StatsOf("rust")
	assert.Equal(t, uint32(0), s.TopPosts)
	require.NoError(t, f.m.Verify())
}

func TestMaintainer_DeleteRemovesOrphans(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	p := f.post("alice", "hello", "", "", "go", "", 1000)
	r := f.post("bob", "re", "alice", "hello", "", "", 1100)

	_, err := f.st.RemoveComment(r.ID)
	require.NoError(t, err)
	require.NoError(t, f.st.UpdateAncestors(r, func(c *ledger.Comment) { c.Children-- }))
	require.NoError(t, f.m.OnOperation(context.Background(),
		protocol.DeleteComment{Author: "bob", Permlink: "re"}))

	assert.Empty(t, names(f.m.EntriesOf(r.ID)))
	parent, _ := f.m.Entry(p.ID, "go")
	assert.Equal(t, int32(0), parent.Children)
	s, _ := f.m.StatsOf("go")
	assert.Equal(t, uint32(0), s.Comments)
	require.NoError(t, f.m.Verify())
}

func TestMaintainer_PeerStats(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	p := f.post("bob", "post", "", "", "go", "", 1000)
	alice, bob, carol := f.account("alice").ID, f.account("bob").ID, f.account("carol").ID

	vote := func(voter ID, weight int16) {
		_, err := f.st.CreateVote(ledger.Vote{Voter: voter, Comment: p.ID, VotePercent: weight})
		require.NoError(t, err)
		require.NoError(t, f.m.OnVote(voter, p, weight))
	}
	vote(alice, 100)
	vote(carol, -50)
	require.NoError(t, f.m.OnVote(bob, p, 100))

	ab, ok := f.m.PeerStatsOf(alice, bob)
	require.True(t, ok)
	assert.Equal(t, int32(2), ab.DirectVotes)
	assert.Equal(t, int32(1), ab.DirectPositiveVotes)
	assert.InDelta(t, 2.5*math.Log(2), ab.Rank, 1e-12)

	for _, pair := range [][2]ID{{alice, carol}, {carol, alice}} {
		ps, ok := f.m.PeerStatsOf(pair[0], pair[1])
		require.True(t, ok)
		assert.Equal(t, int32(2), ps.IndirectVotes)
		assert.Equal(t, int32(0), ps.IndirectPositiveVotes)
	}

	cb, _ := f.m.PeerStatsOf(carol, bob)
	assert.Equal(t, 0.0, cb.Rank)
	assert.False(t, math.Signbit(cb.Rank))

	_, ok = f.m.PeerStatsOf(bob, bob)
	assert.False(t, ok, "self votes are ignored")

	peers := index.Collect(f.m.PeersOf(alice), 0)
	require.Len(t, peers, 2)
	assert.Equal(t, bob, peers[0].Peer)
	require.NoError(t, f.m.Verify())
}

func TestMaintainer_PromoteAndReward(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	p := f.post("alice", "hello", "", "", "go", "", 1000)
	ctx := context.Background()

	require.NoError(t, f.m.OnOperation(ctx, protocol.Transfer{
		From: "bob", To: "null", Amount: protocol.MustParseAsset("2.500 GBG"), Memo: "@alice/hello",
	}))
	require.NoError(t, f.m.OnOperation(ctx, protocol.Transfer{
		From: "bob", To: "alice", Amount: protocol.MustParseAsset("1.000 GBG"), Memo: "@alice/hello",
	}))
	e, _ := f.m.Entry(p.ID, "go")
	assert.Equal(t, int64(2500), e.PromotedBalance)

	promoted, err := f.m.Discussions(ByParentPromoted, "go", objectstore.NullID)
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, names(promoted))

	require.NoError(t, f.m.OnOperation(ctx, protocol.CommentReward{
		Author: "alice", Permlink: "hello", Payout: protocol.MustParseAsset("3.000 GBG"),
	}))
	s, _ := f.m.StatsOf("go")
	assert.Equal(t, "3.000 GBG", s.TotalPayout.String())
	a, _ := f.m.AuthorStats(p.Author, "go")
	assert.Equal(t, "3.000 GBG", a.TotalRewards.String())

	top := index.Collect(f.m.TopAuthors("go"), 0)
	require.Len(t, top, 1)
	assert.Equal(t, p.Author, top[0].Author)
}

func TestMaintainer_RewardOverflowRejected(t *testing.T) {
	f := newFixture(t, "alice")
	p := f.post("alice", "hello", "", "", "go", "", 1000)
	ctx := context.Background()

	require.NoError(t, f.m.OnOperation(ctx, protocol.CommentReward{
		Author: "alice", Permlink: "hello", Payout: protocol.NewAsset(math.MaxInt64, "GBG"),
	}))
	err := f.m.OnOperation(ctx, protocol.CommentReward{
		Author: "alice", Permlink: "hello", Payout: protocol.NewAsset(1, "GBG"),
	})
	require.Error(t, err)
	assert.True(t, objectstore.IsValidation(err))

	s, _ := f.m.StatsOf("go")
	assert.Equal(t, int64(math.MaxInt64), s.TotalPayout.Amount)
	a, _ := f.m.AuthorStats(p.Author, "go")
	assert.Equal(t, int64(math.MaxInt64), a.TotalRewards.Amount)
}

func assertRoundTrip[T any](t *testing.T, want T) {
	t.Helper()
	data, err := json.Marshal(want)
	require.NoError(t, err)
	var got T
	require.NoError(t, json.Unmarshal(data, &got), string(data))
	assert.Equal(t, want, got, string(data))
}

func TestRecords_JSONRoundTrip(t *testing.T) {
	params := score.DefaultParams()
	big := protocol.Uint128{Hi: 7, Lo: math.MaxUint64 - 3}

	t.Run("tag", func(t *testing.T) {
		assertRoundTrip(t, Tag{
			ID:               12,
			Name:             "путешествия",
			Created:          1_500_000_000,
			Active:           1_500_000_600,
			Cashout:          protocol.MaxTime - 1,
			NetRshares:       -123_456_789_012,
			NetVotes:         -3,
			Children:         4,
			Hot:              params.Hot(-123_456_789_012, 1_500_000_000),
			Trending:         params.Trending(987_654_321_000, 1_500_000_000),
			PromotedBalance:  2500,
			ChildrenRshares2: big,
			Author:           3,
			Parent:           9,
			Comment:          11,
		})
	})
	t.Run("tag stats", func(t *testing.T) {
		assertRoundTrip(t, TagStats{
			ID:                    5,
			Tag:                   "go",
			TotalChildrenRshares2: big,
			TotalPayout:           protocol.MustParseAsset("1234.567 GBG"),
			NetVotes:              -17,
			TopPosts:              8,
			Comments:              21,
		})
	})
	t.Run("peer stats", func(t *testing.T) {
		p := NewPeerStats(1, 2)
		p.ID = 4
		p.DirectPositiveVotes = 2
		p.DirectVotes = 3
		p.IndirectVotes = 7
		rank, err := score.Rank(p.DirectPositiveVotes, p.DirectVotes, p.IndirectPositiveVotes, p.IndirectVotes)
		require.NoError(t, err)
		require.NotZero(t, rank)
		p.Rank = rank
		assertRoundTrip(t, p)
	})
	t.Run("author tag stats", func(t *testing.T) {
		assertRoundTrip(t, AuthorTagStats{
			ID:           6,
			Author:       3,
			Tag:          "",
			TotalRewards: protocol.MustParseAsset("-0.001 GBG"),
			TotalPosts:   math.MaxUint32,
		})
	})
}

func TestMaintainer_MissingStatsIsFatal(t *testing.T) {
	f := newFixture(t, "alice")
	p := f.post("alice", "hello", "", "", "go", "", 1000)
	s, _ := f.m.StatsOf("go")
	_, err := f.m.stats.Update(s.ID, func(s *TagStats) { s.TopPosts = 0 })
	require.NoError(t, err)

	require.Error(t, f.m.Verify())

	e, _ := f.m.Entry(p.ID, "go")
	err = f.m.removeTag(e)
	require.Error(t, err)
	assert.True(t, objectstore.IsFatal(err))
	code, _ := objectstore.CodeOf(err)
	assert.Equal(t, objectstore.CodeInconsistentAggregate, code)
}

func TestDiscussions_Order(t *testing.T) {
	f := newFixture(t, "alice")
	var posts []ledger.Comment
	for i, rshares := range []int64{100_000_000, 50_000_000, 200_000_000} {
		p := f.post("alice", fmt.Sprintf("p%d", i), "", "", "go", "", protocol.TimePointSec(1000+i))
		posts = append(posts, f.addRshares(p, rshares))
	}

	seq, err := f.m.Discussions(ByParentNetRshares, "go", objectstore.NullID)
	require.NoError(t, err)
	var got []ID
	for e := range seq {
		got = append(got, e.Comment)
	}
	assert.Equal(t, []ID{posts[2].ID, posts[0].ID, posts[1].ID}, got)

	seq, _ = f.m.Discussions(ByParentCreated, "go", objectstore.NullID)
	got = got[:0]
	for e := range seq {
		got = append(got, e.Comment)
	}
	assert.Equal(t, []ID{posts[2].ID, posts[1].ID, posts[0].ID}, got)

	_, err = f.m.Discussions(ByCashout, "go", objectstore.NullID)
	assert.Error(t, err)
}

// TestMaintainer_RandomHistory drives random posts, replies, votes, edits and
// payouts and checks after every step that the aggregates equal a fold over
// the entries and that every index is sorted and current. Undoing the whole history restores the empty digest.
func TestMaintainer_RandomHistory(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	before, err := f.store.Digest()
	require.NoError(t, err)
	session := f.store.StartUndoSession()

	rng := rand.New(rand.NewPCG(1, 2))
	pool := []string{"go", "rust", "zig", "spam", "news", "art", "Go"}
	authors := []string{"alice", "bob", "carol"}
	randomTags := func() string {
		n := rng.IntN(4)
		tags := make([]string, n)
		for i := range tags {
			tags[i] = pool[rng.IntN(len(pool))]
		}
		return metadata(tags...)
	}

	var live []ledger.Comment
	now := protocol.TimePointSec(1000)
	for step := range 300 {
		now++
		switch op := rng.IntN(5); {
		case op == 0 || len(live) == 0:
			p := f.post(authors[rng.IntN(3)], fmt.Sprintf("p%d", step), "", "",
				pool[rng.IntN(len(pool))], randomTags(), now)
			live = append(live, p)
		case op == 1:
			parent := live[rng.IntN(len(live))]
			if parent.Depth >= 6 {
				continue
			}
			r := f.post(authors[rng.IntN(3)], fmt.Sprintf("r%d", step),
				f.st.AuthorName(parent.Author), parent.Permlink, "", randomTags(), now)
			live = append(live, r)
		case op == 2:
			i := rng.IntN(len(live))
			c, _ := f.st.Comments.Get(live[i].ID)
			if c.PaidOut() {
				continue
			}
			f.addRshares(c, rng.Int64N(400_000_000)-100_000_000)
		case op == 3:
			c, _ := f.st.Comments.Get(live[rng.IntN(len(live))].ID)
			_, err := f.st.UpdateComment(c.ID, func(c *ledger.Comment) { c.JSONMetadata = randomTags() })
			require.NoError(t, err)
			require.NoError(t, f.m.OnOperation(context.Background(),
				protocol.Comment{Author: f.st.AuthorName(c.Author), Permlink: c.Permlink}))
		default:
			c, _ := f.st.Comments.Get(live[rng.IntN(len(live))].ID)
			if !c.PaidOut() {
				f.payout(c)
			}
		}
		require.NoError(t, f.m.Verify(), "step %d", step)
		require.NoError(t, f.store.Verify(), "step %d", step)
	}

	for _, c := range live {
		for e := range f.m.EntriesOf(c.ID) {
			assert.NotEqual(t, protocol.MaxTime, e.Cashout)
		}
	}
	assert.True(t, slices.IsSortedFunc(index.Collect(f.m.TrendingTags(), 0), func(a, b TagStats) int {
		return b.TotalChildrenRshares2.Cmp(a.TotalChildrenRshares2)
	}))

	require.NoError(t, session.Undo())
	after, err := f.store.Digest()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
