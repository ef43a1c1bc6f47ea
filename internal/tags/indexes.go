package tags

import (
	"math"

	"github.com/roach88/tagstate/internal/index"
	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/protocol"
)

// Tag index names.
const (
	ByComment                = "by_comment"
	ByCommentTag             = "by_comment_tag"
	ByAuthorComment          = "by_author_comment"
	ByParentCreated          = "by_parent_created"
	ByParentActive           = "by_parent_active"
	ByParentPromoted         = "by_parent_promoted"
	ByParentNetRshares       = "by_parent_net_rshares"
	ByParentNetVotes         = "by_parent_net_votes"
	ByParentChildren         = "by_parent_children"
	ByParentHot              = "by_parent_hot"
	ByParentTrending         = "by_parent_trending"
	ByParentChildrenRshares2 = "by_parent_children_rshares2"
	ByCashout                = "by_cashout"
	ByNetRshares             = "by_net_rshares"
	ByAuthorParentCreated    = "by_author_parent_created"
	ByRewardFundNetRshares   = "by_reward_fund_net_rshares"
)

// Tag stats, peer stats and author tag stats index names.
const (
	StatsByTag      = "by_tag"
	StatsByTrending = "by_trending"

	PeersByRank      = "by_rank"
	PeersByVoterPeer = "by_voter_peer"

	AuthorByTag        = "by_author_tag"
	AuthorByPostsTag   = "by_author_posts_tag"
	AuthorByTagPosts   = "by_author_tag_posts"
	AuthorByTagRewards = "by_author_tag_rewards"
	TagRewardsByAuthor = "by_tag_rewards_author"
)

var (
	tagID       = index.Asc(func(t Tag) ID { return t.ID })
	tagName     = index.Asc(func(t Tag) string { return t.Name })
	tagParent   = index.Asc(func(t Tag) ID { return t.Parent })
	tagComment  = index.Asc(func(t Tag) ID { return t.Comment })
	tagAuthor   = index.Asc(func(t Tag) ID { return t.Author })
	tagCashout  = index.Asc(func(t Tag) protocol.TimePointSec { return t.Cashout })
	tagIsPost   = index.AscFunc(Tag.IsPost, index.Bool)
	tagRshares2 = index.DescFunc(func(t Tag) protocol.Uint128 { return t.ChildrenRshares2 }, protocol.Uint128.Cmp)
)

// byParent builds the (name, parent, ranking desc, id) shape shared by the
// discussion indexes.
func byParent(name string, ranking index.Ordering[Tag]) objectstore.IndexDef[Tag] {
	return objectstore.IndexDef[Tag]{
		Name:  name,
		Order: index.Then(tagName, tagParent, ranking, tagID),
	}
}

// TagIndexes lists every secondary index of the tag table.
func TagIndexes() []objectstore.IndexDef[Tag] {
	return []objectstore.IndexDef[Tag]{
		{Name: ByComment, Order: index.Then(tagComment, tagID), Unique: true},
		{Name: ByCommentTag, Order: index.Then(tagComment, tagName), Unique: true},
		{Name: ByAuthorComment, Order: index.Then(tagAuthor, tagComment, tagID), Unique: true},
		byParent(ByParentCreated, index.Desc(func(t Tag) protocol.TimePointSec { return t.Created })),
		byParent(ByParentActive, index.Desc(func(t Tag) protocol.TimePointSec { return t.Active })),
		byParent(ByParentPromoted, index.Desc(func(t Tag) int64 { return t.PromotedBalance })),
		byParent(ByParentNetRshares, index.Desc(func(t Tag) int64 { return t.NetRshares })),
		byParent(ByParentNetVotes, index.Desc(func(t Tag) int32 { return t.NetVotes })),
		byParent(ByParentChildren, index.Desc(func(t Tag) int32 { return t.Children })),
		byParent(ByParentHot, index.Desc(func(t Tag) float64 { return t.Hot })),
		byParent(ByParentTrending, index.Desc(func(t Tag) float64 { return t.Trending })),
		byParent(ByParentChildrenRshares2, tagRshares2),
		{Name: ByCashout, Order: index.Then(tagName, tagCashout, tagID)},
		{Name: ByNetRshares, Order: index.Then(tagName, index.Desc(func(t Tag) int64 { return t.NetRshares }), tagID)},
		{Name: ByAuthorParentCreated, Order: index.Then(tagName, tagAuthor,
			index.Desc(func(t Tag) protocol.TimePointSec { return t.Created }), tagID)},
		{Name: ByRewardFundNetRshares, Order: index.Then(tagName, tagIsPost,
			index.Desc(func(t Tag) int64 { return t.NetRshares }), tagID)},
	}
}

// TagStatsIndexes lists the secondary indexes of the tag stats table.
func TagStatsIndexes() []objectstore.IndexDef[TagStats] {
	statsTag := index.Asc(func(s TagStats) string { return s.Tag })
	return []objectstore.IndexDef[TagStats]{
		{Name: StatsByTag, Order: statsTag, Unique: true},
		{Name: StatsByTrending, Order: index.Then(
			index.DescFunc(func(s TagStats) protocol.Uint128 { return s.TotalChildrenRshares2 }, protocol.Uint128.Cmp),
			statsTag,
			index.Asc(func(s TagStats) ID { return s.ID }),
		)},
	}
}

// PeerStatsIndexes lists the secondary indexes of the peer stats table.
func PeerStatsIndexes() []objectstore.IndexDef[PeerStats] {
	voter := index.Asc(func(p PeerStats) ID { return p.Voter })
	peer := index.Asc(func(p PeerStats) ID { return p.Peer })
	return []objectstore.IndexDef[PeerStats]{
		{Name: PeersByRank, Order: index.Then(voter,
			index.Desc(func(p PeerStats) float64 { return p.Rank }),
			peer,
			index.Asc(func(p PeerStats) ID { return p.ID }),
		)},
		{Name: PeersByVoterPeer, Order: index.Then(voter, peer), Unique: true},
	}
}

// AuthorTagStatsIndexes lists the secondary indexes of the author tag stats
// table.
func AuthorTagStatsIndexes() []objectstore.IndexDef[AuthorTagStats] {
	author := index.Asc(func(a AuthorTagStats) ID { return a.Author })
	tag := index.Asc(func(a AuthorTagStats) string { return a.Tag })
	posts := index.Desc(func(a AuthorTagStats) uint32 { return a.TotalPosts })
	rewards := index.Desc(func(a AuthorTagStats) int64 { return a.TotalRewards.Amount })
	id := index.Asc(func(a AuthorTagStats) ID { return a.ID })
	return []objectstore.IndexDef[AuthorTagStats]{
		{Name: AuthorByTag, Order: index.Then(author, tag), Unique: true},
		{Name: AuthorByPostsTag, Order: index.Then(author, posts, tag, id)},
		{Name: AuthorByTagPosts, Order: index.Then(author, tag, posts, id)},
		{Name: AuthorByTagRewards, Order: index.Then(author, tag, rewards, id)},
		{Name: TagRewardsByAuthor, Order: index.Then(tag, rewards, author, id)},
	}
}

// Pivots for descending keys: the largest value sorts first.
const (
	maxTime   = protocol.MaxTime
	maxInt64  = math.MaxInt64
	maxInt32  = math.MaxInt32
	maxUint32 = math.MaxUint32
)

var (
	maxUint128 = protocol.Uint128{Hi: math.MaxUint64, Lo: math.MaxUint64}
	maxFloat   = math.Inf(1)
)
