package tags

import (
	"fmt"
	"iter"

	"github.com/roach88/tagstate/internal/objectstore"
)

// Reader is the read side of the tag tables. The Maintainer embeds one over
// its live tables; queries build one over a snapshot.
type Reader struct {
	Tags    *objectstore.View[Tag]
	Stats   *objectstore.View[TagStats]
	Peers   *objectstore.View[PeerStats]
	Authors *objectstore.View[AuthorTagStats]
}

// NewReader builds a Reader over a snapshot.
func NewReader(snap *objectstore.Snapshot) (Reader, error) {
	var (
		r   Reader
		err error
	)
	if r.Tags, err = objectstore.ViewOf[Tag](snap, objectstore.KindTag); err != nil {
		return r, err
	}
	if r.Stats, err = objectstore.ViewOf[TagStats](snap, objectstore.KindTagStats); err != nil {
		return r, err
	}
	if r.Peers, err = objectstore.ViewOf[PeerStats](snap, objectstore.KindPeerStats); err != nil {
		return r, err
	}
	if r.Authors, err = objectstore.ViewOf[AuthorTagStats](snap, objectstore.KindAuthorTagStats); err != nil {
		return r, err
	}
	return r, nil
}

// EntriesOf yields the entries of one comment in id order.
func (r Reader) EntriesOf(comment ID) iter.Seq[Tag] {
	return r.Tags.Range(ByComment, Tag{Comment: comment},
		func(t Tag) bool { return t.Comment == comment })
}

// Entry returns the entry of comment under name.
func (r Reader) Entry(comment ID, name string) (Tag, bool) {
	return r.Tags.Find(ByCommentTag, Tag{Comment: comment, Name: name})
}

// EntriesByAuthor yields every entry of author's comments.
func (r Reader) EntriesByAuthor(author ID) iter.Seq[Tag] {
	return r.Tags.Range(ByAuthorComment, Tag{Author: author},
		func(t Tag) bool { return t.Author == author })
}

// StatsOf returns the aggregate of one tag.
func (r Reader) StatsOf(name string) (TagStats, bool) {
	return r.Stats.Find(StatsByTag, TagStats{Tag: name})
}

// TrendingTags yields tag stats by total children_rshares2, largest first.
func (r Reader) TrendingTags() iter.Seq[TagStats] {
	return r.Stats.Ordered(StatsByTrending)
}

// PeerStatsOf returns the record of voter about peer.
func (r Reader) PeerStatsOf(voter, peer ID) (PeerStats, bool) {
	return r.Peers.Find(PeersByVoterPeer, PeerStats{Voter: voter, Peer: peer})
}

// PeersOf yields voter's peers by rank, best first.
func (r Reader) PeersOf(voter ID) iter.Seq[PeerStats] {
	return r.Peers.Range(PeersByRank, PeerStats{Voter: voter, Rank: maxFloat},
		func(p PeerStats) bool { return p.Voter == voter })
}

// AuthorStats returns author's record for tag.
func (r Reader) AuthorStats(author ID, tag string) (AuthorTagStats, bool) {
	return r.Authors.Find(AuthorByTag, AuthorTagStats{Author: author, Tag: tag})
}

// TagsUsedByAuthor yields author's per-tag records ordered by tag name.
func (r Reader) TagsUsedByAuthor(author ID) iter.Seq[AuthorTagStats] {
	return r.Authors.Range(AuthorByTag, AuthorTagStats{Author: author},
		func(a AuthorTagStats) bool { return a.Author == author })
}

// AuthorTagsByPosts yields author's per-tag records, most posts first.
func (r Reader) AuthorTagsByPosts(author ID) iter.Seq[AuthorTagStats] {
	return r.Authors.Range(AuthorByPostsTag, AuthorTagStats{Author: author, TotalPosts: maxUint32},
		func(a AuthorTagStats) bool { return a.Author == author })
}

// TopAuthors yields the per-author records of tag, largest rewards first.
func (r Reader) TopAuthors(tag string) iter.Seq[AuthorTagStats] {
	pivot := AuthorTagStats{Tag: tag}
	pivot.TotalRewards.Amount = maxInt64
	return r.Authors.Range(TagRewardsByAuthor, pivot,
		func(a AuthorTagStats) bool { return a.Tag == tag })
}

// discussionPivots sets the ranking field of a by_parent pivot to the value
// that sorts first.
var discussionPivots = map[string]func(*Tag){
	ByParentCreated:          func(t *Tag) { t.Created = maxTime },
	ByParentActive:           func(t *Tag) { t.Active = maxTime },
	ByParentPromoted:         func(t *Tag) { t.PromotedBalance = maxInt64 },
	ByParentNetRshares:       func(t *Tag) { t.NetRshares = maxInt64 },
	ByParentNetVotes:         func(t *Tag) { t.NetVotes = maxInt32 },
	ByParentChildren:         func(t *Tag) { t.Children = maxInt32 },
	ByParentHot:              func(t *Tag) { t.Hot = maxFloat },
	ByParentTrending:         func(t *Tag) { t.Trending = maxFloat },
	ByParentChildrenRshares2: func(t *Tag) { t.ChildrenRshares2 = maxUint128 },
}

// IsDiscussionIndex reports whether name is one of the by_parent orderings.
func IsDiscussionIndex(name string) bool {
	_, ok := discussionPivots[name]
	return ok
}

// Listing is a contiguous run of one tag index: the entries from Pivot on,
// in index order, for as long as Within holds.
type Listing struct {
	Index  string
	Pivot  Tag
	Within func(Tag) bool
}

// From returns l resumed at start. It reports false when start is not part
// of the run.
func (l Listing) From(start Tag) (Listing, bool) {
	if !l.Within(start) {
		return l, false
	}
	l.Pivot = start
	return l, true
}

// List yields the entries of l.
func (r Reader) List(l Listing) iter.Seq[Tag] {
	return r.Tags.Range(l.Index, l.Pivot, l.Within)
}

// DiscussionListing is the run of tag entries whose parent is parent, in the
// order of the named by_parent index.
func DiscussionListing(indexName, tag string, parent ID) (Listing, error) {
	top, ok := discussionPivots[indexName]
	if !ok {
		return Listing{}, fmt.Errorf("%s is not a discussion index", indexName)
	}
	pivot := Tag{Name: tag, Parent: parent}
	top(&pivot)
	return Listing{
		Index:  indexName,
		Pivot:  pivot,
		Within: func(t Tag) bool { return t.Name == tag && t.Parent == parent },
	}, nil
}

// Discussions yields the entries of tag whose parent is parent, in the order
// of the named by_parent index.
func (r Reader) Discussions(indexName, tag string, parent ID) (iter.Seq[Tag], error) {
	l, err := DiscussionListing(indexName, tag, parent)
	if err != nil {
		return nil, err
	}
	return r.List(l), nil
}

// CashoutListing orders the entries of tag by cashout time, earliest first.
func CashoutListing(tag string) Listing {
	return Listing{
		Index:  ByCashout,
		Pivot:  Tag{Name: tag},
		Within: func(t Tag) bool { return t.Name == tag },
	}
}

// ByCashoutTime yields the entries of tag by cashout time, earliest first.
func (r Reader) ByCashoutTime(tag string) iter.Seq[Tag] {
	return r.List(CashoutListing(tag))
}

// NetRsharesListing orders the entries of tag by net rshares, largest first.
func NetRsharesListing(tag string) Listing {
	return Listing{
		Index:  ByNetRshares,
		Pivot:  Tag{Name: tag, NetRshares: maxInt64},
		Within: func(t Tag) bool { return t.Name == tag },
	}
}

// ByNetRshares yields the entries of tag by net rshares, largest first.
func (r Reader) ByNetRshares(tag string) iter.Seq[Tag] {
	return r.List(NetRsharesListing(tag))
}

// BlogListing orders author's entries under tag, newest first.
func BlogListing(tag string, author ID) Listing {
	return Listing{
		Index:  ByAuthorParentCreated,
		Pivot:  Tag{Name: tag, Author: author, Created: maxTime},
		Within: func(t Tag) bool { return t.Name == tag && t.Author == author },
	}
}

// Blog yields author's entries under tag, newest first.
func (r Reader) Blog(tag string, author ID) iter.Seq[Tag] {
	return r.List(BlogListing(tag, author))
}

// RewardFundListing orders the posts of tag (or the replies when isPost is
// false) by net rshares, largest first.
func RewardFundListing(tag string, isPost bool) Listing {
	pivot := Tag{Name: tag, NetRshares: maxInt64}
	if !isPost {
		pivot.Parent = 1
	}
	return Listing{
		Index:  ByRewardFundNetRshares,
		Pivot:  pivot,
		Within: func(t Tag) bool { return t.Name == tag && t.IsPost() == isPost },
	}
}

// RewardFund yields entries of tag that are posts (or replies when isPost is
// false) by net rshares, largest first.
func (r Reader) RewardFund(tag string, isPost bool) iter.Seq[Tag] {
	return r.List(RewardFundListing(tag, isPost))
}
