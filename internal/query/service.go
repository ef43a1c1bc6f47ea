package query

import (
	"iter"

	"github.com/roach88/tagstate/internal/chain"
	"github.com/roach88/tagstate/internal/index"
	"github.com/roach88/tagstate/internal/ledger"
	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/tags"
)

// DefaultMaxLimit bounds every page size.
const DefaultMaxLimit = 1000

// Service answers queries against one snapshot. It is safe for concurrent
// use; take a new Service to observe later blocks.
type Service struct {
	snap     *chain.Snapshot
	maxLimit int
}

// New returns a Service over snap. maxLimit <= 0 selects DefaultMaxLimit.
func New(snap *chain.Snapshot, maxLimit int) *Service {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	return &Service{snap: snap, maxLimit: maxLimit}
}

// Head returns the head block the snapshot was taken at.
func (s *Service) Head() ledger.GlobalProperties { return s.snap.Head() }

func (s *Service) checkLimit(limit int) error {
	if limit < 1 || limit > s.maxLimit {
		return invalid("limit %d outside [1, %d]", limit, s.maxLimit)
	}
	return nil
}

// Discussions returns one page of a discussion listing.
func (s *Service) Discussions(q DiscussionQuery) ([]Discussion, error) {
	if err := s.checkLimit(q.Limit); err != nil {
		return nil, err
	}
	if _, ok := sortIndexes[q.Sort]; !ok {
		return nil, invalid("unknown sort %q", q.Sort)
	}

	parent := objectstore.NullID
	if q.ParentAuthor != "" || q.ParentPermlink != "" {
		p, ok := s.snap.Comment(q.ParentAuthor, q.ParentPermlink)
		if !ok {
			return []Discussion{}, nil
		}
		parent = p.ID
	}
	l, err := tags.DiscussionListing(q.Sort.Index(), q.Tag, parent)
	if err != nil {
		return nil, invalid("%v", err)
	}
	return s.page(l, q.Tag, q.Start, q.Limit)
}

// Cashout lists the entries of tag by cashout time, earliest first.
func (s *Service) Cashout(tag string, start Cursor, limit int) ([]Discussion, error) {
	return s.listing(tags.CashoutListing(tag), tag, start, limit)
}

// NetRshares lists the entries of tag by net rshares, largest first.
func (s *Service) NetRshares(tag string, start Cursor, limit int) ([]Discussion, error) {
	return s.listing(tags.NetRsharesListing(tag), tag, start, limit)
}

// Blog lists author's entries under tag, newest first.
func (s *Service) Blog(tag, author string, start Cursor, limit int) ([]Discussion, error) {
	if err := s.checkLimit(limit); err != nil {
		return nil, err
	}
	a, ok := s.snap.Account(author)
	if !ok {
		return []Discussion{}, nil
	}
	return s.page(tags.BlogListing(tag, a.ID), tag, start, limit)
}

// RewardFund lists the posts of tag, or its replies when isPost is false,
// by net rshares, largest first.
func (s *Service) RewardFund(tag string, isPost bool, start Cursor, limit int) ([]Discussion, error) {
	return s.listing(tags.RewardFundListing(tag, isPost), tag, start, limit)
}

func (s *Service) listing(l tags.Listing, tag string, start Cursor, limit int) ([]Discussion, error) {
	if err := s.checkLimit(limit); err != nil {
		return nil, err
	}
	return s.page(l, tag, start, limit)
}

// page resumes l at the cursor and materializes up to limit entries.
func (s *Service) page(l tags.Listing, tag string, start Cursor, limit int) ([]Discussion, error) {
	if !start.IsZero() {
		c, ok := s.snap.Comment(start.Author, start.Permlink)
		if !ok {
			return nil, invalid("start %s/%s does not exist", start.Author, start.Permlink)
		}
		e, ok := s.snap.Tags.Entry(c.ID, tag)
		if !ok {
			return nil, invalid("start %s/%s is not tagged %q", start.Author, start.Permlink, tag)
		}
		if l, ok = l.From(e); !ok {
			return nil, invalid("start %s/%s is not part of this listing", start.Author, start.Permlink)
		}
	}
	return s.discussions(index.Take(s.snap.Tags.List(l), limit)), nil
}

func (s *Service) discussions(entries iter.Seq[tags.Tag]) []Discussion {
	out := []Discussion{}
	for e := range entries {
		if d, ok := s.discussion(e); ok {
			out = append(out, d)
		}
	}
	return out
}

func (s *Service) discussion(e tags.Tag) (Discussion, bool) {
	c, ok := s.snap.Comments.Get(e.Comment)
	if !ok {
		return Discussion{}, false
	}
	d := Discussion{
		Tag:              e.Name,
		Author:           s.snap.AuthorName(c.Author),
		Permlink:         c.Permlink,
		ParentPermlink:   c.Category,
		Category:         c.Category,
		Title:            c.Title,
		Depth:            c.Depth,
		Created:          e.Created,
		Active:           e.Active,
		Cashout:          e.Cashout,
		NetRshares:       e.NetRshares,
		NetVotes:         e.NetVotes,
		Children:         e.Children,
		Hot:              e.Hot,
		Trending:         e.Trending,
		PromotedBalance:  e.PromotedBalance,
		ChildrenRshares2: e.ChildrenRshares2,
		TotalPayout:      c.TotalPayout,
	}
	if !c.IsRoot() {
		if p, ok := s.snap.Comments.Get(c.Parent); ok {
			d.ParentAuthor = s.snap.AuthorName(p.Author)
			d.ParentPermlink = p.Permlink
		}
	}
	return d, true
}

// TagsOfComment lists the entries of one comment in id order.
func (s *Service) TagsOfComment(author, permlink string) []Discussion {
	c, ok := s.snap.Comment(author, permlink)
	if !ok {
		return []Discussion{}
	}
	return s.discussions(s.snap.Tags.EntriesOf(c.ID))
}

// TagEntriesByAuthor lists every entry of author's comments.
func (s *Service) TagEntriesByAuthor(author string) []Discussion {
	a, ok := s.snap.Account(author)
	if !ok {
		return []Discussion{}
	}
	return s.discussions(s.snap.Tags.EntriesByAuthor(a.ID))
}

// Tag returns the aggregate of name.
func (s *Service) Tag(name string) (TagInfo, bool) {
	st, ok := s.snap.Tags.StatsOf(name)
	if !ok {
		return TagInfo{}, false
	}
	return tagInfo(st), true
}

func tagInfo(st tags.TagStats) TagInfo {
	return TagInfo{
		Name:                  st.Tag,
		TotalChildrenRshares2: st.TotalChildrenRshares2,
		TotalPayout:           st.TotalPayout,
		NetVotes:              st.NetVotes,
		TopPosts:              st.TopPosts,
		Comments:              st.Comments,
	}
}

// TrendingTags lists tags by total children_rshares2, largest first. A
// non-empty after starts the page at that tag.
func (s *Service) TrendingTags(after string, limit int) ([]TagInfo, error) {
	if err := s.checkLimit(limit); err != nil {
		return nil, err
	}
	seq := s.snap.Tags.TrendingTags()
	if after != "" {
		st, ok := s.snap.Tags.StatsOf(after)
		if !ok {
			return nil, invalid("unknown tag %q", after)
		}
		seq = s.snap.Tags.Stats.Range(tags.StatsByTrending, st, func(tags.TagStats) bool { return true })
	}
	out := []TagInfo{}
	for st := range index.Take(seq, limit) {
		out = append(out, tagInfo(st))
	}
	return out, nil
}

// Peers lists voter's peers, best rank first.
func (s *Service) Peers(voter string, limit int) ([]Peer, error) {
	if err := s.checkLimit(limit); err != nil {
		return nil, err
	}
	out := []Peer{}
	a, ok := s.snap.Account(voter)
	if !ok {
		return out, nil
	}
	for p := range index.Take(s.snap.Tags.PeersOf(a.ID), limit) {
		out = append(out, s.peer(p))
	}
	return out, nil
}

// PeerStats returns what voter's record says about peer.
func (s *Service) PeerStats(voter, peer string) (Peer, bool) {
	v, ok := s.snap.Account(voter)
	if !ok {
		return Peer{}, false
	}
	p, ok := s.snap.Account(peer)
	if !ok {
		return Peer{}, false
	}
	st, ok := s.snap.Tags.PeerStatsOf(v.ID, p.ID)
	if !ok {
		return Peer{}, false
	}
	return s.peer(st), true
}

func (s *Service) peer(p tags.PeerStats) Peer {
	return Peer{
		Voter:                 s.snap.AuthorName(p.Voter),
		Peer:                  s.snap.AuthorName(p.Peer),
		DirectPositiveVotes:   p.DirectPositiveVotes,
		DirectVotes:           p.DirectVotes,
		IndirectPositiveVotes: p.IndirectPositiveVotes,
		IndirectVotes:         p.IndirectVotes,
		Rank:                  p.Rank,
	}
}

// TagsUsedByAuthor lists the tags author currently has entries under, most
// used first.
func (s *Service) TagsUsedByAuthor(author string) []TagCount {
	out := []TagCount{}
	a, ok := s.snap.Account(author)
	if !ok {
		return out
	}
	for st := range s.snap.Tags.AuthorTagsByPosts(a.ID) {
		if st.TotalPosts == 0 {
			continue
		}
		out = append(out, TagCount{Tag: st.Tag, Count: st.TotalPosts})
	}
	return out
}

// TopAuthors lists the authors of tag by rewards, largest first.
func (s *Service) TopAuthors(tag string, limit int) ([]AuthorTag, error) {
	if err := s.checkLimit(limit); err != nil {
		return nil, err
	}
	out := []AuthorTag{}
	for st := range index.Take(s.snap.Tags.TopAuthors(tag), limit) {
		out = append(out, s.authorTag(st))
	}
	return out, nil
}

// AuthorTagRewards lists every per-tag record of author in tag order,
// including tags whose posts have all paid out.
func (s *Service) AuthorTagRewards(author string) []AuthorTag {
	out := []AuthorTag{}
	a, ok := s.snap.Account(author)
	if !ok {
		return out
	}
	for st := range s.snap.Tags.TagsUsedByAuthor(a.ID) {
		out = append(out, s.authorTag(st))
	}
	return out
}

func (s *Service) authorTag(st tags.AuthorTagStats) AuthorTag {
	return AuthorTag{
		Author:       s.snap.AuthorName(st.Author),
		Tag:          st.Tag,
		TotalPosts:   st.TotalPosts,
		TotalRewards: st.TotalRewards,
	}
}
