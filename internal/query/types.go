// Package query serves read-only listings over a chain snapshot.
//
// Every result is a value copy taken from one immutable snapshot, so a
// caller can page through listings while blocks keep being applied. Paging
// is by cursor: the caller passes the (author, permlink) of the first entry
// it wants, usually the last entry of the previous page, and the listing
// resumes from that key. No iterator state outlives a call.
//
// Missing records are not errors. Lookups return (zero, false) and listings
// return an empty slice. Only malformed requests fail, with ErrInvalidQuery.
package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/tagstate/internal/protocol"
	"github.com/roach88/tagstate/internal/tags"
)

// ErrInvalidQuery reports a request that cannot be served as asked: a limit
// out of range, an unknown sort or a cursor outside the listing.
var ErrInvalidQuery = errors.New("invalid query")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}

// Sort names a discussion ordering.
type Sort string

const (
	SortTrending Sort = "trending"
	SortHot      Sort = "hot"
	SortCreated  Sort = "created"
	SortActive   Sort = "active"
	SortPromoted Sort = "promoted"
	SortVotes    Sort = "votes"
	SortChildren Sort = "children"
	SortPayout   Sort = "payout"
	SortComments Sort = "comments"
)

var sortIndexes = map[Sort]string{
	SortTrending: tags.ByParentTrending,
	SortHot:      tags.ByParentHot,
	SortCreated:  tags.ByParentCreated,
	SortActive:   tags.ByParentActive,
	SortPromoted: tags.ByParentPromoted,
	SortVotes:    tags.ByParentNetVotes,
	SortChildren: tags.ByParentChildren,
	SortPayout:   tags.ByParentNetRshares,
	SortComments: tags.ByParentChildrenRshares2,
}

// Sorts lists every discussion ordering in name order.
func Sorts() []Sort {
	out := make([]Sort, 0, len(sortIndexes))
	for s := range sortIndexes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseSort accepts a sort name in any case.
func ParseSort(name string) (Sort, error) {
	s := Sort(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := sortIndexes[s]; !ok {
		return "", invalid("unknown sort %q", name)
	}
	return s, nil
}

// Index returns the tag index backing s.
func (s Sort) Index() string { return sortIndexes[s] }

// Cursor names the first entry of a page. The zero Cursor starts at the top.
type Cursor struct {
	Author   string `json:"start_author,omitempty" yaml:"start_author,omitempty"`
	Permlink string `json:"start_permlink,omitempty" yaml:"start_permlink,omitempty"`
}

// IsZero reports whether c starts at the top of the listing.
func (c Cursor) IsZero() bool { return c.Author == "" && c.Permlink == "" }

// DiscussionQuery selects one page of a discussion listing. An empty Parent
// lists top-level posts; otherwise the direct replies of Parent are listed.
type DiscussionQuery struct {
	Sort           Sort   `json:"sort" yaml:"sort"`
	Tag            string `json:"tag" yaml:"tag"`
	ParentAuthor   string `json:"parent_author,omitempty" yaml:"parent_author,omitempty"`
	ParentPermlink string `json:"parent_permlink,omitempty" yaml:"parent_permlink,omitempty"`
	Start          Cursor `json:"start" yaml:"start"`
	Limit          int    `json:"limit" yaml:"limit"`
}

// Discussion is one tag entry joined with the comment it indexes.
type Discussion struct {
	Tag              string                `json:"tag"`
	Author           string                `json:"author"`
	Permlink         string                `json:"permlink"`
	ParentAuthor     string                `json:"parent_author"`
	ParentPermlink   string                `json:"parent_permlink"`
	Category         string                `json:"category"`
	Title            string                `json:"title"`
	Depth            uint16                `json:"depth"`
	Created          protocol.TimePointSec `json:"created"`
	Active           protocol.TimePointSec `json:"active"`
	Cashout          protocol.TimePointSec `json:"cashout_time"`
	NetRshares       int64                 `json:"net_rshares"`
	NetVotes         int32                 `json:"net_votes"`
	Children         int32                 `json:"children"`
	Hot              float64               `json:"hot"`
	Trending         float64               `json:"trending"`
	PromotedBalance  int64                 `json:"promoted_balance"`
	ChildrenRshares2 protocol.Uint128      `json:"children_rshares2"`
	TotalPayout      protocol.Asset        `json:"total_payout_value"`
}

// TagInfo is the aggregate of one tag.
type TagInfo struct {
	Name                  string           `json:"name"`
	TotalChildrenRshares2 protocol.Uint128 `json:"total_children_rshares2"`
	TotalPayout           protocol.Asset   `json:"total_payout"`
	NetVotes              int32            `json:"net_votes"`
	TopPosts              uint32           `json:"top_posts"`
	Comments              uint32           `json:"comments"`
}

// TagCount is how many live entries an author has under a tag.
type TagCount struct {
	Tag   string `json:"tag"`
	Count uint32 `json:"count"`
}

// AuthorTag is an author's posts and rewards under one tag.
type AuthorTag struct {
	Author       string         `json:"author"`
	Tag          string         `json:"tag"`
	TotalPosts   uint32         `json:"total_posts"`
	TotalRewards protocol.Asset `json:"total_rewards"`
}

// Peer is how one voter relates to another.
type Peer struct {
	Voter                 string  `json:"voter"`
	Peer                  string  `json:"peer"`
	DirectPositiveVotes   int32   `json:"direct_positive_votes"`
	DirectVotes           int32   `json:"direct_votes"`
	IndirectPositiveVotes int32   `json:"indirect_positive_votes"`
	IndirectVotes         int32   `json:"indirect_votes"`
	Rank                  float64 `json:"rank"`
}
