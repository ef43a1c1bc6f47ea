package tags

import (
	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/protocol"
)

type ID = objectstore.ID

// Tag is one (comment, tag name) pair carrying a copy of the comment's
// ranking fields. Field order is the serialization order.
type Tag struct {
	ID               ID                    `json:"id"`
	Name             string                `json:"name"`
	Created          protocol.TimePointSec `json:"created"`
	Active           protocol.TimePointSec `json:"active"`
	Cashout          protocol.TimePointSec `json:"cashout"`
	NetRshares       int64                 `json:"net_rshares"`
	NetVotes         int32                 `json:"net_votes"`
	Children         int32                 `json:"children"`
	Hot              float64               `json:"hot"`
	Trending         float64               `json:"trending"`
	PromotedBalance  int64                 `json:"promoted_balance"`
	ChildrenRshares2 protocol.Uint128      `json:"children_rshares2"`
	Author           ID                    `json:"author"`
	Parent           ID                    `json:"parent"`
	Comment          ID                    `json:"comment"`
}

func (t Tag) RecordID() ID     { return t.ID }
func (t Tag) WithID(id ID) Tag { t.ID = id; return t }

// IsPost reports whether the tagged comment is a top-level post.
func (t Tag) IsPost() bool { return t.Parent == objectstore.NullID }

// TagStats aggregates every live Tag with one name.
type TagStats struct {
	ID                    ID               `json:"id"`
	Tag                   string           `json:"tag"`
	TotalChildrenRshares2 protocol.Uint128 `json:"total_children_rshares2"`
	TotalPayout           protocol.Asset   `json:"total_payout"`
	NetVotes              int32            `json:"net_votes"`
	TopPosts              uint32           `json:"top_posts"`
	Comments              uint32           `json:"comments"`
}

func (s TagStats) RecordID() ID          { return s.ID }
func (s TagStats) WithID(id ID) TagStats { s.ID = id; return s }

// PeerStats tracks how often Voter agrees with Peer. Vote totals are seeded
// at one so Rank never divides by zero.
type PeerStats struct {
	ID                    ID      `json:"id"`
	Voter                 ID      `json:"voter"`
	Peer                  ID      `json:"peer"`
	DirectPositiveVotes   int32   `json:"direct_positive_votes"`
	DirectVotes           int32   `json:"direct_votes"`
	IndirectPositiveVotes int32   `json:"indirect_positive_votes"`
	IndirectVotes         int32   `json:"indirect_votes"`
	Rank                  float64 `json:"rank"`
}

func (p PeerStats) RecordID() ID           { return p.ID }
func (p PeerStats) WithID(id ID) PeerStats { p.ID = id; return p }

// NewPeerStats returns the seeded record for a voter/peer pair.
func NewPeerStats(voter, peer ID) PeerStats {
	return PeerStats{
		Voter:         voter,
		Peer:          peer,
		DirectVotes:   1,
		IndirectVotes: 1,
	}
}

// AuthorTagStats counts an author's posts and rewards under one tag.
type AuthorTagStats struct {
	ID           ID             `json:"id"`
	Author       ID             `json:"author"`
	Tag          string         `json:"tag"`
	TotalRewards protocol.Asset `json:"total_rewards"`
	TotalPosts   uint32         `json:"total_posts"`
}

func (a AuthorTagStats) RecordID() ID                { return a.ID }
func (a AuthorTagStats) WithID(id ID) AuthorTagStats { a.ID = id; return a }
