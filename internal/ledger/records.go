// Package ledger holds the chain records the tag indexes are derived from:
// accounts, comments, votes and the head block properties.
package ledger

import (
	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/protocol"
)

type ID = objectstore.ID

// GlobalProperties is the singleton describing the head block.
type GlobalProperties struct {
	ID              ID                    `json:"id"`
	HeadBlockNumber uint32                `json:"head_block_number"`
	Time            protocol.TimePointSec `json:"time"`
}

func (g GlobalProperties) RecordID() ID                  { return g.ID }
func (g GlobalProperties) WithID(id ID) GlobalProperties { g.ID = id; return g }

// Account is a registered name with stake and liquid balance.
type Account struct {
	ID            ID             `json:"id"`
	Name          string         `json:"name"`
	VestingShares int64          `json:"vesting_shares"`
	Balance       protocol.Asset `json:"balance"`
}

func (a Account) RecordID() ID         { return a.ID }
func (a Account) WithID(id ID) Account { a.ID = id; return a }

// Comment is a post (Parent == NullID) or a reply.
type Comment struct {
	ID               ID                    `json:"id"`
	Parent           ID                    `json:"parent"`
	Root             ID                    `json:"root"`
	Author           ID                    `json:"author"`
	Permlink         string                `json:"permlink"`
	Category         string                `json:"category"`
	Title            string                `json:"title"`
	Body             string                `json:"body"`
	JSONMetadata     string                `json:"json_metadata"`
	Depth            uint16                `json:"depth"`
	Children         uint32                `json:"children"`
	Created          protocol.TimePointSec `json:"created"`
	LastUpdate       protocol.TimePointSec `json:"last_update"`
	Active           protocol.TimePointSec `json:"active"`
	CashoutTime      protocol.TimePointSec `json:"cashout_time"`
	LastPayout       protocol.TimePointSec `json:"last_payout"`
	NetRshares       int64                 `json:"net_rshares"`
	AbsRshares       int64                 `json:"abs_rshares"`
	VoteRshares      int64                 `json:"vote_rshares"`
	NetVotes         int32                 `json:"net_votes"`
	ChildrenRshares2 protocol.Uint128      `json:"children_rshares2"`
	TotalPayout      protocol.Asset        `json:"total_payout_value"`
}

func (c Comment) RecordID() ID         { return c.ID }
func (c Comment) WithID(id ID) Comment { c.ID = id; return c }

// IsRoot reports whether c is a top-level post.
func (c Comment) IsRoot() bool { return c.Parent == objectstore.NullID }

// PaidOut reports whether c already went through cashout.
func (c Comment) PaidOut() bool { return c.CashoutTime == protocol.MaxTime }

// Vote is one voter's current vote on a comment.
type Vote struct {
	ID          ID                    `json:"id"`
	Voter       ID                    `json:"voter"`
	Comment     ID                    `json:"comment"`
	Rshares     int64                 `json:"rshares"`
	VotePercent int16                 `json:"vote_percent"`
	LastUpdate  protocol.TimePointSec `json:"last_update"`
	NumChanges  int8                  `json:"num_changes"`
}

func (v Vote) RecordID() ID      { return v.ID }
func (v Vote) WithID(id ID) Vote { v.ID = id; return v }
