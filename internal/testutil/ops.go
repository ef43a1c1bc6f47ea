package testutil

import (
	"encoding/json"

	"github.com/roach88/tagstate/internal/protocol"
)

// Account builds an account_create with stake and a GBG balance.
func Account(name string, vesting int64, balance string) protocol.AccountCreate {
	return protocol.AccountCreate{
		Name:          name,
		VestingShares: vesting,
		Balance:       protocol.MustParseAsset(balance),
	}
}

// Metadata encodes tags as comment json_metadata.
func Metadata(tags ...string) string {
	if len(tags) == 0 {
		return ""
	}
	b, err := json.Marshal(map[string][]string{"tags": tags})
	if err != nil {
		panic(err)
	}
	return string(b)
}

// Post builds a top-level comment in category with extra tags.
func Post(author, permlink, category string, tags ...string) protocol.Comment {
	return protocol.Comment{
		ParentPermlink: category,
		Author:         author,
		Permlink:       permlink,
		Title:          permlink,
		Body:           "body of " + permlink,
		JSONMetadata:   Metadata(tags...),
	}
}

// Reply builds a reply to parentAuthor/parentPermlink.
func Reply(author, permlink, parentAuthor, parentPermlink string, tags ...string) protocol.Comment {
	return protocol.Comment{
		ParentAuthor:   parentAuthor,
		ParentPermlink: parentPermlink,
		Author:         author,
		Permlink:       permlink,
		Body:           "reply " + permlink,
		JSONMetadata:   Metadata(tags...),
	}
}

// Vote builds a vote with weight in basis points.
func Vote(voter, author, permlink string, weight int16) protocol.Vote {
	return protocol.Vote{Voter: voter, Author: author, Permlink: permlink, Weight: weight}
}

// Promote builds a transfer to null promoting author/permlink.
func Promote(from, author, permlink, amount string) protocol.Transfer {
	return protocol.Transfer{
		From:   from,
		To:     "null",
		Amount: protocol.MustParseAsset(amount),
		Memo:   "@" + author + "/" + permlink,
	}
}

// Reward builds a comment_reward.
func Reward(author, permlink, payout string) protocol.CommentReward {
	return protocol.CommentReward{Author: author, Permlink: permlink, Payout: protocol.MustParseAsset(payout)}
}
