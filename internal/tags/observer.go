package tags

import (
	"context"

	"github.com/roach88/tagstate/internal/protocol"
)

// OnOperation updates the tag tables after op has been applied to the
// ledger. Operations that do not touch tagged content are ignored.
func (m *Maintainer) OnOperation(_ context.Context, op protocol.Operation) error {
	switch op := op.(type) {
	case protocol.Comment:
		c, err := m.ledger.MustComment(op.Author, op.Permlink)
		if err != nil {
			return err
		}
		return m.OnCommentChanged(c, true)

	case protocol.Vote:
		c, err := m.ledger.MustComment(op.Author, op.Permlink)
		if err != nil {
			return err
		}
		voter, err := m.ledger.MustAccount(op.Voter)
		if err != nil {
			return err
		}
		if err := m.OnCommentChanged(c, false); err != nil {
			return err
		}
		return m.OnVote(voter.ID, c, op.Weight)

	case protocol.DeleteComment:
		author, err := m.ledger.MustAccount(op.Author)
		if err != nil {
			return err
		}
		return m.OnCommentsDeleted(author.ID)

	case protocol.Transfer:
		if op.To != m.opts.NullAccount || op.Amount.Symbol != m.opts.PromoteSymbol {
			return nil
		}
		author, permlink, ok := op.PromotedPermlink()
		if !ok {
			return nil
		}
		c, found := m.ledger.Comment(author, permlink)
		if !found {
			return nil
		}
		return m.Promote(c, op.Amount.Amount)

	case protocol.CommentReward:
		c, err := m.ledger.MustComment(op.Author, op.Permlink)
		if err != nil {
			return err
		}
		return m.OnCommentReward(c, op.Payout)

	case protocol.CommentPayoutUpdate:
		c, err := m.ledger.MustComment(op.Author, op.Permlink)
		if err != nil {
			return err
		}
		return m.OnCommentChanged(c, false)
	}
	return nil
}
