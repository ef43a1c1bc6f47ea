package chain

import (
	"context"

	"github.com/roach88/tagstate/internal/evaluator"
	"github.com/roach88/tagstate/internal/ledger"
	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/protocol"
	"github.com/roach88/tagstate/internal/score"
)

// MaxVoteChanges bounds how often a voter may change one vote.
const MaxVoteChanges = 5

func registerEvaluators(r *evaluator.Registry[*Context]) error {
	for _, e := range []evaluator.Evaluator[*Context]{
		evaluator.Handle(applyAccountCreate),
		evaluator.Handle(applyComment),
		evaluator.Handle(applyVote),
		evaluator.Handle(applyDeleteComment),
		evaluator.Handle(applyTransfer),
		evaluator.Handle(applyCommentReward),
		evaluator.Handle(applyCommentPayoutUpdate),
	} {
		if err := r.Register(e); err != nil {
			return err
		}
	}
	return nil
}

// account resolves name, rejecting unknown accounts as invalid input.
func (c *Context) account(name string) (ledger.Account, error) {
	a, ok := c.Ledger.Account(name)
	if !ok {
		return a, objectstore.Validationf("account %q does not exist", name)
	}
	return a, nil
}

func (c *Context) comment(author, permlink string) (ledger.Comment, error) {
	com, ok := c.Ledger.Comment(author, permlink)
	if !ok {
		return com, objectstore.Validationf("comment %s/%s does not exist", author, permlink)
	}
	return com, nil
}

func (c *Context) vshares(rshares int64) protocol.Uint128 {
	return score.VShares(rshares, c.Chain.ContentConstant)
}

func applyAccountCreate(_ context.Context, c *Context, op protocol.AccountCreate) error {
	if _, exists := c.Ledger.Account(op.Name); exists {
		return objectstore.Validationf("account %q already exists", op.Name)
	}
	balance := op.Balance
	if balance.Symbol == "" {
		balance.Symbol = c.Tags.PromoteSymbol
	}
	_, err := c.Ledger.CreateAccount(ledger.Account{
		Name:          op.Name,
		VestingShares: op.VestingShares,
		Balance:       balance,
	})
	return err
}

func applyComment(_ context.Context, c *Context, op protocol.Comment) error {
	if len(op.Permlink) > c.Chain.MaxPermlinkLength {
		return objectstore.Validationf("permlink longer than %d", c.Chain.MaxPermlinkLength)
	}
	author, err := c.account(op.Author)
	if err != nil {
		return err
	}

	if existing, ok := c.Ledger.Comments.Find(ledger.CommentsByPermlink,
		ledger.Comment{Author: author.ID, Permlink: op.Permlink}); ok {
		return editComment(c, existing, op)
	}

	com := ledger.Comment{
		Author:       author.ID,
		Permlink:     op.Permlink,
		Title:        op.Title,
		Body:         op.Body,
		JSONMetadata: op.JSONMetadata,
		Created:      c.Now,
		LastUpdate:   c.Now,
		Active:       c.Now,
		CashoutTime:  c.Now.Add(c.Chain.CashoutWindow),
		TotalPayout:  protocol.NewAsset(0, c.Tags.PromoteSymbol),
	}
	if op.IsRoot() {
		com.Category = op.ParentPermlink
	} else {
		parent, err := c.comment(op.ParentAuthor, op.ParentPermlink)
		if err != nil {
			return err
		}
		if int(parent.Depth)+1 > c.Chain.MaxCommentDepth {
			return objectstore.Validationf("reply depth %d exceeds %d", parent.Depth+1, c.Chain.MaxCommentDepth)
		}
		com.Parent = parent.ID
		com.Root = parent.Root
		com.Depth = parent.Depth + 1
		com.Category = parent.Category
	}

	created, err := c.Ledger.CreateComment(com)
	if err != nil {
		return err
	}
	return c.Ledger.UpdateAncestors(created, func(p *ledger.Comment) {
		p.Children++
		p.Active = c.Now
	})
}

func editComment(c *Context, existing ledger.Comment, op protocol.Comment) error {
	if op.IsRoot() != existing.IsRoot() {
		return objectstore.Validationf("cannot change the parent of %s/%s", op.Author, op.Permlink)
	}
	if !op.IsRoot() {
		parent, err := c.comment(op.ParentAuthor, op.ParentPermlink)
		if err != nil {
			return err
		}
		if parent.ID != existing.Parent {
			return objectstore.Validationf("cannot change the parent of %s/%s", op.Author, op.Permlink)
		}
	}
	_, err := c.Ledger.UpdateComment(existing.ID, func(com *ledger.Comment) {
		if op.Title != "" {
			com.Title = op.Title
		}
		if op.Body != "" {
			com.Body = op.Body
		}
		if op.JSONMetadata != "" {
			com.JSONMetadata = op.JSONMetadata
		}
		com.LastUpdate = c.Now
		com.Active = c.Now
	})
	return err
}

// voteRshares returns vesting*weight/10000 without overflowing.
func voteRshares(vesting int64, weight int16) int64 {
	w := int64(weight)
	return vesting/protocol.MaxVoteWeight*w + vesting%protocol.MaxVoteWeight*w/protocol.MaxVoteWeight
}

func sign(v int64) int32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func applyVote(_ context.Context, c *Context, op protocol.Vote) error {
	voter, err := c.account(op.Voter)
	if err != nil {
		return err
	}
	com, err := c.comment(op.Author, op.Permlink)
	if err != nil {
		return err
	}
	if com.PaidOut() {
		return objectstore.Validationf("comment %s/%s is already paid out", op.Author, op.Permlink)
	}

	rshares := voteRshares(voter.VestingShares, op.Weight)
	existing, voted := c.Ledger.Vote(com.ID, voter.ID)
	var previous int64
	switch {
	case !voted:
		if op.Weight == 0 {
			return objectstore.Validationf("a new vote needs a non-zero weight")
		}
		if _, err := c.Ledger.CreateVote(ledger.Vote{
			Voter:       voter.ID,
			Comment:     com.ID,
			Rshares:     rshares,
			VotePercent: op.Weight,
			LastUpdate:  c.Now,
		}); err != nil {
			return err
		}
	case existing.VotePercent == op.Weight:
		return objectstore.Validationf("vote weight unchanged")
	case existing.NumChanges >= MaxVoteChanges:
		return objectstore.Validationf("vote changed more than %d times", MaxVoteChanges)
	default:
		previous = existing.Rshares
		if _, err := c.Ledger.UpdateVote(existing.ID, func(v *ledger.Vote) {
			v.Rshares = rshares
			v.VotePercent = op.Weight
			v.LastUpdate = c.Now
			v.NumChanges++
		}); err != nil {
			return err
		}
	}

	oldShares := c.vshares(com.NetRshares)
	updated, err := c.Ledger.UpdateComment(com.ID, func(x *ledger.Comment) {
		x.NetRshares += rshares - previous
		x.AbsRshares += abs(rshares)
		if rshares > 0 {
			x.VoteRshares += rshares
		}
		x.NetVotes += sign(rshares) - sign(previous)
		x.Active = c.Now
	})
	if err != nil {
		return err
	}
	return c.Ledger.AdjustRshares2(updated, oldShares, c.vshares(updated.NetRshares))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func applyDeleteComment(_ context.Context, c *Context, op protocol.DeleteComment) error {
	com, err := c.comment(op.Author, op.Permlink)
	if err != nil {
		return err
	}
	if com.Children > 0 {
		return objectstore.Validationf("cannot delete %s/%s with replies", op.Author, op.Permlink)
	}
	if com.NetRshares > 0 {
		return objectstore.Validationf("cannot delete %s/%s with positive rshares", op.Author, op.Permlink)
	}
	if err := c.Ledger.AdjustRshares2(com, com.ChildrenRshares2, protocol.Uint128{}); err != nil {
		return err
	}
	if err := c.Ledger.UpdateAncestors(com, func(p *ledger.Comment) { p.Children-- }); err != nil {
		return err
	}
	_, err = c.Ledger.RemoveComment(com.ID)
	return err
}

func applyTransfer(_ context.Context, c *Context, op protocol.Transfer) error {
	from, err := c.account(op.From)
	if err != nil {
		return err
	}
	if from.Balance.Symbol != op.Amount.Symbol || from.Balance.Amount < op.Amount.Amount {
		return objectstore.Validationf("%s has %s, cannot send %s", op.From, from.Balance, op.Amount)
	}
	remaining, err := from.Balance.Sub(op.Amount)
	if err != nil {
		return objectstore.Validationf("%v", err)
	}
	if _, err := c.Ledger.UpdateAccount(from.ID, func(a *ledger.Account) { a.Balance = remaining }); err != nil {
		return err
	}

	to, ok := c.Ledger.Account(op.To)
	if !ok {
		if op.To == c.Tags.NullAccount {
			// Burned.
			return nil
		}
		return objectstore.Validationf("account %q does not exist", op.To)
	}
	received, err := to.Balance.Add(op.Amount)
	if err != nil {
		return objectstore.Validationf("%v", err)
	}
	_, err = c.Ledger.UpdateAccount(to.ID, func(a *ledger.Account) { a.Balance = received })
	return err
}

func applyCommentReward(_ context.Context, c *Context, op protocol.CommentReward) error {
	com, err := c.comment(op.Author, op.Permlink)
	if err != nil {
		return err
	}
	total := com.TotalPayout
	if total.Amount == 0 {
		total.Symbol = op.Payout.Symbol
	}
	total, err = total.Add(op.Payout)
	if err != nil {
		return objectstore.Validationf("%v", err)
	}
	_, err = c.Ledger.UpdateComment(com.ID, func(x *ledger.Comment) { x.TotalPayout = total })
	return err
}

func applyCommentPayoutUpdate(_ context.Context, c *Context, op protocol.CommentPayoutUpdate) error {
	com, err := c.comment(op.Author, op.Permlink)
	if err != nil {
		return err
	}
	if com.PaidOut() {
		return objectstore.Validationf("comment %s/%s is already paid out", op.Author, op.Permlink)
	}
	oldShares := c.vshares(com.NetRshares)
	updated, err := c.Ledger.UpdateComment(com.ID, func(x *ledger.Comment) {
		x.NetRshares = 0
		x.AbsRshares = 0
		x.VoteRshares = 0
		x.CashoutTime = protocol.MaxTime
		x.LastPayout = c.Now
	})
	if err != nil {
		return err
	}
	return c.Ledger.AdjustRshares2(updated, oldShares, protocol.Uint128{})
}
