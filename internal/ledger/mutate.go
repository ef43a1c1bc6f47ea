package ledger

import (
	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/protocol"
)

// SetHead records the block being applied.
func (s *State) SetHead(number uint32, ts protocol.TimePointSec) error {
	_, err := s.globals.Update(GlobalPropertiesID, func(g *GlobalProperties) {
		g.HeadBlockNumber = number
		g.Time = ts
	})
	return err
}

// CreateAccount inserts a new account.
func (s *State) CreateAccount(a Account) (Account, error) {
	return s.accounts.Insert(a)
}

// UpdateAccount mutates an account in place.
func (s *State) UpdateAccount(id ID, mutate func(*Account)) (Account, error) {
	return s.accounts.Update(id, mutate)
}

// CreateComment inserts a new comment. A post's Root is set to its own id.
func (s *State) CreateComment(c Comment) (Comment, error) {
	created, err := s.comments.Insert(c)
	if err != nil {
		return created, err
	}
	if created.Parent != objectstore.NullID {
		return created, nil
	}
	return s.comments.Update(created.ID, func(c *Comment) { c.Root = c.ID })
}

// UpdateComment mutates a comment in place.
func (s *State) UpdateComment(id ID, mutate func(*Comment)) (Comment, error) {
	return s.comments.Update(id, mutate)
}

// RemoveComment deletes a comment and every vote on it.
func (s *State) RemoveComment(id ID) (Comment, error) {
	var voteIDs []ID
	for v := range s.VotesOn(id) {
		voteIDs = append(voteIDs, v.ID)
	}
	for _, vid := range voteIDs {
		if _, err := s.votes.Remove(vid); err != nil {
			return Comment{}, err
		}
	}
	return s.comments.Remove(id)
}

// CreateVote inserts a vote.
func (s *State) CreateVote(v Vote) (Vote, error) {
	return s.votes.Insert(v)
}

// UpdateVote mutates a vote in place.
func (s *State) UpdateVote(id ID, mutate func(*Vote)) (Vote, error) {
	return s.votes.Update(id, mutate)
}

// UpdateAncestors applies mutate to every parent of c, nearest first.
func (s *State) UpdateAncestors(c Comment, mutate func(*Comment)) error {
	var parents []ID
	for p := range s.Ancestors(c) {
		parents = append(parents, p.ID)
	}
	for _, id := range parents {
		if _, err := s.comments.Update(id, mutate); err != nil {
			return err
		}
	}
	return nil
}

// AdjustRshares2 replaces old with updated in children_rshares2 of c and of
// every ancestor.
func (s *State) AdjustRshares2(c Comment, old, updated protocol.Uint128) error {
	if old == updated {
		return nil
	}
	adjust := func(x *Comment) {
		x.ChildrenRshares2 = x.ChildrenRshares2.Sub(old).Add(updated)
	}
	if _, err := s.comments.Update(c.ID, adjust); err != nil {
		return err
	}
	return s.UpdateAncestors(c, adjust)
}
