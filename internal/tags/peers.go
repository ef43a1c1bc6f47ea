package tags

import (
	"slices"

	"github.com/roach88/tagstate/internal/ledger"
	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/score"
)

// OnVote records voter's vote of the given weight on c against the author
// and against everyone else who voted on c. Self votes and votes on replies
// are ignored.
func (m *Maintainer) OnVote(voter ID, c ledger.Comment, weight int16) error {
	if voter == c.Author || !c.IsRoot() {
		return nil
	}
	positive := weight > 0

	direct, err := m.peerStatsFor(voter, c.Author)
	if err != nil {
		return err
	}
	if err := m.updatePeer(direct.ID, func(p *PeerStats) {
		p.DirectVotes++
		if positive {
			p.DirectPositiveVotes++
		}
	}); err != nil {
		return err
	}

	for _, v := range slices.Collect(m.ledger.VotesOn(c.ID)) {
		if err := m.indirectVote(voter, v.Voter, (v.VotePercent > 0) == positive); err != nil {
			return err
		}
	}
	return nil
}

// indirectVote counts a co-vote between a and b in both directions.
func (m *Maintainer) indirectVote(a, b ID, agree bool) error {
	if a == b {
		return nil
	}
	bump := func(p *PeerStats) {
		p.IndirectVotes++
		if agree {
			p.IndirectPositiveVotes++
		}
	}
	for _, pair := range [2][2]ID{{a, b}, {b, a}} {
		p, err := m.peerStatsFor(pair[0], pair[1])
		if err != nil {
			return err
		}
		if err := m.updatePeer(p.ID, bump); err != nil {
			return err
		}
	}
	return nil
}

func (m *Maintainer) peerStatsFor(voter, peer ID) (PeerStats, error) {
	if p, ok := m.PeerStatsOf(voter, peer); ok {
		return p, nil
	}
	p, err := m.peers.Insert(NewPeerStats(voter, peer))
	if objectstore.IsDuplicateKey(err) {
		return p, objectstore.NewInconsistentAggregateError(objectstore.KindPeerStats,
			"peer stats %d->%d missing from lookup but present on insert", voter, peer)
	}
	return p, err
}

// updatePeer applies mutate and recomputes the rank in the same update.
func (m *Maintainer) updatePeer(id ID, mutate func(*PeerStats)) error {
	var rankErr error
	_, err := m.peers.Update(id, func(p *PeerStats) {
		mutate(p)
		p.Rank, rankErr = score.Rank(p.DirectPositiveVotes, p.DirectVotes,
			p.IndirectPositiveVotes, p.IndirectVotes)
	})
	if err != nil {
		return err
	}
	if rankErr != nil {
		return objectstore.NewInconsistentAggregateError(objectstore.KindPeerStats,
			"peer stats %d: %v", id, rankErr)
	}
	return nil
}
