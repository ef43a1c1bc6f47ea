package tags

import (
	"errors"

	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/protocol"
	"github.com/roach88/tagstate/internal/score"
)

type statsFold struct {
	topPosts, comments uint32
	netVotes           int32
	rshares2           protocol.Uint128
}

type authorKey struct {
	author ID
	tag    string
}

// Verify recomputes every aggregate from the tag entries and reports each
// record that disagrees as INCONSISTENT_AGGREGATE. Payout totals are
// accumulated from reward operations and are not checked.
func (r Reader) Verify() error {
	folds := map[string]*statsFold{}
	posts := map[authorKey]uint32{}
	for t := range r.Tags.Scan() {
		f := folds[t.Name]
		if f == nil {
			f = &statsFold{}
			folds[t.Name] = f
		}
		if t.IsPost() {
			f.topPosts++
		} else {
			f.comments++
		}
		f.netVotes += t.NetVotes
		f.rshares2 = f.rshares2.Add(t.ChildrenRshares2)
		posts[authorKey{t.Author, t.Name}]++
	}

	var errs []error
	for s := range r.Stats.Scan() {
		f := folds[s.Tag]
		if f == nil {
			f = &statsFold{}
		}
		delete(folds, s.Tag)
		if s.TopPosts != f.topPosts || s.Comments != f.comments ||
			s.NetVotes != f.netVotes || s.TotalChildrenRshares2 != f.rshares2 {
			errs = append(errs, objectstore.NewInconsistentAggregateError(objectstore.KindTagStats,
				"tag %q: have posts=%d comments=%d net_votes=%d rshares2=%s, entries give %d %d %d %s",
				s.Tag, s.TopPosts, s.Comments, s.NetVotes, s.TotalChildrenRshares2,
				f.topPosts, f.comments, f.netVotes, f.rshares2))
		}
	}
	for name := range folds {
		errs = append(errs, objectstore.NewInconsistentAggregateError(objectstore.KindTagStats,
			"tag %q has entries but no stats", name))
	}

	for a := range r.Authors.Scan() {
		key := authorKey{a.Author, a.Tag}
		if want := posts[key]; a.TotalPosts != want {
			errs = append(errs, objectstore.NewInconsistentAggregateError(objectstore.KindAuthorTagStats,
				"author %d tag %q: total_posts=%d, entries give %d", a.Author, a.Tag, a.TotalPosts, want))
		}
		delete(posts, key)
	}
	for key := range posts {
		errs = append(errs, objectstore.NewInconsistentAggregateError(objectstore.KindAuthorTagStats,
			"author %d tag %q has entries but no stats", key.author, key.tag))
	}

	for p := range r.Peers.Scan() {
		rank, err := score.Rank(p.DirectPositiveVotes, p.DirectVotes, p.IndirectPositiveVotes, p.IndirectVotes)
		if err != nil || rank != p.Rank {
			errs = append(errs, objectstore.NewInconsistentAggregateError(objectstore.KindPeerStats,
				"peer stats %d->%d: rank %v does not match its counts", p.Voter, p.Peer, p.Rank))
		}
	}
	return errors.Join(errs...)
}
