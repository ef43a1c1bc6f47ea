package tags

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/tagstate/internal/ledger"
	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/protocol"
	"github.com/roach88/tagstate/internal/score"
)

// Options configures tag selection and promotion.
type Options struct {
	TagLimit      int
	MaxTagLength  int
	NullAccount   string
	PromoteSymbol string
	Score         score.Params
}

// DefaultOptions returns the network defaults.
func DefaultOptions() Options {
	return Options{
		TagLimit:      5,
		MaxTagLength:  32,
		NullAccount:   "null",
		PromoteSymbol: "GBG",
		Score:         score.DefaultParams(),
	}
}

// Maintainer keeps tag entries and the tag, peer and author aggregates in
// step with the ledger. It must only run inside the database write lock.
type Maintainer struct {
	Reader

	ledger  *ledger.State
	tags    *objectstore.Table[Tag]
	stats   *objectstore.Table[TagStats]
	peers   *objectstore.Table[PeerStats]
	authors *objectstore.Table[AuthorTagStats]
	opts    Options
	logger  *slog.Logger
}

// Register creates the tag tables in s.
func Register(s *objectstore.Store, l *ledger.State, opts Options, logger *slog.Logger) (*Maintainer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tags, err := objectstore.Register(s, objectstore.KindTag, TagIndexes()...)
	if err != nil {
		return nil, err
	}
	stats, err := objectstore.Register(s, objectstore.KindTagStats, TagStatsIndexes()...)
	if err != nil {
		return nil, err
	}
	peers, err := objectstore.Register(s, objectstore.KindPeerStats, PeerStatsIndexes()...)
	if err != nil {
		return nil, err
	}
	authors, err := objectstore.Register(s, objectstore.KindAuthorTagStats, AuthorTagStatsIndexes()...)
	if err != nil {
		return nil, err
	}
	return &Maintainer{
		Reader: Reader{
			Tags:    &tags.View,
			Stats:   &stats.View,
			Peers:   &peers.View,
			Authors: &authors.View,
		},
		ledger:  l,
		tags:    tags,
		stats:   stats,
		peers:   peers,
		authors: authors,
		opts:    opts,
		logger:  logger,
	}, nil
}

// Options returns the options the maintainer was registered with.
func (m *Maintainer) Options() Options { return m.opts }

// FilterTags returns the tags c is indexed under.
func (m *Maintainer) FilterTags(c ledger.Comment) []string {
	return ParseTags(c.Category, c.JSONMetadata, c.NetRshares, m.opts.TagLimit, m.opts.MaxTagLength)
}

// OnCommentChanged refreshes the tag entries of c and then of every ancestor.
// With parse set the tag names of c are re-read from its metadata; ancestors
// only have their existing entries refreshed.
func (m *Maintainer) OnCommentChanged(c ledger.Comment, parse bool) error {
	if err := m.updateTags(c, parse); err != nil {
		return err
	}
	for parent := range m.ledger.Ancestors(c) {
		if err := m.updateTags(parent, false); err != nil {
			return err
		}
	}
	return nil
}

func (m *Maintainer) updateTags(c ledger.Comment, parse bool) error {
	hot := m.opts.Score.Hot(c.NetRshares, c.Created)
	trending := m.opts.Score.Trending(c.NetRshares, c.Created)

	existing := slices.Collect(m.EntriesOf(c.ID))

	if !parse {
		for _, t := range existing {
			if err := m.updateTag(t, c, hot, trending); err != nil {
				return err
			}
		}
		return nil
	}

	wanted := m.FilterTags(c)
	byName := make(map[string]Tag, len(existing))
	for _, t := range existing {
		byName[t.Name] = t
	}
	for _, name := range wanted {
		if t, ok := byName[name]; ok {
			if err := m.updateTag(t, c, hot, trending); err != nil {
				return err
			}
			continue
		}
		if c.PaidOut() {
			continue
		}
		if err := m.createTag(name, c, hot, trending); err != nil {
			return err
		}
	}
	for _, t := range existing {
		if slices.Contains(wanted, t.Name) {
			continue
		}
		if err := m.removeTag(t); err != nil {
			return err
		}
	}
	return nil
}

func entryFrom(t Tag, c ledger.Comment, hot, trending float64) Tag {
	t.Active = c.Active
	t.Cashout = c.CashoutTime
	t.NetRshares = c.NetRshares
	t.NetVotes = c.NetVotes
	t.Children = int32(c.Children)
	t.Hot = hot
	t.Trending = trending
	t.ChildrenRshares2 = c.ChildrenRshares2
	return t
}

func (m *Maintainer) createTag(name string, c ledger.Comment, hot, trending float64) error {
	t := entryFrom(Tag{
		Name:    name,
		Created: c.Created,
		Author:  c.Author,
		Parent:  c.Parent,
		Comment: c.ID,
	}, c, hot, trending)
	created, err := m.tags.Insert(t)
	if err != nil {
		return fmt.Errorf("create tag %q for comment %d: %w", name, c.ID, err)
	}
	if err := m.addStats(created); err != nil {
		return err
	}
	return m.adjustAuthorPosts(created.Author, created.Name, 1)
}

func (m *Maintainer) updateTag(t Tag, c ledger.Comment, hot, trending float64) error {
	if c.PaidOut() {
		return m.removeTag(t)
	}
	updated := entryFrom(t, c, hot, trending)
	if updated == t {
		return nil
	}
	if err := m.removeStats(t); err != nil {
		return err
	}
	if _, err := m.tags.Update(t.ID, func(x *Tag) { *x = updated }); err != nil {
		return err
	}
	return m.addStats(updated)
}

func (m *Maintainer) removeTag(t Tag) error {
	if err := m.removeStats(t); err != nil {
		return err
	}
	if _, err := m.tags.Remove(t.ID); err != nil {
		return err
	}
	return m.adjustAuthorPosts(t.Author, t.Name, -1)
}

// statsFor returns the stats record of name, creating it when absent.
func (m *Maintainer) statsFor(name string) (TagStats, error) {
	if s, ok := m.StatsOf(name); ok {
		return s, nil
	}
	s, err := m.stats.Insert(TagStats{Tag: name, TotalPayout: protocol.NewAsset(0, m.opts.PromoteSymbol)})
	if objectstore.IsDuplicateKey(err) {
		return s, objectstore.NewInconsistentAggregateError(objectstore.KindTagStats,
			"stats for tag %q missing from lookup but present on insert", name)
	}
	return s, err
}

func (m *Maintainer) addStats(t Tag) error {
	s, err := m.statsFor(t.Name)
	if err != nil {
		return err
	}
	_, err = m.stats.Update(s.ID, func(s *TagStats) {
		if t.IsPost() {
			s.TopPosts++
		} else {
			s.Comments++
		}
		s.NetVotes += t.NetVotes
		s.TotalChildrenRshares2 = s.TotalChildrenRshares2.Add(t.ChildrenRshares2)
	})
	return err
}

func (m *Maintainer) removeStats(t Tag) error {
	s, ok := m.StatsOf(t.Name)
	if !ok {
		return objectstore.NewInconsistentAggregateError(objectstore.KindTagStats,
			"no stats for tag %q of entry %d", t.Name, t.ID)
	}
	if t.IsPost() && s.TopPosts == 0 || !t.IsPost() && s.Comments == 0 {
		return objectstore.NewInconsistentAggregateError(objectstore.KindTagStats,
			"tag %q count would drop below zero removing entry %d", t.Name, t.ID)
	}
	if s.TotalChildrenRshares2.Cmp(t.ChildrenRshares2) < 0 {
		return objectstore.NewInconsistentAggregateError(objectstore.KindTagStats,
			"tag %q children_rshares2 would drop below zero removing entry %d", t.Name, t.ID)
	}
	_, err := m.stats.Update(s.ID, func(s *TagStats) {
		if t.IsPost() {
			s.TopPosts--
		} else {
			s.Comments--
		}
		s.NetVotes -= t.NetVotes
		s.TotalChildrenRshares2 = s.TotalChildrenRshares2.Sub(t.ChildrenRshares2)
	})
	return err
}

// authorStatsFor returns the (author, tag) record, creating it when absent.
func (m *Maintainer) authorStatsFor(author ID, tag string) (AuthorTagStats, error) {
	if a, ok := m.AuthorStats(author, tag); ok {
		return a, nil
	}
	a, err := m.authors.Insert(AuthorTagStats{
		Author:       author,
		Tag:          tag,
		TotalRewards: protocol.NewAsset(0, m.opts.PromoteSymbol),
	})
	if objectstore.IsDuplicateKey(err) {
		return a, objectstore.NewInconsistentAggregateError(objectstore.KindAuthorTagStats,
			"stats for author %d tag %q missing from lookup but present on insert", author, tag)
	}
	return a, err
}

func (m *Maintainer) adjustAuthorPosts(author ID, tag string, delta int) error {
	a, err := m.authorStatsFor(author, tag)
	if err != nil {
		return err
	}
	if delta < 0 && a.TotalPosts < uint32(-delta) {
		return objectstore.NewInconsistentAggregateError(objectstore.KindAuthorTagStats,
			"author %d tag %q post count would drop below zero", author, tag)
	}
	_, err = m.authors.Update(a.ID, func(a *AuthorTagStats) {
		a.TotalPosts = uint32(int64(a.TotalPosts) + int64(delta))
	})
	return err
}

// OnCommentReward credits payout to every tag of c and, for posts, to the
// author's per-tag rewards.
func (m *Maintainer) OnCommentReward(c ledger.Comment, payout protocol.Asset) error {
	if err := m.OnCommentChanged(c, false); err != nil {
		return err
	}
	for _, name := range m.FilterTags(c) {
		s, err := m.statsFor(name)
		if err != nil {
			return err
		}
		total, err := accumulate(s.TotalPayout, payout)
		if err != nil {
			return objectstore.Validationf("tag %q payout: %v", name, err)
		}
		if _, err := m.stats.Update(s.ID, func(s *TagStats) { s.TotalPayout = total }); err != nil {
			return err
		}
		if !c.IsRoot() {
			continue
		}
		a, err := m.authorStatsFor(c.Author, name)
		if err != nil {
			return err
		}
		rewards, err := accumulate(a.TotalRewards, payout)
		if err != nil {
			return objectstore.Validationf("author rewards for tag %q: %v", name, err)
		}
		if _, err := m.authors.Update(a.ID, func(a *AuthorTagStats) { a.TotalRewards = rewards }); err != nil {
			return err
		}
	}
	return nil
}

// accumulate adds payout to total. An empty total takes the payout symbol.
func accumulate(total, payout protocol.Asset) (protocol.Asset, error) {
	if total.Amount == 0 {
		total.Symbol = payout.Symbol
	}
	return total.Add(payout)
}

// Promote adds amount to the promoted balance of every unpaid entry of the
// post c. Replies cannot be promoted and are ignored.
func (m *Maintainer) Promote(c ledger.Comment, amount int64) error {
	if !c.IsRoot() {
		return nil
	}
	for _, t := range slices.Collect(m.EntriesOf(c.ID)) {
		if t.Cashout == protocol.MaxTime {
			continue
		}
		if _, err := m.tags.Update(t.ID, func(t *Tag) { t.PromotedBalance += amount }); err != nil {
			return err
		}
	}
	return nil
}

// OnCommentsDeleted drops the entries of author whose comment no longer
// exists and refreshes the surviving parents of those entries.
func (m *Maintainer) OnCommentsDeleted(author ID) error {
	var orphans []Tag
	for t := range m.EntriesByAuthor(author) {
		if _, ok := m.ledger.Comments.Get(t.Comment); !ok {
			orphans = append(orphans, t)
		}
	}
	var parents []ID
	for _, t := range orphans {
		if err := m.removeTag(t); err != nil {
			return err
		}
		if !t.IsPost() && !slices.Contains(parents, t.Parent) {
			parents = append(parents, t.Parent)
		}
	}
	for _, id := range parents {
		parent, ok := m.ledger.Comments.Get(id)
		if !ok {
			continue
		}
		if err := m.OnCommentChanged(parent, false); err != nil {
			return err
		}
	}
	if len(orphans) > 0 {
		m.logger.Debug("removed tags of deleted comments", "author", author, "entries", len(orphans))
	}
	return nil
}
