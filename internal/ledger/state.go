package ledger

import (
	"fmt"
	"iter"
	"math"

	"github.com/roach88/tagstate/internal/index"
	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/protocol"
)

// Index names.
const (
	AccountsByName      = "by_name"
	CommentsByPermlink  = "by_permlink"
	CommentsByParent    = "by_parent"
	CommentsByCashout   = "by_cashout"
	VotesByCommentVoter = "by_comment_voter"
	VotesByVoterComment = "by_voter_comment"
)

// GlobalPropertiesID is the id of the singleton head record.
const GlobalPropertiesID ID = 1

func accountName(a Account) string                   { return a.Name }
func commentAuthor(c Comment) ID                     { return c.Author }
func commentPermlink(c Comment) string               { return c.Permlink }
func commentParent(c Comment) ID                     { return c.Parent }
func commentCashout(c Comment) protocol.TimePointSec { return c.CashoutTime }
func commentID(c Comment) ID                         { return c.ID }
func voteComment(v Vote) ID                          { return v.Comment }
func voteVoter(v Vote) ID                            { return v.Voter }

// Reader is the read side of the ledger. It is built over live tables for
// evaluators and over snapshot views for queries.
type Reader struct {
	Globals  *objectstore.View[GlobalProperties]
	Accounts *objectstore.View[Account]
	Comments *objectstore.View[Comment]
	Votes    *objectstore.View[Vote]
}

// State owns the ledger tables.
type State struct {
	Reader
	globals  *objectstore.Table[GlobalProperties]
	accounts *objectstore.Table[Account]
	comments *objectstore.Table[Comment]
	votes    *objectstore.Table[Vote]
}

// Register creates the ledger tables in s and the head properties singleton.
func Register(s *objectstore.Store) (*State, error) {
	globals, err := objectstore.Register[GlobalProperties](s, objectstore.KindGlobalProperties)
	if err != nil {
		return nil, err
	}
	accounts, err := objectstore.Register(s, objectstore.KindAccount,
		objectstore.IndexDef[Account]{Name: AccountsByName, Order: index.Asc(accountName), Unique: true},
	)
	if err != nil {
		return nil, err
	}
	comments, err := objectstore.Register(s, objectstore.KindComment,
		objectstore.IndexDef[Comment]{
			Name:   CommentsByPermlink,
			Order:  index.Then(index.Asc(commentAuthor), index.Asc(commentPermlink)),
			Unique: true,
		},
		objectstore.IndexDef[Comment]{
			Name:  CommentsByParent,
			Order: index.Then(index.Asc(commentParent), index.Asc(commentID)),
		},
		objectstore.IndexDef[Comment]{
			Name:  CommentsByCashout,
			Order: index.Then(index.Asc(commentCashout), index.Asc(commentID)),
		},
	)
	if err != nil {
		return nil, err
	}
	votes, err := objectstore.Register(s, objectstore.KindVote,
		objectstore.IndexDef[Vote]{
			Name:   VotesByCommentVoter,
			Order:  index.Then(index.Asc(voteComment), index.Asc(voteVoter)),
			Unique: true,
		},
		objectstore.IndexDef[Vote]{
			Name:   VotesByVoterComment,
			Order:  index.Then(index.Asc(voteVoter), index.Asc(voteComment)),
			Unique: true,
		},
	)
	if err != nil {
		return nil, err
	}

	if _, err := globals.Insert(GlobalProperties{}); err != nil {
		return nil, fmt.Errorf("create global properties: %w", err)
	}

	return &State{
		Reader: Reader{
			Globals:  &globals.View,
			Accounts: &accounts.View,
			Comments: &comments.View,
			Votes:    &votes.View,
		},
		globals:  globals,
		accounts: accounts,
		comments: comments,
		votes:    votes,
	}, nil
}

// NewReader builds a Reader over a snapshot.
func NewReader(snap *objectstore.Snapshot) (Reader, error) {
	var (
		r   Reader
		err error
	)
	if r.Globals, err = objectstore.ViewOf[GlobalProperties](snap, objectstore.KindGlobalProperties); err != nil {
		return r, err
	}
	if r.Accounts, err = objectstore.ViewOf[Account](snap, objectstore.KindAccount); err != nil {
		return r, err
	}
	if r.Comments, err = objectstore.ViewOf[Comment](snap, objectstore.KindComment); err != nil {
		return r, err
	}
	if r.Votes, err = objectstore.ViewOf[Vote](snap, objectstore.KindVote); err != nil {
		return r, err
	}
	return r, nil
}

// Head returns the head block properties.
func (r Reader) Head() GlobalProperties {
	g, _ := r.Globals.Get(GlobalPropertiesID)
	return g
}

// Account looks an account up by name.
func (r Reader) Account(name string) (Account, bool) {
	return r.Accounts.Find(AccountsByName, Account{Name: name})
}

// MustAccount is Account returning NOT_FOUND for unknown names.
func (r Reader) MustAccount(name string) (Account, error) {
	a, ok := r.Account(name)
	if !ok {
		return a, objectstore.NewNotFoundError(objectstore.KindAccount, name)
	}
	return a, nil
}

// Comment looks a comment up by author name and permlink.
func (r Reader) Comment(author, permlink string) (Comment, bool) {
	a, ok := r.Account(author)
	if !ok {
		return Comment{}, false
	}
	return r.Comments.Find(CommentsByPermlink, Comment{Author: a.ID, Permlink: permlink})
}

// MustComment is Comment returning NOT_FOUND.
func (r Reader) MustComment(author, permlink string) (Comment, error) {
	c, ok := r.Comment(author, permlink)
	if !ok {
		return c, objectstore.NewNotFoundError(objectstore.KindComment, author+"/"+permlink)
	}
	return c, nil
}

// Vote returns voter's vote on comment.
func (r Reader) Vote(comment, voter ID) (Vote, bool) {
	return r.Votes.Find(VotesByCommentVoter, Vote{Comment: comment, Voter: voter})
}

// VotesOn yields the votes on comment ordered by voter id.
func (r Reader) VotesOn(comment ID) iter.Seq[Vote] {
	return r.Votes.Range(VotesByCommentVoter, Vote{Comment: comment},
		func(v Vote) bool { return v.Comment == comment })
}

// Replies yields the direct replies to comment in id order.
func (r Reader) Replies(comment ID) iter.Seq[Comment] {
	return r.Comments.Range(CommentsByParent, Comment{Parent: comment},
		func(c Comment) bool { return c.Parent == comment })
}

// DueForCashout yields comments whose cashout time is at or before now, in
// (cashout, id) order. Paid-out comments sit at MaxTime and are excluded.
func (r Reader) DueForCashout(now protocol.TimePointSec) iter.Seq[Comment] {
	return r.Comments.Range(CommentsByCashout, Comment{}, func(c Comment) bool {
		return c.CashoutTime <= now && c.CashoutTime != protocol.MaxTime
	})
}

// AuthorName resolves an account id, returning "" when unknown.
func (r Reader) AuthorName(id ID) string {
	a, ok := r.Accounts.Get(id)
	if !ok {
		return ""
	}
	return a.Name
}

// Ancestors yields the parents of c, nearest first.
func (r Reader) Ancestors(c Comment) iter.Seq[Comment] {
	return func(yield func(Comment) bool) {
		for depth := 0; c.Parent != objectstore.NullID && depth <= math.MaxUint16; depth++ {
			parent, ok := r.Comments.Get(c.Parent)
			if !ok || !yield(parent) {
				return
			}
			c = parent
		}
	}
}
