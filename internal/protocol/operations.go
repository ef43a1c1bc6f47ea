package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// OpKind discriminates operations on the wire and in the evaluator registry.
type OpKind string

const (
	OpAccountCreate       OpKind = "account_create"
	OpComment             OpKind = "comment"
	OpVote                OpKind = "vote"
	OpDeleteComment       OpKind = "delete_comment"
	OpTransfer            OpKind = "transfer"
	OpCommentReward       OpKind = "comment_reward"
	OpCommentPayoutUpdate OpKind = "comment_payout_update"
)

// Kinds lists every operation kind in wire order. Registries check
// completeness against this list at startup.
func Kinds() []OpKind {
	return []OpKind{
		OpAccountCreate,
		OpComment,
		OpVote,
		OpDeleteComment,
		OpTransfer,
		OpCommentReward,
		OpCommentPayoutUpdate,
	}
}

// ErrInvalidOperation is wrapped by every stateless validation failure.
var ErrInvalidOperation = errors.New("invalid operation")

// Operation is the closed set of chain operations.
type Operation interface {
	Kind() OpKind
	// Validate performs the checks that need no chain state.
	Validate() error
	isOperation()
}

// IsVirtual reports operations that the chain emits itself. Reward
// calculation lives outside this module, so comment_reward still arrives from
// the block producer.
func IsVirtual(op Operation) bool {
	switch op.Kind() {
	case OpCommentReward, OpCommentPayoutUpdate:
		return true
	}
	return false
}

const (
	// MaxVoteWeight is 100% expressed in basis points.
	MaxVoteWeight = 10000
	maxNameLength = 16
	minNameLength = 3
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}

// ValidateAccountName enforces lowercase names of 3 to 16 characters made of
// letters, digits, dots and dashes.
func ValidateAccountName(name string) error {
	if len(name) < minNameLength || len(name) > maxNameLength {
		return invalid("account name %q must be %d-%d characters", name, minNameLength, maxNameLength)
	}
	for _, c := range name {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '.' || c == '-') {
			return invalid("account name %q contains %q", name, c)
		}
	}
	return nil
}

// ValidatePermlink requires a non-empty permlink without whitespace. The
// length limit is configuration and is checked by the evaluator.
func ValidatePermlink(permlink string) error {
	if permlink == "" {
		return invalid("permlink is empty")
	}
	if strings.ContainsAny(permlink, " \t\r\n/") {
		return invalid("permlink %q contains whitespace or '/'", permlink)
	}
	return nil
}

// AccountCreate registers a new account with an initial stake.
type AccountCreate struct {
	Name          string `json:"new_account_name"`
	VestingShares int64  `json:"vesting_shares"`
	Balance       Asset  `json:"balance"`
}

func (AccountCreate) Kind() OpKind { return OpAccountCreate }
func (AccountCreate) isOperation() {}

func (op AccountCreate) Validate() error {
	if err := ValidateAccountName(op.Name); err != nil {
		return err
	}
	if op.VestingShares < 0 {
		return invalid("vesting_shares must not be negative")
	}
	if op.Balance.Amount < 0 {
		return invalid("balance must not be negative")
	}
	return nil
}

// Comment creates a post or reply, or edits an existing one.
// An empty ParentAuthor makes a top-level post whose category is
// ParentPermlink.
type Comment struct {
	ParentAuthor   string `json:"parent_author"`
	ParentPermlink string `json:"parent_permlink"`
	Author         string `json:"author"`
	Permlink       string `json:"permlink"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	JSONMetadata   string `json:"json_metadata"`
}

func (Comment) Kind() OpKind { return OpComment }
func (Comment) isOperation() {}

// IsRoot reports whether the comment is a top-level post.
func (op Comment) IsRoot() bool { return op.ParentAuthor == "" }

func (op Comment) Validate() error {
	if err := ValidateAccountName(op.Author); err != nil {
		return err
	}
	if err := ValidatePermlink(op.Permlink); err != nil {
		return err
	}
	if op.ParentAuthor != "" {
		if err := ValidateAccountName(op.ParentAuthor); err != nil {
			return err
		}
	}
	if op.ParentPermlink == "" {
		return invalid("parent_permlink is empty")
	}
	return nil
}

// Vote sets the voter's weight on a comment, replacing any previous vote.
type Vote struct {
	Voter    string `json:"voter"`
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
	Weight   int16  `json:"weight"`
}

func (Vote) Kind() OpKind { return OpVote }
func (Vote) isOperation() {}

func (op Vote) Validate() error {
	if err := ValidateAccountName(op.Voter); err != nil {
		return err
	}
	if err := ValidateAccountName(op.Author); err != nil {
		return err
	}
	if err := ValidatePermlink(op.Permlink); err != nil {
		return err
	}
	if op.Weight < -MaxVoteWeight || op.Weight > MaxVoteWeight {
		return invalid("vote weight %d outside [-%d, %d]", op.Weight, MaxVoteWeight, MaxVoteWeight)
	}
	return nil
}

// DeleteComment removes a comment without replies or positive rshares.
type DeleteComment struct {
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
}

func (DeleteComment) Kind() OpKind { return OpDeleteComment }
func (DeleteComment) isOperation() {}

func (op DeleteComment) Validate() error {
	if err := ValidateAccountName(op.Author); err != nil {
		return err
	}
	return ValidatePermlink(op.Permlink)
}

// Transfer moves liquid balance between accounts. A transfer to the null
// account with memo "@author/permlink" promotes that post.
type Transfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount Asset  `json:"amount"`
	Memo   string `json:"memo"`
}

func (Transfer) Kind() OpKind { return OpTransfer }
func (Transfer) isOperation() {}

func (op Transfer) Validate() error {
	if err := ValidateAccountName(op.From); err != nil {
		return err
	}
	if err := ValidateAccountName(op.To); err != nil {
		return err
	}
	if op.Amount.Amount <= 0 {
		return invalid("transfer amount must be positive")
	}
	if op.From == op.To {
		return invalid("cannot transfer to self")
	}
	return nil
}

// PromotedPermlink parses a "@author/permlink" memo.
func (op Transfer) PromotedPermlink() (author, permlink string, ok bool) {
	rest, found := strings.CutPrefix(op.Memo, "@")
	if !found {
		return "", "", false
	}
	author, permlink, ok = strings.Cut(rest, "/")
	if !ok || author == "" || permlink == "" {
		return "", "", false
	}
	return author, permlink, true
}

// CommentReward is a virtual operation recording an author payout.
type CommentReward struct {
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
	Payout   Asset  `json:"payout"`
}

func (CommentReward) Kind() OpKind { return OpCommentReward }
func (CommentReward) isOperation() {}

func (op CommentReward) Validate() error {
	if err := ValidateAccountName(op.Author); err != nil {
		return err
	}
	if err := ValidatePermlink(op.Permlink); err != nil {
		return err
	}
	if op.Payout.Amount < 0 {
		return invalid("payout must not be negative")
	}
	return nil
}

// CommentPayoutUpdate is a virtual operation emitted when a comment reaches
// its cashout time.
type CommentPayoutUpdate struct {
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
}

func (CommentPayoutUpdate) Kind() OpKind { return OpCommentPayoutUpdate }
func (CommentPayoutUpdate) isOperation() {}

func (op CommentPayoutUpdate) Validate() error {
	if err := ValidateAccountName(op.Author); err != nil {
		return err
	}
	return ValidatePermlink(op.Permlink)
}
