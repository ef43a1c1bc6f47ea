package objectstore

import "fmt"

// ID identifies a record within its table. Ids start at 1; NullID never
// names a record.
type ID uint64

// NullID is the "no record" sentinel, used as the parent of top-level posts.
const NullID ID = 0

// Kind names a record type. Each Store holds at most one table per kind.
type Kind uint8

const (
	KindGlobalProperties Kind = iota + 1
	KindAccount
	KindComment
	KindVote
	KindTag
	KindTagStats
	KindPeerStats
	KindAuthorTagStats
)

var kindNames = map[Kind]string{
	KindGlobalProperties: "global_properties",
	KindAccount:          "account",
	KindComment:          "comment",
	KindVote:             "vote",
	KindTag:              "tag",
	KindTagStats:         "tag_stats",
	KindPeerStats:        "peer_stats",
	KindAuthorTagStats:   "author_tag_stats",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Record is implemented by every value stored in a Table. WithID returns a
// copy carrying the store-assigned id.
type Record[T any] interface {
	RecordID() ID
	WithID(id ID) T
}
