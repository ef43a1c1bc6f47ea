package harness

import (
	"bytes"
	"fmt"
	"io"

	"github.com/roach88/tagstate/internal/query"
)

// Render lists the blocks and query outputs of result as stable text. Only
// integer and string fields are printed, so the text does not depend on
// floating point formatting; the digest is left out since it changes with
// any field added to a record.
func Render(name string, result *Result) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario %s\n", name)

	for _, b := range result.Blocks {
		if b.Outcome == OutcomePopped {
			fmt.Fprintf(&buf, "block %d popped\n", b.Number)
			continue
		}
		fmt.Fprintf(&buf, "block %d %s ops=%d %s\n", b.Number, b.Time, b.Operations, b.Outcome)
	}
	fmt.Fprintf(&buf, "head %d\n", result.Head)

	for _, q := range result.Queries {
		fmt.Fprintf(&buf, "query %s (%s)\n", q.Name, q.Kind)
		RenderValue(&buf, q.Value)
	}
	return buf.Bytes()
}

// RenderValue writes one indented line per item of a query result.
func RenderValue(buf io.Writer, v any) {
	switch v := v.(type) {
	case []query.Discussion:
		for _, d := range v {
			fmt.Fprintf(buf, "  %s/%s tag=%q net_rshares=%d net_votes=%d children=%d promoted=%d payout=%s\n",
				d.Author, d.Permlink, d.Tag, d.NetRshares, d.NetVotes, d.Children, d.PromotedBalance, d.TotalPayout)
		}
	case query.TagInfo:
		renderTag(buf, v)
	case []query.TagInfo:
		for _, t := range v {
			renderTag(buf, t)
		}
	case []query.TagCount:
		for _, t := range v {
			fmt.Fprintf(buf, "  %q count=%d\n", t.Tag, t.Count)
		}
	case []query.Peer:
		for _, p := range v {
			fmt.Fprintf(buf, "  %s->%s direct=%d/%d indirect=%d/%d\n",
				p.Voter, p.Peer, p.DirectPositiveVotes, p.DirectVotes, p.IndirectPositiveVotes, p.IndirectVotes)
		}
	case []query.AuthorTag:
		for _, a := range v {
			fmt.Fprintf(buf, "  %s tag=%q posts=%d rewards=%s\n", a.Author, a.Tag, a.TotalPosts, a.TotalRewards)
		}
	default:
		fmt.Fprintf(buf, "  %v\n", v)
	}
}

func renderTag(buf io.Writer, t query.TagInfo) {
	fmt.Fprintf(buf, "  %q top_posts=%d comments=%d net_votes=%d payout=%s\n",
		t.Name, t.TopPosts, t.Comments, t.NetVotes, t.TotalPayout)
}
