package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/tagstate/internal/chain"
	"github.com/roach88/tagstate/internal/config"
	"github.com/roach88/tagstate/internal/ledger"
	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/protocol"
	"github.com/roach88/tagstate/internal/query"
)

// Harness applies a scenario to a fresh database.
type Harness struct {
	db     *chain.Database
	start  protocol.TimePointSec
	logger *slog.Logger
}

// Option configures Run.
type Option func(*Harness)

// WithLogger logs block outcomes to logger. Runs are silent by default.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) { h.logger = logger }
}

// Run executes scenario against a fresh in-memory database.
//
// The returned error is for scenarios that cannot run at all (bad config,
// undecodable operations, a halted database). Unmet expectations are
// recorded in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg, err := config.Parse(scenario.Name+".cue", []byte(scenario.Config))
	if err != nil {
		return nil, fmt.Errorf("scenario config: %w", err)
	}

	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}
	startStr := scenario.Start
	if startStr == "" {
		startStr = DefaultStart
	}
	if h.start, err = protocol.ParseTime(startStr); err != nil {
		return nil, fmt.Errorf("scenario start: %w", err)
	}
	if h.db, err = chain.Open(cfg, chain.WithLogger(h.logger)); err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Blocks {
		if err := h.executeBlock(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("blocks[%d]: %w", i, err)
		}
	}

	snap, err := h.db.Snapshot()
	if err != nil {
		return nil, err
	}
	svc := query.New(snap, cfg.Query.MaxLimit)
	for _, q := range scenario.Queries {
		out, err := runQuery(svc, q)
		if err != nil {
			result.AddError(fmt.Sprintf("query %q: %v", q.Name, err))
			continue
		}
		result.Queries = append(result.Queries, out)
	}

	actx := &AssertionContext{Snapshot: snap, Query: svc}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	if err := snap.Verify(); err != nil {
		result.AddError(fmt.Sprintf("verify: %v", err))
	}
	result.Head = snap.Head().HeadBlockNumber
	if result.Digest, err = snap.Digest(); err != nil {
		return nil, err
	}
	return result, nil
}

// executeBlock applies or pops for one step and checks its expectation.
func (h *Harness) executeBlock(ctx context.Context, i int, step BlockStep, result *Result) error {
	if step.Pop > 0 {
		for range step.Pop {
			head, err := h.db.PopBlock()
			if err != nil {
				return fmt.Errorf("pop: %w", err)
			}
			result.Blocks = append(result.Blocks, BlockEvent{
				Number:  head + 1,
				Outcome: OutcomePopped,
			})
		}
		return nil
	}

	b, err := h.nextBlock(step)
	if err != nil {
		return err
	}
	ev := BlockEvent{
		Number:     b.Number,
		Time:       b.Timestamp,
		Operations: len(b.Operations),
		Outcome:    OutcomeApplied,
	}
	if applyErr := h.db.ApplyBlock(ctx, b); applyErr != nil {
		if h.db.Halted() != nil {
			return applyErr
		}
		code, ok := objectstore.CodeOf(applyErr)
		if !ok {
			return applyErr
		}
		ev.Outcome = string(code)
		ev.Error = applyErr.Error()
	}
	result.Blocks = append(result.Blocks, ev)
	h.logger.Info("block step", "step", i, "block", ev.Number, "outcome", ev.Outcome)

	want := step.Expect
	if want == "" {
		want = OutcomeApplied
	}
	if ev.Outcome != want {
		msg := fmt.Sprintf("blocks[%d] (block %d): expected %s, got %s", i, ev.Number, want, ev.Outcome)
		if ev.Error != "" {
			msg += ": " + ev.Error
		}
		result.AddError(msg)
	}
	return nil
}

// nextBlock numbers and timestamps step after the current head.
func (h *Harness) nextBlock(step BlockStep) (protocol.Block, error) {
	return BuildBlock(h.db.Head(), h.start, step)
}

// BuildBlock turns step into the block following head. Without an explicit
// time, block 1 lands at start plus Skip and later blocks BlockInterval plus
// Skip seconds after the head.
func BuildBlock(head ledger.GlobalProperties, start protocol.TimePointSec, step BlockStep) (protocol.Block, error) {
	b := protocol.Block{Number: head.HeadBlockNumber + 1}
	switch {
	case step.Time != "":
		ts, err := protocol.ParseTime(step.Time)
		if err != nil {
			return b, err
		}
		b.Timestamp = ts
	case head.HeadBlockNumber == 0:
		b.Timestamp = start.Add(step.Skip)
	default:
		b.Timestamp = head.Time.Add(BlockInterval + step.Skip)
	}
	for j, op := range step.Ops {
		decoded, err := op.Operation()
		if err != nil {
			return b, fmt.Errorf("ops[%d]: %w", j, err)
		}
		b.Operations = append(b.Operations, decoded)
	}
	return b, nil
}

// Query kinds recorded in QueryOutput.Kind.
const (
	KindDiscussions      = "discussions"
	KindTag              = "tag"
	KindTrendingTags     = "trending_tags"
	KindTagsOfComment    = "tags_of_comment"
	KindTagsUsedByAuthor = "tags_used_by_author"
	KindPeers            = "peers"
	KindTopAuthors       = "top_authors"
)

func runQuery(svc *query.Service, q QueryStep) (QueryOutput, error) {
	out := QueryOutput{Name: q.Name}
	var err error
	switch {
	case q.Discussions != nil:
		out.Kind = KindDiscussions
		out.Value, err = svc.Discussions(*q.Discussions)
	case q.Tag != "":
		out.Kind = KindTag
		info, ok := svc.Tag(q.Tag)
		if !ok {
			info = query.TagInfo{Name: q.Tag}
		}
		out.Value = info
	case q.TrendingTags != nil:
		out.Kind = KindTrendingTags
		out.Value, err = svc.TrendingTags(q.TrendingTags.After, q.TrendingTags.Limit)
	case q.TagsOfComment != "":
		out.Kind = KindTagsOfComment
		author, permlink, serr := splitComment(q.TagsOfComment)
		if serr != nil {
			return out, serr
		}
		out.Value = svc.TagsOfComment(author, permlink)
	case q.TagsUsedByAuthor != "":
		out.Kind = KindTagsUsedByAuthor
		out.Value = svc.TagsUsedByAuthor(q.TagsUsedByAuthor)
	case q.Peers != nil:
		out.Kind = KindPeers
		out.Value, err = svc.Peers(q.Peers.Voter, q.Peers.Limit)
	case q.TopAuthors != nil:
		out.Kind = KindTopAuthors
		out.Value, err = svc.TopAuthors(q.TopAuthors.Tag, q.TopAuthors.Limit)
	default:
		return out, fmt.Errorf("no query kind set")
	}
	return out, err
}
