package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tagstate/internal/protocol"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Journal string
	Runs    int
}

// ReplayRun is the outcome of one independent rebuild.
type ReplayRun struct {
	Head     uint32 `json:"head"`
	Digest   string `json:"digest"`
	Verified bool   `json:"verified"`
	Error    string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Blocks        int         `json:"blocks"`
	Operations    int         `json:"operations"`
	Runs          []ReplayRun `json:"runs"`
	Deterministic bool        `json:"deterministic"`
	Verified      bool        `json:"verified"`
}

// OK reports whether every run verified and all digests agree.
func (r ReplayResult) OK() bool { return r.Deterministic && r.Verified }

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild state from the journal and verify determinism",
		Long: `Rebuild the state recorded in the journal several times in parallel,
each into its own database. Every rebuild must pass index and aggregate
verification and all of them must reach the same state digest.

Exit codes:
  0 - All rebuilds verified and agree
  1 - Verification failed or digests diverged
  2 - Command error (journal not found, etc.)

Examples:
  tagstate replay --journal chain.db
  tagstate replay --journal chain.db --runs 4 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().IntVar(&opts.Runs, "runs", 2, "number of independent rebuilds")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Runs < 2 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--runs must be at least 2, got %d", opts.Runs))
	}

	j, err := openExistingJournal(opts.Journal)
	if err != nil {
		return err
	}
	blocks, err := j.ReadBlocks(ctx, 1)
	j.Close()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result, err := replayBlocks(ctx, opts.RootOptions, blocks, opts.Runs)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}
	return outputReplay(opts, cmd, result)
}

// replayBlocks rebuilds blocks runs times concurrently. Each run owns its
// database; the blocks are only read.
func replayBlocks(ctx context.Context, opts *RootOptions, blocks []protocol.Block, runs int) (ReplayResult, error) {
	result := ReplayResult{
		Blocks: len(blocks),
		Runs:   make([]ReplayRun, runs),
	}
	for _, b := range blocks {
		result.Operations += len(b.Operations)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range runs {
		g.Go(func() error {
			logger := opts.Logger().With("run", i)
			db, err := rebuild(gctx, opts.Settings(), logger, blocks)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			run := ReplayRun{Head: db.Head().HeadBlockNumber, Verified: true}
			if err := db.Verify(); err != nil {
				run.Verified = false
				run.Error = err.Error()
			}
			if run.Digest, err = db.Digest(); err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			result.Runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ReplayResult{}, err
	}

	result.Deterministic = true
	result.Verified = true
	for _, run := range result.Runs {
		if run.Digest != result.Runs[0].Digest || run.Head != result.Runs[0].Head {
			result.Deterministic = false
		}
		if !run.Verified {
			result.Verified = false
		}
	}
	return result, nil
}

func outputReplay(opts *ReplayOptions, cmd *cobra.Command, result ReplayResult) error {
	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.OK() {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeReplayDiverged, Message: replayFailure(result)}
		}
		if err := opts.formatter(cmd).JSON(resp); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Replay Summary: %d block(s), %d operation(s), %d run(s)\n",
			result.Blocks, result.Operations, len(result.Runs))
		for i, run := range result.Runs {
			status := "✓"
			if !run.Verified {
				status = "✗"
			}
			fmt.Fprintf(w, "%s run %d: head %d digest %s\n", status, i, run.Head, run.Digest)
			if run.Error != "" {
				fmt.Fprintf(w, "  %s\n", run.Error)
			}
		}
		if result.OK() {
			fmt.Fprintln(w, "✓ All runs verified and agree")
		} else {
			fmt.Fprintf(w, "✗ %s\n", replayFailure(result))
		}
	}

	if !result.OK() {
		return NewExitError(ExitFailure, replayFailure(result))
	}
	return nil
}

func replayFailure(result ReplayResult) string {
	if !result.Deterministic {
		return "replay digests diverged"
	}
	return "state verification failed"
}
