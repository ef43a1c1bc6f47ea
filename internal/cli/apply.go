package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tagstate/internal/chain"
	"github.com/roach88/tagstate/internal/harness"
	"github.com/roach88/tagstate/internal/journal"
	"github.com/roach88/tagstate/internal/metrics"
	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/protocol"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Journal string
	Strict  bool
	Metrics string
}

// Script is a block script: the block steps of a scenario without queries
// or assertions.
type Script struct {
	Start  string              `yaml:"start,omitempty"`
	Blocks []harness.BlockStep `yaml:"blocks"`
}

// RejectedBlock describes a block the database refused.
type RejectedBlock struct {
	Number uint32 `json:"number"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

// ApplyResult summarizes an apply run.
type ApplyResult struct {
	Journal  string          `json:"journal"`
	Session  string          `json:"session"`
	Restored int             `json:"restored"`
	Applied  int             `json:"applied"`
	Popped   int             `json:"popped"`
	Rejected []RejectedBlock `json:"rejected"`
	Head     uint32          `json:"head"`
	Digest   string          `json:"digest"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <script.yaml>",
		Short: "Apply a block script and journal the applied blocks",
		Long: `Apply the blocks of a YAML script on top of the state recorded in the
journal. Applied blocks are appended to the journal; rejected blocks are
reported and skipped. A "pop: N" step reverts the last N blocks and drops
them from the journal.

Exit codes:
  0 - Script applied (rejections are reported)
  1 - A block was rejected and --strict is set
  2 - Command error (bad script, unreadable journal, etc.)

Examples:
  tagstate apply --journal chain.db blocks.yaml
  tagstate apply --journal chain.db blocks.yaml --strict --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit 1 when any block is rejected")
	cmd.Flags().StringVar(&opts.Metrics, "metrics", "", "write Prometheus metrics to this file")

	return cmd
}

// LoadScript reads a block script. Unknown fields and undecodable
// operations are errors.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if len(s.Blocks) == 0 {
		return nil, fmt.Errorf("script has no blocks")
	}
	for i, b := range s.Blocks {
		for j, op := range b.Ops {
			if _, err := op.Operation(); err != nil {
				return nil, fmt.Errorf("blocks[%d].ops[%d]: %w", i, j, err)
			}
		}
	}
	return &s, nil
}

func runApply(ctx context.Context, opts *ApplyOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger()
	cfg := opts.Settings()

	script, err := LoadScript(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load script", err)
	}
	startStr := script.Start
	if startStr == "" {
		startStr = harness.DefaultStart
	}
	start, err := protocol.ParseTime(startStr)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid script start", err)
	}

	j, err := journal.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	stored, err := j.ReadBlocks(ctx, 1)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	reg := prometheus.NewRegistry()
	db, err := rebuild(ctx, cfg, logger, stored, chain.WithMetrics(metrics.New(cfg.Metrics.Namespace, reg)))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to rebuild state", err)
	}

	result := ApplyResult{
		Journal:  opts.Journal,
		Session:  j.SessionID(),
		Restored: len(stored),
		Rejected: []RejectedBlock{},
	}
	// The pipeline reports each block before the next one is built, so a
	// block after a rejection reuses the rejected number.
	settled := make(chan error, 1)
	p := chain.NewPipeline(db, j, logger, chain.WithBlockHook(func(_ protocol.Block, err error) {
		settled <- err
	}))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })

	stepErr := applySteps(gctx, db, j, p, settled, script, start, logger, &result)
	p.Close()
	if err := g.Wait(); err != nil && stepErr == nil {
		stepErr = WrapExitError(ExitCommandError, "block pipeline stopped", err)
	}
	if stepErr != nil {
		return stepErr
	}
	result.Applied = int(p.Applied())

	if err := db.Verify(); err != nil {
		return WrapExitError(ExitFailure, "state verification failed", err)
	}
	result.Head = db.Head().HeadBlockNumber
	if result.Digest, err = db.Digest(); err != nil {
		return WrapExitError(ExitCommandError, "failed to digest state", err)
	}
	if opts.Metrics != "" {
		if err := prometheus.WriteToTextfile(opts.Metrics, reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}

	return outputApply(opts, cmd, result)
}

// applySteps feeds script to the running pipeline one block at a time. Pops
// run while the pipeline is idle.
func applySteps(ctx context.Context, db *chain.Database, j *journal.Journal, p *chain.Pipeline,
	settled <-chan error, script *Script, start protocol.TimePointSec, logger *slog.Logger, result *ApplyResult) error {
	for i, step := range script.Blocks {
		if step.Pop > 0 {
			for range step.Pop {
				head, err := db.PopBlock()
				if err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("blocks[%d]: pop failed", i), err)
				}
				if _, err := j.TruncateAfter(ctx, head); err != nil {
					return WrapExitError(ExitCommandError, "failed to truncate journal", err)
				}
				result.Popped++
			}
			continue
		}

		b, err := harness.BuildBlock(db.Head(), start, step)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("blocks[%d]", i), err)
		}
		if !p.Enqueue(b) {
			return WrapExitError(ExitCommandError, fmt.Sprintf("block %d", b.Number), context.Cause(ctx))
		}

		select {
		case err := <-settled:
			if err == nil {
				logger.Debug("block applied", "block", b.Number, "operations", len(b.Operations))
				continue
			}
			code, ok := objectstore.CodeOf(err)
			if !ok {
				return WrapExitError(ExitCommandError, fmt.Sprintf("block %d", b.Number), err)
			}
			result.Rejected = append(result.Rejected, RejectedBlock{
				Number: b.Number,
				Code:   string(code),
				Error:  err.Error(),
			})
		case <-ctx.Done():
			return WrapExitError(ExitCommandError, fmt.Sprintf("block %d", b.Number), context.Cause(ctx))
		}
	}
	return nil
}

func outputApply(opts *ApplyOptions, cmd *cobra.Command, result ApplyResult) error {
	failed := opts.Strict && len(result.Rejected) > 0
	f := opts.formatter(cmd)

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if failed {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeRejected,
				Message: fmt.Sprintf("%d block(s) rejected", len(result.Rejected)),
			}
		}
		if err := f.JSON(resp); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Journal: %s (session %s)\n", result.Journal, result.Session)
		fmt.Fprintf(w, "Blocks: %d restored, %d applied, %d popped, %d rejected\n",
			result.Restored, result.Applied, result.Popped, len(result.Rejected))
		for _, r := range result.Rejected {
			fmt.Fprintf(w, "  block %d %s: %s\n", r.Number, r.Code, r.Error)
		}
		fmt.Fprintf(w, "Head: %d\n", result.Head)
		fmt.Fprintf(w, "Digest: %s\n", result.Digest)
	}

	if failed {
		return NewExitError(ExitFailure, fmt.Sprintf("%d block(s) rejected", len(result.Rejected)))
	}
	return nil
}
