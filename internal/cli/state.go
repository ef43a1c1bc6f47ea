package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/tagstate/internal/chain"
	"github.com/roach88/tagstate/internal/config"
	"github.com/roach88/tagstate/internal/journal"
	"github.com/roach88/tagstate/internal/protocol"
)

// openExistingJournal opens the journal at path, refusing to create one.
func openExistingJournal(path string) (*journal.Journal, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "journal not found", err)
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return j, nil
}

// rebuild applies blocks to a fresh database through the pipeline. Every
// journaled block was applied once, so a rejection here means the journal
// and the rules disagree.
func rebuild(ctx context.Context, cfg config.Config, logger *slog.Logger, blocks []protocol.Block, opts ...chain.Option) (*chain.Database, error) {
	db, err := chain.Open(cfg, append([]chain.Option{chain.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	p := chain.NewPipeline(db, nil, logger)
	for _, b := range blocks {
		p.Enqueue(b)
	}
	p.Close()
	if err := p.Run(ctx); err != nil {
		return nil, err
	}
	if n := p.Rejected(); n > 0 {
		return nil, fmt.Errorf("%d journaled block(s) rejected on replay", n)
	}
	return db, nil
}

// loadState reads the journal at path and rebuilds the state it records.
func loadState(ctx context.Context, opts *RootOptions, path string) (*chain.Database, error) {
	j, err := openExistingJournal(path)
	if err != nil {
		return nil, err
	}
	defer j.Close()

	blocks, err := j.ReadBlocks(ctx, 1)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	db, err := rebuild(ctx, opts.Settings(), opts.Logger(), blocks)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to rebuild state", err)
	}
	return db, nil
}
