package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/tagstate/internal/config"
	"github.com/roach88/tagstate/internal/evaluator"
	"github.com/roach88/tagstate/internal/ledger"
	"github.com/roach88/tagstate/internal/metrics"
	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/protocol"
	"github.com/roach88/tagstate/internal/score"
	"github.com/roach88/tagstate/internal/tags"
)

var (
	// ErrHalted is returned by every write after a fatal error.
	ErrHalted = errors.New("chain: database halted after a fatal error")

	// ErrNoBlocks is returned by PopBlock when the undo history is empty.
	ErrNoBlocks = errors.New("chain: no block to pop")
)

// Observer is notified after each operation has been applied to the ledger,
// inside the same undo session. An error rolls the operation back.
type Observer interface {
	OnOperation(ctx context.Context, op protocol.Operation) error
}

// Context is the state handed to evaluators.
type Context struct {
	Ledger *ledger.State
	Chain  config.Chain
	Tags   config.Tags
	// Now is the head block time while the operation is applied.
	Now protocol.TimePointSec
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Database) { d.logger = logger }
}

// WithMetrics records apply metrics in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Database) { d.metrics = m }
}

// WithObserver appends an observer that runs after the tag maintainer.
func WithObserver(o Observer) Option {
	return func(d *Database) { d.observers = append(d.observers, o) }
}

// applied is one entry of the undo history.
type applied struct {
	revision int64
	block    uint32
}

// Database is the single-writer state machine.
type Database struct {
	mu sync.RWMutex

	cfg       config.Config
	store     *objectstore.Store
	ledger    *ledger.State
	tags      *tags.Maintainer
	registry  *evaluator.Registry[*Context]
	observers []Observer
	logger    *slog.Logger
	metrics   *metrics.Metrics

	history []applied
	halted  error

	// version counts successful writes; snap is the snapshot taken at it.
	version     uint64
	snap        *Snapshot
	snapVersion uint64
}

// Open builds an empty database.
func Open(cfg config.Config, opts ...Option) (*Database, error) {
	d := &Database{
		cfg:    cfg,
		store:  objectstore.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	extra := d.observers

	var err error
	if d.ledger, err = ledger.Register(d.store); err != nil {
		return nil, fmt.Errorf("register ledger: %w", err)
	}
	d.tags, err = tags.Register(d.store, d.ledger, TagOptions(cfg), d.logger.With("component", "tags"))
	if err != nil {
		return nil, fmt.Errorf("register tags: %w", err)
	}
	d.observers = append([]Observer{d.tags}, extra...)

	d.registry = evaluator.NewRegistry[*Context]()
	if err := registerEvaluators(d.registry); err != nil {
		return nil, err
	}
	if err := d.registry.Seal(protocol.Kinds()...); err != nil {
		return nil, err
	}
	return d, nil
}

// TagOptions derives the tag maintainer options from cfg.
func TagOptions(cfg config.Config) tags.Options {
	return tags.Options{
		TagLimit:      cfg.Tags.TagLimit,
		MaxTagLength:  cfg.Tags.MaxTagLength,
		NullAccount:   cfg.Tags.NullAccount,
		PromoteSymbol: cfg.Tags.PromoteSymbol,
		Score: score.Params{
			RsharesDivisor:  cfg.Score.RsharesDivisor,
			HotDivisor:      cfg.Score.HotDivisor,
			TrendingDivisor: cfg.Score.TrendingDivisor,
		},
	}
}

// Config returns the configuration the database was opened with.
func (d *Database) Config() config.Config { return d.cfg }

// Halted returns the fatal error that stopped the database, if any.
func (d *Database) Halted() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.halted
}

// ApplyOperation applies one operation outside any block at the current head
// time. On success the change is pushed onto the undo history like a block.
func (d *Database) ApplyOperation(ctx context.Context, op protocol.Operation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted != nil {
		return fmt.Errorf("%w: %v", ErrHalted, d.halted)
	}

	head := d.ledger.Head()
	session := d.store.StartUndoSession()
	if err := d.apply(ctx, op, head.Time); err != nil {
		d.rollback(session, err)
		return err
	}
	if err := session.Push(); err != nil {
		return err
	}
	d.pushed(head.HeadBlockNumber)
	return nil
}

// ApplyBlock applies every operation of b in order, then pays out the
// comments whose cashout time has come. Any failure undoes the whole block.
func (d *Database) ApplyBlock(ctx context.Context, b protocol.Block) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted != nil {
		return fmt.Errorf("%w: %v", ErrHalted, d.halted)
	}

	head := d.ledger.Head()
	if b.Number != head.HeadBlockNumber+1 {
		return objectstore.Validationf("block %d does not follow head %d", b.Number, head.HeadBlockNumber)
	}
	if b.Timestamp < head.Time {
		return objectstore.Validationf("block %d time %s is before head time %s", b.Number, b.Timestamp, head.Time)
	}

	session := d.store.StartUndoSession()
	if err := d.ledger.SetHead(b.Number, b.Timestamp); err != nil {
		d.rollback(session, err)
		return err
	}
	for i, op := range b.Operations {
		if err := ctx.Err(); err != nil {
			d.rollback(session, err)
			return err
		}
		if err := d.applyNested(ctx, op, b.Timestamp); err != nil {
			d.rollback(session, err)
			return fmt.Errorf("block %d operation %d (%s): %w", b.Number, i, op.Kind(), err)
		}
	}
	if err := d.processCashouts(ctx, b.Timestamp); err != nil {
		d.rollback(session, err)
		return fmt.Errorf("block %d cashout: %w", b.Number, err)
	}
	if err := session.Push(); err != nil {
		return err
	}
	d.pushed(b.Number)

	d.logger.Debug("block applied",
		"block", b.Number,
		"operations", len(b.Operations),
		"undo_depth", len(d.history),
	)
	return nil
}

// processCashouts emits comment_payout_update for every comment due at now.
func (d *Database) processCashouts(ctx context.Context, now protocol.TimePointSec) error {
	due := slices.Collect(d.ledger.DueForCashout(now))
	for _, c := range due {
		op := protocol.CommentPayoutUpdate{
			Author:   d.ledger.AuthorName(c.Author),
			Permlink: c.Permlink,
		}
		if err := d.applyNested(ctx, op, now); err != nil {
			return fmt.Errorf("payout %s/%s: %w", op.Author, op.Permlink, err)
		}
	}
	return nil
}

// applyNested applies op in a session squashed into the enclosing one.
func (d *Database) applyNested(ctx context.Context, op protocol.Operation, now protocol.TimePointSec) error {
	session := d.store.StartUndoSession()
	if err := d.apply(ctx, op, now); err != nil {
		if undoErr := session.Undo(); undoErr != nil {
			return errors.Join(err, undoErr)
		}
		return err
	}
	return session.Squash()
}

// apply validates and evaluates op, then runs the observers. The caller owns
// the undo session.
func (d *Database) apply(ctx context.Context, op protocol.Operation, now protocol.TimePointSec) (err error) {
	start := time.Now()
	defer func() {
		code := ""
		if err != nil {
			c, ok := objectstore.CodeOf(err)
			if !ok {
				c = "ERROR"
			}
			code = string(c)
		}
		d.metrics.ObserveOperation(string(op.Kind()), code, time.Since(start))
	}()

	if err := op.Validate(); err != nil {
		return objectstore.Validationf("%v", err)
	}
	ectx := &Context{
		Ledger: d.ledger,
		Chain:  d.cfg.Chain,
		Tags:   d.cfg.Tags,
		Now:    now,
	}
	if err := d.registry.Dispatch(ctx, ectx, op); err != nil {
		return err
	}
	for _, o := range d.observers {
		if err := o.OnOperation(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

// rollback undoes session and halts on fatal errors.
func (d *Database) rollback(session *objectstore.Session, cause error) {
	if err := session.Undo(); err != nil {
		d.halt(fmt.Errorf("undo after %v: %w", cause, err))
		return
	}
	if objectstore.IsFatal(cause) {
		d.halt(cause)
		return
	}
	d.logger.Debug("operation rejected", "error", cause)
}

func (d *Database) halt(err error) {
	d.halted = err
	d.metrics.ObserveHalt()
	d.logger.Error("database halted", "error", err)
}

// pushed records a new undo revision and commits history beyond the
// configured depth.
func (d *Database) pushed(block uint32) {
	d.history = append(d.history, applied{revision: d.store.Revision(), block: block})
	d.version++
	if limit := d.cfg.Chain.MaxUndoHistory; limit > 0 && len(d.history) > limit {
		drop := len(d.history) - limit
		d.store.Commit(d.history[drop-1].revision)
		d.history = slices.Clone(d.history[drop:])
	}
	d.metrics.ObserveBlock(block, len(d.history), d.tags.Tags.Len())
}

// PopBlock reverts the newest entry of the undo history, a block or a
// standalone operation, and returns the head block number afterwards.
func (d *Database) PopBlock() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted != nil {
		return 0, fmt.Errorf("%w: %v", ErrHalted, d.halted)
	}
	if len(d.history) == 0 {
		return 0, ErrNoBlocks
	}
	if err := d.store.Undo(); err != nil {
		d.halt(err)
		return 0, err
	}
	d.history = d.history[:len(d.history)-1]
	d.version++
	head := d.ledger.Head().HeadBlockNumber
	d.metrics.ObservePop(head, len(d.history), d.tags.Tags.Len())
	return head, nil
}

// Commit makes every entry of the undo history up to and including block
// permanent.
func (d *Database) Commit(block uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := 0
	for i < len(d.history) && d.history[i].block <= block {
		i++
	}
	if i == 0 {
		return
	}
	d.store.Commit(d.history[i-1].revision)
	d.history = slices.Clone(d.history[i:])
}

// UndoDepth returns how many entries PopBlock can still revert.
func (d *Database) UndoDepth() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.history)
}

// Head returns the head block properties.
func (d *Database) Head() ledger.GlobalProperties {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ledger.Head()
}

// Verify checks every index and recomputes every tag aggregate.
func (d *Database) Verify() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return errors.Join(d.store.Verify(), d.tags.Verify())
}

// Digest hashes the whole state.
func (d *Database) Digest() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.store.Digest()
}
