package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/protocol"
)

// BlockSink receives every block the pipeline applied, in order.
type BlockSink interface {
	AppendBlock(ctx context.Context, b protocol.Block) error
}

// Pipeline is the single-writer loop feeding blocks into a Database.
//
// Enqueue is safe from any goroutine; Run must be called from exactly one.
// A rejected block is logged with its number and error and the loop moves on
// to the next one. A fatal error stops the loop.
type Pipeline struct {
	db     *Database
	sink   BlockSink
	queue  *blockQueue
	logger *slog.Logger

	hook func(protocol.Block, error)

	applied  atomic.Int64
	rejected atomic.Int64
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithBlockHook calls fn once per settled block: with nil when the block was
// applied and journaled, with the rejection or sink error otherwise. fn runs
// on the Run goroutine. It is not called for the block that halts the loop.
func WithBlockHook(fn func(b protocol.Block, err error)) PipelineOption {
	return func(p *Pipeline) { p.hook = fn }
}

// NewPipeline returns a pipeline writing to db. sink may be nil.
func NewPipeline(db *Database, sink BlockSink, logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		db:     db,
		sink:   sink,
		queue:  newBlockQueue(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue submits a block. It returns false once the pipeline is closed.
func (p *Pipeline) Enqueue(b protocol.Block) bool {
	return p.queue.Enqueue(b)
}

// Close stops accepting blocks; Run returns after draining the queue.
func (p *Pipeline) Close() {
	p.queue.Close()
}

// Applied returns how many blocks were applied.
func (p *Pipeline) Applied() int64 { return p.applied.Load() }

// Rejected returns how many blocks were rejected.
func (p *Pipeline) Rejected() int64 { return p.rejected.Load() }

// Run applies queued blocks until ctx is cancelled, the queue is closed and
// empty, or the database halts.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline starting")
	for {
		if b, ok := p.queue.TryDequeue(); ok {
			if err := p.process(ctx, b); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping: context cancelled")
			p.queue.Close()
			return ctx.Err()
		case <-p.queue.Wait():
			if p.queue.Closed() && p.queue.Len() == 0 {
				p.logger.Info("pipeline stopping: queue closed",
					"applied", p.Applied(), "rejected", p.Rejected())
				return nil
			}
		}
	}
}

// process applies one block. Only fatal errors are returned.
func (p *Pipeline) process(ctx context.Context, b protocol.Block) error {
	if err := p.db.ApplyBlock(ctx, b); err != nil {
		if errors.Is(err, ErrHalted) || objectstore.IsFatal(err) {
			p.logger.Error("pipeline halted", "block", b.Number, "error", err)
			return err
		}
		p.rejected.Add(1)
		p.logger.Error("block rejected",
			"block", b.Number,
			"timestamp", b.Timestamp,
			"operations", len(b.Operations),
			"error", err,
		)
		p.settle(b, err)
		return nil
	}

	if p.sink != nil {
		if err := p.sink.AppendBlock(ctx, b); err != nil {
			// Keep state and journal in step.
			if _, popErr := p.db.PopBlock(); popErr != nil {
				return errors.Join(err, popErr)
			}
			p.rejected.Add(1)
			p.logger.Error("journal append failed, block reverted", "block", b.Number, "error", err)
			p.settle(b, fmt.Errorf("journal block %d: %w", b.Number, err))
			return nil
		}
	}
	p.applied.Add(1)
	p.settle(b, nil)
	return nil
}

func (p *Pipeline) settle(b protocol.Block, err error) {
	if p.hook != nil {
		p.hook(b, err)
	}
}

// blockQueue is an unbounded FIFO with a coalescing wake-up signal.
type blockQueue struct {
	mu     sync.Mutex
	blocks []protocol.Block
	closed bool
	signal chan struct{}
}

func newBlockQueue() *blockQueue {
	return &blockQueue{
		blocks: make([]protocol.Block, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

func (q *blockQueue) Enqueue(b protocol.Block) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.blocks = append(q.blocks, b)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

func (q *blockQueue) TryDequeue() (protocol.Block, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.blocks) == 0 {
		return protocol.Block{}, false
	}
	b := q.blocks[0]
	// Release the operations slice for GC.
	q.blocks[0] = protocol.Block{}
	if len(q.blocks) == 1 {
		q.blocks = q.blocks[:0]
	} else {
		q.blocks = q.blocks[1:]
	}
	return b, true
}

// Wait returns the wake-up channel. It is closed by Close.
func (q *blockQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *blockQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.blocks)
}

func (q *blockQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *blockQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
