package journal

import (
	"context"
	"fmt"

	"github.com/roach88/tagstate/internal/protocol"
)

// Head returns the newest block number, or 0 for an empty journal.
func (j *Journal) Head(ctx context.Context) (uint32, error) {
	return headOf(ctx, j.db)
}

// BlockInfo describes one journaled block without its operations.
type BlockInfo struct {
	Number     uint32
	Timestamp  protocol.TimePointSec
	SessionID  string
	Operations int
}

// Blocks lists the journaled blocks from num on, oldest first.
func (j *Journal) Blocks(ctx context.Context, from uint32) ([]BlockInfo, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT num, timestamp, session_id, op_count
		FROM blocks
		WHERE num >= ?
		ORDER BY num ASC
	`, from)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	infos := []BlockInfo{}
	for rows.Next() {
		var (
			info BlockInfo
			ts   int64
		)
		if err := rows.Scan(&info.Number, &ts, &info.SessionID, &info.Operations); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		info.Timestamp = protocol.TimePointSec(ts)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return infos, nil
}

// ReadBlocks returns the blocks from num on with their operations, ordered
// by block number then operation index.
func (j *Journal) ReadBlocks(ctx context.Context, from uint32) ([]protocol.Block, error) {
	infos, err := j.Blocks(ctx, from)
	if err != nil {
		return nil, err
	}
	blocks := make([]protocol.Block, len(infos))
	byNum := make(map[uint32]int, len(infos))
	for i, info := range infos {
		blocks[i] = protocol.Block{Number: info.Number, Timestamp: info.Timestamp}
		byNum[info.Number] = i
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT block_num, op_index, payload
		FROM operations
		WHERE block_num >= ?
		ORDER BY block_num ASC, op_index ASC
	`, from)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			num     uint32
			index   int
			payload string
		)
		if err := rows.Scan(&num, &index, &payload); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		i, ok := byNum[num]
		if !ok {
			return nil, fmt.Errorf("operation %d of block %d: block row missing", index, num)
		}
		if index != len(blocks[i].Operations) {
			return nil, fmt.Errorf("block %d: operation %d out of sequence", num, index)
		}
		op, err := protocol.UnmarshalOperation([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("block %d operation %d: %w", num, index, err)
		}
		blocks[i].Operations = append(blocks[i].Operations, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}

	for _, b := range blocks {
		if want := infos[byNum[b.Number]].Operations; len(b.Operations) != want {
			return nil, fmt.Errorf("block %d: %d operations journaled, %d recorded", b.Number, len(b.Operations), want)
		}
	}
	return blocks, nil
}
