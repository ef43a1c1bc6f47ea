package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/tagstate/internal/protocol"
)

// AppendBlock records b and its operations in one transaction. b must be
// the block after the current head; the first block of an empty journal may
// have any number.
func (j *Journal) AppendBlock(ctx context.Context, b protocol.Block) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append block %d: %w", b.Number, err)
	}
	defer tx.Rollback()

	head, err := headOf(ctx, tx)
	if err != nil {
		return fmt.Errorf("append block %d: %w", b.Number, err)
	}
	if head != 0 && b.Number != head+1 {
		return fmt.Errorf("append block %d after %d: %w", b.Number, head, ErrOutOfOrder)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO blocks (num, timestamp, session_id, op_count)
		VALUES (?, ?, ?, ?)
	`, b.Number, int64(b.Timestamp), j.session, len(b.Operations)); err != nil {
		return fmt.Errorf("append block %d: %w", b.Number, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO operations (block_num, op_index, kind, op_id, payload)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("append block %d: %w", b.Number, err)
	}
	defer stmt.Close()

	for i, op := range b.Operations {
		payload, err := protocol.MarshalOperation(op)
		if err != nil {
			return fmt.Errorf("append block %d operation %d: %w", b.Number, i, err)
		}
		id, err := protocol.OperationID(op)
		if err != nil {
			return fmt.Errorf("append block %d operation %d: %w", b.Number, i, err)
		}
		if _, err := stmt.ExecContext(ctx, b.Number, i, string(op.Kind()), id, string(payload)); err != nil {
			return fmt.Errorf("append block %d operation %d: %w", b.Number, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append block %d: commit: %w", b.Number, err)
	}
	return nil
}

// TruncateAfter removes every block above num, as when the chain switches
// to another fork. It returns how many blocks were removed.
func (j *Journal) TruncateAfter(ctx context.Context, num uint32) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM blocks WHERE num > ?`, num)
	if err != nil {
		return 0, fmt.Errorf("truncate after %d: %w", num, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("truncate after %d: %w", num, err)
	}
	return n, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func headOf(ctx context.Context, q querier) (uint32, error) {
	var head sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(num) FROM blocks`).Scan(&head); err != nil {
		return 0, fmt.Errorf("query head: %w", err)
	}
	if !head.Valid {
		return 0, nil
	}
	return uint32(head.Int64), nil
}
