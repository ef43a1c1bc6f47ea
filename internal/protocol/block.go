package protocol

import (
	"encoding/json"
	"fmt"
)

// Block is an ordered batch of operations applied at one timestamp.
type Block struct {
	Number     uint32
	Timestamp  TimePointSec
	Operations []Operation
}

type blockJSON struct {
	Number     uint32            `json:"number"`
	Timestamp  TimePointSec      `json:"timestamp"`
	Operations []json.RawMessage `json:"operations"`
}

func (b Block) MarshalJSON() ([]byte, error) {
	out := blockJSON{
		Number:     b.Number,
		Timestamp:  b.Timestamp,
		Operations: make([]json.RawMessage, 0, len(b.Operations)),
	}
	for i, op := range b.Operations {
		data, err := MarshalOperation(op)
		if err != nil {
			return nil, fmt.Errorf("block %d op %d: %w", b.Number, i, err)
		}
		out.Operations = append(out.Operations, data)
	}
	return json.Marshal(out)
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var in blockJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	ops := make([]Operation, 0, len(in.Operations))
	for i, raw := range in.Operations {
		op, err := UnmarshalOperation(raw)
		if err != nil {
			return fmt.Errorf("block %d op %d: %w", in.Number, i, err)
		}
		ops = append(ops, op)
	}
	*b = Block{Number: in.Number, Timestamp: in.Timestamp, Operations: ops}
	return nil
}
