package protocol

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// MarshalOperation encodes op as ["kind", {payload}].
func MarshalOperation(op Operation) ([]byte, error) {
	payload, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", op.Kind(), err)
	}
	return json.Marshal([2]json.RawMessage{mustQuote(string(op.Kind())), payload})
}

func mustQuote(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

type decoder func(payload []byte) (Operation, error)

var decoders = map[OpKind]decoder{
	OpAccountCreate:       decode[AccountCreate],
	OpComment:             decode[Comment],
	OpVote:                decode[Vote],
	OpDeleteComment:       decode[DeleteComment],
	OpTransfer:            decode[Transfer],
	OpCommentReward:       decode[CommentReward],
	OpCommentPayoutUpdate: decode[CommentPayoutUpdate],
}

func decode[O Operation](payload []byte) (Operation, error) {
	var op O
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&op); err != nil {
		return nil, err
	}
	return op, nil
}

// UnmarshalOperation decodes the ["kind", {payload}] envelope. Unknown kinds
// and unknown payload fields are rejected.
func UnmarshalOperation(data []byte) (Operation, error) {
	var envelope []json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("operation envelope: %w", err)
	}
	if len(envelope) != 2 {
		return nil, fmt.Errorf("operation envelope: expected [kind, payload], got %d elements", len(envelope))
	}
	var kind OpKind
	if err := json.Unmarshal(envelope[0], &kind); err != nil {
		return nil, fmt.Errorf("operation kind: %w", err)
	}
	dec, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown operation kind %q", kind)
	}
	op, err := dec(envelope[1])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return op, nil
}

// OperationID is a content hash of the encoded operation, stable across
// processes.
func OperationID(op Operation) (string, error) {
	data, err := MarshalOperation(op)
	if err != nil {
		return "", err
	}
	return hashWithDomain("tagstate/operation/v1", data), nil
}

// hashWithDomain prefixes the payload with a domain tag and a NUL separator
// so hashes of different record types cannot collide.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
