package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// Uint128 is an unsigned 128-bit integer with wrapping arithmetic.
//
// rshares² sums are accumulated with Add/Sub in both directions, so a value
// that temporarily wraps below zero comes back once the matching Add lands.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// U128 widens a uint64.
func U128(v uint64) Uint128 {
	return Uint128{Lo: v}
}

// Mul64 returns the full 128-bit product of a and b.
func Mul64(a, b uint64) Uint128 {
	hi, lo := bits.Mul64(a, b)
	return Uint128{Hi: hi, Lo: lo}
}

func (u Uint128) Add(v Uint128) Uint128 {
	lo, carry := bits.Add64(u.Lo, v.Lo, 0)
	hi, _ := bits.Add64(u.Hi, v.Hi, carry)
	return Uint128{Hi: hi, Lo: lo}
}

func (u Uint128) Sub(v Uint128) Uint128 {
	lo, borrow := bits.Sub64(u.Lo, v.Lo, 0)
	hi, _ := bits.Sub64(u.Hi, v.Hi, borrow)
	return Uint128{Hi: hi, Lo: lo}
}

// Mul multiplies modulo 2^128.
func (u Uint128) Mul(v Uint128) Uint128 {
	hi, lo := bits.Mul64(u.Lo, v.Lo)
	hi += u.Hi*v.Lo + u.Lo*v.Hi
	return Uint128{Hi: hi, Lo: lo}
}

// Cmp returns -1, 0 or +1.
func (u Uint128) Cmp(v Uint128) int {
	switch {
	case u.Hi < v.Hi:
		return -1
	case u.Hi > v.Hi:
		return 1
	case u.Lo < v.Lo:
		return -1
	case u.Lo > v.Lo:
		return 1
	}
	return 0
}

func (u Uint128) IsZero() bool {
	return u.Hi == 0 && u.Lo == 0
}

const pow10_19 = 10_000_000_000_000_000_000

func (u Uint128) String() string {
	if u.Hi == 0 {
		return fmt.Sprintf("%d", u.Lo)
	}
	// Split into base 10^19 limbs, most significant first.
	var limbs []uint64
	for !u.IsZero() {
		qHi := u.Hi / pow10_19
		rem := u.Hi % pow10_19
		qLo, r := bits.Div64(rem, u.Lo, pow10_19)
		limbs = append(limbs, r)
		u = Uint128{Hi: qHi, Lo: qLo}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d", limbs[len(limbs)-1])
	for i := len(limbs) - 2; i >= 0; i-- {
		fmt.Fprintf(&sb, "%019d", limbs[i])
	}
	return sb.String()
}

var errUint128Overflow = errors.New("uint128 overflow")

// ParseUint128 parses a decimal string.
func ParseUint128(s string) (Uint128, error) {
	if s == "" {
		return Uint128{}, fmt.Errorf("parse uint128: empty string")
	}
	var u Uint128
	for _, c := range s {
		if c < '0' || c > '9' {
			return Uint128{}, fmt.Errorf("parse uint128 %q: invalid digit %q", s, c)
		}
		carry, lo := bits.Mul64(u.Lo, 10)
		over, hi := bits.Mul64(u.Hi, 10)
		if over != 0 {
			return Uint128{}, fmt.Errorf("parse uint128 %q: %w", s, errUint128Overflow)
		}
		hi, c1 := bits.Add64(hi, carry, 0)
		if c1 != 0 {
			return Uint128{}, fmt.Errorf("parse uint128 %q: %w", s, errUint128Overflow)
		}
		lo, c2 := bits.Add64(lo, uint64(c-'0'), 0)
		hi, c3 := bits.Add64(hi, 0, c2)
		if c3 != 0 {
			return Uint128{}, fmt.Errorf("parse uint128 %q: %w", s, errUint128Overflow)
		}
		u = Uint128{Hi: hi, Lo: lo}
	}
	return u, nil
}

// MarshalJSON encodes the value as a decimal string; JSON numbers lose
// precision past 2^53.
func (u Uint128) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *Uint128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("uint128 must be a decimal string: %w", err)
	}
	v, err := ParseUint128(s)
	if err != nil {
		return err
	}
	*u = v
	return nil
}
