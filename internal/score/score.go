// Package score holds the pure ranking functions used as index keys.
//
// Hot and Trending feed display orderings only. They call math.Log10, whose
// last-bit result is not guaranteed identical across platforms, so two nodes
// may disagree on the relative order of two entries whose scores differ by
// one ulp. No consensus state reads these scores; they are recomputed from
// net rshares and creation time whenever a tag entry changes, which bounds any
// divergence to display order.
package score

import (
	"errors"
	"math"

	"github.com/roach88/tagstate/internal/protocol"
)

// Params carries the divisors of the decay scores.
type Params struct {
	// RsharesDivisor scales raw rshares before the logarithm.
	RsharesDivisor int64
	// HotDivisor and TrendingDivisor convert creation seconds into score
	// units; a larger divisor makes time matter less.
	HotDivisor      int64
	TrendingDivisor int64
}

// DefaultParams matches the network's historical constants.
func DefaultParams() Params {
	return Params{
		RsharesDivisor:  10_000_000,
		HotDivisor:      10_000,
		TrendingDivisor: 480_000,
	}
}

// calculate returns sign(mod)*log10(max(|mod|, 1)) + created/timeDivisor
// with mod = rshares / rsharesDivisor in integer arithmetic.
func calculate(rshares int64, created protocol.TimePointSec, rsharesDivisor, timeDivisor int64) float64 {
	mod := rshares / rsharesDivisor
	sign := 0.0
	switch {
	case mod > 0:
		sign = 1
	case mod < 0:
		sign = -1
	}
	abs := uint64(mod)
	if mod < 0 {
		abs = uint64(-(mod + 1)) + 1
	}
	order := math.Log10(float64(max(abs, 1)))
	return sign*order + float64(created.Unix())/float64(timeDivisor)
}

// Hot favours recency: time contributes one point per HotDivisor seconds.
func (p Params) Hot(rshares int64, created protocol.TimePointSec) float64 {
	return calculate(rshares, created, p.RsharesDivisor, p.HotDivisor)
}

// Trending weighs votes more heavily than Hot.
func (p Params) Trending(rshares int64, created protocol.TimePointSec) float64 {
	return calculate(rshares, created, p.RsharesDivisor, p.TrendingDivisor)
}

// ErrZeroVotes is returned by Rank when a vote total is zero. Peer stats are
// seeded at one vote of each kind, so this signals a corrupted record.
var ErrZeroVotes = errors.New("rank: vote total is zero")

// Rank scores how aligned a voter is with a peer. Each term is the squared
// positive share of votes scaled by the log of the vote count; the logs are
// negated when neither kind has a positive vote. Direct votes weigh ten times
// as much as indirect ones.
func Rank(directPositive, directVotes, indirectPositive, indirectVotes int32) (float64, error) {
	if directVotes == 0 || indirectVotes == 0 {
		return 0, ErrZeroVotes
	}
	direct := float64(directPositive) / float64(directVotes)
	indirect := float64(indirectPositive) / float64(indirectVotes)
	directOrder := math.Log(float64(directVotes))
	indirectOrder := math.Log(float64(indirectVotes))
	if directPositive+indirectPositive == 0 {
		directOrder = -directOrder
		indirectOrder = -indirectOrder
	}
	rank := direct*direct*directOrder*10 + indirect*indirect*indirectOrder
	if rank == 0 {
		// Normalize -0 so encoded records compare byte for byte.
		return 0, nil
	}
	return rank, nil
}

// VShares converts net rshares into the quadratic reward weight
// (r + s)² - s² where s is the content constant. Non-positive rshares carry
// no weight.
func VShares(rshares int64, contentConstant uint64) protocol.Uint128 {
	if rshares <= 0 {
		return protocol.Uint128{}
	}
	r := protocol.U128(uint64(rshares))
	s := protocol.U128(contentConstant)
	sum := r.Add(s)
	return sum.Mul(sum).Sub(s.Mul(s))
}
