package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AssetPrecision is the number of decimal places carried by every asset.
const AssetPrecision = 3

const assetScale = 1000

// Asset is a fixed point amount in the smallest unit plus its symbol.
type Asset struct {
	Amount int64
	Symbol string
}

// NewAsset builds an asset from an amount in the smallest unit.
func NewAsset(amount int64, symbol string) Asset {
	return Asset{Amount: amount, Symbol: symbol}
}

// ParseAsset parses "12.345 SYM". The fractional part must have exactly
// AssetPrecision digits.
func ParseAsset(s string) (Asset, error) {
	amount, symbol, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok || symbol == "" {
		return Asset{}, fmt.Errorf("asset %q: expected \"<amount> <symbol>\"", s)
	}
	neg := strings.HasPrefix(amount, "-")
	amount = strings.TrimPrefix(amount, "-")
	whole, frac, ok := strings.Cut(amount, ".")
	if !ok || len(frac) != AssetPrecision {
		return Asset{}, fmt.Errorf("asset %q: expected %d decimal places", s, AssetPrecision)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return Asset{}, fmt.Errorf("asset %q: amount must be decimal digits", s)
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Asset{}, fmt.Errorf("asset %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return Asset{}, fmt.Errorf("asset %q: %w", s, err)
	}
	if w > (math.MaxInt64-f)/assetScale {
		return Asset{}, fmt.Errorf("asset %q: amount out of range", s)
	}
	v := w*assetScale + f
	if neg {
		v = -v
	}
	return Asset{Amount: v, Symbol: symbol}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MustParseAsset panics on malformed input. Intended for tests and fixtures.
func MustParseAsset(s string) Asset {
	a, err := ParseAsset(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Asset) String() string {
	sign := ""
	v := a.Amount
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%03d %s", sign, v/assetScale, v%assetScale, a.Symbol)
}

// Add sums two assets of the same symbol. A sum outside int64 is an error.
func (a Asset) Add(b Asset) (Asset, error) {
	if a.Symbol != b.Symbol {
		return Asset{}, fmt.Errorf("asset symbol mismatch: %s vs %s", a.Symbol, b.Symbol)
	}
	sum := a.Amount + b.Amount
	if (b.Amount > 0 && sum < a.Amount) || (b.Amount < 0 && sum > a.Amount) {
		return Asset{}, fmt.Errorf("asset overflow: %s + %s", a, b)
	}
	return Asset{Amount: sum, Symbol: a.Symbol}, nil
}

// Sub subtracts b from a.
func (a Asset) Sub(b Asset) (Asset, error) {
	if a.Symbol != b.Symbol {
		return Asset{}, fmt.Errorf("asset symbol mismatch: %s vs %s", a.Symbol, b.Symbol)
	}
	diff := a.Amount - b.Amount
	if (b.Amount < 0 && diff < a.Amount) || (b.Amount > 0 && diff > a.Amount) {
		return Asset{}, fmt.Errorf("asset overflow: %s - %s", a, b)
	}
	return Asset{Amount: diff, Symbol: a.Symbol}, nil
}

func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("asset must be a string: %w", err)
	}
	v, err := ParseAsset(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
