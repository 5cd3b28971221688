package core

// Fixed-point monetary value with checked arithmetic (spec.md §3). Amounts
// are signed integers of fixed scale (5 decimal places): one "whole" unit
// of GRAEL is 100_000 raw units. Every operation that can overflow a int64
// returns an error instead of wrapping or panicking.
//
// Grounded on core/coin.go's MaxSupply/logrus-logged supply bookkeeping,
// scaled down from core/gas_table.go's big, heavily-doc-commented constant
// table style for the fee-curve constants below.

import (
	"errors"
	"fmt"
)

// AssetScale is the number of decimal places an Asset carries.
const AssetScale = 5

// AssetSymbol is the single currency this ledger denominates balances in.
// "GRAEL" is the production symbol; "TEST" is used by test fixtures and
// throwaway networks (spec.md §3).
var AssetSymbol = "GRAEL"

// ErrOverflow is returned by any Asset arithmetic that would overflow or
// underflow the underlying int64.
var ErrOverflow = errors.New("core: asset arithmetic overflow")

// Asset is a fixed-point amount: Raw units at AssetScale decimal places.
type Asset struct {
	Raw int64
}

// NewAsset builds an Asset from a whole-unit integer and a fractional raw
// remainder already at AssetScale (e.g. NewAsset(1, 50000) == 1.5 GRAEL).
func NewAsset(whole int64, fraction int64) Asset {
	return Asset{Raw: whole*100000 + fraction}
}

func (a Asset) String() string {
	whole := a.Raw / 100000
	frac := a.Raw % 100000
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%05d %s", whole, frac, AssetSymbol)
}

func (a Asset) IsNegative() bool { return a.Raw < 0 }
func (a Asset) IsZero() bool     { return a.Raw == 0 }

// Add returns a+b, or ErrOverflow.
func (a Asset) Add(b Asset) (Asset, error) {
	sum := a.Raw + b.Raw
	if (b.Raw > 0 && sum < a.Raw) || (b.Raw < 0 && sum > a.Raw) {
		return Asset{}, ErrOverflow
	}
	return Asset{Raw: sum}, nil
}

// Sub returns a-b, or ErrOverflow.
func (a Asset) Sub(b Asset) (Asset, error) {
	diff := a.Raw - b.Raw
	if (b.Raw < 0 && diff < a.Raw) || (b.Raw > 0 && diff > a.Raw) {
		return Asset{}, ErrOverflow
	}
	return Asset{Raw: diff}, nil
}

// Mul returns a*n (n a plain integer multiplier), or ErrOverflow.
func (a Asset) Mul(n int64) (Asset, error) {
	if a.Raw == 0 || n == 0 {
		return Asset{}, nil
	}
	p := a.Raw * n
	if p/n != a.Raw {
		return Asset{}, ErrOverflow
	}
	return Asset{Raw: p}, nil
}

// checkedMulU64 multiplies two non-negative uint64 values, failing on
// overflow. Used by the fee curves below, which grow exponentially and
// must fail closed rather than wrap.
func checkedMulU64(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	p := a * b
	if p/b != a {
		return 0, ErrOverflow
	}
	return p, nil
}

// checkedPowU64 computes base^exp with a checked multiply at each step,
// capping exp at a uint16 per spec.md §4.3's "capped at u16 exponent".
func checkedPowU64(base uint64, exp uint16) (uint64, error) {
	result := uint64(1)
	for i := uint16(0); i < exp; i++ {
		var err error
		result, err = checkedMulU64(result, base)
		if err != nil {
			return 0, err
		}
	}
	return result, nil
}
