package types

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// AssetKind identifies one of the chain's three native tokens. The packed
// asset_num layout (low 4 bits precision, remaining bits kind) matches
// spec.md section 6 and original_source's asset_symbol.hpp.
type AssetKind uint8

const (
	AssetLiquid  AssetKind = iota // GBC, the freely transferable native token
	AssetDebt                     // GBD, the stable-valued convertible token
	AssetVesting                   // GBV, long-term locked stake
)

// Precision returns the number of decimal digits the kind is denominated in.
func (k AssetKind) Precision() uint8 {
	if k == AssetVesting {
		return 6
	}
	return 3
}

// Ticker returns the legacy three-letter symbol used by legacy serialization
// (spec.md section 6).
func (k AssetKind) Ticker() string {
	switch k {
	case AssetLiquid:
		return "GBC"
	case AssetDebt:
		return "GBD"
	case AssetVesting:
		return "GBV"
	default:
		return "???"
	}
}

// AssetNum packs precision into the low 4 bits and the asset kind into the
// remaining bits, the wire-format numeric identifier spec.md section 6 calls
// for as the "current serialization".
func (k AssetKind) AssetNum() uint32 {
	return uint32(k)<<4 | uint32(k.Precision())
}

// KindFromAssetNum unpacks an asset_num back into its AssetKind, validating
// that the embedded precision matches the kind's canonical precision.
func KindFromAssetNum(num uint32) (AssetKind, error) {
	precision := uint8(num & 0xF)
	kind := AssetKind(num >> 4)
	if kind.Precision() != precision {
		return 0, fmt.Errorf("types: asset_num %#x precision mismatch", num)
	}
	return kind, nil
}

// Asset is an integer amount of one of the native tokens, denominated in the
// kind's smallest unit (e.g. an Amount of 1000 at precision 3 is "1.000").
type Asset struct {
	Kind   AssetKind
	Amount *big.Int
}

// NewAsset constructs an Asset, defaulting a nil amount to zero.
func NewAsset(kind AssetKind, amount *big.Int) Asset {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return Asset{Kind: kind, Amount: new(big.Int).Set(amount)}
}

// Zero returns the zero value of kind.
func Zero(kind AssetKind) Asset {
	return Asset{Kind: kind, Amount: big.NewInt(0)}
}

func (a Asset) requireSameKind(b Asset) error {
	if a.Kind != b.Kind {
		return fmt.Errorf("types: asset kind mismatch: %s vs %s", a.Kind.Ticker(), b.Kind.Ticker())
	}
	return nil
}

// Add returns a+b; both must share a kind.
func (a Asset) Add(b Asset) (Asset, error) {
	if err := a.requireSameKind(b); err != nil {
		return Asset{}, err
	}
	return Asset{Kind: a.Kind, Amount: new(big.Int).Add(a.Amount, b.Amount)}, nil
}

// Sub returns a-b; both must share a kind.
func (a Asset) Sub(b Asset) (Asset, error) {
	if err := a.requireSameKind(b); err != nil {
		return Asset{}, err
	}
	return Asset{Kind: a.Kind, Amount: new(big.Int).Sub(a.Amount, b.Amount)}, nil
}

// Sign reports the sign of the amount: -1, 0, or 1.
func (a Asset) Sign() int {
	if a.Amount == nil {
		return 0
	}
	return a.Amount.Sign()
}

// IsZero reports whether the amount is exactly zero.
func (a Asset) IsZero() bool { return a.Sign() == 0 }

// String renders the asset as "<integer>.<fraction> <TICKER>".
func (a Asset) String() string {
	amt := a.Amount
	if amt == nil {
		amt = big.NewInt(0)
	}
	precision := int(a.Kind.Precision())
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision)), nil)
	whole := new(big.Int).Quo(amt, scale)
	frac := new(big.Int).Mod(new(big.Int).Abs(amt), scale)
	return fmt.Sprintf("%s.%0*s %s", whole.String(), precision, frac.String(), a.Kind.Ticker())
}

// MulFracU256 computes amount * num / den using 256-bit intermediate
// arithmetic when the product fits in 256 bits and exact big.Int arithmetic
// when it does not; num/den are often derived from squared reward shares
// (spec.md section 4.5's "f(net_rshares)" curve). Division truncates toward
// zero, matching the chain's deterministic payout rounding.
func MulFracU256(amount *big.Int, num, den *big.Int) (*big.Int, error) {
	if den == nil || den.Sign() == 0 {
		return nil, fmt.Errorf("types: division by zero")
	}
	a, ok := uint256.FromBig(new(big.Int).Abs(amount))
	if !ok {
		return nil, fmt.Errorf("types: amount overflows 256 bits")
	}
	n, ok := uint256.FromBig(new(big.Int).Abs(num))
	if !ok {
		return nil, fmt.Errorf("types: numerator overflows 256 bits")
	}
	d, ok := uint256.FromBig(new(big.Int).Abs(den))
	if !ok {
		return nil, fmt.Errorf("types: denominator overflows 256 bits")
	}
	product, overflow := new(uint256.Int).MulOverflow(a, n)
	if overflow {
		// The product of two chain-scale quantities exceeding 2^256 would
		// itself be a supply-invariant violation; fall back to big.Int so
		// the computation stays exact rather than wrapping.
		full := new(big.Int).Mul(new(big.Int).Abs(amount), new(big.Int).Abs(num))
		res := new(big.Int).Quo(full, new(big.Int).Abs(den))
		if (amount.Sign() < 0) != (num.Sign() < 0) {
			res.Neg(res)
		}
		return res, nil
	}
	quo := new(uint256.Int).Div(product, d)
	res := quo.ToBig()
	if (amount.Sign() < 0) != (num.Sign() < 0) {
		res.Neg(res)
	}
	return res, nil
}
