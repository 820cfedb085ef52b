// Package unitconv implements integer conversion between an
// ingredient's purchase units and its base stock unit.
package unitconv

import "errors"

var (
	// ErrInvalidRatio indicates a non-positive conversion ratio.
	ErrInvalidRatio = errors.New("unitconv: ratio must be positive")
	// ErrInvalidQuantity indicates a negative quantity.
	ErrInvalidQuantity = errors.New("unitconv: quantity must not be negative")
)

// Ratio is the fixed integer factor from a purchase unit to the base
// unit (e.g. one case = 24 bottles). Whether a ratio of 1 marks the
// base unit is decided by the owning ingredient, not here.
type Ratio struct {
	factor int64
}

// NewRatio validates and wraps a conversion factor.
func NewRatio(factor int64) (Ratio, error) {
	if factor <= 0 {
		return Ratio{}, ErrInvalidRatio
	}
	return Ratio{factor: factor}, nil
}

// Factor returns the underlying integer factor.
func (r Ratio) Factor() int64 {
	return r.factor
}

// ToBase converts a purchase-unit quantity to base units.
func (r Ratio) ToBase(qty int64) (int64, error) {
	if qty < 0 {
		return 0, ErrInvalidQuantity
	}
	return qty * r.factor, nil
}

// FromBase converts a base-unit quantity back to purchase units using
// floor division. The remainder is discarded, so FromBase(ToBase(q))
// round-trips but an arbitrary base quantity does not.
func (r Ratio) FromBase(baseQty int64) int64 {
	if baseQty < 0 {
		// Floor towards negative infinity so that converting a
		// shortage keeps its sign.
		return -((-baseQty + r.factor - 1) / r.factor)
	}
	return baseQty / r.factor
}
