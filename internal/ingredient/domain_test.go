package ingredient

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/restobase/restobase/internal/unitconv"
)

func TestAddStock(t *testing.T) {
	ing := &Ingredient{CurrentStock: 10}

	require.NoError(t, ing.AddStock(5))
	require.Equal(t, int64(15), ing.CurrentStock)

	require.ErrorIs(t, ing.AddStock(0), ErrInvalidQuantity)
	require.ErrorIs(t, ing.AddStock(-3), ErrInvalidQuantity)
	require.Equal(t, int64(15), ing.CurrentStock)
}

func TestSubtractStockAllowsNegative(t *testing.T) {
	ing := &Ingredient{CurrentStock: 5}

	require.NoError(t, ing.SubtractStock(8))
	require.Equal(t, int64(-3), ing.CurrentStock)

	require.ErrorIs(t, ing.SubtractStock(0), ErrInvalidQuantity)
	require.Equal(t, int64(-3), ing.CurrentStock)
}

func TestSubtractStockChecked(t *testing.T) {
	ing := &Ingredient{CurrentStock: 5}

	require.ErrorIs(t, ing.SubtractStockChecked(8), ErrInsufficientStock)
	require.Equal(t, int64(5), ing.CurrentStock)

	require.NoError(t, ing.SubtractStockChecked(5))
	require.Equal(t, int64(0), ing.CurrentStock)
}

func TestSetStock(t *testing.T) {
	ing := &Ingredient{CurrentStock: 42}
	ing.SetStock(-7)
	require.Equal(t, int64(-7), ing.CurrentStock)
}

func TestUpsertPurchaseUnitInvariants(t *testing.T) {
	ing := &Ingredient{ID: 1}

	base := PurchaseUnit{ID: 10, UnitID: 100, Ratio: 1, IsBaseUnit: true, IsActive: true}
	require.NoError(t, ing.UpsertPurchaseUnit(base))

	// Base unit must convert 1:1.
	bad := PurchaseUnit{ID: 11, UnitID: 101, Ratio: 24, IsBaseUnit: true, IsActive: true}
	require.ErrorIs(t, ing.UpsertPurchaseUnit(bad), ErrInvalidBaseUnitConversion)

	// Second base unit rejected even with ratio 1.
	second := PurchaseUnit{ID: 12, UnitID: 102, Ratio: 1, IsBaseUnit: true, IsActive: true}
	require.ErrorIs(t, ing.UpsertPurchaseUnit(second), ErrMultipleBaseUnit)

	// Duplicate unit id rejected.
	dup := PurchaseUnit{ID: 13, UnitID: 100, Ratio: 12, IsActive: true}
	require.ErrorIs(t, ing.UpsertPurchaseUnit(dup), ErrDuplicateUnit)

	// Non-positive ratio rejected.
	zero := PurchaseUnit{ID: 14, UnitID: 103, Ratio: 0, IsActive: true}
	require.ErrorIs(t, ing.UpsertPurchaseUnit(zero), unitconv.ErrInvalidRatio)

	caseUnit := PurchaseUnit{ID: 15, UnitID: 104, Ratio: 24, IsActive: true}
	require.NoError(t, ing.UpsertPurchaseUnit(caseUnit))
	require.Len(t, ing.PurchaseUnits, 2)
}

func TestUpsertPurchaseUnitIdempotent(t *testing.T) {
	ing := &Ingredient{ID: 1}

	first := PurchaseUnit{ID: 10, UnitID: 100, Ratio: 12, IsActive: true}
	require.NoError(t, ing.UpsertPurchaseUnit(first))

	// Same id again: update in place, latest ratio wins.
	second := PurchaseUnit{ID: 10, UnitID: 100, Ratio: 24, IsActive: true}
	require.NoError(t, ing.UpsertPurchaseUnit(second))

	require.Len(t, ing.PurchaseUnits, 1)
	require.Equal(t, int64(24), ing.PurchaseUnits[0].Ratio)
}

func TestAtMostOneBaseUnitAfterAnySequence(t *testing.T) {
	ing := &Ingredient{ID: 1}
	units := []PurchaseUnit{
		{ID: 1, UnitID: 100, Ratio: 1, IsBaseUnit: true, IsActive: true},
		{ID: 2, UnitID: 101, Ratio: 6, IsActive: true},
		{ID: 3, UnitID: 102, Ratio: 1, IsBaseUnit: true, IsActive: true},
		{ID: 2, UnitID: 101, Ratio: 12, IsActive: true},
		{ID: 4, UnitID: 100, Ratio: 2, IsActive: true},
	}
	for _, u := range units {
		_ = ing.UpsertPurchaseUnit(u)
	}
	_ = ing.RemovePurchaseUnit(101)
	_ = ing.RemovePurchaseUnit(999)

	baseCount := 0
	for _, u := range ing.PurchaseUnits {
		if u.IsActive && u.IsBaseUnit {
			baseCount++
		}
	}
	require.LessOrEqual(t, baseCount, 1)
}

func TestRemovePurchaseUnit(t *testing.T) {
	ing := &Ingredient{ID: 1}
	require.NoError(t, ing.UpsertPurchaseUnit(PurchaseUnit{ID: 1, UnitID: 100, Ratio: 1, IsBaseUnit: true, IsActive: true}))
	require.NoError(t, ing.UpsertPurchaseUnit(PurchaseUnit{ID: 2, UnitID: 101, Ratio: 24, IsActive: true}))

	require.ErrorIs(t, ing.RemovePurchaseUnit(100), ErrCannotRemoveBaseUnit)

	require.NoError(t, ing.RemovePurchaseUnit(101))
	require.Len(t, ing.PurchaseUnits, 1)

	// Absent unit is a no-op.
	require.NoError(t, ing.RemovePurchaseUnit(101))

	ing.ClearPurchaseUnits()
	require.Empty(t, ing.PurchaseUnits)
}

func TestConvertThroughPurchaseUnit(t *testing.T) {
	ing := &Ingredient{ID: 1}
	require.NoError(t, ing.UpsertPurchaseUnit(PurchaseUnit{ID: 1, UnitID: 100, Ratio: 1, IsBaseUnit: true, IsActive: true}))
	require.NoError(t, ing.UpsertPurchaseUnit(PurchaseUnit{ID: 2, UnitID: 101, Ratio: 24, IsActive: true}))

	base, err := ing.ConvertToBase(3, 101)
	require.NoError(t, err)
	require.Equal(t, int64(72), base)

	qty, err := ing.ConvertFromBase(100, 101)
	require.NoError(t, err)
	require.Equal(t, int64(4), qty)

	_, err = ing.ConvertToBase(1, 999)
	require.ErrorIs(t, err, ErrUnitNotFound)

	_, err = (&Ingredient{}).GetBaseUnit()
	require.ErrorIs(t, err, ErrBaseUnitNotConfigured)

	unit, err := ing.GetBaseUnit()
	require.NoError(t, err)
	require.Equal(t, int64(100), unit.UnitID)
}
