package purchasing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openInvoice() *PurchaseInvoice {
	return &PurchaseInvoice{ID: 1, Number: "PI-0001", CreatedAt: time.Now().UTC()}
}

func TestAddItemValidation(t *testing.T) {
	inv := openInvoice()

	require.ErrorIs(t, inv.AddItem(PurchaseInvoiceItem{ID: 1, Qty: 0, BaseUnitQty: 24, TotalPrice: 1000}), ErrInvalidQuantity)
	require.ErrorIs(t, inv.AddItem(PurchaseInvoiceItem{ID: 1, Qty: 1, BaseUnitQty: 0, TotalPrice: 1000}), ErrInvalidQuantity)
	require.ErrorIs(t, inv.AddItem(PurchaseInvoiceItem{ID: 1, Qty: 1, BaseUnitQty: 24, TotalPrice: -1}), ErrInvalidTotalPrice)
	require.Empty(t, inv.Items)

	require.NoError(t, inv.AddItem(PurchaseInvoiceItem{ID: 1, IngredientID: 7, Qty: 1, BaseUnitQty: 24, TotalPrice: 100000}))
	require.Len(t, inv.Items, 1)
	require.Equal(t, int64(100000), inv.TotalAmount)
}

func TestTotalRecomputedOnEveryMutation(t *testing.T) {
	inv := openInvoice()
	require.NoError(t, inv.AddItem(PurchaseInvoiceItem{ID: 1, Qty: 1, BaseUnitQty: 1, TotalPrice: 100000}))
	require.NoError(t, inv.AddItem(PurchaseInvoiceItem{ID: 2, Qty: 1, BaseUnitQty: 1, TotalPrice: 200000}))
	require.Equal(t, int64(300000), inv.TotalAmount)

	require.NoError(t, inv.UpdateItem(PurchaseInvoiceItem{ID: 2, Qty: 1, BaseUnitQty: 1, TotalPrice: 250000}))
	require.Equal(t, int64(350000), inv.TotalAmount)

	inv.RemoveItem(1)
	require.Equal(t, int64(250000), inv.TotalAmount)

	inv.ClearItems()
	require.Equal(t, int64(0), inv.TotalAmount)
}

func TestUpdateItemNotFound(t *testing.T) {
	inv := openInvoice()
	require.ErrorIs(t, inv.UpdateItem(PurchaseInvoiceItem{ID: 9, Qty: 1, BaseUnitQty: 1, TotalPrice: 0}), ErrInvoiceItemNotFound)
}

func TestCollectionHelpers(t *testing.T) {
	inv := openInvoice()
	require.NoError(t, inv.AddItem(PurchaseInvoiceItem{ID: 1, IngredientID: 7, Qty: 1, BaseUnitQty: 1, TotalPrice: 0}))

	item, err := inv.GetItem(1)
	require.NoError(t, err)
	require.Equal(t, int64(7), item.IngredientID)

	_, err = inv.GetItem(2)
	require.ErrorIs(t, err, ErrInvoiceItemNotFound)

	require.True(t, inv.HasItem(1))
	require.False(t, inv.HasItem(2))
	require.True(t, inv.HasIngredient(7))
	require.False(t, inv.HasIngredient(8))

	// Removing an absent item is a no-op.
	inv.RemoveItem(42)
	require.Len(t, inv.Items, 1)
}

func TestReconcileItems(t *testing.T) {
	inv := openInvoice()
	require.NoError(t, inv.AddItem(PurchaseInvoiceItem{ID: 1, IngredientID: 10, Qty: 1, BaseUnitQty: 1, TotalPrice: 100}))
	require.NoError(t, inv.AddItem(PurchaseInvoiceItem{ID: 2, IngredientID: 20, Qty: 2, BaseUnitQty: 2, TotalPrice: 200}))
	require.NoError(t, inv.AddItem(PurchaseInvoiceItem{ID: 3, IngredientID: 30, Qty: 3, BaseUnitQty: 3, TotalPrice: 300}))

	newItems := []PurchaseInvoiceItem{
		{ID: 2, IngredientID: 20, Qty: 5, BaseUnitQty: 5, TotalPrice: 500}, // changed
		{ID: 3, IngredientID: 30, Qty: 3, BaseUnitQty: 3, TotalPrice: 300}, // unchanged
		{ID: 4, IngredientID: 40, Qty: 4, BaseUnitQty: 4, TotalPrice: 400}, // new
	}
	require.NoError(t, inv.ReconcileItems(newItems))

	require.Len(t, inv.Items, 3)
	require.False(t, inv.HasItem(1))
	require.True(t, inv.HasItem(4))

	updated, err := inv.GetItem(2)
	require.NoError(t, err)
	require.Equal(t, int64(5), updated.Qty)

	unchanged, err := inv.GetItem(3)
	require.NoError(t, err)
	require.Equal(t, int64(3), unchanged.Qty)

	require.Equal(t, int64(1200), inv.TotalAmount)

	// Idempotent: applying the same set again changes nothing.
	require.NoError(t, inv.ReconcileItems(newItems))
	require.Len(t, inv.Items, 3)
	require.Equal(t, int64(1200), inv.TotalAmount)
}

func TestReconcileItemsValidatesBeforeApply(t *testing.T) {
	inv := openInvoice()
	require.NoError(t, inv.AddItem(PurchaseInvoiceItem{ID: 1, Qty: 1, BaseUnitQty: 1, TotalPrice: 100}))

	bad := []PurchaseInvoiceItem{
		{ID: 1, Qty: 2, BaseUnitQty: 2, TotalPrice: 200},
		{ID: 2, Qty: 0, BaseUnitQty: 1, TotalPrice: 100},
	}
	require.ErrorIs(t, inv.ReconcileItems(bad), ErrInvalidQuantity)

	// Invoice untouched after a failed reconcile.
	require.Len(t, inv.Items, 1)
	require.Equal(t, int64(100), inv.TotalAmount)
}

func TestDiffAgainst(t *testing.T) {
	inv := openInvoice()
	require.NoError(t, inv.AddItem(PurchaseInvoiceItem{ID: 1, Qty: 1, BaseUnitQty: 1, TotalPrice: 0}))
	require.NoError(t, inv.AddItem(PurchaseInvoiceItem{ID: 2, Qty: 1, BaseUnitQty: 1, TotalPrice: 0}))

	added, removed := inv.DiffAgainst([]int64{2, 3})
	require.Equal(t, []int64{3}, added)
	require.Equal(t, []int64{1}, removed)

	added, removed = inv.DiffAgainst([]int64{1, 2})
	require.Empty(t, added)
	require.Empty(t, removed)
}

func TestEditWindowBoundary(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	inv := &PurchaseInvoice{ID: 1, CreatedAt: created}

	require.True(t, inv.CanEditAt(created.Add(5*time.Hour+59*time.Minute)))
	require.False(t, inv.CanEditAt(created.Add(6*time.Hour+1*time.Minute)))
	require.False(t, inv.CanEditAt(created.Add(6*time.Hour)))
	require.True(t, inv.CanDeleteAt(created.Add(5*time.Hour+59*time.Minute)))

	require.NoError(t, inv.EnsureEditableAt(created.Add(time.Hour)))
	require.ErrorIs(t, inv.EnsureEditableAt(created.Add(7*time.Hour)), ErrEditWindowExpired)
}

func TestRecalculateTotalDirect(t *testing.T) {
	inv := openInvoice()
	inv.Items = []PurchaseInvoiceItem{
		{ID: 1, TotalPrice: 100000},
		{ID: 2, TotalPrice: 200000},
	}
	inv.RecalculateTotal()
	require.Equal(t, int64(300000), inv.TotalAmount)
}
