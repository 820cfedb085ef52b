package ingredient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/restobase/restobase/internal/shared"
)

type memoryRepo struct {
	ingredients map[int64]*Ingredient
	loads       int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo(ingredients ...*Ingredient) *memoryRepo {
	repo := &memoryRepo{ingredients: make(map[int64]*Ingredient)}
	for _, ing := range ingredients {
		repo.ingredients[ing.ID] = ing
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Ingredient, error) {
	ing, ok := r.ingredients[id]
	if !ok {
		return Ingredient{}, ErrNotFound
	}
	copied := *ing
	copied.PurchaseUnits = append([]PurchaseUnit(nil), ing.PurchaseUnits...)
	return copied, nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (Ingredient, error) {
	tx.repo.loads++
	return tx.repo.Get(ctx, id)
}

func (tx *memoryTx) GetManyForUpdate(ctx context.Context, ids []int64) ([]Ingredient, error) {
	var result []Ingredient
	for _, id := range ids {
		ing, err := tx.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		tx.repo.loads++
		result = append(result, ing)
	}
	return result, nil
}

func (tx *memoryTx) UpdateStock(ctx context.Context, id, stock int64) error {
	ing, ok := tx.repo.ingredients[id]
	if !ok {
		return ErrNotFound
	}
	ing.CurrentStock = stock
	return nil
}

func (tx *memoryTx) UpsertPurchaseUnit(ctx context.Context, unit PurchaseUnit) error {
	ing, ok := tx.repo.ingredients[unit.IngredientID]
	if !ok {
		return ErrNotFound
	}
	for idx, existing := range ing.PurchaseUnits {
		if existing.ID == unit.ID {
			ing.PurchaseUnits[idx] = unit
			return nil
		}
	}
	ing.PurchaseUnits = append(ing.PurchaseUnits, unit)
	return nil
}

func (tx *memoryTx) DeletePurchaseUnit(ctx context.Context, ingredientID, unitID int64) error {
	ing, ok := tx.repo.ingredients[ingredientID]
	if !ok {
		return ErrNotFound
	}
	for idx, unit := range ing.PurchaseUnits {
		if unit.UnitID == unitID {
			ing.PurchaseUnits = append(ing.PurchaseUnits[:idx], ing.PurchaseUnits[idx+1:]...)
			return nil
		}
	}
	return nil
}

func (tx *memoryTx) DeleteAllPurchaseUnits(ctx context.Context, ingredientID int64) error {
	ing, ok := tx.repo.ingredients[ingredientID]
	if !ok {
		return ErrNotFound
	}
	ing.PurchaseUnits = nil
	return nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]bool)}
}

func (s *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if s.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = true
	return nil
}

func (s *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(s.keys, key)
	return nil
}

func TestReceiveStock(t *testing.T) {
	repo := newMemoryRepo(&Ingredient{ID: 1, CurrentStock: 10})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	ing, err := svc.ReceiveStock(ctx, ReceiveStockInput{IngredientID: 1, BaseQty: 24})
	require.NoError(t, err)
	require.Equal(t, int64(34), ing.CurrentStock)

	_, err = svc.ReceiveStock(ctx, ReceiveStockInput{IngredientID: 1, BaseQty: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.ReceiveStock(ctx, ReceiveStockInput{IngredientID: 99, BaseQty: 5})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReceiveStockDeduplicatesRef(t *testing.T) {
	repo := newMemoryRepo(&Ingredient{ID: 1, CurrentStock: 0})
	svc := NewService(repo, nil, newMemoryIdempotency())
	ctx := context.Background()

	ing, err := svc.ReceiveStock(ctx, ReceiveStockInput{IngredientID: 1, BaseQty: 24, Ref: "invoice-7"})
	require.NoError(t, err)
	require.Equal(t, int64(24), ing.CurrentStock)

	// A retried receipt with the same ref must not apply twice.
	_, err = svc.ReceiveStock(ctx, ReceiveStockInput{IngredientID: 1, BaseQty: 24, Ref: "invoice-7"})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, int64(24), repo.ingredients[1].CurrentStock)
}

func TestReceiveStockReleasesRefOnFailure(t *testing.T) {
	repo := newMemoryRepo(&Ingredient{ID: 1, CurrentStock: 0})
	idem := newMemoryIdempotency()
	svc := NewService(repo, nil, idem)
	ctx := context.Background()

	_, err := svc.ReceiveStock(ctx, ReceiveStockInput{IngredientID: 99, BaseQty: 5, Ref: "invoice-8"})
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, idem.keys["invoice-8"])

	// The ref is free for the corrected retry.
	ing, err := svc.ReceiveStock(ctx, ReceiveStockInput{IngredientID: 1, BaseQty: 5, Ref: "invoice-8"})
	require.NoError(t, err)
	require.Equal(t, int64(5), ing.CurrentStock)
}

func TestAdjustStockGuarded(t *testing.T) {
	repo := newMemoryRepo(&Ingredient{ID: 1, CurrentStock: 5})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	// Manual subtraction is guarded and must not go negative.
	_, err := svc.AdjustStock(ctx, AdjustStockInput{IngredientID: 1, Qty: -8})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, int64(5), repo.ingredients[1].CurrentStock)

	ing, err := svc.AdjustStock(ctx, AdjustStockInput{IngredientID: 1, Qty: -5})
	require.NoError(t, err)
	require.Equal(t, int64(0), ing.CurrentStock)

	ing, err = svc.AdjustStock(ctx, AdjustStockInput{IngredientID: 1, Qty: 3})
	require.NoError(t, err)
	require.Equal(t, int64(3), ing.CurrentStock)

	_, err = svc.AdjustStock(ctx, AdjustStockInput{IngredientID: 1, Qty: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestSetStockAllowsNegative(t *testing.T) {
	repo := newMemoryRepo(&Ingredient{ID: 1, CurrentStock: 5})
	svc := NewService(repo, nil, nil)

	ing, err := svc.SetStock(context.Background(), 1, -12, 0, "count correction")
	require.NoError(t, err)
	require.Equal(t, int64(-12), ing.CurrentStock)
}

func TestApplyStockChangesBatch(t *testing.T) {
	repo := newMemoryRepo(
		&Ingredient{ID: 1, CurrentStock: 100},
		&Ingredient{ID: 2, CurrentStock: 5},
	)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	changes := []StockChange{
		{IngredientID: 1, Op: StockChangeSubtract, Qty: 30},
		{IngredientID: 2, Op: StockChangeSubtract, Qty: 8},
		{IngredientID: 1, Op: StockChangeSubtract, Qty: 10},
	}
	require.NoError(t, svc.ApplyStockChanges(ctx, "", changes))

	// Aliased deltas for ingredient 1 are coalesced into one load.
	require.Equal(t, int64(60), repo.ingredients[1].CurrentStock)
	// Automatic deduction may go negative.
	require.Equal(t, int64(-3), repo.ingredients[2].CurrentStock)
	require.Equal(t, 2, repo.loads)
}

func TestApplyStockChangesRejectsWholeBatch(t *testing.T) {
	repo := newMemoryRepo(
		&Ingredient{ID: 1, CurrentStock: 100},
		&Ingredient{ID: 2, CurrentStock: 50},
	)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	changes := []StockChange{
		{IngredientID: 1, Op: StockChangeSubtract, Qty: 30},
		{IngredientID: 2, Op: StockChangeSubtract, Qty: 0},
	}
	require.ErrorIs(t, svc.ApplyStockChanges(ctx, "", changes), ErrInvalidQuantity)

	// No partial writes.
	require.Equal(t, int64(100), repo.ingredients[1].CurrentStock)
	require.Equal(t, int64(50), repo.ingredients[2].CurrentStock)
	require.Equal(t, 0, repo.loads)
}

func TestApplyStockChangesEmptyBatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	require.NoError(t, svc.ApplyStockChanges(context.Background(), "order-1", nil))
}

func TestPurchaseUnitManagement(t *testing.T) {
	repo := newMemoryRepo(&Ingredient{ID: 1})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.UpsertPurchaseUnit(ctx, 1, PurchaseUnit{ID: 10, UnitID: 100, Ratio: 1, IsBaseUnit: true, IsActive: true})
	require.NoError(t, err)
	_, err = svc.UpsertPurchaseUnit(ctx, 1, PurchaseUnit{ID: 11, UnitID: 101, Ratio: 24, IsActive: true})
	require.NoError(t, err)

	_, err = svc.UpsertPurchaseUnit(ctx, 1, PurchaseUnit{ID: 12, UnitID: 101, Ratio: 6, IsActive: true})
	require.ErrorIs(t, err, ErrDuplicateUnit)

	base, err := svc.ConvertToBase(ctx, 1, 3, 101)
	require.NoError(t, err)
	require.Equal(t, int64(72), base)

	require.ErrorIs(t, svc.RemovePurchaseUnit(ctx, 1, 100), ErrCannotRemoveBaseUnit)
	require.NoError(t, svc.RemovePurchaseUnit(ctx, 1, 101))
	require.Len(t, repo.ingredients[1].PurchaseUnits, 1)

	require.NoError(t, svc.ClearPurchaseUnits(ctx, 1))
	require.Empty(t, repo.ingredients[1].PurchaseUnits)
}
