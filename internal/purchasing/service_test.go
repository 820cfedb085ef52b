package purchasing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/restobase/restobase/internal/ingredient"
)

type memoryInvoiceRepo struct {
	invoices map[int64]*PurchaseInvoice
	nextID   int64
}

type memoryInvoiceTx struct {
	repo *memoryInvoiceRepo
}

func newMemoryInvoiceRepo() *memoryInvoiceRepo {
	return &memoryInvoiceRepo{invoices: make(map[int64]*PurchaseInvoice)}
}

func (r *memoryInvoiceRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryInvoiceTx{repo: r})
}

func (r *memoryInvoiceRepo) Get(ctx context.Context, id int64) (PurchaseInvoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return PurchaseInvoice{}, ErrNotFound
	}
	copied := *inv
	copied.Items = append([]PurchaseInvoiceItem(nil), inv.Items...)
	return copied, nil
}

func (tx *memoryInvoiceTx) GetForUpdate(ctx context.Context, id int64) (PurchaseInvoice, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryInvoiceTx) Insert(ctx context.Context, inv PurchaseInvoice) (int64, error) {
	for _, existing := range tx.repo.invoices {
		if existing.Number == inv.Number {
			return 0, ErrDuplicateNumber
		}
	}
	tx.repo.nextID++
	inv.ID = tx.repo.nextID
	tx.repo.invoices[inv.ID] = &inv
	return inv.ID, nil
}

func (tx *memoryInvoiceTx) ReplaceItems(ctx context.Context, invoiceID int64, items []PurchaseInvoiceItem) error {
	inv, ok := tx.repo.invoices[invoiceID]
	if !ok {
		return ErrNotFound
	}
	inv.Items = append([]PurchaseInvoiceItem(nil), items...)
	return nil
}

func (tx *memoryInvoiceTx) UpdateTotal(ctx context.Context, invoiceID, total int64) error {
	inv, ok := tx.repo.invoices[invoiceID]
	if !ok {
		return ErrNotFound
	}
	inv.TotalAmount = total
	return nil
}

func (tx *memoryInvoiceTx) Delete(ctx context.Context, invoiceID int64) error {
	delete(tx.repo.invoices, invoiceID)
	return nil
}

type recordingLedger struct {
	refs    []string
	changes [][]ingredient.StockChange
}

func (l *recordingLedger) ApplyStockChanges(ctx context.Context, ref string, changes []ingredient.StockChange) error {
	l.refs = append(l.refs, ref)
	l.changes = append(l.changes, changes)
	return nil
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestCreateInvoice(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	svc := NewService(repo, &recordingLedger{}, nil)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		Number: "PI-0001",
		Items: []ItemInput{
			{IngredientID: 1, Qty: 2, PurchaseUnitID: 101, BaseUnitQty: 48, TotalPrice: 100000},
			{IngredientID: 2, Qty: 1, PurchaseUnitID: 102, BaseUnitQty: 6, TotalPrice: 200000},
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(300000), inv.TotalAmount)
	require.Len(t, inv.Items, 2)
	// Assigned ids are distinct so reconciles can diff on them.
	require.NotEqual(t, inv.Items[0].ID, inv.Items[1].ID)

	_, err = svc.CreateInvoice(ctx, CreateInvoiceInput{
		Number: "PI-0001",
		Items:  []ItemInput{{IngredientID: 1, Qty: 1, BaseUnitQty: 1, TotalPrice: 0}},
	})
	require.ErrorIs(t, err, ErrDuplicateNumber)
}

func TestCreateInvoiceValidatesItems(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	svc := NewService(repo, &recordingLedger{}, nil)

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		Items: []ItemInput{{IngredientID: 1, Qty: 0, BaseUnitQty: 1, TotalPrice: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Empty(t, repo.invoices)
}

func TestUpdateInvoiceItemsDiff(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(repo, &recordingLedger{}, nil).WithClock(fixedClock(created))
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		Items: []ItemInput{
			{ID: 1, IngredientID: 10, Qty: 1, BaseUnitQty: 1, TotalPrice: 100},
			{ID: 2, IngredientID: 20, Qty: 2, BaseUnitQty: 2, TotalPrice: 200},
			{ID: 3, IngredientID: 30, Qty: 3, BaseUnitQty: 3, TotalPrice: 300},
		},
	})
	require.NoError(t, err)

	svc.WithClock(fixedClock(created.Add(time.Hour)))
	updated, added, removed, err := svc.UpdateInvoiceItems(ctx, inv.ID, []ItemInput{
		{ID: 2, IngredientID: 20, Qty: 5, BaseUnitQty: 5, TotalPrice: 500},
		{ID: 3, IngredientID: 30, Qty: 3, BaseUnitQty: 3, TotalPrice: 300},
		{IngredientID: 40, Qty: 4, BaseUnitQty: 4, TotalPrice: 400},
	}, 0)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, removed)
	require.Len(t, added, 1)
	require.Equal(t, int64(1200), updated.TotalAmount)
	require.Equal(t, int64(1200), repo.invoices[inv.ID].TotalAmount)
}

func TestUpdateInvoiceItemsOutsideWindow(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(repo, &recordingLedger{}, nil).WithClock(fixedClock(created))
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		Items: []ItemInput{{ID: 1, IngredientID: 10, Qty: 1, BaseUnitQty: 1, TotalPrice: 100}},
	})
	require.NoError(t, err)

	svc.WithClock(fixedClock(created.Add(6*time.Hour + time.Minute)))
	_, _, _, err = svc.UpdateInvoiceItems(ctx, inv.ID, nil, 0)
	require.ErrorIs(t, err, ErrEditWindowExpired)

	require.ErrorIs(t, svc.DeleteInvoice(ctx, inv.ID, 0), ErrEditWindowExpired)

	// Inside the window both succeed.
	svc.WithClock(fixedClock(created.Add(5*time.Hour + 59*time.Minute)))
	require.NoError(t, svc.DeleteInvoice(ctx, inv.ID, 0))
	_, err = svc.GetInvoice(ctx, inv.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReceiveInvoiceAppliesBatch(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	ledger := &recordingLedger{}
	svc := NewService(repo, ledger, nil)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		Items: []ItemInput{
			{IngredientID: 1, Qty: 2, BaseUnitQty: 48, TotalPrice: 0},
			{IngredientID: 2, Qty: 1, BaseUnitQty: 6, TotalPrice: 0},
		},
	})
	require.NoError(t, err)

	require.NoError(t, svc.ReceiveInvoice(ctx, inv.ID, 0))
	require.Len(t, ledger.changes, 1)
	require.Len(t, ledger.changes[0], 2)
	require.Equal(t, ingredient.StockChangeAdd, ledger.changes[0][0].Op)
	require.Equal(t, int64(48), ledger.changes[0][0].Qty)
	require.Contains(t, ledger.refs[0], "purchasing:receipt:")
}
