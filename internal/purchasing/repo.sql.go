package purchasing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/restobase/restobase/internal/platform/db"
)

// Repository persists purchase invoices in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (PurchaseInvoice, error)
	Insert(ctx context.Context, inv PurchaseInvoice) (int64, error)
	ReplaceItems(ctx context.Context, invoiceID int64, items []PurchaseInvoiceItem) error
	UpdateTotal(ctx context.Context, invoiceID, total int64) error
	Delete(ctx context.Context, invoiceID int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("purchasing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const invoiceColumns = `id, number, invoice_date_id, total_amount, notes, created_at`

// Get loads an invoice with items, without locking.
func (r *Repository) Get(ctx context.Context, id int64) (PurchaseInvoice, error) {
	if r == nil {
		return PurchaseInvoice{}, errors.New("purchasing repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices WHERE id=$1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		return PurchaseInvoice{}, err
	}
	items, err := loadItems(ctx, r.pool, id)
	if err != nil {
		return PurchaseInvoice{}, err
	}
	inv.Items = items
	return inv, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (PurchaseInvoice, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices WHERE id=$1 FOR UPDATE`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		return PurchaseInvoice{}, err
	}
	items, err := loadItems(ctx, r.tx, id)
	if err != nil {
		return PurchaseInvoice{}, err
	}
	inv.Items = items
	return inv, nil
}

func (r *txRepository) Insert(ctx context.Context, inv PurchaseInvoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_invoices (number, invoice_date_id, total_amount, notes, created_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, inv.Number, inv.InvoiceDateID, inv.TotalAmount, inv.Notes, inv.CreatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_purchase_invoices_number" {
			return 0, ErrDuplicateNumber
		}
		return 0, err
	}
	return id, nil
}

// ReplaceItems rewrites the invoice's item rows to match the aggregate
// after a reconcile. Item ids are aggregate-assigned and preserved so
// later diffs stay stable.
func (r *txRepository) ReplaceItems(ctx context.Context, invoiceID int64, items []PurchaseInvoiceItem) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM purchase_invoice_items WHERE invoice_id=$1`, invoiceID); err != nil {
		return err
	}
	for _, item := range items {
		_, err := r.tx.Exec(ctx, `INSERT INTO purchase_invoice_items
(invoice_id, item_id, ingredient_id, qty, purchase_unit_id, base_unit_qty, total_price, unit_price, display_order, supplier_info, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			invoiceID, item.ID, item.IngredientID, item.Qty, item.PurchaseUnitID, item.BaseUnitQty,
			item.TotalPrice, item.UnitPrice, item.DisplayOrder, item.SupplierInfo, item.Notes)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) UpdateTotal(ctx context.Context, invoiceID, total int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_invoices SET total_amount=$2 WHERE id=$1`, invoiceID, total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) Delete(ctx context.Context, invoiceID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM purchase_invoice_items WHERE invoice_id=$1`, invoiceID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM purchase_invoices WHERE id=$1`, invoiceID)
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, invoiceID int64) ([]PurchaseInvoiceItem, error) {
	rows, err := q.Query(ctx, `SELECT item_id, invoice_id, ingredient_id, qty, purchase_unit_id, base_unit_qty, total_price, unit_price, display_order, supplier_info, notes
FROM purchase_invoice_items WHERE invoice_id=$1 ORDER BY display_order, item_id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PurchaseInvoiceItem
	for rows.Next() {
		var item PurchaseInvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.IngredientID, &item.Qty, &item.PurchaseUnitID, &item.BaseUnitQty,
			&item.TotalPrice, &item.UnitPrice, &item.DisplayOrder, &item.SupplierInfo, &item.Notes); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanInvoice(row pgx.Row) (PurchaseInvoice, error) {
	var inv PurchaseInvoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.InvoiceDateID, &inv.TotalAmount, &inv.Notes, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseInvoice{}, ErrNotFound
		}
		return PurchaseInvoice{}, err
	}
	return inv, nil
}
