package ingredient

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/restobase/restobase/internal/platform/db"
)

// Repository persists ingredient aggregates in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Ingredient, error)
	GetManyForUpdate(ctx context.Context, ids []int64) ([]Ingredient, error)
	UpdateStock(ctx context.Context, id, stock int64) error
	UpsertPurchaseUnit(ctx context.Context, unit PurchaseUnit) error
	DeletePurchaseUnit(ctx context.Context, ingredientID, unitID int64) error
	DeleteAllPurchaseUnits(ctx context.Context, ingredientID int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ingredient repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const ingredientColumns = `id, category_id, name, base_unit_id, cost_per_unit, current_stock, stock_tracking_enabled, is_active, created_at, updated_at`

// Get loads an ingredient with its purchase units, without locking.
func (r *Repository) Get(ctx context.Context, id int64) (Ingredient, error) {
	if r == nil {
		return Ingredient{}, errors.New("ingredient repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+ingredientColumns+` FROM ingredients WHERE id=$1`, id)
	ing, err := scanIngredient(row)
	if err != nil {
		return Ingredient{}, err
	}
	units, err := loadUnits(ctx, r.pool, []int64{id})
	if err != nil {
		return Ingredient{}, err
	}
	ing.PurchaseUnits = units[id]
	return ing, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Ingredient, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+ingredientColumns+` FROM ingredients WHERE id=$1 FOR UPDATE`, id)
	ing, err := scanIngredient(row)
	if err != nil {
		return Ingredient{}, err
	}
	units, err := loadUnits(ctx, r.tx, []int64{id})
	if err != nil {
		return Ingredient{}, err
	}
	ing.PurchaseUnits = units[id]
	return ing, nil
}

// GetManyForUpdate loads each referenced ingredient once, ordered by
// id for a stable lock order across concurrent batches.
func (r *txRepository) GetManyForUpdate(ctx context.Context, ids []int64) ([]Ingredient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.tx.Query(ctx, `SELECT `+ingredientColumns+` FROM ingredients WHERE id=ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ingredients []Ingredient
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		ingredients = append(ingredients, ing)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	units, err := loadUnits(ctx, r.tx, ids)
	if err != nil {
		return nil, err
	}
	for idx := range ingredients {
		ingredients[idx].PurchaseUnits = units[ingredients[idx].ID]
	}
	return ingredients, nil
}

func (r *txRepository) UpdateStock(ctx context.Context, id, stock int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE ingredients SET current_stock=$2, updated_at=NOW() WHERE id=$1`, id, stock)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) UpsertPurchaseUnit(ctx context.Context, unit PurchaseUnit) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_units (id, ingredient_id, unit_id, ratio, is_base_unit, purchase_price, display_order, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET unit_id=EXCLUDED.unit_id, ratio=EXCLUDED.ratio, is_base_unit=EXCLUDED.is_base_unit,
purchase_price=EXCLUDED.purchase_price, display_order=EXCLUDED.display_order, is_active=EXCLUDED.is_active`,
		unit.ID, unit.IngredientID, unit.UnitID, unit.Ratio, unit.IsBaseUnit, unit.PurchasePrice, unit.DisplayOrder, unit.IsActive)
	return err
}

func (r *txRepository) DeletePurchaseUnit(ctx context.Context, ingredientID, unitID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM purchase_units WHERE ingredient_id=$1 AND unit_id=$2`, ingredientID, unitID)
	return err
}

func (r *txRepository) DeleteAllPurchaseUnits(ctx context.Context, ingredientID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM purchase_units WHERE ingredient_id=$1`, ingredientID)
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadUnits(ctx context.Context, q querier, ingredientIDs []int64) (map[int64][]PurchaseUnit, error) {
	rows, err := q.Query(ctx, `SELECT id, ingredient_id, unit_id, ratio, is_base_unit, purchase_price, display_order, is_active
FROM purchase_units WHERE ingredient_id=ANY($1) ORDER BY ingredient_id, display_order, id`, ingredientIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	units := make(map[int64][]PurchaseUnit)
	for rows.Next() {
		var unit PurchaseUnit
		if err := rows.Scan(&unit.ID, &unit.IngredientID, &unit.UnitID, &unit.Ratio, &unit.IsBaseUnit, &unit.PurchasePrice, &unit.DisplayOrder, &unit.IsActive); err != nil {
			return nil, err
		}
		units[unit.IngredientID] = append(units[unit.IngredientID], unit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

func scanIngredient(row pgx.Row) (Ingredient, error) {
	var ing Ingredient
	err := row.Scan(&ing.ID, &ing.CategoryID, &ing.Name, &ing.BaseUnitID, &ing.CostPerUnit, &ing.CurrentStock,
		&ing.StockTrackingEnabled, &ing.IsActive, &ing.CreatedAt, &ing.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ingredient{}, ErrNotFound
		}
		return Ingredient{}, err
	}
	return ing, nil
}
