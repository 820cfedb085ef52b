package recipe

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads recipe lines joined with ledger stock.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetRecipeLines returns the active recipe of a menu item with the
// owning ingredient's current stock and tracking flag.
func (r *Repository) GetRecipeLines(ctx context.Context, menuItemID int64) ([]Line, error) {
	if r == nil {
		return nil, errors.New("recipe repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT rl.menu_item_id, rl.ingredient_id, i.name, i.base_unit_id, rl.required_qty, rl.display_order, i.current_stock, i.stock_tracking_enabled
FROM recipe_lines rl
JOIN ingredients i ON i.id = rl.ingredient_id
WHERE rl.menu_item_id=$1 AND i.is_active
ORDER BY rl.display_order, i.name`, menuItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.MenuItemID, &line.IngredientID, &line.IngredientName, &line.BaseUnitID,
			&line.RequiredQty, &line.DisplayOrder, &line.CurrentStock, &line.StockTrackingEnabled); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// ListMenuItemIDs returns menu items that have at least one recipe
// line, used by the availability warmup job.
func (r *Repository) ListMenuItemIDs(ctx context.Context) ([]int64, error) {
	if r == nil {
		return nil, errors.New("recipe repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT menu_item_id FROM recipe_lines ORDER BY menu_item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
