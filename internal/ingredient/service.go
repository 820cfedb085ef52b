package ingredient

import (
	"context"
	"fmt"
	"sort"

	"github.com/restobase/restobase/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Ingredient, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort deduplicates refs carried by receipts and batches.
// shared.IdempotencyStore satisfies it.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates stock-ledger operations. Every mutation loads
// the aggregate under a row lock, validates through the aggregate's
// own methods and persists within the same transaction.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// Get returns the ingredient with its purchase units.
func (s *Service) Get(ctx context.Context, id int64) (Ingredient, error) {
	if id <= 0 {
		return Ingredient{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// ReceiveStockInput describes a base-unit stock receipt.
type ReceiveStockInput struct {
	IngredientID int64
	BaseQty      int64
	Ref          string
	ActorID      int64
	Note         string
}

// ReceiveStock adds received goods to stock. Quantity is in base units,
// typically an invoice item's converted quantity.
func (s *Service) ReceiveStock(ctx context.Context, input ReceiveStockInput) (Ingredient, error) {
	insertedKey := false
	if s.idempotency != nil && input.Ref != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.Ref, "ingredient"); err != nil {
			return Ingredient{}, err
		}
		insertedKey = true
	}

	ing, err := s.mutate(ctx, input.IngredientID, "ingredient:receive", input.ActorID, input.Note, func(ing *Ingredient) error {
		return ing.AddStock(input.BaseQty)
	})
	if err != nil && insertedKey {
		_ = s.idempotency.Delete(ctx, input.Ref)
	}
	return ing, err
}

// AdjustStockInput describes a manual signed correction.
type AdjustStockInput struct {
	IngredientID int64
	Qty          int64
	ActorID      int64
	Note         string
}

// AdjustStock applies a manual correction. Additions are unconditional;
// subtractions use the guarded path and fail rather than go negative,
// unlike automatic order deduction.
func (s *Service) AdjustStock(ctx context.Context, input AdjustStockInput) (Ingredient, error) {
	if input.Qty == 0 {
		return Ingredient{}, ErrInvalidQuantity
	}
	return s.mutate(ctx, input.IngredientID, "ingredient:adjust", input.ActorID, input.Note, func(ing *Ingredient) error {
		if input.Qty > 0 {
			return ing.AddStock(input.Qty)
		}
		return ing.SubtractStockChecked(-input.Qty)
	})
}

// SetStock overwrites the stock level, e.g. after a physical count.
// Negative values are accepted.
func (s *Service) SetStock(ctx context.Context, id, value, actorID int64, note string) (Ingredient, error) {
	return s.mutate(ctx, id, "ingredient:set_stock", actorID, note, func(ing *Ingredient) error {
		ing.SetStock(value)
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, id int64, action string, actorID int64, note string, fn func(*Ingredient) error) (Ingredient, error) {
	if id <= 0 {
		return Ingredient{}, ErrNotFound
	}
	var result Ingredient
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ing, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before := ing.CurrentStock
		if err := fn(&ing); err != nil {
			return err
		}
		if ing.CurrentStock != before {
			if err := tx.UpdateStock(ctx, ing.ID, ing.CurrentStock); err != nil {
				return err
			}
		}
		result = ing
		return nil
	})
	if err != nil {
		return Ingredient{}, err
	}
	s.recordAudit(ctx, actorID, action, result.ID, map[string]any{
		"stock": result.CurrentStock,
		"note":  note,
	})
	return result, nil
}

// UpsertPurchaseUnit inserts or updates a purchase unit through the
// aggregate's invariant checks.
func (s *Service) UpsertPurchaseUnit(ctx context.Context, ingredientID int64, unit PurchaseUnit) (Ingredient, error) {
	if ingredientID <= 0 {
		return Ingredient{}, ErrNotFound
	}
	var result Ingredient
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ing, err := tx.GetForUpdate(ctx, ingredientID)
		if err != nil {
			return err
		}
		if err := ing.UpsertPurchaseUnit(unit); err != nil {
			return err
		}
		unit.IngredientID = ing.ID
		if err := tx.UpsertPurchaseUnit(ctx, unit); err != nil {
			return err
		}
		result = ing
		return nil
	})
	if err != nil {
		return Ingredient{}, err
	}
	s.recordAudit(ctx, 0, "ingredient:unit_upsert", ingredientID, map[string]any{
		"unit_id": unit.UnitID,
		"ratio":   unit.Ratio,
		"base":    unit.IsBaseUnit,
	})
	return result, nil
}

// RemovePurchaseUnit deletes the unit for a unit id; removing the base
// unit fails, an absent unit is a no-op.
func (s *Service) RemovePurchaseUnit(ctx context.Context, ingredientID, unitID int64) error {
	if ingredientID <= 0 {
		return ErrNotFound
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ing, err := tx.GetForUpdate(ctx, ingredientID)
		if err != nil {
			return err
		}
		before := len(ing.PurchaseUnits)
		if err := ing.RemovePurchaseUnit(unitID); err != nil {
			return err
		}
		if len(ing.PurchaseUnits) == before {
			return nil
		}
		return tx.DeletePurchaseUnit(ctx, ingredientID, unitID)
	})
}

// ClearPurchaseUnits removes every purchase unit of the ingredient.
func (s *Service) ClearPurchaseUnits(ctx context.Context, ingredientID int64) error {
	if ingredientID <= 0 {
		return ErrNotFound
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ing, err := tx.GetForUpdate(ctx, ingredientID)
		if err != nil {
			return err
		}
		ing.ClearPurchaseUnits()
		return tx.DeleteAllPurchaseUnits(ctx, ingredientID)
	})
}

// ConvertToBase converts a purchase-unit quantity for an ingredient.
func (s *Service) ConvertToBase(ctx context.Context, ingredientID, qty, unitID int64) (int64, error) {
	ing, err := s.repo.Get(ctx, ingredientID)
	if err != nil {
		return 0, err
	}
	return ing.ConvertToBase(qty, unitID)
}

// ApplyStockChanges applies a batch of signed deltas as one logical
// operation. Deltas are validated up front and coalesced per
// ingredient, each referenced ingredient is loaded exactly once under
// a row lock, and either the whole batch commits or nothing does. The
// ref deduplicates retries of the same batch.
func (s *Service) ApplyStockChanges(ctx context.Context, ref string, changes []StockChange) error {
	if len(changes) == 0 {
		return nil
	}
	for _, change := range changes {
		if change.Qty <= 0 {
			return ErrInvalidQuantity
		}
		if change.Op != StockChangeAdd && change.Op != StockChangeSubtract {
			return ErrInvalidQuantity
		}
		if change.IngredientID <= 0 {
			return ErrNotFound
		}
	}
	// Net the batch per ingredient so aliased lines cannot race the
	// same row.
	net := make(map[int64]int64, len(changes))
	for _, change := range changes {
		if change.Op == StockChangeAdd {
			net[change.IngredientID] += change.Qty
		} else {
			net[change.IngredientID] -= change.Qty
		}
	}
	ids := make([]int64, 0, len(net))
	for id := range net {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	insertedKey := false
	if s.idempotency != nil && ref != "" {
		if err := s.idempotency.CheckAndInsert(ctx, ref, "ingredient"); err != nil {
			return err
		}
		insertedKey = true
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ingredients, err := tx.GetManyForUpdate(ctx, ids)
		if err != nil {
			return err
		}
		if len(ingredients) != len(ids) {
			return ErrNotFound
		}
		for idx := range ingredients {
			ing := &ingredients[idx]
			delta := net[ing.ID]
			switch {
			case delta > 0:
				if err := ing.AddStock(delta); err != nil {
					return err
				}
			case delta < 0:
				if err := ing.SubtractStock(-delta); err != nil {
					return err
				}
			}
			if err := tx.UpdateStock(ctx, ing.ID, ing.CurrentStock); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, ref)
		}
		return err
	}
	s.recordAudit(ctx, 0, "ingredient:batch_apply", 0, map[string]any{
		"ref":         ref,
		"ingredients": len(ids),
		"changes":     len(changes),
	})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "ingredient",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
