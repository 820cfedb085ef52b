package purchasing

import (
	"context"
	"fmt"
	"time"

	"github.com/restobase/restobase/internal/ingredient"
	"github.com/restobase/restobase/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (PurchaseInvoice, error)
}

// IngredientPort exposes the ledger operations the purchasing flow
// needs. The invoice aggregate itself never touches ingredient stock;
// receipt application happens here, through this port.
type IngredientPort interface {
	ApplyStockChanges(ctx context.Context, ref string, changes []ingredient.StockChange) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the purchase-invoice lifecycle.
type Service struct {
	repo       RepositoryPort
	ingredient IngredientPort
	audit      AuditPort
	now        func() time.Time
}

// NewService constructs purchasing service.
func NewService(repo RepositoryPort, ingredientPort IngredientPort, audit AuditPort) *Service {
	return &Service{repo: repo, ingredient: ingredientPort, audit: audit, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source, used by tests to cross the
// edit-window boundary.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ItemInput describes one invoice line from the caller. BaseUnitQty is
// the already-converted quantity (qty times the purchase unit ratio).
type ItemInput struct {
	ID             int64
	IngredientID   int64
	Qty            int64
	PurchaseUnitID int64
	BaseUnitQty    int64
	TotalPrice     int64
	UnitPrice      *int64
	DisplayOrder   int
	SupplierInfo   string
	Notes          string
}

// CreateInvoiceInput describes invoice creation.
type CreateInvoiceInput struct {
	Number        string
	InvoiceDateID int64
	Notes         string
	Items         []ItemInput
	ActorID       int64
}

func itemFromInput(in ItemInput) PurchaseInvoiceItem {
	return PurchaseInvoiceItem{
		ID:             in.ID,
		IngredientID:   in.IngredientID,
		Qty:            in.Qty,
		PurchaseUnitID: in.PurchaseUnitID,
		BaseUnitQty:    in.BaseUnitQty,
		TotalPrice:     in.TotalPrice,
		UnitPrice:      in.UnitPrice,
		DisplayOrder:   in.DisplayOrder,
		SupplierInfo:   in.SupplierInfo,
		Notes:          in.Notes,
	}
}

// CreateInvoice persists a new invoice with its items. Items without
// an id get sequential ids so later reconciles can diff against them.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (PurchaseInvoice, error) {
	if input.Number == "" {
		input.Number = fmt.Sprintf("PI-%d", s.now().UnixNano())
	}
	inv := PurchaseInvoice{
		Number:        input.Number,
		InvoiceDateID: input.InvoiceDateID,
		Notes:         input.Notes,
		CreatedAt:     s.now(),
	}
	nextID := int64(1)
	for _, in := range input.Items {
		if in.ID >= nextID {
			nextID = in.ID + 1
		}
	}
	for _, in := range input.Items {
		item := itemFromInput(in)
		if item.ID == 0 {
			item.ID = nextID
			nextID++
		}
		if err := inv.AddItem(item); err != nil {
			return PurchaseInvoice{}, err
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		for idx := range inv.Items {
			inv.Items[idx].InvoiceID = id
		}
		return tx.ReplaceItems(ctx, id, inv.Items)
	})
	if err != nil {
		return PurchaseInvoice{}, err
	}
	s.recordAudit(ctx, input.ActorID, "purchasing:create", inv.ID, map[string]any{
		"number": inv.Number,
		"total":  inv.TotalAmount,
		"items":  len(inv.Items),
	})
	return inv, nil
}

// GetInvoice loads an invoice with items.
func (s *Service) GetInvoice(ctx context.Context, id int64) (PurchaseInvoice, error) {
	if id <= 0 {
		return PurchaseInvoice{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// UpdateInvoiceItems reconciles the invoice's items against the given
// set inside the edit window. Stock is not touched here: callers that
// already applied the receipt use the returned diff to reconcile the
// ledger.
func (s *Service) UpdateInvoiceItems(ctx context.Context, id int64, items []ItemInput, actorID int64) (PurchaseInvoice, []int64, []int64, error) {
	if id <= 0 {
		return PurchaseInvoice{}, nil, nil, ErrNotFound
	}
	var (
		result  PurchaseInvoice
		added   []int64
		removed []int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := inv.EnsureEditableAt(s.now()); err != nil {
			return err
		}
		nextID := int64(1)
		for _, item := range inv.Items {
			if item.ID >= nextID {
				nextID = item.ID + 1
			}
		}
		newItems := make([]PurchaseInvoiceItem, 0, len(items))
		ids := make([]int64, 0, len(items))
		for _, in := range items {
			item := itemFromInput(in)
			if item.ID == 0 {
				item.ID = nextID
				nextID++
			}
			newItems = append(newItems, item)
			ids = append(ids, item.ID)
		}
		added, removed = inv.DiffAgainst(ids)
		if err := inv.ReconcileItems(newItems); err != nil {
			return err
		}
		if err := tx.ReplaceItems(ctx, inv.ID, inv.Items); err != nil {
			return err
		}
		if err := tx.UpdateTotal(ctx, inv.ID, inv.TotalAmount); err != nil {
			return err
		}
		result = inv
		return nil
	})
	if err != nil {
		return PurchaseInvoice{}, nil, nil, err
	}
	s.recordAudit(ctx, actorID, "purchasing:reconcile", id, map[string]any{
		"added":   len(added),
		"removed": len(removed),
		"total":   result.TotalAmount,
	})
	return result, added, removed, nil
}

// DeleteInvoice removes an invoice while it is still open.
func (s *Service) DeleteInvoice(ctx context.Context, id, actorID int64) error {
	if id <= 0 {
		return ErrNotFound
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !inv.CanDeleteAt(s.now()) {
			return ErrEditWindowExpired
		}
		return tx.Delete(ctx, inv.ID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "purchasing:delete", id, nil)
	return nil
}

// ReceiveInvoice applies the invoice receipt to the stock ledger: one
// base-unit addition per item, as a single batch keyed by the invoice
// so a retried receipt is applied once.
func (s *Service) ReceiveInvoice(ctx context.Context, id, actorID int64) error {
	inv, err := s.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	if len(inv.Items) == 0 {
		return nil
	}
	changes := make([]ingredient.StockChange, 0, len(inv.Items))
	for _, item := range inv.Items {
		changes = append(changes, ingredient.StockChange{
			IngredientID: item.IngredientID,
			Op:           ingredient.StockChangeAdd,
			Qty:          item.BaseUnitQty,
		})
	}
	ref := fmt.Sprintf("purchasing:receipt:%d", inv.ID)
	if err := s.ingredient.ApplyStockChanges(ctx, ref, changes); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "purchasing:receive", id, map[string]any{
		"items": len(inv.Items),
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
		Entity:   "purchase_invoice",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
