package purchasing

import (
	"errors"
	"time"
)

// EditWindow is how long after creation an invoice stays mutable.
// Past it the invoice is locked for edit and delete alike.
const EditWindow = 6 * time.Hour

// PurchaseInvoice is the master-detail purchase aggregate. TotalAmount
// is derived and kept equal to the sum of item totals after every
// item-changing operation. There is no stored status: open vs locked
// is recomputed from the creation time on every call.
type PurchaseInvoice struct {
	ID            int64
	Number        string
	InvoiceDateID int64
	TotalAmount   int64
	Notes         string
	CreatedAt     time.Time
	Items         []PurchaseInvoiceItem
}

// PurchaseInvoiceItem is one received line. Quantity is in the chosen
// purchase unit; BaseUnitQty is the caller-computed conversion
// (quantity times the unit's ratio) used for stock reconciliation.
type PurchaseInvoiceItem struct {
	ID             int64
	InvoiceID      int64
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

var (
	// ErrInvalidQuantity indicates a non-positive item quantity.
	ErrInvalidQuantity = errors.New("purchasing: quantity must be positive")
	// ErrInvalidTotalPrice indicates a negative item total.
	ErrInvalidTotalPrice = errors.New("purchasing: total price must not be negative")
	// ErrInvoiceItemNotFound indicates a reference to a missing item id.
	ErrInvoiceItemNotFound = errors.New("purchasing: invoice item not found")
	// ErrEditWindowExpired indicates a mutation outside the edit window.
	ErrEditWindowExpired = errors.New("purchasing: edit window expired")
	// ErrNotFound indicates the invoice record is missing.
	ErrNotFound = errors.New("purchasing: invoice not found")
	// ErrDuplicateNumber indicates the invoice number is already taken.
	ErrDuplicateNumber = errors.New("purchasing: invoice number already used")
)

// CanEditAt reports whether the invoice is still open at the given time.
func (inv *PurchaseInvoice) CanEditAt(now time.Time) bool {
	return now.Before(inv.CreatedAt.Add(EditWindow))
}

// CanEdit reports whether the invoice is open right now.
func (inv *PurchaseInvoice) CanEdit() bool {
	return inv.CanEditAt(time.Now().UTC())
}

// CanDeleteAt mirrors CanEditAt: deletion shares the same window.
func (inv *PurchaseInvoice) CanDeleteAt(now time.Time) bool {
	return inv.CanEditAt(now)
}

// CanDelete reports whether the invoice may be deleted right now.
func (inv *PurchaseInvoice) CanDelete() bool {
	return inv.CanDeleteAt(time.Now().UTC())
}

// EnsureEditableAt fails with ErrEditWindowExpired once locked.
func (inv *PurchaseInvoice) EnsureEditableAt(now time.Time) error {
	if !inv.CanEditAt(now) {
		return ErrEditWindowExpired
	}
	return nil
}

func validateItem(item PurchaseInvoiceItem) error {
	if item.Qty <= 0 || item.BaseUnitQty <= 0 {
		return ErrInvalidQuantity
	}
	if item.TotalPrice < 0 {
		return ErrInvalidTotalPrice
	}
	return nil
}

// AddItem validates and appends an item, then refreshes the total.
func (inv *PurchaseInvoice) AddItem(item PurchaseInvoiceItem) error {
	if err := validateItem(item); err != nil {
		return err
	}
	item.InvoiceID = inv.ID
	inv.Items = append(inv.Items, item)
	inv.RecalculateTotal()
	return nil
}

// UpdateItem replaces the item with the same id in place.
func (inv *PurchaseInvoice) UpdateItem(item PurchaseInvoiceItem) error {
	if err := validateItem(item); err != nil {
		return err
	}
	for idx, existing := range inv.Items {
		if existing.ID == item.ID {
			item.InvoiceID = inv.ID
			inv.Items[idx] = item
			inv.RecalculateTotal()
			return nil
		}
	}
	return ErrInvoiceItemNotFound
}

// RemoveItem deletes the item with the given id; absent id is a no-op.
func (inv *PurchaseInvoice) RemoveItem(itemID int64) {
	for idx, item := range inv.Items {
		if item.ID == itemID {
			inv.Items = append(inv.Items[:idx], inv.Items[idx+1:]...)
			inv.RecalculateTotal()
			return
		}
	}
}

// ClearItems drops all items and zeroes the total.
func (inv *PurchaseInvoice) ClearItems() {
	inv.Items = nil
	inv.RecalculateTotal()
}

// GetItem returns the item with the given id.
func (inv *PurchaseInvoice) GetItem(itemID int64) (PurchaseInvoiceItem, error) {
	for _, item := range inv.Items {
		if item.ID == itemID {
			return item, nil
		}
	}
	return PurchaseInvoiceItem{}, ErrInvoiceItemNotFound
}

// HasItem reports whether an item id is present.
func (inv *PurchaseInvoice) HasItem(itemID int64) bool {
	_, err := inv.GetItem(itemID)
	return err == nil
}

// HasIngredient reports whether any item references the ingredient.
func (inv *PurchaseInvoice) HasIngredient(ingredientID int64) bool {
	for _, item := range inv.Items {
		if item.IngredientID == ingredientID {
			return true
		}
	}
	return false
}

// ReconcileItems replaces the item set with newItems using a three-way
// diff by item id: items only in the old set are removed, items only
// in the new set are added, items in both are updated in place. The
// whole batch is validated before any change, so a bad line leaves the
// invoice untouched. Applying the same newItems twice is a no-op.
func (inv *PurchaseInvoice) ReconcileItems(newItems []PurchaseInvoiceItem) error {
	for _, item := range newItems {
		if err := validateItem(item); err != nil {
			return err
		}
	}
	incoming := make(map[int64]PurchaseInvoiceItem, len(newItems))
	for _, item := range newItems {
		item.InvoiceID = inv.ID
		incoming[item.ID] = item
	}
	kept := inv.Items[:0:0]
	for _, existing := range inv.Items {
		if updated, ok := incoming[existing.ID]; ok {
			kept = append(kept, updated)
			delete(incoming, existing.ID)
		}
	}
	for _, item := range newItems {
		if added, ok := incoming[item.ID]; ok {
			kept = append(kept, added)
			delete(incoming, item.ID)
		}
	}
	inv.Items = kept
	inv.RecalculateTotal()
	return nil
}

// DiffAgainst compares the current item ids with a proposed set and
// returns the ids that would be added and removed. It drives external
// stock reconciliation: restock removals, deduct additions.
func (inv *PurchaseInvoice) DiffAgainst(newIDs []int64) (added, removed []int64) {
	current := make(map[int64]bool, len(inv.Items))
	for _, item := range inv.Items {
		current[item.ID] = true
	}
	proposed := make(map[int64]bool, len(newIDs))
	for _, id := range newIDs {
		proposed[id] = true
		if !current[id] {
			added = append(added, id)
		}
	}
	for _, item := range inv.Items {
		if !proposed[item.ID] {
			removed = append(removed, item.ID)
		}
	}
	return added, removed
}

// RecalculateTotal sets TotalAmount to the sum of item totals. It runs
// automatically after every item-changing operation; the export exists
// for callers that assembled Items directly.
func (inv *PurchaseInvoice) RecalculateTotal() {
	var total int64
	for _, item := range inv.Items {
		total += item.TotalPrice
	}
	inv.TotalAmount = total
}
