package ingredient

import (
	"errors"
	"time"

	"github.com/restobase/restobase/internal/unitconv"
)

// Ingredient is the stock-ledger aggregate. CurrentStock is kept in
// base units and may go negative: shortages are tracked, not blocked,
// so service continues while inventory catches up.
type Ingredient struct {
	ID                   int64
	CategoryID           int64
	Name                 string
	BaseUnitID           int64
	CostPerUnit          *int64
	CurrentStock         int64
	StockTrackingEnabled bool
	IsActive             bool
	PurchaseUnits        []PurchaseUnit
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PurchaseUnit maps an alternate receiving unit to the base unit with
// a fixed integer ratio. Exactly one active unit per ingredient is the
// base unit and its ratio is always 1.
type PurchaseUnit struct {
	ID            int64
	IngredientID  int64
	UnitID        int64
	Ratio         int64
	IsBaseUnit    bool
	PurchasePrice *int64
	DisplayOrder  int
	IsActive      bool
}

// StockChangeOp tags the direction of a batched stock delta.
type StockChangeOp string

const (
	// StockChangeAdd increases stock.
	StockChangeAdd StockChangeOp = "ADD"
	// StockChangeSubtract decreases stock, negative results allowed.
	StockChangeSubtract StockChangeOp = "SUBTRACT"
)

// StockChange is one signed delta of a deduction or restock batch.
type StockChange struct {
	IngredientID int64
	Op           StockChangeOp
	Qty          int64
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("ingredient: quantity must be positive")
	// ErrInsufficientStock indicates a guarded subtraction would go negative.
	ErrInsufficientStock = errors.New("ingredient: insufficient stock")
	// ErrInvalidBaseUnitConversion indicates a base unit declared with ratio != 1.
	ErrInvalidBaseUnitConversion = errors.New("ingredient: base unit ratio must be 1")
	// ErrDuplicateUnit indicates the unit is already registered for this ingredient.
	ErrDuplicateUnit = errors.New("ingredient: unit already registered")
	// ErrMultipleBaseUnit indicates a second base unit was attempted.
	ErrMultipleBaseUnit = errors.New("ingredient: base unit already configured")
	// ErrCannotRemoveBaseUnit indicates removal of the base unit was attempted.
	ErrCannotRemoveBaseUnit = errors.New("ingredient: cannot remove base unit")
	// ErrBaseUnitNotConfigured indicates conversion without a base unit.
	ErrBaseUnitNotConfigured = errors.New("ingredient: base unit not configured")
	// ErrUnitNotFound indicates the referenced purchase unit does not exist.
	ErrUnitNotFound = errors.New("ingredient: purchase unit not found")
	// ErrNotFound indicates the ingredient record is missing.
	ErrNotFound = errors.New("ingredient: not found")
)

// AddStock increments stock unconditionally.
func (i *Ingredient) AddStock(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	i.CurrentStock += qty
	return nil
}

// SubtractStock decrements stock unconditionally, allowing negative
// results. Fulfillment must proceed even when inventory lags.
func (i *Ingredient) SubtractStock(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	i.CurrentStock -= qty
	return nil
}

// SubtractStockChecked is the guarded legacy path used by manual
// adjustments. It rejects a subtraction that would go negative.
func (i *Ingredient) SubtractStockChecked(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if !i.CanSubtractStock(qty) {
		return ErrInsufficientStock
	}
	i.CurrentStock -= qty
	return nil
}

// SetStock overwrites stock. The value may be negative.
func (i *Ingredient) SetStock(value int64) {
	i.CurrentStock = value
}

// CanSubtractStock reports whether a subtraction keeps stock non-negative.
func (i *Ingredient) CanSubtractStock(qty int64) bool {
	return i.CurrentStock >= qty
}

// GetBaseUnit returns the active base purchase unit.
func (i *Ingredient) GetBaseUnit() (PurchaseUnit, error) {
	for _, unit := range i.PurchaseUnits {
		if unit.IsActive && unit.IsBaseUnit {
			return unit, nil
		}
	}
	return PurchaseUnit{}, ErrBaseUnitNotConfigured
}

// findActiveUnit locates the active purchase unit for a unit id.
func (i *Ingredient) findActiveUnit(unitID int64) (PurchaseUnit, bool) {
	for _, unit := range i.PurchaseUnits {
		if unit.IsActive && unit.UnitID == unitID {
			return unit, true
		}
	}
	return PurchaseUnit{}, false
}

// ConvertToBase converts a quantity in the given purchase unit to base units.
func (i *Ingredient) ConvertToBase(qty, unitID int64) (int64, error) {
	unit, ok := i.findActiveUnit(unitID)
	if !ok {
		return 0, ErrUnitNotFound
	}
	ratio, err := unitconv.NewRatio(unit.Ratio)
	if err != nil {
		return 0, err
	}
	return ratio.ToBase(qty)
}

// ConvertFromBase converts a base-unit quantity to the given purchase
// unit. The result uses floor division and is deliberately lossy.
func (i *Ingredient) ConvertFromBase(baseQty, unitID int64) (int64, error) {
	unit, ok := i.findActiveUnit(unitID)
	if !ok {
		return 0, ErrUnitNotFound
	}
	ratio, err := unitconv.NewRatio(unit.Ratio)
	if err != nil {
		return 0, err
	}
	return ratio.FromBase(baseQty), nil
}

// UpsertPurchaseUnit inserts a purchase unit or updates it in place
// when the id is already present. All structural invariants are
// re-checked before any mutation: the base unit carries ratio 1, a
// unit id appears at most once among active units, and at most one
// active unit is the base unit.
func (i *Ingredient) UpsertPurchaseUnit(unit PurchaseUnit) error {
	if unit.Ratio <= 0 {
		return unitconv.ErrInvalidRatio
	}
	if unit.IsBaseUnit && unit.Ratio != 1 {
		return ErrInvalidBaseUnitConversion
	}
	for _, existing := range i.PurchaseUnits {
		if existing.ID == unit.ID || !existing.IsActive {
			continue
		}
		if existing.UnitID == unit.UnitID {
			return ErrDuplicateUnit
		}
		if unit.IsBaseUnit && existing.IsBaseUnit {
			return ErrMultipleBaseUnit
		}
	}
	unit.IngredientID = i.ID
	for idx, existing := range i.PurchaseUnits {
		if existing.ID == unit.ID {
			i.PurchaseUnits[idx] = unit
			return nil
		}
	}
	i.PurchaseUnits = append(i.PurchaseUnits, unit)
	return nil
}

// RemovePurchaseUnit removes the unit for a unit id. Removing the base
// unit is rejected; an absent unit is a no-op.
func (i *Ingredient) RemovePurchaseUnit(unitID int64) error {
	for idx, unit := range i.PurchaseUnits {
		if unit.UnitID != unitID {
			continue
		}
		if unit.IsActive && unit.IsBaseUnit {
			return ErrCannotRemoveBaseUnit
		}
		i.PurchaseUnits = append(i.PurchaseUnits[:idx], i.PurchaseUnits[idx+1:]...)
		return nil
	}
	return nil
}

// ClearPurchaseUnits removes every purchase unit, base included.
func (i *Ingredient) ClearPurchaseUnits() {
	i.PurchaseUnits = nil
}
