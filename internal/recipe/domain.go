package recipe

import (
	"errors"
	"math"
)

// Unbounded is returned by MaxProducibleQuantity when no recipe line
// is stock-tracked, meaning stock places no limit on production.
const Unbounded = int64(math.MaxInt64)

// Line is one ingredient requirement of a menu item, joined with the
// ledger fields the engine needs. RequiredQty is in base units per
// single portion.
type Line struct {
	MenuItemID           int64
	IngredientID         int64
	IngredientName       string
	BaseUnitID           int64
	RequiredQty          int64
	DisplayOrder         int
	CurrentStock         int64
	StockTrackingEnabled bool
}

// Shortage reports one ingredient whose stock cannot cover an order.
type Shortage struct {
	IngredientID int64  `json:"ingredient_id"`
	Name         string `json:"name"`
	Required     int64  `json:"required"`
	Current      int64  `json:"current"`
	Shortage     int64  `json:"shortage"`
}

// OrderLine is one menu item with the ordered quantity.
type OrderLine struct {
	MenuItemID int64 `json:"menu_item_id"`
	Qty        int64 `json:"qty"`
}

// Requirement is the summed base-unit need of one ingredient across an
// order.
type Requirement struct {
	IngredientID int64
	BaseQty      int64
}

// Entry is the presentation read model of one recipe line.
type Entry struct {
	IngredientID int64  `json:"ingredient_id"`
	Name         string `json:"name"`
	RequiredQty  int64  `json:"required_qty"`
	BaseUnitID   int64  `json:"base_unit_id"`
	DisplayOrder int    `json:"display_order"`
}

var (
	// ErrInvalidQuantity indicates a non-positive order quantity.
	ErrInvalidQuantity = errors.New("recipe: quantity must be positive")
)
