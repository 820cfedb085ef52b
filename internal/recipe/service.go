package recipe

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/restobase/restobase/internal/ingredient"
)

// RepositoryPort abstracts recipe reads for the engine.
type RepositoryPort interface {
	GetRecipeLines(ctx context.Context, menuItemID int64) ([]Line, error)
}

// LedgerPort is the slice of the ingredient service the engine uses
// for batched deduction.
type LedgerPort interface {
	ApplyStockChanges(ctx context.Context, ref string, changes []ingredient.StockChange) error
}

// MetricsPort receives engine counters; nil disables reporting.
type MetricsPort interface {
	DeductionApplied(ingredients int)
	ShortageDetected(count int)
}

// Service computes ingredient availability from recipes and ledger
// stock, and drives automatic deduction for fulfilled orders.
type Service struct {
	repo    RepositoryPort
	ledger  LedgerPort
	cache   *Cache
	metrics MetricsPort
}

// NewService builds Service. cache and metrics may be nil.
func NewService(repo RepositoryPort, ledger LedgerPort, cache *Cache, metrics MetricsPort) *Service {
	return &Service{repo: repo, ledger: ledger, cache: cache, metrics: metrics}
}

// CheckAvailability reports, per stock-tracked recipe line, whether
// current stock covers the order quantity. The requirement is
// multiplied out before comparing so no per-unit rounding creeps in.
func (s *Service) CheckAvailability(ctx context.Context, menuItemID, qty int64) ([]Shortage, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	lines, err := s.repo.GetRecipeLines(ctx, menuItemID)
	if err != nil {
		return nil, err
	}
	var shortages []Shortage
	for _, line := range lines {
		if !line.StockTrackingEnabled {
			continue
		}
		required := line.RequiredQty * qty
		if line.CurrentStock < required {
			shortages = append(shortages, Shortage{
				IngredientID: line.IngredientID,
				Name:         line.IngredientName,
				Required:     required,
				Current:      line.CurrentStock,
				Shortage:     required - line.CurrentStock,
			})
		}
	}
	if s.metrics != nil && len(shortages) > 0 {
		s.metrics.ShortageDetected(len(shortages))
	}
	return shortages, nil
}

// MaxProducibleQuantity returns how many portions current stock
// supports, limited by the bottleneck ingredient. A recipe without
// lines yields 0; a recipe whose lines are all untracked yields
// Unbounded.
func (s *Service) MaxProducibleQuantity(ctx context.Context, menuItemID int64) (int64, error) {
	if s.cache == nil {
		return s.maxProducible(ctx, menuItemID)
	}
	key, err := s.cache.BuildKey(ctx, keyMaxProducible(menuItemID)...)
	if err != nil {
		return 0, err
	}
	var result int64
	err = s.cache.FetchJSON(ctx, key, &result, func(ctx context.Context) (interface{}, error) {
		return s.maxProducible(ctx, menuItemID)
	})
	return result, err
}

func (s *Service) maxProducible(ctx context.Context, menuItemID int64) (int64, error) {
	lines, err := s.repo.GetRecipeLines(ctx, menuItemID)
	if err != nil {
		return 0, err
	}
	if len(lines) == 0 {
		return 0, nil
	}
	max := Unbounded
	tracked := false
	for _, line := range lines {
		if !line.StockTrackingEnabled {
			continue
		}
		tracked = true
		if line.RequiredQty <= 0 || line.CurrentStock <= 0 {
			return 0, nil
		}
		if producible := line.CurrentStock / line.RequiredQty; producible < max {
			max = producible
		}
	}
	if !tracked {
		return Unbounded, nil
	}
	return max, nil
}

// MaxProducibleQuantities batches MaxProducibleQuantity; items are
// independent so they are computed concurrently.
func (s *Service) MaxProducibleQuantities(ctx context.Context, menuItemIDs []int64) (map[int64]int64, error) {
	results := make([]int64, len(menuItemIDs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for idx, id := range menuItemIDs {
		g.Go(func() error {
			qty, err := s.MaxProducibleQuantity(ctx, id)
			if err != nil {
				return err
			}
			results[idx] = qty
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[int64]int64, len(menuItemIDs))
	for idx, id := range menuItemIDs {
		out[id] = results[idx]
	}
	return out, nil
}

// AggregateRequiredIngredients sums, across all order lines and their
// recipes, the total base-unit quantity needed per ingredient.
func (s *Service) AggregateRequiredIngredients(ctx context.Context, orderLines []OrderLine) ([]Requirement, error) {
	totals := make(map[int64]int64)
	for _, order := range orderLines {
		if order.Qty <= 0 {
			return nil, ErrInvalidQuantity
		}
		lines, err := s.repo.GetRecipeLines(ctx, order.MenuItemID)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			if !line.StockTrackingEnabled {
				continue
			}
			totals[line.IngredientID] += line.RequiredQty * order.Qty
		}
	}
	requirements := make([]Requirement, 0, len(totals))
	for id, qty := range totals {
		requirements = append(requirements, Requirement{IngredientID: id, BaseQty: qty})
	}
	sort.Slice(requirements, func(a, b int) bool {
		return requirements[a].IngredientID < requirements[b].IngredientID
	})
	return requirements, nil
}

// ProcessAutomaticDeduction converts an order into one subtraction per
// ingredient and applies the whole batch through the ledger. It never
// blocks on insufficient stock: shortages surface through
// CheckAvailability, not as failed deductions. An empty order or a
// recipe-less order is a no-op.
func (s *Service) ProcessAutomaticDeduction(ctx context.Context, orderRef string, orderItems []OrderLine) error {
	if len(orderItems) == 0 {
		return nil
	}
	requirements, err := s.AggregateRequiredIngredients(ctx, orderItems)
	if err != nil {
		return err
	}
	if len(requirements) == 0 {
		return nil
	}
	changes := make([]ingredient.StockChange, 0, len(requirements))
	for _, req := range requirements {
		changes = append(changes, ingredient.StockChange{
			IngredientID: req.IngredientID,
			Op:           ingredient.StockChangeSubtract,
			Qty:          req.BaseQty,
		})
	}
	if orderRef == "" {
		orderRef = uuid.NewString()
	}
	if err := s.ledger.ApplyStockChanges(ctx, fmt.Sprintf("recipe:deduct:%s", orderRef), changes); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.DeductionApplied(len(changes))
	}
	// Stock moved, cached availability is stale.
	if err := s.cache.Bump(ctx); err != nil {
		return err
	}
	return nil
}

// GetRecipe returns the flattened recipe of a menu item for display,
// ordered by display order then collated name. No invariants here.
func (s *Service) GetRecipe(ctx context.Context, menuItemID int64) ([]Entry, error) {
	lines, err := s.repo.GetRecipeLines(ctx, menuItemID)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, Entry{
			IngredientID: line.IngredientID,
			Name:         line.IngredientName,
			RequiredQty:  line.RequiredQty,
			BaseUnitID:   line.BaseUnitID,
			DisplayOrder: line.DisplayOrder,
		})
	}
	coll := collate.New(language.English, collate.IgnoreCase)
	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].DisplayOrder != entries[b].DisplayOrder {
			return entries[a].DisplayOrder < entries[b].DisplayOrder
		}
		return coll.CompareString(entries[a].Name, entries[b].Name) < 0
	})
	return entries, nil
}
