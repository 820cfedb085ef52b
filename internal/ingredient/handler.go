package ingredient

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/restobase/restobase/internal/platform/httpx"
)

// Handler wires HTTP endpoints for ingredient stock and unit management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ingredient routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/ingredients/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Get("/convert", h.handleConvert)
		r.Post("/stock/receive", h.handleReceiveStock)
		r.Post("/stock/adjust", h.handleAdjustStock)
		r.Put("/stock", h.handleSetStock)
		r.Put("/units", h.handleUpsertUnit)
		r.Delete("/units", h.handleClearUnits)
		r.Delete("/units/{unitID}", h.handleRemoveUnit)
	})
}

type purchaseUnitResponse struct {
	ID            int64  `json:"id"`
	UnitID        int64  `json:"unit_id"`
	Ratio         int64  `json:"ratio"`
	IsBaseUnit    bool   `json:"is_base_unit"`
	PurchasePrice *int64 `json:"purchase_price,omitempty"`
	DisplayOrder  int    `json:"display_order"`
	IsActive      bool   `json:"is_active"`
}

type ingredientResponse struct {
	ID                   int64                  `json:"id"`
	CategoryID           int64                  `json:"category_id"`
	Name                 string                 `json:"name"`
	BaseUnitID           int64                  `json:"base_unit_id"`
	CostPerUnit          *int64                 `json:"cost_per_unit,omitempty"`
	CurrentStock         int64                  `json:"current_stock"`
	StockTrackingEnabled bool                   `json:"stock_tracking_enabled"`
	IsActive             bool                   `json:"is_active"`
	PurchaseUnits        []purchaseUnitResponse `json:"purchase_units"`
}

func toIngredientResponse(ing Ingredient) ingredientResponse {
	units := make([]purchaseUnitResponse, 0, len(ing.PurchaseUnits))
	for _, u := range ing.PurchaseUnits {
		units = append(units, purchaseUnitResponse{
			ID:            u.ID,
			UnitID:        u.UnitID,
			Ratio:         u.Ratio,
			IsBaseUnit:    u.IsBaseUnit,
			PurchasePrice: u.PurchasePrice,
			DisplayOrder:  u.DisplayOrder,
			IsActive:      u.IsActive,
		})
	}
	return ingredientResponse{
		ID:                   ing.ID,
		CategoryID:           ing.CategoryID,
		Name:                 ing.Name,
		BaseUnitID:           ing.BaseUnitID,
		CostPerUnit:          ing.CostPerUnit,
		CurrentStock:         ing.CurrentStock,
		StockTrackingEnabled: ing.StockTrackingEnabled,
		IsActive:             ing.IsActive,
		PurchaseUnits:        units,
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	ing, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toIngredientResponse(ing))
}

type receiveStockRequest struct {
	BaseQty int64  `json:"base_qty" validate:"required,gt=0"`
	Ref     string `json:"ref"`
	ActorID int64  `json:"actor_id"`
	Note    string `json:"note"`
}

func (h *Handler) handleReceiveStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req receiveStockRequest
	if !h.decode(w, r, &req) {
		return
	}
	ing, err := h.service.ReceiveStock(r.Context(), ReceiveStockInput{
		IngredientID: id,
		BaseQty:      req.BaseQty,
		Ref:          req.Ref,
		ActorID:      req.ActorID,
		Note:         req.Note,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toIngredientResponse(ing))
}

type adjustStockRequest struct {
	Qty     int64  `json:"qty" validate:"required"`
	ActorID int64  `json:"actor_id"`
	Note    string `json:"note"`
}

func (h *Handler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req adjustStockRequest
	if !h.decode(w, r, &req) {
		return
	}
	ing, err := h.service.AdjustStock(r.Context(), AdjustStockInput{
		IngredientID: id,
		Qty:          req.Qty,
		ActorID:      req.ActorID,
		Note:         req.Note,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toIngredientResponse(ing))
}

type setStockRequest struct {
	Value   int64  `json:"value"`
	ActorID int64  `json:"actor_id"`
	Note    string `json:"note"`
}

func (h *Handler) handleSetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req setStockRequest
	if !h.decode(w, r, &req) {
		return
	}
	ing, err := h.service.SetStock(r.Context(), id, req.Value, req.ActorID, req.Note)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toIngredientResponse(ing))
}

type upsertUnitRequest struct {
	ID            int64  `json:"id"`
	UnitID        int64  `json:"unit_id" validate:"required,gt=0"`
	Ratio         int64  `json:"ratio" validate:"required,gt=0"`
	IsBaseUnit    bool   `json:"is_base_unit"`
	PurchasePrice *int64 `json:"purchase_price"`
	DisplayOrder  int    `json:"display_order"`
}

func (h *Handler) handleUpsertUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req upsertUnitRequest
	if !h.decode(w, r, &req) {
		return
	}
	ing, err := h.service.UpsertPurchaseUnit(r.Context(), id, PurchaseUnit{
		ID:            req.ID,
		IngredientID:  id,
		UnitID:        req.UnitID,
		Ratio:         req.Ratio,
		IsBaseUnit:    req.IsBaseUnit,
		PurchasePrice: req.PurchasePrice,
		DisplayOrder:  req.DisplayOrder,
		IsActive:      true,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toIngredientResponse(ing))
}

func (h *Handler) handleRemoveUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	unitID, ok := h.pathID(w, r, "unitID")
	if !ok {
		return
	}
	if err := h.service.RemovePurchaseUnit(r.Context(), id, unitID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleClearUnits(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.ClearPurchaseUnits(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	qty, err := strconv.ParseInt(r.URL.Query().Get("qty"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "qty must be an integer")
		return
	}
	unitID, err := strconv.ParseInt(r.URL.Query().Get("unit_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_id must be an integer")
		return
	}
	baseQty, err := h.service.ConvertToBase(r.Context(), id, qty, unitID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"base_qty": baseQty})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnitNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInvalidBaseUnitConversion),
		errors.Is(err, ErrDuplicateUnit),
		errors.Is(err, ErrMultipleBaseUnit),
		errors.Is(err, ErrCannotRemoveBaseUnit),
		errors.Is(err, ErrBaseUnitNotConfigured):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Business Rule Violation", err.Error())
	default:
		h.logger.Error("ingredient request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
