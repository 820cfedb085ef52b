package recipe

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/restobase/restobase/internal/platform/httpx"
)

// DeductionEnqueuer hands a confirmed order to the background queue.
type DeductionEnqueuer interface {
	EnqueueDeduction(ctx context.Context, orderRef string, items []OrderLine) error
}

// Handler wires HTTP endpoints for availability and recipe reads.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	enqueuer  DeductionEnqueuer
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. The enqueuer may be nil;
// deductions then run synchronously in the request.
func NewHandler(logger *slog.Logger, service *Service, enqueuer DeductionEnqueuer) *Handler {
	return &Handler{logger: logger, service: service, enqueuer: enqueuer, validator: validator.New()}
}

// MountRoutes registers recipe routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/menu-items", func(r chi.Router) {
		r.Get("/{id}/availability", h.handleAvailability)
		r.Get("/{id}/max-producible", h.handleMaxProducible)
		r.Post("/max-producible", h.handleMaxProducibleBatch)
		r.Get("/{id}/recipe", h.handleGetRecipe)
	})
	r.Post("/orders/deductions", h.handleDeduction)
}

type availabilityResponse struct {
	MenuItemID int64      `json:"menu_item_id"`
	Qty        int64      `json:"qty"`
	Available  bool       `json:"available"`
	Shortages  []Shortage `json:"shortages"`
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	qty := int64(1)
	if raw := r.URL.Query().Get("qty"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "qty must be an integer")
			return
		}
		qty = parsed
	}
	shortages, err := h.service.CheckAvailability(r.Context(), id, qty)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if shortages == nil {
		shortages = []Shortage{}
	}
	httpx.JSON(w, http.StatusOK, availabilityResponse{
		MenuItemID: id,
		Qty:        qty,
		Available:  len(shortages) == 0,
		Shortages:  shortages,
	})
}

type maxProducibleResponse struct {
	MenuItemID    int64 `json:"menu_item_id"`
	MaxProducible int64 `json:"max_producible"`
	Unlimited     bool  `json:"unlimited"`
}

func toMaxProducibleResponse(id, qty int64) maxProducibleResponse {
	if qty == Unbounded {
		return maxProducibleResponse{MenuItemID: id, Unlimited: true}
	}
	return maxProducibleResponse{MenuItemID: id, MaxProducible: qty}
}

func (h *Handler) handleMaxProducible(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	qty, err := h.service.MaxProducibleQuantity(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMaxProducibleResponse(id, qty))
}

type maxProducibleBatchRequest struct {
	MenuItemIDs []int64 `json:"menu_item_ids" validate:"required,min=1,dive,gt=0"`
}

func (h *Handler) handleMaxProducibleBatch(w http.ResponseWriter, r *http.Request) {
	var req maxProducibleBatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	quantities, err := h.service.MaxProducibleQuantities(r.Context(), req.MenuItemIDs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]maxProducibleResponse, 0, len(req.MenuItemIDs))
	for _, id := range req.MenuItemIDs {
		out = append(out, toMaxProducibleResponse(id, quantities[id]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.GetRecipe(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"menu_item_id": id,
		"entries":      entries,
	})
}

type deductionRequest struct {
	OrderRef string      `json:"order_ref" validate:"required"`
	Items    []OrderLine `json:"items" validate:"required,min=1"`
}

func (h *Handler) handleDeduction(w http.ResponseWriter, r *http.Request) {
	var req deductionRequest
	if !h.decode(w, r, &req) {
		return
	}
	for _, it := range req.Items {
		if it.MenuItemID <= 0 || it.Qty <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "items need positive menu_item_id and qty")
			return
		}
	}
	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueDeduction(r.Context(), req.OrderRef, req.Items); err != nil {
			h.logger.Error("enqueue deduction", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "deduction could not be enqueued")
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"order_ref": req.OrderRef, "status": "enqueued"})
		return
	}
	if err := h.service.ProcessAutomaticDeduction(r.Context(), req.OrderRef, req.Items); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"order_ref": req.OrderRef, "status": "applied"})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
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
	case errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("recipe request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
