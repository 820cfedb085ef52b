package purchasing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/restobase/restobase/internal/platform/httpx"
	"github.com/restobase/restobase/internal/shared"
)

// Handler wires HTTP endpoints for purchase invoices.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers purchasing routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}/items", h.handleUpdateItems)
		r.Delete("/{id}", h.handleDelete)
		r.Post("/{id}/receive", h.handleReceive)
	})
}

type itemRequest struct {
	ID             int64  `json:"id"`
	IngredientID   int64  `json:"ingredient_id" validate:"required,gt=0"`
	Qty            int64  `json:"qty" validate:"required,gt=0"`
	PurchaseUnitID int64  `json:"purchase_unit_id" validate:"required,gt=0"`
	BaseUnitQty    int64  `json:"base_unit_qty" validate:"required,gt=0"`
	TotalPrice     int64  `json:"total_price" validate:"gte=0"`
	UnitPrice      *int64 `json:"unit_price"`
	DisplayOrder   int    `json:"display_order"`
	SupplierInfo   string `json:"supplier_info"`
	Notes          string `json:"notes"`
}

func itemInputs(items []itemRequest) []ItemInput {
	out := make([]ItemInput, 0, len(items))
	for _, it := range items {
		out = append(out, ItemInput{
			ID:             it.ID,
			IngredientID:   it.IngredientID,
			Qty:            it.Qty,
			PurchaseUnitID: it.PurchaseUnitID,
			BaseUnitQty:    it.BaseUnitQty,
			TotalPrice:     it.TotalPrice,
			UnitPrice:      it.UnitPrice,
			DisplayOrder:   it.DisplayOrder,
			SupplierInfo:   it.SupplierInfo,
			Notes:          it.Notes,
		})
	}
	return out
}

type itemResponse struct {
	ID             int64  `json:"id"`
	IngredientID   int64  `json:"ingredient_id"`
	Qty            int64  `json:"qty"`
	PurchaseUnitID int64  `json:"purchase_unit_id"`
	BaseUnitQty    int64  `json:"base_unit_qty"`
	TotalPrice     int64  `json:"total_price"`
	UnitPrice      *int64 `json:"unit_price,omitempty"`
	DisplayOrder   int    `json:"display_order"`
	SupplierInfo   string `json:"supplier_info,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

type invoiceResponse struct {
	ID            int64          `json:"id"`
	Number        string         `json:"number"`
	InvoiceDateID int64          `json:"invoice_date_id"`
	TotalAmount   int64          `json:"total_amount"`
	Notes         string         `json:"notes,omitempty"`
	CreatedAt     string         `json:"created_at"`
	Editable      bool           `json:"editable"`
	Items         []itemResponse `json:"items"`
}

func (h *Handler) toInvoiceResponse(inv PurchaseInvoice) invoiceResponse {
	items := make([]itemResponse, 0, len(inv.Items))
	for _, it := range inv.Items {
		items = append(items, itemResponse{
			ID:             it.ID,
			IngredientID:   it.IngredientID,
			Qty:            it.Qty,
			PurchaseUnitID: it.PurchaseUnitID,
			BaseUnitQty:    it.BaseUnitQty,
			TotalPrice:     it.TotalPrice,
			UnitPrice:      it.UnitPrice,
			DisplayOrder:   it.DisplayOrder,
			SupplierInfo:   it.SupplierInfo,
			Notes:          it.Notes,
		})
	}
	return invoiceResponse{
		ID:            inv.ID,
		Number:        inv.Number,
		InvoiceDateID: inv.InvoiceDateID,
		TotalAmount:   inv.TotalAmount,
		Notes:         inv.Notes,
		CreatedAt:     inv.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Editable:      inv.CanEditAt(h.service.now()),
		Items:         items,
	}
}

type createInvoiceRequest struct {
	Number        string        `json:"number"`
	InvoiceDateID int64         `json:"invoice_date_id" validate:"required,gt=0"`
	Notes         string        `json:"notes"`
	ActorID       int64         `json:"actor_id"`
	Items         []itemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), CreateInvoiceInput{
		Number:        req.Number,
		InvoiceDateID: req.InvoiceDateID,
		Notes:         req.Notes,
		Items:         itemInputs(req.Items),
		ActorID:       req.ActorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.toInvoiceResponse(inv))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toInvoiceResponse(inv))
}

type updateItemsRequest struct {
	ActorID int64         `json:"actor_id"`
	Items   []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type updateItemsResponse struct {
	Invoice invoiceResponse `json:"invoice"`
	Added   []int64         `json:"added_item_ids"`
	Removed []int64         `json:"removed_item_ids"`
}

func (h *Handler) handleUpdateItems(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateItemsRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, added, removed, err := h.service.UpdateInvoiceItems(r.Context(), id, itemInputs(req.Items), req.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if added == nil {
		added = []int64{}
	}
	if removed == nil {
		removed = []int64{}
	}
	httpx.JSON(w, http.StatusOK, updateItemsResponse{
		Invoice: h.toInvoiceResponse(inv),
		Added:   added,
		Removed: removed,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	actorID, _ := strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
	if err := h.service.DeleteInvoice(r.Context(), id, actorID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

type receiveRequest struct {
	ActorID int64 `json:"actor_id"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.service.ReceiveInvoice(r.Context(), id, req.ActorID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
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
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateNumber):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrEditWindowExpired):
		httpx.Problem(w, http.StatusConflict, "Edit Window Expired", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		// A retried receive already succeeded once.
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidTotalPrice):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvoiceItemNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Business Rule Violation", err.Error())
	default:
		h.logger.Error("purchasing request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
