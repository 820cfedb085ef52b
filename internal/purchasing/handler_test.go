package purchasing

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/restobase/restobase/internal/ingredient"
	"github.com/restobase/restobase/internal/shared"
)

type failingLedger struct {
	err error
}

func (l *failingLedger) ApplyStockChanges(ctx context.Context, ref string, changes []ingredient.StockChange) error {
	return l.err
}

func newTestRouter(svc *Service) chi.Router {
	h := NewHandler(slog.New(slog.DiscardHandler), svc)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestHandleReceiveRetriedReceiptConflicts(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	svc := NewService(repo, &failingLedger{err: shared.ErrIdempotencyConflict}, nil)
	router := newTestRouter(svc)

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		Number: "PI-0100",
		Items:  []ItemInput{{IngredientID: 1, Qty: 1, BaseUnitQty: 24, TotalPrice: 50000}},
	})
	require.NoError(t, err)

	// A receive whose batch ref was already consumed reports 409,
	// never an internal error.
	req := httptest.NewRequest(http.MethodPost, "/invoices/1/receive", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleReceiveMissingInvoice(t *testing.T) {
	svc := NewService(newMemoryInvoiceRepo(), &recordingLedger{}, nil)
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/invoices/42/receive", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
