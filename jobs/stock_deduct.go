package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/restobase/restobase/internal/ingredient"
	jobmetrics "github.com/restobase/restobase/internal/jobs"
	"github.com/restobase/restobase/internal/recipe"
	"github.com/restobase/restobase/internal/shared"
)

// DeductionService describes the behaviour required to convert a
// confirmed order into a batched stock subtraction.
type DeductionService interface {
	ProcessAutomaticDeduction(ctx context.Context, orderRef string, orderItems []recipe.OrderLine) error
}

// StockDeductJob consumes TaskStockDeduct tasks.
type StockDeductJob struct {
	Service DeductionService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewStockDeductJob initialises the deduction handler.
func NewStockDeductJob(service DeductionService, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockDeductJob {
	return &StockDeductJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one deduction. Malformed payloads and business
// validation failures skip retries: re-running them cannot succeed.
func (j *StockDeductJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("stock deduct: handler not configured")
	}
	var payload StockDeductPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OrderRef == "" || len(payload.Items) == 0 {
		return asynq.SkipRetry
	}
	items := make([]recipe.OrderLine, 0, len(payload.Items))
	for _, it := range payload.Items {
		items = append(items, recipe.OrderLine{MenuItemID: it.MenuItemID, Qty: it.Qty})
	}

	start := j.clock()
	tracker := j.Metrics.Track(TaskStockDeduct)
	err := j.Service.ProcessAutomaticDeduction(ctx, payload.OrderRef, items)
	err = tracker.End(err)
	if err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			// Duplicate delivery after a successful run.
			j.Logger.Info("stock deduct already applied",
				slog.String("order_ref", payload.OrderRef))
			return nil
		}
		if errors.Is(err, recipe.ErrInvalidQuantity) ||
			errors.Is(err, ingredient.ErrInvalidQuantity) ||
			errors.Is(err, ingredient.ErrNotFound) {
			j.Logger.Warn("stock deduct rejected",
				slog.String("order_ref", payload.OrderRef),
				slog.Any("error", err))
			return asynq.SkipRetry
		}
		j.Logger.Error("stock deduct failed",
			slog.String("order_ref", payload.OrderRef),
			slog.Any("error", err))
		return err
	}
	j.Logger.Info("stock deduct applied",
		slog.String("order_ref", payload.OrderRef),
		slog.Int("items", len(items)),
		slog.Duration("took", j.clock().Sub(start)))
	return nil
}
