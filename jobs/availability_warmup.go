package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/restobase/restobase/internal/jobs"
)

// AvailabilityService computes producible quantities for menu items.
type AvailabilityService interface {
	MaxProducibleQuantities(ctx context.Context, menuItemIDs []int64) (map[int64]int64, error)
}

// MenuRepository lists the menu items that have recipes configured.
type MenuRepository interface {
	ListMenuItemIDs(ctx context.Context) ([]int64, error)
}

// AvailabilityWarmupJob recomputes producible quantities for every
// recipe so availability reads hit a warm cache.
type AvailabilityWarmupJob struct {
	Service AvailabilityService
	Repo    MenuRepository
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAvailabilityWarmupJob initialises the warmup handler.
func NewAvailabilityWarmupJob(service AvailabilityService, repo MenuRepository, logger *slog.Logger, metrics *jobmetrics.Metrics) *AvailabilityWarmupJob {
	return &AvailabilityWarmupJob{
		Service: service,
		Repo:    repo,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one warmup sweep.
func (j *AvailabilityWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil || j.Repo == nil {
		return errors.New("availability warmup: handler not configured")
	}
	start := j.clock()
	tracker := j.Metrics.Track(TaskAvailabilityWarmup)
	err := j.run(ctx)
	if err = tracker.End(err); err != nil {
		j.Logger.Error("availability warmup failed", slog.Any("error", err))
		return err
	}
	j.Logger.Info("availability warmup done",
		slog.Duration("took", j.clock().Sub(start)))
	return nil
}

func (j *AvailabilityWarmupJob) run(ctx context.Context) error {
	ids, err := j.Repo.ListMenuItemIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = j.Service.MaxProducibleQuantities(ctx, ids)
	return err
}
