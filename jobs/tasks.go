package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockDeduct deducts recipe ingredients after an order is confirmed.
	TaskStockDeduct = "stock:deduct"
	// TaskAvailabilityWarmup precomputes producible quantities into the cache.
	TaskAvailabilityWarmup = "availability:warmup"
)

// OrderItem is one confirmed order line inside a deduction payload.
type OrderItem struct {
	MenuItemID int64 `json:"menu_item_id"`
	Qty        int64 `json:"qty"`
}

// StockDeductPayload describes a confirmed order whose recipe
// ingredients must be deducted from stock.
type StockDeductPayload struct {
	OrderRef string      `json:"order_ref"`
	Items    []OrderItem `json:"items"`
}

// NewStockDeductTask constructs an Asynq task for order deduction.
func NewStockDeductTask(payload StockDeductPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockDeduct, data), nil
}

// NewAvailabilityWarmupTask constructs the cache warmup task. The
// payload is empty: the job discovers menu items itself.
func NewAvailabilityWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskAvailabilityWarmup, nil)
}
