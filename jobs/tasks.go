package jobs

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStock reports one product at or below its reorder level.
	TaskLowStock = "inventory:low_stock"
	// TaskReorderScan walks every stock row below its reorder level.
	TaskReorderScan = "inventory:reorder_scan"
)

// LowStockPayload describes a product that needs reordering.
type LowStockPayload struct {
	ProductID       int64           `json:"product_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	ReorderLevel    decimal.Decimal `json:"reorder_level"`
	ReorderQuantity decimal.Decimal `json:"reorder_quantity"`
	MovementType    string          `json:"movement_type,omitempty"`
	Source          string          `json:"source"`
	At              time.Time       `json:"at"`
}

// ReorderScanPayload carries scheduling metadata.
type ReorderScanPayload struct {
	Limit int `json:"limit"`
}

// LowStockTaskID deduplicates low stock reports to one per product per day.
func LowStockTaskID(productID int64, at time.Time) string {
	return "low_stock:" + strconv.FormatInt(productID, 10) + ":" + at.UTC().Format("2006-01-02")
}

// NewLowStockTask constructs the task for evt. source is "movement" or "scan".
func NewLowStockTask(evt inventory.LowStockEvent, source string) (*asynq.Task, error) {
	if evt.ProductID <= 0 {
		return nil, fmt.Errorf("jobs: low stock task needs a product")
	}
	payload := LowStockPayload{
		ProductID:       evt.ProductID,
		Quantity:        evt.Quantity,
		ReorderLevel:    evt.ReorderLevel,
		ReorderQuantity: evt.ReorderQuantity,
		MovementType:    string(evt.MovementType),
		Source:          source,
		At:              evt.At,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStock, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(LowStockTaskID(evt.ProductID, evt.At)),
		asynq.Retention(24*time.Hour),
		asynq.MaxRetry(3),
	), nil
}

// NewReorderScanTask constructs the scheduled reorder scan.
func NewReorderScanTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(ReorderScanPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReorderScan, body, asynq.Queue(QueueDefault)), nil
}
