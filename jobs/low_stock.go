package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

// LowStockJob logs a reorder suggestion for each reported product.
type LowStockJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockJob initialises the low stock handler.
func NewLowStockJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockJob {
	return &LowStockJob{Logger: logger, Metrics: metrics}
}

// Handle processes TaskLowStock tasks.
func (j *LowStockJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("low stock: handler not configured")
	}
	var payload LowStockPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskLowStock)
	suggested := SuggestedReorder(payload)
	j.logger().Warn("stock at or below reorder level",
		slog.Int64("product_id", payload.ProductID),
		slog.String("quantity", payload.Quantity.String()),
		slog.String("reorder_level", payload.ReorderLevel.String()),
		slog.String("suggested_order", suggested.String()),
		slog.String("source", payload.Source),
	)
	j.Metrics.AddLowStock(1)
	return tracker.End(nil)
}

// SuggestedReorder is the configured reorder quantity, or enough to get back
// to twice the reorder level when none is configured.
func SuggestedReorder(p LowStockPayload) decimal.Decimal {
	if p.ReorderQuantity.IsPositive() {
		return p.ReorderQuantity
	}
	gap := p.ReorderLevel.Mul(decimal.NewFromInt(2)).Sub(p.Quantity)
	if gap.IsNegative() {
		return decimal.Zero
	}
	return gap
}

func (j *LowStockJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
