package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

// ReorderSource lists stock rows at or below their reorder level.
type ReorderSource interface {
	ReorderCandidates(ctx context.Context, limit int) ([]inventory.StockRecord, error)
}

// ReorderScanJob turns reorder candidates into low stock tasks.
type ReorderScanJob struct {
	Source  ReorderSource
	Alerts  inventory.AlertPort
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReorderScanJob initialises the reorder scan handler.
func NewReorderScanJob(source ReorderSource, alerts inventory.AlertPort, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReorderScanJob {
	return &ReorderScanJob{
		Source:  source,
		Alerts:  alerts,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan.
func (j *ReorderScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Source == nil || j.Alerts == nil {
		return errors.New("reorder scan: handler not configured")
	}
	var payload ReorderScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskReorderScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.clock()
	logger := j.logger().With(slog.Int("limit", payload.Limit))
	logger.Info("starting reorder scan")

	candidates, err := j.Source.ReorderCandidates(ctx, payload.Limit)
	if err != nil {
		logger.Error("reorder scan failed", slog.Any("error", err))
		return err
	}
	var failed int
	for _, stock := range candidates {
		evt := inventory.LowStockEventFor(stock, "", start)
		if err := j.Alerts.NotifyLowStock(ctx, evt); err != nil {
			failed++
			logger.Warn("enqueue low stock", slog.Int64("product_id", stock.ProductID), slog.Any("error", err))
		}
	}
	logger.Info("completed reorder scan",
		slog.Int("candidates", len(candidates)),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)),
	)
	if failed > 0 {
		return errors.New("reorder scan: some low stock tasks were not enqueued")
	}
	return nil
}

func (j *ReorderScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
