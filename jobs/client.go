package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

// Client submits jobs to the queue. It implements inventory.AlertPort.
type Client struct {
	client  *asynq.Client
	metrics *jobmetrics.Metrics
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisConnOpt, metrics *jobmetrics.Metrics) (*Client, error) {
	if redisOpts == nil {
		return nil, errors.New("jobs: redis options required")
	}
	return &Client{client: asynq.NewClient(redisOpts), metrics: metrics}, nil
}

// NotifyLowStock enqueues a low stock task. A report already queued for the
// product today is not an error.
func (c *Client) NotifyLowStock(ctx context.Context, evt inventory.LowStockEvent) error {
	source := "movement"
	if evt.MovementType == "" {
		source = "scan"
	}
	task, err := NewLowStockTask(evt, source)
	if err != nil {
		return err
	}
	_, err = c.enqueue(ctx, task)
	return err
}

// TriggerReorderScan queues a reorder scan outside the cron schedule.
func (c *Client) TriggerReorderScan(ctx context.Context, limit int) (*asynq.TaskInfo, error) {
	task, err := NewReorderScanTask(limit)
	if err != nil {
		return nil, err
	}
	return c.enqueue(ctx, task, asynq.MaxRetry(1))
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs: client not configured")
	}
	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		c.metrics.Enqueued(task.Type(), true)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.metrics.Enqueued(task.Type(), false)
	return info, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
