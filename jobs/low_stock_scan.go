package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mouldworks/mouldworks/internal/inventory"
	jobmetrics "github.com/mouldworks/mouldworks/internal/jobs"
)

// LowStockScanPayload tunes a single low stock scan run.
type LowStockScanPayload struct {
	// DryRun reports the breaches without enqueuing alert emails.
	DryRun bool `json:"dry_run"`
}

// NewLowStockScanTask constructs an Asynq task for the nightly reorder scan.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}

// LowStockLister yields active items at or below their reorder point.
type LowStockLister interface {
	LowStockItems(ctx context.Context) ([]inventory.Item, error)
}

// EmailEnqueuer submits mail:send tasks to the queue.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// LowStockScanJob emits one reorder alert per breached item to the purchasing
// address.
type LowStockScanJob struct {
	Inventory       LowStockLister
	Mailer          EmailEnqueuer
	PurchasingEmail string
	Logger          *slog.Logger
	Metrics         *jobmetrics.Metrics
	clock           func() time.Time
}

// NewLowStockScanJob wires dependencies for the low stock scan handler.
func NewLowStockScanJob(inv LowStockLister, mailer EmailEnqueuer, purchasingEmail string, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{
		Inventory:       inv,
		Mailer:          mailer,
		PurchasingEmail: purchasingEmail,
		Logger:          logger,
		Metrics:         metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskLowStockScan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskLowStockScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting low stock scan", slog.Bool("dry_run", payload.DryRun))

	items, err := j.Inventory.LowStockItems(ctx)
	if err != nil {
		resultErr = err
		logger.Error("list low stock items", slog.Any("error", err))
		return resultErr
	}
	j.metrics().SetLowStock("all", len(items))
	if len(items) == 0 {
		logger.Info("no items below reorder point")
		return resultErr
	}

	alerted := 0
	for _, item := range items {
		if payload.DryRun || j.Mailer == nil || j.PurchasingEmail == "" {
			continue
		}
		mail := SendEmailPayload{
			To:      j.PurchasingEmail,
			Subject: fmt.Sprintf("Low stock: %s %s", item.SKU, item.Name),
			Body: fmt.Sprintf("%s (%s) is at %.2f %s, reorder point %.2f. Please raise a purchase order.",
				item.Name, item.SKU, item.TotalStock, item.UnitOfMeasure, item.ReorderPoint),
		}
		if _, err := j.Mailer.EnqueueSendEmail(ctx, mail); err != nil {
			resultErr = err
			logger.Error("enqueue reorder alert", slog.String("sku", item.SKU), slog.Any("error", err))
			return resultErr
		}
		alerted++
	}

	logger.Info("completed low stock scan",
		slog.Int("breaches", len(items)),
		slog.Int("alerts", alerted),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LowStockScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
