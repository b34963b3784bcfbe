package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mouldworks/mouldworks/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskLowStockScan walks active items and raises reorder alerts.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskMouldMaintenanceScan flags moulds past their service thresholds.
	TaskMouldMaintenanceScan = "moulds:maintenance_scan"
	// TaskOEERollup pre-computes the plant OEE document into Redis.
	TaskOEERollup = "oee:daily_rollup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks. SMTP delivery is
// stubbed: the payload is logged so Mailpit setups can be swapped in later
// without changing enqueue sites.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.Default().Info("send email",
		slog.String("job", TaskTypeSendEmail),
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject))
	return nil
}
