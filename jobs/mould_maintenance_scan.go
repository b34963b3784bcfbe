package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mouldworks/mouldworks/internal/jobs"
	"github.com/mouldworks/mouldworks/internal/masterdata/moulds"
	mdshared "github.com/mouldworks/mouldworks/internal/masterdata/shared"
)

// MouldMaintenanceScanPayload tunes a single maintenance scan run.
type MouldMaintenanceScanPayload struct {
	// DryRun reports due moulds without enqueuing the summary email.
	DryRun bool `json:"dry_run"`
}

// NewMouldMaintenanceScanTask constructs an Asynq task for the nightly mould scan.
func NewMouldMaintenanceScanTask(payload MouldMaintenanceScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMouldMaintenanceScan, data), nil
}

// MouldCatalog pages the mould register. List is expected to populate the
// maintenance-due flag on each record.
type MouldCatalog interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]moulds.Mould, int, error)
}

// MouldMaintenanceScanJob flags moulds past their shot or date service
// thresholds and mails a summary to the toolroom.
type MouldMaintenanceScanJob struct {
	Moulds       MouldCatalog
	Mailer       EmailEnqueuer
	ToolroomMail string
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	clock        func() time.Time
}

// NewMouldMaintenanceScanJob wires dependencies for the maintenance scan handler.
func NewMouldMaintenanceScanJob(catalog MouldCatalog, mailer EmailEnqueuer, toolroomMail string, logger *slog.Logger, metrics *jobmetrics.Metrics) *MouldMaintenanceScanJob {
	return &MouldMaintenanceScanJob{
		Moulds:       catalog,
		Mailer:       mailer,
		ToolroomMail: toolroomMail,
		Logger:       logger,
		Metrics:      metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskMouldMaintenanceScan tasks.
func (j *MouldMaintenanceScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("mould maintenance scan: handler not configured")
	}
	var payload MouldMaintenanceScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskMouldMaintenanceScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting mould maintenance scan", slog.Bool("dry_run", payload.DryRun))

	due, err := j.collectDue(ctx)
	if err != nil {
		resultErr = err
		logger.Error("list moulds", slog.Any("error", err))
		return resultErr
	}
	if len(due) == 0 {
		logger.Info("no moulds due for maintenance")
		return resultErr
	}

	for _, m := range due {
		logger.Warn("mould maintenance due",
			slog.String("mould", m.MouldNumber),
			slog.Int64("shots_since_maintenance", m.ShotsSinceMaintenance),
			slog.Int64("interval_shots", m.MaintenanceIntervalShots))
	}

	if !payload.DryRun && j.Mailer != nil && j.ToolroomMail != "" {
		mail := SendEmailPayload{
			To:      j.ToolroomMail,
			Subject: fmt.Sprintf("%d mould(s) due for maintenance", len(due)),
			Body:    summariseDueMoulds(due, start),
		}
		if _, err := j.Mailer.EnqueueSendEmail(ctx, mail); err != nil {
			resultErr = err
			logger.Error("enqueue maintenance summary", slog.Any("error", err))
			return resultErr
		}
	}

	logger.Info("completed mould maintenance scan",
		slog.Int("due", len(due)),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *MouldMaintenanceScanJob) collectDue(ctx context.Context) ([]moulds.Mould, error) {
	active := true
	due := make([]moulds.Mould, 0)
	for page := 1; ; page++ {
		batch, total, err := j.Moulds.List(ctx, mdshared.ListFilters{
			Page:     page,
			Limit:    mdshared.MaxLimit,
			IsActive: &active,
		})
		if err != nil {
			return nil, err
		}
		for _, m := range batch {
			if m.IsMaintenanceDue {
				due = append(due, m)
			}
		}
		if len(batch) == 0 || page*mdshared.MaxLimit >= total {
			break
		}
	}
	return due, nil
}

func summariseDueMoulds(due []moulds.Mould, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Maintenance check run %s.\n\n", now.Format("2006-01-02"))
	for _, m := range due {
		fmt.Fprintf(&b, "%s %s: %d shots since last service (interval %d)",
			m.MouldNumber, m.Name, m.ShotsSinceMaintenance, m.MaintenanceIntervalShots)
		if m.NextMaintenanceDate != nil {
			fmt.Fprintf(&b, ", next service was due %s", m.NextMaintenanceDate.Format("2006-01-02"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (j *MouldMaintenanceScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskMouldMaintenanceScan))
	}
	return slog.Default().With(slog.String("job", TaskMouldMaintenanceScan))
}

func (j *MouldMaintenanceScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *MouldMaintenanceScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
