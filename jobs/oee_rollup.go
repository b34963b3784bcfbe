package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mouldworks/mouldworks/internal/jobs"
	"github.com/mouldworks/mouldworks/internal/oee"
)

// OEERollupPayload pins the rollup to a specific date (YYYY-MM-DD). Empty
// means the current day.
type OEERollupPayload struct {
	Date string `json:"date"`
}

// NewOEERollupTask constructs an Asynq task for the nightly OEE rollup.
func NewOEERollupTask(payload OEERollupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOEERollup, data), nil
}

// OEESource computes the plant OEE dashboard as of a point in time.
type OEESource interface {
	Dashboard(ctx context.Context, now time.Time) (oee.Dashboard, error)
}

// RollupCache stores the pre-computed document for dashboard reads.
type RollupCache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	Put(ctx context.Context, key string, value any) error
}

// OEERollupJob pre-computes the plant OEE document into Redis so the morning
// dashboard load skips the shift-log aggregation.
type OEERollupJob struct {
	OEE     OEESource
	Cache   RollupCache
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOEERollupJob wires dependencies for the rollup handler.
func NewOEERollupJob(source OEESource, cache RollupCache, logger *slog.Logger, metrics *jobmetrics.Metrics) *OEERollupJob {
	return &OEERollupJob{
		OEE:     source,
		Cache:   cache,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskOEERollup tasks.
func (j *OEERollupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("oee rollup: handler not configured")
	}
	var payload OEERollupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	asOf := j.now()
	if payload.Date != "" {
		parsed, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			return asynq.SkipRetry
		}
		// Roll up as of end of the requested day.
		asOf = parsed.Add(24*time.Hour - time.Second)
	}

	start := j.now()
	tracker := j.metrics().Track(TaskOEERollup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("as_of", asOf.Format("2006-01-02")))
	logger.Info("starting oee rollup")

	dashboard, err := j.OEE.Dashboard(ctx, asOf)
	if err != nil {
		resultErr = err
		logger.Error("compute plant oee", slog.Any("error", err))
		return resultErr
	}

	if j.Cache != nil {
		key, err := j.Cache.BuildKey(ctx, "oee", "plant")
		if err != nil {
			resultErr = err
			logger.Error("build rollup key", slog.Any("error", err))
			return resultErr
		}
		if err := j.Cache.Put(ctx, key, dashboard); err != nil {
			resultErr = err
			logger.Error("store rollup", slog.Any("error", err))
			return resultErr
		}
	}

	logger.Info("completed oee rollup",
		slog.Float64("plant_oee_percent", dashboard.PlantOEEPercent),
		slog.Int("machines", len(dashboard.Machines)),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *OEERollupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOEERollup))
	}
	return slog.Default().With(slog.String("job", TaskOEERollup))
}

func (j *OEERollupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *OEERollupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
