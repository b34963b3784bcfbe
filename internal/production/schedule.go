package production

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/mouldworks/mouldworks/internal/shared"
)

// withBoardLock serialises writes to one machine's day column so
// concurrent planners cannot hand out the same sequence number.
func (s *Service) withBoardLock(ctx context.Context, machineID int64, date time.Time, fn func(context.Context) error) error {
	if s.locks == nil {
		return fn(ctx)
	}
	return s.locks.WithLock(ctx, shared.ScheduleLockKey(machineID, date.Format("2006-01-02")), fn)
}

// WeekSchedule builds the machines-by-days planning grid for the week
// at the given offset from the current one. Offset zero is this week,
// negative offsets look back.
func (s *Service) WeekSchedule(ctx context.Context, offset int) (WeekSchedule, error) {
	now := time.Now()
	start := weekStart(now).AddDate(0, 0, offset*7)
	end := start.AddDate(0, 0, 6)

	machines, err := s.repo.ActiveMachines(ctx)
	if err != nil {
		return WeekSchedule{}, err
	}
	jobs, err := s.repo.JobsBetween(ctx, start, end)
	if err != nil {
		return WeekSchedule{}, err
	}
	unscheduled, err := s.repo.UnscheduledOrders(ctx)
	if err != nil {
		return WeekSchedule{}, err
	}

	days := make([]time.Time, 7)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}

	grid := make([]MachineSchedule, len(machines))
	rowFor := make(map[int64]int, len(machines))
	for i, m := range machines {
		row := MachineSchedule{MachineID: m.ID, MachineName: m.Name, Days: make([]DaySchedule, 7)}
		for d := range row.Days {
			row.Days[d] = DaySchedule{Date: days[d], Jobs: []ScheduledJob{}}
		}
		grid[i] = row
		rowFor[m.ID] = i
	}

	for _, job := range jobs {
		row, ok := rowFor[job.MachineID]
		if !ok {
			continue
		}
		day := daysUntil(start, job.ScheduledDate)
		if day < 0 || day > 6 {
			continue
		}
		grid[row].Days[day].Jobs = append(grid[row].Days[day].Jobs, s.decorateJob(job, now))
	}

	for i := range unscheduled {
		unscheduled[i] = s.decorate(unscheduled[i])
	}

	return WeekSchedule{
		WeekStart:   start,
		Days:        days,
		Machines:    grid,
		Unscheduled: unscheduled,
	}, nil
}

// weekStart returns the Monday of t's week at midnight UTC.
func weekStart(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -(weekday - 1))
}

// dateOnly drops the time of day.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ScheduleJob appends an open order to the end of a machine's day.
func (s *Service) ScheduleJob(ctx context.Context, req ScheduleJobRequest) (ScheduledJob, error) {
	if req.MachineID == 0 {
		return ScheduledJob{}, fmt.Errorf("production: machine required: %w", ErrValidation)
	}
	if req.Date.IsZero() {
		return ScheduledJob{}, fmt.Errorf("production: date required: %w", ErrValidation)
	}
	order, err := s.repo.GetOrder(ctx, req.OrderID)
	if err != nil {
		return ScheduledJob{}, err
	}
	if order.Status != OrderPlanned && order.Status != OrderInProgress {
		return ScheduledJob{}, ErrInvalidStatus
	}

	date := dateOnly(req.Date)
	hours := s.estimateHours(ctx, order)

	var job ScheduledJob
	err = s.withBoardLock(ctx, req.MachineID, date, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			max, err := tx.MaxSequence(ctx, req.MachineID, date)
			if err != nil {
				return err
			}
			job, err = tx.CreateJob(ctx, ScheduledJob{
				ProductionOrderID:      req.OrderID,
				MachineID:              req.MachineID,
				ScheduledDate:          date,
				SequenceOrder:          max + 1,
				EstimatedDurationHours: hours,
				Status:                 JobScheduled,
			})
			return err
		})
	})
	if err != nil {
		return ScheduledJob{}, err
	}
	s.recordAs(ctx, req.ActorID, "production.job_schedule", "scheduled_job", job.ID, map[string]any{
		"order_number": order.OrderNumber,
		"machine_id":   req.MachineID,
		"date":         date.Format("2006-01-02"),
	})
	return s.jobByID(ctx, job.ID)
}

// estimateHours predicts the run length from the current setup sheet,
// falling back to the mould and then the item's own cycle data.
func (s *Service) estimateHours(ctx context.Context, order ProductionOrder) float64 {
	var cycle float64
	var cavities int
	if s.moulds != nil && order.MouldID != nil {
		if c, cav, err := s.moulds.CycleTime(ctx, *order.MouldID, order.ItemID); err == nil {
			cycle, cavities = c, cav
		}
	}
	if cycle <= 0 || cavities <= 0 {
		if profile, err := s.repo.ItemProfile(ctx, order.ItemID); err == nil {
			if cycle <= 0 {
				cycle = profile.IdealCycleTime
			}
			if cavities <= 0 {
				cavities = profile.Cavities
			}
		}
	}
	if cycle <= 0 || cavities <= 0 {
		return 0
	}
	shots := float64(order.QuantityRequired) / float64(cavities)
	return math.Round(shots*cycle/3600*10) / 10
}

// MoveJob re-slots a scheduled job onto another machine or day.
// Sequence zero appends to the end of the target day.
func (s *Service) MoveJob(ctx context.Context, req MoveJobRequest) (ScheduledJob, error) {
	job, err := s.repo.GetJob(ctx, req.JobID)
	if err != nil {
		return ScheduledJob{}, err
	}
	if !job.CanMove() {
		return ScheduledJob{}, ErrInvalidStatus
	}
	machineID := req.MachineID
	if machineID == 0 {
		machineID = job.MachineID
	}
	date := job.ScheduledDate
	if !req.Date.IsZero() {
		date = dateOnly(req.Date)
	}
	err = s.withBoardLock(ctx, machineID, date, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			sequence := req.Sequence
			if sequence <= 0 {
				max, err := tx.MaxSequence(ctx, machineID, date)
				if err != nil {
					return err
				}
				sequence = max + 1
			}
			return tx.UpdateJobSlot(ctx, req.JobID, machineID, date, sequence)
		})
	})
	if err != nil {
		return ScheduledJob{}, err
	}
	s.recordAs(ctx, req.ActorID, "production.job_move", "scheduled_job", req.JobID, map[string]any{
		"order_number": job.OrderNumber,
		"machine_id":   machineID,
		"date":         date.Format("2006-01-02"),
	})
	return s.jobByID(ctx, req.JobID)
}

// UnscheduleJob takes a job back off the board. Only jobs that have not
// run can be removed.
func (s *Service) UnscheduleJob(ctx context.Context, jobID, actorID int64) error {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.CanMove() {
		return ErrInvalidStatus
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteJob(ctx, jobID)
	})
	if err != nil {
		return err
	}
	s.recordAs(ctx, actorID, "production.job_unschedule", "scheduled_job", jobID, map[string]any{
		"order_number": job.OrderNumber,
	})
	return nil
}

// StartJob puts a scheduled job live. A still-planned order starts with
// it, and the press picks up the order's mould.
func (s *Service) StartJob(ctx context.Context, jobID, actorID int64) (ScheduledJob, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return ScheduledJob{}, err
	}
	if !job.CanStart() {
		return ScheduledJob{}, ErrInvalidStatus
	}
	order, err := s.repo.GetOrder(ctx, job.ProductionOrderID)
	if err != nil {
		return ScheduledJob{}, err
	}
	if order.Status == OrderCompleted || order.Status == OrderCancelled {
		return ScheduledJob{}, ErrInvalidStatus
	}
	now := time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.StartJob(ctx, jobID, now); err != nil {
			return err
		}
		if order.CanStart() {
			if err := tx.StartOrder(ctx, order.ID, job.MachineID, now); err != nil {
				return err
			}
			if _, err := tx.InsertLog(ctx, ProductionLog{
				OrderID:   order.ID,
				MachineID: &job.MachineID,
				UserID:    actorID,
				LogType:   LogStart,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ScheduledJob{}, err
	}
	if s.machines != nil {
		if err := s.machines.MarkRunning(ctx, job.MachineID, order.MouldID, actorID); err != nil {
			return ScheduledJob{}, fmt.Errorf("mark machine running: %w", err)
		}
	}
	s.recordAs(ctx, actorID, "production.job_start", "scheduled_job", jobID, map[string]any{
		"order_number": order.OrderNumber,
		"machine_id":   job.MachineID,
	})
	return s.jobByID(ctx, jobID)
}

// CompleteJob records a job's output and routes it either into the
// sorting queue or straight into a stock location. The press goes idle
// with the mould left in, ready for the next run. The order completes
// itself once produced covers required.
func (s *Service) CompleteJob(ctx context.Context, req CompleteJobRequest) (ScheduledJob, error) {
	if req.QuantityProduced <= 0 {
		return ScheduledJob{}, fmt.Errorf("production: produced quantity must be positive: %w", ErrValidation)
	}
	toSorting := req.SortingType != ""
	toLocation := req.LocationID != nil
	if toSorting == toLocation {
		return ScheduledJob{}, fmt.Errorf("production: exactly one of sorting type or location required: %w", ErrValidation)
	}
	if toSorting && !IsValidSortingType(req.SortingType) {
		return ScheduledJob{}, fmt.Errorf("production: unknown sorting type %q: %w", req.SortingType, ErrValidation)
	}
	job, err := s.repo.GetJob(ctx, req.JobID)
	if err != nil {
		return ScheduledJob{}, err
	}
	if !job.CanComplete() {
		return ScheduledJob{}, ErrInvalidStatus
	}
	order, err := s.repo.GetOrder(ctx, job.ProductionOrderID)
	if err != nil {
		return ScheduledJob{}, err
	}
	if order.Status == OrderCompleted || order.Status == OrderCancelled {
		return ScheduledJob{}, ErrInvalidStatus
	}

	destination := "location:" + strconv.FormatInt(orZero(req.LocationID), 10)
	if toSorting {
		destination = "sorting:" + req.SortingType
	}
	goodDelta := int64(0)
	if toLocation {
		goodDelta = req.QuantityProduced
	}

	now := time.Now()
	autoCompleted := false
	err = s.mutate(ctx, req.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		// A job completed straight from scheduled still ran: bring the
		// order with it so the tallies land on a running order.
		if order.CanStart() {
			if err := tx.StartOrder(ctx, order.ID, job.MachineID, now); err != nil {
				return err
			}
			if _, err := tx.InsertLog(ctx, ProductionLog{
				OrderID:   order.ID,
				MachineID: &job.MachineID,
				UserID:    req.ActorID,
				LogType:   LogStart,
			}); err != nil {
				return err
			}
		}
		if err := tx.CompleteJob(ctx, req.JobID, now, destination, req.ActorID); err != nil {
			return err
		}
		if toSorting {
			jobID := req.JobID
			if _, err := tx.CreateTask(ctx, SortingTask{
				ProductionOrderID: order.ID,
				ScheduledJobID:    &jobID,
				ItemID:            order.ItemID,
				SortingType:       req.SortingType,
				EstimatedQuantity: req.QuantityProduced,
				Status:            SortingPending,
			}); err != nil {
				return err
			}
		}
		produced, required, err := tx.AddQuantities(ctx, order.ID, req.QuantityProduced, goodDelta, 0)
		if err != nil {
			return err
		}
		if _, err := tx.InsertLog(ctx, ProductionLog{
			OrderID:   order.ID,
			MachineID: &job.MachineID,
			UserID:    req.ActorID,
			LogType:   LogQuantityUpdate,
			Quantity:  req.QuantityProduced,
		}); err != nil {
			return err
		}
		if produced >= required {
			autoCompleted = true
			if err := tx.CompleteOrder(ctx, order.ID, now); err != nil {
				return err
			}
			if _, err := tx.InsertLog(ctx, ProductionLog{
				OrderID:   order.ID,
				MachineID: &job.MachineID,
				UserID:    req.ActorID,
				LogType:   LogStop,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ScheduledJob{}, err
	}

	// The mould stays in the press between jobs; only an explicit order
	// completion pulls it.
	if s.machines != nil {
		if err := s.machines.MarkIdle(ctx, job.MachineID, false, req.ActorID); err != nil {
			return ScheduledJob{}, fmt.Errorf("mark machine idle: %w", err)
		}
	}
	if autoCompleted && s.moulds != nil && order.MouldID != nil {
		produced := order.QuantityProduced + req.QuantityProduced
		shots := produced / int64(s.cavitiesFor(ctx, order))
		if shots > 0 {
			if err := s.moulds.AddShots(ctx, *order.MouldID, shots, req.ActorID); err != nil {
				return ScheduledJob{}, fmt.Errorf("add mould shots: %w", err)
			}
		}
	}
	if toLocation && s.inventory != nil {
		err := s.inventory.ReceiveProduction(ctx, ProductionReceipt{
			ItemID:         order.ItemID,
			LocationID:     *req.LocationID,
			Quantity:       req.QuantityProduced,
			BatchNumber:    order.BatchNumber,
			Reference:      order.OrderNumber,
			Notes:          "Production output",
			ActorID:        req.ActorID,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			return ScheduledJob{}, fmt.Errorf("receive production output: %w", err)
		}
	}
	s.recordAs(ctx, req.ActorID, "production.job_complete", "scheduled_job", req.JobID, map[string]any{
		"order_number": order.OrderNumber,
		"quantity":     req.QuantityProduced,
		"destination":  destination,
	})
	return s.jobByID(ctx, req.JobID)
}

// jobByID re-reads a job with urgency flags set.
func (s *Service) jobByID(ctx context.Context, id int64) (ScheduledJob, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return ScheduledJob{}, err
	}
	return s.decorateJob(job, time.Now()), nil
}

func orZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
