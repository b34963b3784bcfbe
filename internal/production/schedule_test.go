package production

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mouldworks/mouldworks/internal/shared"
)

func TestScheduleJobAppendsSequenceAndEstimates(t *testing.T) {
	svc, _, _, _, moulds := newTestService()
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 6000, ActorID: 2})
	require.NoError(t, err)
	day := dateOnly(time.Now().AddDate(0, 0, 1))

	job, err := svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: order.ID, MachineID: 1, Date: day, ActorID: 2})
	require.NoError(t, err)
	require.Equal(t, 1, job.SequenceOrder)
	require.True(t, job.ScheduledDate.Equal(day))
	// 6000 parts over 4 cavities at 30s a shot.
	require.Equal(t, 12.5, job.EstimatedDurationHours)
	require.Equal(t, JobScheduled, job.Status)
	require.Equal(t, order.OrderNumber, job.OrderNumber)

	small, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 100, ActorID: 2})
	require.NoError(t, err)
	second, err := svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: small.ID, MachineID: 1, Date: day, ActorID: 2})
	require.NoError(t, err)
	require.Equal(t, 2, second.SequenceOrder)
	require.Equal(t, 0.2, second.EstimatedDurationHours)

	otherDay, err := svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: small.ID, MachineID: 1, Date: day.AddDate(0, 0, 1), ActorID: 2})
	require.NoError(t, err)
	require.Equal(t, 1, otherDay.SequenceOrder)

	// No setup sheet or mould data falls back to the item's cycle.
	moulds.err = errors.New("no setup sheet")
	fallback, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 6000, ActorID: 2})
	require.NoError(t, err)
	fbJob, err := svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: fallback.ID, MachineID: 2, Date: day, ActorID: 2})
	require.NoError(t, err)
	require.Equal(t, 10.4, fbJob.EstimatedDurationHours)
	moulds.err = nil

	_, err = svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: order.ID, MachineID: 0, Date: day})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: order.ID, MachineID: 1})
	require.ErrorIs(t, err, ErrValidation)

	cancelled, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 10, ActorID: 2})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, cancelled.ID, 2)
	require.NoError(t, err)
	_, err = svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: cancelled.ID, MachineID: 1, Date: day})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestWeekScheduleGridPlacement(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	ctx := context.Background()
	start := weekStart(time.Now())

	dueSoon := time.Now().AddDate(0, 0, 1)
	orderA, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 4000, DueDate: &dueSoon, ActorID: 2})
	require.NoError(t, err)
	dueLater := time.Now().AddDate(0, 0, 4)
	orderB, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 2000, DueDate: &dueLater, ActorID: 2})
	require.NoError(t, err)
	orderC, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 1000, ActorID: 2})
	require.NoError(t, err)
	orderD, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 500, ActorID: 2})
	require.NoError(t, err)

	_, err = svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: orderA.ID, MachineID: 1, Date: start, ActorID: 2})
	require.NoError(t, err)
	_, err = svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: orderB.ID, MachineID: 1, Date: start, ActorID: 2})
	require.NoError(t, err)
	_, err = svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: orderD.ID, MachineID: 2, Date: start.AddDate(0, 0, 7), ActorID: 2})
	require.NoError(t, err)

	week, err := svc.WeekSchedule(ctx, 0)
	require.NoError(t, err)
	require.True(t, week.WeekStart.Equal(start))
	require.Len(t, week.Days, 7)
	require.True(t, week.Days[6].Equal(start.AddDate(0, 0, 6)))
	require.Len(t, week.Machines, 2)
	require.Equal(t, "Press 1", week.Machines[0].MachineName)

	monday := week.Machines[0].Days[0].Jobs
	require.Len(t, monday, 2)
	require.Equal(t, orderA.OrderNumber, monday[0].OrderNumber)
	require.Equal(t, orderB.OrderNumber, monday[1].OrderNumber)
	require.Equal(t, "CAP-60", monday[0].ItemSKU)
	require.True(t, monday[0].IsUrgent)
	require.False(t, monday[0].IsWarning)
	require.True(t, monday[1].IsWarning)

	// Next week's job stays off this week's board.
	for _, d := range week.Machines[1].Days {
		require.Empty(t, d.Jobs)
	}

	require.Len(t, week.Unscheduled, 1)
	require.Equal(t, orderC.OrderNumber, week.Unscheduled[0].OrderNumber)

	next, err := svc.WeekSchedule(ctx, 1)
	require.NoError(t, err)
	require.True(t, next.WeekStart.Equal(start.AddDate(0, 0, 7)))
	require.Len(t, next.Machines[1].Days[0].Jobs, 1)
	require.Equal(t, orderD.OrderNumber, next.Machines[1].Days[0].Jobs[0].OrderNumber)
}

func TestJobLifecycleCascades(t *testing.T) {
	svc, _, inv, machines, _ := newTestService()
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 6000, ActorID: 3})
	require.NoError(t, err)
	job, err := svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: order.ID, MachineID: 1, Date: time.Now(), ActorID: 3})
	require.NoError(t, err)

	started, err := svc.StartJob(ctx, job.ID, 3)
	require.NoError(t, err)
	require.Equal(t, JobInProgress, started.Status)
	require.NotNil(t, started.ActualStart)
	require.Equal(t, OrderInProgress, started.OrderStatus)
	require.Equal(t, "running", machines.status[1])
	require.Equal(t, int64(7), machines.mould[1])

	_, err = svc.StartJob(ctx, job.ID, 3)
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.CompleteJob(ctx, CompleteJobRequest{JobID: job.ID, QuantityProduced: 0, SortingType: SortCounting})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CompleteJob(ctx, CompleteJobRequest{JobID: job.ID, QuantityProduced: 10})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CompleteJob(ctx, CompleteJobRequest{JobID: job.ID, QuantityProduced: 10, SortingType: SortCounting, LocationID: int64Ptr(4)})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CompleteJob(ctx, CompleteJobRequest{JobID: job.ID, QuantityProduced: 10, SortingType: "polishing"})
	require.ErrorIs(t, err, ErrValidation)

	done, err := svc.CompleteJob(ctx, CompleteJobRequest{
		JobID:            job.ID,
		QuantityProduced: 2000,
		SortingType:      SortCounting,
		ActorID:          3,
	})
	require.NoError(t, err)
	require.Equal(t, JobCompleted, done.Status)
	require.Equal(t, "sorting:counting", done.OutputDestination)
	require.NotNil(t, done.ActualEnd)

	// Output went to the queue, so the tallies gain produced but no good
	// parts yet, and the order keeps running.
	current, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderInProgress, current.Status)
	require.Equal(t, int64(2000), current.QuantityProduced)
	require.Zero(t, current.QuantityGood)

	tasks, err := svc.SortingQueue(ctx, TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, SortCounting, tasks[0].SortingType)
	require.Equal(t, int64(2000), tasks[0].EstimatedQuantity)
	require.Equal(t, job.ID, *tasks[0].ScheduledJobID)

	// The press idles between jobs but keeps the mould in.
	require.Equal(t, "idle", machines.status[1])
	require.Equal(t, int64(7), machines.mould[1])
	require.Empty(t, inv.receipts)

	_, err = svc.CompleteJob(ctx, CompleteJobRequest{JobID: job.ID, QuantityProduced: 10, SortingType: SortCounting})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCompleteJobToLocationAutoCompletesOrder(t *testing.T) {
	svc, _, inv, machines, moulds := newTestService()
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 1000, ActorID: 4})
	require.NoError(t, err)
	job, err := svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: order.ID, MachineID: 2, Date: time.Now(), ActorID: 4})
	require.NoError(t, err)

	// Completing straight from scheduled still ran the press: the order
	// starts and finishes in one move.
	done, err := svc.CompleteJob(ctx, CompleteJobRequest{
		JobID:            job.ID,
		QuantityProduced: 1200,
		LocationID:       int64Ptr(5),
		ActorID:          4,
	})
	require.NoError(t, err)
	require.Equal(t, JobCompleted, done.Status)
	require.Equal(t, "location:5", done.OutputDestination)

	current, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderCompleted, current.Status)
	require.Equal(t, int64(1200), current.QuantityProduced)
	require.Equal(t, int64(1200), current.QuantityGood)
	require.NotNil(t, current.StartDate)
	require.NotNil(t, current.EndDate)
	require.Equal(t, float64(100), current.CompletionPercentage)

	require.Equal(t, "idle", machines.status[2])
	require.Equal(t, int64(300), moulds.shots[7])
	require.Len(t, inv.receipts, 1)
	require.Equal(t, int64(1200), inv.receipts[0].Quantity)
	require.Equal(t, int64(5), inv.receipts[0].LocationID)
	require.Equal(t, order.BatchNumber, inv.receipts[0].BatchNumber)
	require.Equal(t, order.OrderNumber, inv.receipts[0].Reference)

	logs, err := svc.Logs(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	require.Equal(t, LogStop, logs[0].LogType)
	require.Equal(t, LogQuantityUpdate, logs[1].LogType)
	require.Equal(t, LogStart, logs[2].LogType)
}

func TestSortingFlowReceivesCountedParts(t *testing.T) {
	svc, _, inv, _, _ := newTestService()
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 5000, ActorID: 5})
	require.NoError(t, err)
	job, err := svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: order.ID, MachineID: 1, Date: time.Now(), ActorID: 5})
	require.NoError(t, err)
	_, err = svc.StartJob(ctx, job.ID, 5)
	require.NoError(t, err)
	_, err = svc.CompleteJob(ctx, CompleteJobRequest{JobID: job.ID, QuantityProduced: 3000, SortingType: SortCounting, ActorID: 5})
	require.NoError(t, err)

	counts, err := svc.SortingCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts[SortCounting])
	require.Zero(t, counts[SortDegating])
	require.Zero(t, counts[SortAssembly])
	require.Zero(t, counts[SortQualityCheck])

	tasks, err := svc.SortingQueue(ctx, TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	task := tasks[0]

	_, err = svc.CompleteSorting(ctx, CompleteSortingRequest{TaskID: task.ID, ActualQuantity: -1})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CompleteSorting(ctx, CompleteSortingRequest{TaskID: task.ID})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CompleteSorting(ctx, CompleteSortingRequest{TaskID: task.ID, ActualQuantity: 10})
	require.ErrorIs(t, err, ErrValidation)

	claimed, err := svc.StartSorting(ctx, task.ID, 5)
	require.NoError(t, err)
	require.Equal(t, SortingInProgress, claimed.Status)
	_, err = svc.StartSorting(ctx, task.ID, 5)
	require.ErrorIs(t, err, ErrInvalidStatus)

	completed, err := svc.CompleteSorting(ctx, CompleteSortingRequest{
		TaskID:           task.ID,
		ActualQuantity:   2900,
		RejectedQuantity: 100,
		LocationID:       4,
		ActorID:          5,
	})
	require.NoError(t, err)
	require.Equal(t, SortingCompleted, completed.Status)
	require.Equal(t, int64(2900), completed.ActualQuantity)
	require.Equal(t, int64(100), completed.RejectedQuantity)
	require.Equal(t, int64(4), *completed.LocationID)
	require.NotNil(t, completed.CompletedAt)

	// Counted parts roll into the order's tallies; produced already
	// counted when the job came off the press.
	current, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3000), current.QuantityProduced)
	require.Equal(t, int64(2900), current.QuantityGood)
	require.Equal(t, int64(100), current.QuantityRejected)
	require.Equal(t, OrderInProgress, current.Status)

	require.Len(t, inv.receipts, 1)
	require.Equal(t, int64(2900), inv.receipts[0].Quantity)
	require.Equal(t, int64(4), inv.receipts[0].LocationID)
	require.Equal(t, "Sorted and counted - counting", inv.receipts[0].Notes)
	require.Equal(t, order.BatchNumber, inv.receipts[0].BatchNumber)

	_, err = svc.CompleteSorting(ctx, CompleteSortingRequest{TaskID: task.ID, ActualQuantity: 1, LocationID: 4})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestMoveAndUnscheduleOnlyScheduledJobs(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	ctx := context.Background()
	day := dateOnly(time.Now())

	first, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 100, ActorID: 6})
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 200, ActorID: 6})
	require.NoError(t, err)

	jobA, err := svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: first.ID, MachineID: 1, Date: day, ActorID: 6})
	require.NoError(t, err)
	jobB, err := svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: second.ID, MachineID: 1, Date: day, ActorID: 6})
	require.NoError(t, err)
	require.Equal(t, 2, jobB.SequenceOrder)

	moved, err := svc.MoveJob(ctx, MoveJobRequest{JobID: jobA.ID, MachineID: 2, Date: day, ActorID: 6})
	require.NoError(t, err)
	require.Equal(t, int64(2), moved.MachineID)
	require.Equal(t, 1, moved.SequenceOrder)

	pinned, err := svc.MoveJob(ctx, MoveJobRequest{JobID: jobA.ID, Sequence: 5, ActorID: 6})
	require.NoError(t, err)
	require.Equal(t, int64(2), pinned.MachineID)
	require.Equal(t, 5, pinned.SequenceOrder)

	_, err = svc.StartJob(ctx, jobB.ID, 6)
	require.NoError(t, err)
	_, err = svc.MoveJob(ctx, MoveJobRequest{JobID: jobB.ID, MachineID: 2, Date: day})
	require.ErrorIs(t, err, ErrInvalidStatus)
	require.ErrorIs(t, svc.UnscheduleJob(ctx, jobB.ID, 6), ErrInvalidStatus)

	require.NoError(t, svc.UnscheduleJob(ctx, jobA.ID, 6))
	_, err = repo.GetJob(ctx, jobA.ID)
	require.ErrorIs(t, err, ErrNotFound)

	unscheduled, err := repo.UnscheduledOrders(ctx)
	require.NoError(t, err)
	require.Len(t, unscheduled, 1)
	require.Equal(t, first.OrderNumber, unscheduled[0].OrderNumber)
}

type fakeLocker struct {
	keys []string
	err  error
}

func (f *fakeLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	return fn(ctx)
}

func TestScheduleWritesTakeMachineDayLock(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	locker := &fakeLocker{}
	svc.SetScheduleLocker(locker)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 100, ActorID: 2})
	require.NoError(t, err)
	day := dateOnly(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))

	job, err := svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: order.ID, MachineID: 1, Date: day, ActorID: 2})
	require.NoError(t, err)
	require.Equal(t, []string{shared.ScheduleLockKey(1, "2026-09-01")}, locker.keys)

	// Moving to another press locks that press's column instead.
	_, err = svc.MoveJob(ctx, MoveJobRequest{JobID: job.ID, MachineID: 2, ActorID: 2})
	require.NoError(t, err)
	require.Equal(t, shared.ScheduleLockKey(2, "2026-09-01"), locker.keys[1])

	// A held lock turns the write away instead of interleaving.
	locker.err = errors.New("lock held")
	_, err = svc.ScheduleJob(ctx, ScheduleJobRequest{OrderID: order.ID, MachineID: 1, Date: day, ActorID: 2})
	require.ErrorIs(t, err, locker.err)
}
