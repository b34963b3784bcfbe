package production

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	orders   map[int64]ProductionOrder
	logs     []ProductionLog
	jobs     map[int64]ScheduledJob
	tasks    map[int64]SortingTask
	machines []MachineSlot
	items    map[int64]ItemProfile

	nextOrder int64
	nextLog   int64
	nextJob   int64
	nextTask  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders: map[int64]ProductionOrder{},
		jobs:   map[int64]ScheduledJob{},
		tasks:  map[int64]SortingTask{},
		items:  map[int64]ItemProfile{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetOrder(ctx context.Context, id int64) (ProductionOrder, error) {
	o, ok := r.orders[id]
	if !ok {
		return ProductionOrder{}, ErrNotFound
	}
	return r.joinOrder(o), nil
}

func (r *memoryRepo) joinOrder(o ProductionOrder) ProductionOrder {
	if p, ok := r.items[o.ItemID]; ok {
		o.ItemSKU = p.SKU
		o.ItemName = p.Name
	}
	return o
}

func (r *memoryRepo) ListOrders(ctx context.Context, f OrderFilter) ([]ProductionOrder, int, error) {
	orders := []ProductionOrder{}
	for _, o := range r.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.OrderType != "" && o.OrderType != f.OrderType {
			continue
		}
		if f.ItemID > 0 && o.ItemID != f.ItemID {
			continue
		}
		if f.SalesOrderID > 0 && (o.SalesOrderID == nil || *o.SalesOrderID != f.SalesOrderID) {
			continue
		}
		if f.Search != "" && !strings.Contains(o.OrderNumber, f.Search) {
			continue
		}
		orders = append(orders, r.joinOrder(o))
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders, len(orders), nil
}

func (r *memoryRepo) UnscheduledOrders(ctx context.Context) ([]ProductionOrder, error) {
	orders := []ProductionOrder{}
	for _, o := range r.orders {
		if o.Status != OrderPlanned && o.Status != OrderInProgress {
			continue
		}
		live := false
		for _, j := range r.jobs {
			if j.ProductionOrderID == o.ID && (j.Status == JobScheduled || j.Status == JobInProgress) {
				live = true
				break
			}
		}
		if !live {
			orders = append(orders, r.joinOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].Priority != orders[j].Priority {
			return orders[i].Priority < orders[j].Priority
		}
		return orders[i].ID < orders[j].ID
	})
	return orders, nil
}

func (r *memoryRepo) ListLogs(ctx context.Context, orderID int64) ([]ProductionLog, error) {
	logs := []ProductionLog{}
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].OrderID == orderID {
			logs = append(logs, r.logs[i])
		}
	}
	return logs, nil
}

func (r *memoryRepo) ItemProfile(ctx context.Context, itemID int64) (ItemProfile, error) {
	p, ok := r.items[itemID]
	if !ok {
		return ItemProfile{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) GetJob(ctx context.Context, id int64) (ScheduledJob, error) {
	j, ok := r.jobs[id]
	if !ok {
		return ScheduledJob{}, ErrNotFound
	}
	return r.joinJob(j), nil
}

func (r *memoryRepo) joinJob(j ScheduledJob) ScheduledJob {
	if o, ok := r.orders[j.ProductionOrderID]; ok {
		j.OrderNumber = o.OrderNumber
		j.OrderStatus = o.Status
		j.QuantityRequired = o.QuantityRequired
		j.QuantityProduced = o.QuantityProduced
		j.Priority = o.Priority
		j.DueDate = o.DueDate
		if p, ok := r.items[o.ItemID]; ok {
			j.ItemSKU = p.SKU
			j.ItemName = p.Name
		}
	}
	return j
}

func (r *memoryRepo) JobsBetween(ctx context.Context, from, to time.Time) ([]ScheduledJob, error) {
	jobs := []ScheduledJob{}
	for _, j := range r.jobs {
		if j.ScheduledDate.Before(from) || j.ScheduledDate.After(to) {
			continue
		}
		jobs = append(jobs, r.joinJob(j))
	}
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].MachineID != jobs[k].MachineID {
			return jobs[i].MachineID < jobs[k].MachineID
		}
		if !jobs[i].ScheduledDate.Equal(jobs[k].ScheduledDate) {
			return jobs[i].ScheduledDate.Before(jobs[k].ScheduledDate)
		}
		return jobs[i].SequenceOrder < jobs[k].SequenceOrder
	})
	return jobs, nil
}

func (r *memoryRepo) ActiveMachines(ctx context.Context) ([]MachineSlot, error) {
	return r.machines, nil
}

func (r *memoryRepo) GetTask(ctx context.Context, id int64) (SortingTask, error) {
	t, ok := r.tasks[id]
	if !ok {
		return SortingTask{}, ErrNotFound
	}
	return r.joinTask(t), nil
}

func (r *memoryRepo) joinTask(t SortingTask) SortingTask {
	if o, ok := r.orders[t.ProductionOrderID]; ok {
		t.OrderNumber = o.OrderNumber
		t.BatchNumber = o.BatchNumber
	}
	if p, ok := r.items[t.ItemID]; ok {
		t.ItemSKU = p.SKU
		t.ItemName = p.Name
	}
	return t
}

func (r *memoryRepo) ListTasks(ctx context.Context, f TaskFilter) ([]SortingTask, error) {
	tasks := []SortingTask{}
	for _, t := range r.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.SortingType != "" && t.SortingType != f.SortingType {
			continue
		}
		tasks = append(tasks, r.joinTask(t))
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (r *memoryRepo) PendingCounts(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{}
	for _, t := range r.tasks {
		if t.Status == SortingPending {
			counts[t.SortingType]++
		}
	}
	return counts, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) GenerateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	prefix := "PO-" + now.Format("060102") + "-"
	n := 0
	for _, o := range t.repo.orders {
		if strings.HasPrefix(o.OrderNumber, prefix) {
			n++
		}
	}
	return fmt.Sprintf("%s%04d", prefix, n+1), nil
}

func (t *memoryTx) GenerateBatchNumber(ctx context.Context, prefix string) (string, error) {
	n := 0
	for _, o := range t.repo.orders {
		if strings.HasPrefix(o.BatchNumber, prefix+"-") {
			n++
		}
	}
	return fmt.Sprintf("%s-%03d", prefix, n+1), nil
}

func (t *memoryTx) CreateOrder(ctx context.Context, o ProductionOrder) (ProductionOrder, error) {
	t.repo.nextOrder++
	o.ID = t.repo.nextOrder
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	t.repo.orders[o.ID] = o
	return o, nil
}

func (t *memoryTx) UpdateOrder(ctx context.Context, id int64, o ProductionOrder) error {
	cur, ok := t.repo.orders[id]
	if !ok || cur.Status != OrderPlanned {
		return ErrInvalidStatus
	}
	cur.MouldID = o.MouldID
	cur.QuantityRequired = o.QuantityRequired
	cur.Priority = o.Priority
	cur.DueDate = o.DueDate
	cur.Notes = o.Notes
	t.repo.orders[id] = cur
	return nil
}

func (t *memoryTx) RaiseRequired(ctx context.Context, id, quantity int64) error {
	cur, ok := t.repo.orders[id]
	if !ok || cur.Status != OrderPlanned || cur.QuantityRequired >= quantity {
		return ErrInvalidStatus
	}
	cur.QuantityRequired = quantity
	t.repo.orders[id] = cur
	return nil
}

func (t *memoryTx) StartOrder(ctx context.Context, id, machineID int64, start time.Time) error {
	cur, ok := t.repo.orders[id]
	if !ok || cur.Status != OrderPlanned {
		return ErrInvalidStatus
	}
	cur.Status = OrderInProgress
	cur.MachineID = &machineID
	cur.StartDate = &start
	t.repo.orders[id] = cur
	return nil
}

func (t *memoryTx) AddQuantities(ctx context.Context, id, produced, good, rejected int64) (int64, int64, error) {
	cur, ok := t.repo.orders[id]
	if !ok || cur.Status != OrderInProgress {
		return 0, 0, ErrInvalidStatus
	}
	cur.QuantityProduced += produced
	cur.QuantityGood += good
	cur.QuantityRejected += rejected
	t.repo.orders[id] = cur
	return cur.QuantityProduced, cur.QuantityRequired, nil
}

func (t *memoryTx) AddSortedQuantities(ctx context.Context, id, good, rejected int64) error {
	cur, ok := t.repo.orders[id]
	if !ok {
		return ErrNotFound
	}
	cur.QuantityGood += good
	cur.QuantityRejected += rejected
	t.repo.orders[id] = cur
	return nil
}

func (t *memoryTx) CompleteOrder(ctx context.Context, id int64, end time.Time) error {
	cur, ok := t.repo.orders[id]
	if !ok || cur.Status != OrderInProgress {
		return ErrInvalidStatus
	}
	cur.Status = OrderCompleted
	cur.EndDate = &end
	t.repo.orders[id] = cur
	return nil
}

func (t *memoryTx) CancelOrder(ctx context.Context, id int64) error {
	cur, ok := t.repo.orders[id]
	if !ok || cur.Status == OrderCompleted || cur.Status == OrderCancelled {
		return ErrInvalidStatus
	}
	cur.Status = OrderCancelled
	t.repo.orders[id] = cur
	return nil
}

func (t *memoryTx) InsertLog(ctx context.Context, l ProductionLog) (int64, error) {
	t.repo.nextLog++
	l.ID = t.repo.nextLog
	l.CreatedAt = time.Now()
	t.repo.logs = append(t.repo.logs, l)
	return l.ID, nil
}

func (t *memoryTx) MaxSequence(ctx context.Context, machineID int64, date time.Time) (int, error) {
	max := 0
	for _, j := range t.repo.jobs {
		if j.MachineID == machineID && j.ScheduledDate.Equal(date) && j.SequenceOrder > max {
			max = j.SequenceOrder
		}
	}
	return max, nil
}

func (t *memoryTx) CreateJob(ctx context.Context, j ScheduledJob) (ScheduledJob, error) {
	t.repo.nextJob++
	j.ID = t.repo.nextJob
	j.CreatedAt = time.Now()
	j.UpdatedAt = j.CreatedAt
	t.repo.jobs[j.ID] = j
	return j, nil
}

func (t *memoryTx) UpdateJobSlot(ctx context.Context, id, machineID int64, date time.Time, sequence int) error {
	cur, ok := t.repo.jobs[id]
	if !ok || cur.Status != JobScheduled {
		return ErrInvalidStatus
	}
	cur.MachineID = machineID
	cur.ScheduledDate = date
	cur.SequenceOrder = sequence
	t.repo.jobs[id] = cur
	return nil
}

func (t *memoryTx) StartJob(ctx context.Context, id int64, start time.Time) error {
	cur, ok := t.repo.jobs[id]
	if !ok || cur.Status != JobScheduled {
		return ErrInvalidStatus
	}
	cur.Status = JobInProgress
	cur.ActualStart = &start
	t.repo.jobs[id] = cur
	return nil
}

func (t *memoryTx) CompleteJob(ctx context.Context, id int64, end time.Time, destination string, completedBy int64) error {
	cur, ok := t.repo.jobs[id]
	if !ok || (cur.Status != JobInProgress && cur.Status != JobScheduled) {
		return ErrInvalidStatus
	}
	cur.Status = JobCompleted
	cur.ActualEnd = &end
	cur.OutputDestination = destination
	cur.CompletedBy = &completedBy
	t.repo.jobs[id] = cur
	return nil
}

func (t *memoryTx) DeleteJob(ctx context.Context, id int64) error {
	cur, ok := t.repo.jobs[id]
	if !ok || cur.Status != JobScheduled {
		return ErrInvalidStatus
	}
	delete(t.repo.jobs, id)
	return nil
}

func (t *memoryTx) CreateTask(ctx context.Context, task SortingTask) (SortingTask, error) {
	t.repo.nextTask++
	task.ID = t.repo.nextTask
	task.CreatedAt = time.Now()
	t.repo.tasks[task.ID] = task
	return task, nil
}

func (t *memoryTx) StartTask(ctx context.Context, id int64) error {
	cur, ok := t.repo.tasks[id]
	if !ok || cur.Status != SortingPending {
		return ErrInvalidStatus
	}
	cur.Status = SortingInProgress
	t.repo.tasks[id] = cur
	return nil
}

func (t *memoryTx) CompleteTask(ctx context.Context, id, actual, rejected, locationID, completedBy int64, at time.Time) error {
	cur, ok := t.repo.tasks[id]
	if !ok || cur.Status == SortingCompleted {
		return ErrInvalidStatus
	}
	cur.Status = SortingCompleted
	cur.ActualQuantity = actual
	cur.RejectedQuantity = rejected
	if locationID != 0 {
		cur.LocationID = &locationID
	}
	cur.CompletedBy = &completedBy
	cur.CompletedAt = &at
	t.repo.tasks[id] = cur
	return nil
}

type fakeInventory struct {
	receipts []ProductionReceipt
	err      error
}

func (f *fakeInventory) ReceiveProduction(ctx context.Context, input ProductionReceipt) error {
	if f.err != nil {
		return f.err
	}
	f.receipts = append(f.receipts, input)
	return nil
}

type fakeMachines struct {
	status map[int64]string
	mould  map[int64]int64
}

func newFakeMachines() *fakeMachines {
	return &fakeMachines{status: map[int64]string{}, mould: map[int64]int64{}}
}

func (f *fakeMachines) MarkRunning(ctx context.Context, machineID int64, mouldID *int64, actorID int64) error {
	f.status[machineID] = "running"
	if mouldID != nil {
		f.mould[machineID] = *mouldID
	}
	return nil
}

func (f *fakeMachines) MarkIdle(ctx context.Context, machineID int64, releaseMould bool, actorID int64) error {
	f.status[machineID] = "idle"
	if releaseMould {
		delete(f.mould, machineID)
	}
	return nil
}

type fakeMoulds struct {
	cycle    float64
	cavities int
	err      error
	shots    map[int64]int64
}

func (f *fakeMoulds) CycleTime(ctx context.Context, mouldID, itemID int64) (float64, int, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.cycle, f.cavities, nil
}

func (f *fakeMoulds) AddShots(ctx context.Context, mouldID, shots int64, actorID int64) error {
	f.shots[mouldID] += shots
	return nil
}

func int64Ptr(v int64) *int64 {
	return &v
}

func newTestService() (*Service, *memoryRepo, *fakeInventory, *fakeMachines, *fakeMoulds) {
	repo := newMemoryRepo()
	repo.items[1] = ItemProfile{SKU: "CAP-60", Name: "60mm tamper cap", DefaultMouldID: int64Ptr(7), IdealCycleTime: 25, Cavities: 4}
	repo.machines = []MachineSlot{{ID: 1, Name: "Press 1"}, {ID: 2, Name: "Press 2"}}

	svc := NewService(repo, nil, nil)
	inv := &fakeInventory{}
	machines := newFakeMachines()
	moulds := &fakeMoulds{cycle: 30, cavities: 4, shots: map[int64]int64{}}
	svc.SetInventoryService(inv)
	svc.SetMachineService(machines)
	svc.SetMouldService(moulds)
	return svc, repo, inv, machines, moulds
}

func TestCreateOrderDefaults(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	ctx := context.Background()

	due := time.Now().AddDate(0, 0, 2)
	order, err := svc.CreateOrder(ctx, CreateOrderRequest{
		ItemID:           1,
		QuantityRequired: 5000,
		DueDate:          &due,
		ActorID:          9,
	})
	require.NoError(t, err)

	day := time.Now().Format("060102")
	require.Equal(t, "PO-"+day+"-0001", order.OrderNumber)
	require.Equal(t, day+"-CAP-60-001", order.BatchNumber)
	require.Equal(t, OrderPlanned, order.Status)
	require.Equal(t, MakeToStock, order.OrderType)
	require.NotNil(t, order.MouldID)
	require.Equal(t, int64(7), *order.MouldID)
	// Two days out lands in the three day band.
	require.Equal(t, 2, order.Priority)
	require.Equal(t, "CAP-60", order.ItemSKU)

	second, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 100, ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, "PO-"+day+"-0002", second.OrderNumber)
	require.Equal(t, day+"-CAP-60-002", second.BatchNumber)
	require.Equal(t, 5, second.Priority)

	_, err = svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 99, QuantityRequired: 10})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 0})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 10, OrderType: "bespoke"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestPriorityFromDueDate(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	day := func(n int) *time.Time {
		d := now.AddDate(0, 0, n)
		return &d
	}
	require.Equal(t, 5, PriorityForDueDate(nil, now))
	require.Equal(t, 1, PriorityForDueDate(day(0), now))
	require.Equal(t, 1, PriorityForDueDate(day(1), now))
	require.Equal(t, 2, PriorityForDueDate(day(3), now))
	require.Equal(t, 3, PriorityForDueDate(day(7), now))
	require.Equal(t, 5, PriorityForDueDate(day(10), now))
	// Overdue orders go straight to the top.
	require.Equal(t, 1, PriorityForDueDate(day(-2), now))
}

func TestOrderLifecycleDrivesMachineAndMould(t *testing.T) {
	svc, _, inv, machines, moulds := newTestService()
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 1000, ActorID: 3})
	require.NoError(t, err)

	_, err = svc.Start(ctx, order.ID, 0, 3)
	require.ErrorIs(t, err, ErrMachineRequired)

	started, err := svc.Start(ctx, order.ID, 1, 3)
	require.NoError(t, err)
	require.Equal(t, OrderInProgress, started.Status)
	require.NotNil(t, started.StartDate)
	require.Equal(t, "running", machines.status[1])
	require.Equal(t, int64(7), machines.mould[1])

	_, err = svc.Start(ctx, order.ID, 1, 3)
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.RecordQuantities(ctx, RecordQuantitiesRequest{OrderID: order.ID, QuantityGood: -1})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.RecordQuantities(ctx, RecordQuantitiesRequest{OrderID: order.ID})
	require.ErrorIs(t, err, ErrValidation)

	updated, err := svc.RecordQuantities(ctx, RecordQuantitiesRequest{
		OrderID:          order.ID,
		QuantityGood:     600,
		QuantityRejected: 24,
		Notes:            "first shift",
		ActorID:          3,
	})
	require.NoError(t, err)
	require.Equal(t, int64(624), updated.QuantityProduced)
	require.Equal(t, int64(600), updated.QuantityGood)
	require.Equal(t, int64(24), updated.QuantityRejected)
	require.InDelta(t, 62.4, updated.CompletionPercentage, 0.001)

	completed, err := svc.Complete(ctx, CompleteOrderRequest{
		OrderID:           order.ID,
		ReceiveLocationID: int64Ptr(3),
		ActorID:           3,
	})
	require.NoError(t, err)
	require.Equal(t, OrderCompleted, completed.Status)
	require.NotNil(t, completed.EndDate)

	// Press idles and drops the mould, the mould gains 624/4 shots and
	// the good parts land in stock under the order's batch.
	require.Equal(t, "idle", machines.status[1])
	_, held := machines.mould[1]
	require.False(t, held)
	require.Equal(t, int64(156), moulds.shots[7])
	require.Len(t, inv.receipts, 1)
	require.Equal(t, int64(600), inv.receipts[0].Quantity)
	require.Equal(t, completed.BatchNumber, inv.receipts[0].BatchNumber)
	require.Equal(t, completed.OrderNumber, inv.receipts[0].Reference)

	_, err = svc.Complete(ctx, CompleteOrderRequest{OrderID: order.ID, ActorID: 3})
	require.ErrorIs(t, err, ErrInvalidStatus)

	logs, err := svc.Logs(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	require.Equal(t, LogStop, logs[0].LogType)
	require.Equal(t, LogQuantityUpdate, logs[1].LogType)
	require.Equal(t, LogStart, logs[2].LogType)
}

func TestCompleteWithoutLocationSkipsReceipt(t *testing.T) {
	svc, _, inv, _, _ := newTestService()
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 200, ActorID: 2})
	require.NoError(t, err)
	_, err = svc.Start(ctx, order.ID, 2, 2)
	require.NoError(t, err)
	_, err = svc.RecordQuantities(ctx, RecordQuantitiesRequest{OrderID: order.ID, QuantityGood: 200, ActorID: 2})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, CompleteOrderRequest{OrderID: order.ID, ActorID: 2})
	require.NoError(t, err)
	require.Empty(t, inv.receipts)
}

func TestCancelFreesRunningMachine(t *testing.T) {
	svc, _, _, machines, _ := newTestService()
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 500, ActorID: 4})
	require.NoError(t, err)
	_, err = svc.Start(ctx, order.ID, 2, 4)
	require.NoError(t, err)
	require.Equal(t, "running", machines.status[2])

	cancelled, err := svc.Cancel(ctx, order.ID, 4)
	require.NoError(t, err)
	require.Equal(t, OrderCancelled, cancelled.Status)
	require.Equal(t, "idle", machines.status[2])
	_, held := machines.mould[2]
	require.False(t, held)

	_, err = svc.Cancel(ctx, order.ID, 4)
	require.ErrorIs(t, err, ErrInvalidStatus)

	// A planned order cancels without touching any press.
	planned, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 10, ActorID: 4})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, planned.ID, 4)
	require.NoError(t, err)
}

func TestUpdateOrderOnlyWhilePlanned(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 500, ActorID: 5})
	require.NoError(t, err)

	edited, err := svc.UpdateOrder(ctx, order.ID, UpdateOrderRequest{
		MouldID:          int64Ptr(8),
		QuantityRequired: 750,
		Priority:         1,
		Notes:            "rush for trade show",
		ActorID:          5,
	})
	require.NoError(t, err)
	require.Equal(t, int64(750), edited.QuantityRequired)
	require.Equal(t, 1, edited.Priority)
	require.Equal(t, int64(8), *edited.MouldID)

	_, err = svc.Start(ctx, order.ID, 1, 5)
	require.NoError(t, err)
	_, err = svc.UpdateOrder(ctx, order.ID, UpdateOrderRequest{QuantityRequired: 800, ActorID: 5})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestReportIssueLogs(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderRequest{ItemID: 1, QuantityRequired: 100, ActorID: 6})
	require.NoError(t, err)
	_, err = svc.Start(ctx, order.ID, 1, 6)
	require.NoError(t, err)

	require.ErrorIs(t, svc.ReportIssue(ctx, order.ID, "", 6), ErrValidation)
	require.NoError(t, svc.ReportIssue(ctx, order.ID, "flash on cavity 3", 6))

	logs, err := svc.Logs(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, LogIssue, logs[0].LogType)
	require.Equal(t, "flash on cavity 3", logs[0].Notes)

	_, err = svc.RecordQuantities(ctx, RecordQuantitiesRequest{OrderID: order.ID, QuantityGood: 100, ActorID: 6})
	require.NoError(t, err)
	_, err = svc.Complete(ctx, CompleteOrderRequest{OrderID: order.ID, ActorID: 6})
	require.NoError(t, err)
	require.ErrorIs(t, svc.ReportIssue(ctx, order.ID, "too late", 6), ErrInvalidStatus)
}

func TestCompletionPercentCaps(t *testing.T) {
	require.Zero(t, ProductionOrder{QuantityRequired: 0, QuantityProduced: 50}.CompletionPercent())
	require.Equal(t, float64(100), ProductionOrder{QuantityRequired: 100, QuantityProduced: 120}.CompletionPercent())
	require.Equal(t, float64(25), ProductionOrder{QuantityRequired: 200, QuantityProduced: 50}.CompletionPercent())
}
