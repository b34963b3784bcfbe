package costing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	nextID      int64
	quotes      map[int64]Quote
	costings    map[int64]JobCosting // keyed by production order id
	usage       []MaterialUsage
	machine     []MachineRate
	labour      []LabourRate
	quoteSerial int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, quotes: map[int64]Quote{}, costings: map[int64]JobCosting{}}
}

func (m *memoryRepo) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: m})
}

func (m *memoryRepo) GetQuote(_ context.Context, id int64) (Quote, error) {
	q, ok := m.quotes[id]
	if !ok {
		return Quote{}, ErrNotFound
	}
	return q, nil
}

func (m *memoryRepo) ListQuotes(_ context.Context, f QuoteFilter) ([]Quote, int, error) {
	out := []Quote{}
	for _, q := range m.quotes {
		if f.Status != "" && q.Status != f.Status {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memoryRepo) JobCostingByOrder(_ context.Context, orderID int64) (JobCosting, error) {
	j, ok := m.costings[orderID]
	if !ok {
		return JobCosting{}, ErrNotFound
	}
	return j, nil
}

func (m *memoryRepo) MaterialUsageByOrder(_ context.Context, orderID int64) ([]MaterialUsage, error) {
	out := []MaterialUsage{}
	for _, u := range m.usage {
		if u.ProductionOrderID == orderID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryRepo) MachineRateFor(_ context.Context, machineID int64, date time.Time) (MachineRate, error) {
	var best *MachineRate
	for i := range m.machine {
		rate := m.machine[i]
		if rate.MachineID != machineID || rate.EffectiveFrom.After(date) {
			continue
		}
		if best == nil || rate.EffectiveFrom.After(best.EffectiveFrom) {
			best = &rate
		}
	}
	if best == nil {
		return MachineRate{}, ErrNoCurrentRate
	}
	return *best, nil
}

func (m *memoryRepo) LabourRateFor(_ context.Context, role string, date time.Time) (LabourRate, error) {
	var best *LabourRate
	for i := range m.labour {
		rate := m.labour[i]
		if rate.Role != role || rate.EffectiveFrom.After(date) {
			continue
		}
		if best == nil || rate.EffectiveFrom.After(best.EffectiveFrom) {
			best = &rate
		}
	}
	if best == nil {
		return LabourRate{}, ErrNoCurrentRate
	}
	return *best, nil
}

func (m *memoryRepo) ListMachineRates(_ context.Context, machineID int64) ([]MachineRate, error) {
	out := []MachineRate{}
	for _, rate := range m.machine {
		if rate.MachineID == machineID {
			out = append(out, rate)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListLabourRates(_ context.Context, role string) ([]LabourRate, error) {
	out := []LabourRate{}
	for _, rate := range m.labour {
		if role == "" || rate.Role == role {
			out = append(out, rate)
		}
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) GenerateQuoteNumber(_ context.Context, now time.Time) (string, error) {
	t.repo.quoteSerial++
	return fmt.Sprintf("QT-%s-%04d", now.Format("060102"), t.repo.quoteSerial), nil
}

func (t *memoryTx) InsertQuote(_ context.Context, q Quote) (Quote, error) {
	q.ID = t.repo.id()
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	t.repo.quotes[q.ID] = q
	return q, nil
}

func (t *memoryTx) UpdateQuote(_ context.Context, q Quote) error {
	stored, ok := t.repo.quotes[q.ID]
	if !ok {
		return ErrNotFound
	}
	q.Status = stored.Status
	q.SentAt = stored.SentAt
	q.SalesOrderID = stored.SalesOrderID
	q.CreatedAt = stored.CreatedAt
	q.UpdatedAt = time.Now()
	t.repo.quotes[q.ID] = q
	return nil
}

func (t *memoryTx) SetQuoteStatus(_ context.Context, id int64, from, to string, sentAt *time.Time) (bool, error) {
	q, ok := t.repo.quotes[id]
	if !ok || q.Status != from {
		return false, nil
	}
	q.Status = to
	if sentAt != nil {
		q.SentAt = sentAt
	}
	t.repo.quotes[id] = q
	return true, nil
}

func (t *memoryTx) LinkSalesOrder(_ context.Context, quoteID, orderID int64) error {
	q, ok := t.repo.quotes[quoteID]
	if !ok {
		return ErrNotFound
	}
	q.SalesOrderID = &orderID
	t.repo.quotes[quoteID] = q
	return nil
}

func (t *memoryTx) InsertJobCosting(_ context.Context, j JobCosting) (JobCosting, error) {
	j.ID = t.repo.id()
	j.CreatedAt = time.Now()
	j.UpdatedAt = j.CreatedAt
	t.repo.costings[j.ProductionOrderID] = j
	return j, nil
}

func (t *memoryTx) UpdateJobCosting(_ context.Context, j JobCosting) error {
	stored, ok := t.repo.costings[j.ProductionOrderID]
	if !ok {
		return ErrNotFound
	}
	j.CreatedAt = stored.CreatedAt
	j.UpdatedAt = time.Now()
	t.repo.costings[j.ProductionOrderID] = j
	return nil
}

func (t *memoryTx) InsertMaterialUsage(_ context.Context, u MaterialUsage) (MaterialUsage, error) {
	u.ID = t.repo.id()
	u.CreatedAt = time.Now()
	t.repo.usage = append(t.repo.usage, u)
	return u, nil
}

func (t *memoryTx) InsertMachineRate(_ context.Context, r MachineRate) (MachineRate, error) {
	r.ID = t.repo.id()
	r.CreatedAt = time.Now()
	t.repo.machine = append(t.repo.machine, r)
	return r, nil
}

func (t *memoryTx) InsertLabourRate(_ context.Context, r LabourRate) (LabourRate, error) {
	r.ID = t.repo.id()
	r.CreatedAt = time.Now()
	t.repo.labour = append(t.repo.labour, r)
	return r, nil
}

type fakeSales struct {
	created []ConvertOrder
	nextID  int64
}

func (f *fakeSales) CreateFromQuote(_ context.Context, req ConvertOrder) (OrderRef, error) {
	f.created = append(f.created, req)
	f.nextID++
	return OrderRef{ID: f.nextID, OrderNumber: fmt.Sprintf("SO-260830-%04d", f.nextID)}, nil
}

type fakeProduction struct {
	orders map[int64]ProductionOrderInfo
}

func (f *fakeProduction) OrderInfo(_ context.Context, orderID int64) (ProductionOrderInfo, error) {
	info, ok := f.orders[orderID]
	if !ok {
		return ProductionOrderInfo{}, ErrNotFound
	}
	return info, nil
}

func newTestService() (*Service, *memoryRepo, *fakeSales) {
	repo := newMemoryRepo()
	sales := &fakeSales{}
	svc := NewService(repo, nil)
	svc.SetSalesService(sales)
	svc.SetProductionService(&fakeProduction{orders: map[int64]ProductionOrderInfo{
		42: {ID: 42, QuantityGood: 4800},
	}})
	return svc, repo, sales
}

func newFixtureQuote(t *testing.T, svc *Service) Quote {
	t.Helper()
	created, err := svc.CreateQuote(context.Background(), CreateQuoteRequest{
		Quote: Quote{
			Description:       "32mm closure cap",
			PartWeightG:       45.5,
			Cavities:          4,
			CycleTimeSeconds:  18,
			MaterialCostPerKg: dec("2.50"),
		},
		ActorID: 1,
	})
	require.NoError(t, err)
	return created
}

func TestCreateQuoteAppliesDefaultsAndPrices(t *testing.T) {
	svc, _, _ := newTestService()
	created := newFixtureQuote(t, svc)

	require.True(t, strings.HasPrefix(created.QuoteNumber, "QT-"))
	require.Equal(t, QuoteDraft, created.Status)
	require.Equal(t, int64(1000), created.Quantity)
	require.Equal(t, 2.0, created.SetupHours)
	require.Equal(t, 30.0, created.TargetMarginPercent)
	require.True(t, created.MaterialCostPerPart.Equal(dec("0.0284")),
		"got %s", created.MaterialCostPerPart)
	require.False(t, created.QuotedTotal.IsZero())
}

func TestCreateQuoteRequiresDescription(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreateQuote(context.Background(), CreateQuoteRequest{Quote: Quote{}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestUpdateQuoteRecalculatesAndOnlyDraft(t *testing.T) {
	svc, repo, _ := newTestService()
	created := newFixtureQuote(t, svc)

	revised := created
	revised.Cavities = 8
	updated, err := svc.UpdateQuote(context.Background(), created.ID, UpdateQuoteRequest{Quote: revised, ActorID: 1})
	require.NoError(t, err)
	require.True(t, updated.MaterialCostPerPart.LessThan(created.MaterialCostPerPart))
	require.Equal(t, created.QuoteNumber, updated.QuoteNumber)

	q := repo.quotes[created.ID]
	q.Status = QuoteSent
	repo.quotes[created.ID] = q
	_, err = svc.UpdateQuote(context.Background(), created.ID, UpdateQuoteRequest{Quote: revised})
	require.ErrorIs(t, err, ErrValidation)
}

func TestQuoteStatusTransitions(t *testing.T) {
	svc, _, _ := newTestService()
	created := newFixtureQuote(t, svc)
	ctx := context.Background()

	// Draft cannot jump straight to accepted.
	_, err := svc.UpdateQuoteStatus(ctx, created.ID, QuoteAccepted, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)

	sent, err := svc.UpdateQuoteStatus(ctx, created.ID, QuoteSent, 1)
	require.NoError(t, err)
	require.Equal(t, QuoteSent, sent.Status)
	require.NotNil(t, sent.SentAt)

	accepted, err := svc.UpdateQuoteStatus(ctx, created.ID, QuoteAccepted, 1)
	require.NoError(t, err)
	require.Equal(t, QuoteAccepted, accepted.Status)

	// Accepted is terminal.
	_, err = svc.UpdateQuoteStatus(ctx, created.ID, QuoteDraft, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConvertAcceptedQuote(t *testing.T) {
	svc, repo, sales := newTestService()
	created := newFixtureQuote(t, svc)
	ctx := context.Background()

	customer := int64(3)
	q := repo.quotes[created.ID]
	q.CustomerID = &customer
	q.Status = QuoteAccepted
	repo.quotes[created.ID] = q

	result, err := svc.Convert(ctx, created.ID, 1)
	require.NoError(t, err)
	require.NotZero(t, result.OrderID)
	require.NotNil(t, result.Quote.SalesOrderID)
	require.Equal(t, result.OrderID, *result.Quote.SalesOrderID)

	require.Len(t, sales.created, 1)
	require.Equal(t, customer, sales.created[0].CustomerID)
	require.Equal(t, 1000.0, sales.created[0].Quantity)
	require.Equal(t, "Converted from quote "+created.QuoteNumber, sales.created[0].Notes)
	require.True(t, sales.created[0].UnitPrice.Equal(created.PricePerPart))

	// A second conversion is refused.
	_, err = svc.Convert(ctx, created.ID, 1)
	require.ErrorIs(t, err, ErrAlreadyConverted)
}

func TestConvertRejectsUnacceptedQuote(t *testing.T) {
	svc, _, _ := newTestService()
	created := newFixtureQuote(t, svc)
	_, err := svc.Convert(context.Background(), created.ID, 1)
	require.ErrorIs(t, err, ErrNotAccepted)
}

func TestJobCostingGetOrCreateSeedsFromOrder(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	j, err := svc.JobCosting(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, int64(42), j.ProductionOrderID)
	require.Equal(t, int64(4800), j.QuantityProduced)

	// Second call returns the same row.
	again, err := svc.JobCosting(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, j.ID, again.ID)
	require.Len(t, repo.costings, 1)
}

func TestRecordActualsPartialUpdate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	kg := 50.0
	costPerKg := dec("2.50")
	hours := 5.0
	rate := dec("45")
	j, err := svc.RecordActuals(ctx, 42, RecordActualsRequest{
		ActualMaterialKg:  &kg,
		MaterialCostPerKg: &costPerKg,
		MachineHours:      &hours,
		MachineRate:       &rate,
		ActorID:           1,
	})
	require.NoError(t, err)
	require.True(t, j.MaterialCost().Equal(dec("125.00")))
	require.True(t, j.MachineCost().Equal(dec("225.00")))

	// A later update leaves earlier actuals alone.
	selling := dec("700.00")
	j, err = svc.RecordActuals(ctx, 42, RecordActualsRequest{ActualSellingPrice: &selling})
	require.NoError(t, err)
	require.Equal(t, 50.0, j.ActualMaterialKg)
	require.True(t, j.ActualSellingPrice.Equal(selling))
}

func TestSnapshotQuoteSetsVarianceBaseline(t *testing.T) {
	svc, _, _ := newTestService()
	created := newFixtureQuote(t, svc)

	j, err := svc.SnapshotQuote(context.Background(), 42, created.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, j.QuoteID)
	require.True(t, j.QuotedCostPerPart.Equal(created.TotalCostPerPart))
	require.True(t, j.QuotedTotalCost.Equal(created.TotalCostPerPart.Mul(decimal.NewFromInt(1000)).Round(2)))
}

func TestRecordMaterialUsage(t *testing.T) {
	svc, _, _ := newTestService()
	usage, err := svc.RecordMaterialUsage(context.Background(), MaterialUsage{
		ProductionOrderID: 42,
		MaterialName:      "PP H110MO",
		PlannedKg:         220,
		ActualKg:          236.4,
		CostPerKg:         dec("2.50"),
	}, 1)
	require.NoError(t, err)
	require.True(t, usage.ActualCost().Equal(dec("591.00")), "got %s", usage.ActualCost())

	listed, err := svc.MaterialUsage(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	_, err = svc.RecordMaterialUsage(context.Background(), MaterialUsage{ProductionOrderID: 42}, 1)
	require.ErrorIs(t, err, ErrValidation)
}

func TestCurrentRatePicksLatestEffective(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	old := MachineRate{MachineID: 5, HourlyRate: dec("40"), EffectiveFrom: time.Now().AddDate(-1, 0, 0)}
	current := MachineRate{MachineID: 5, HourlyRate: dec("47.50"), EffectiveFrom: time.Now().AddDate(0, -1, 0)}
	future := MachineRate{MachineID: 5, HourlyRate: dec("55"), EffectiveFrom: time.Now().AddDate(0, 1, 0)}
	for _, rate := range []MachineRate{old, current, future} {
		_, err := svc.AddMachineRate(ctx, rate, 1)
		require.NoError(t, err)
	}

	got, err := svc.CurrentMachineRate(ctx, 5)
	require.NoError(t, err)
	require.True(t, got.HourlyRate.Equal(dec("47.50")), "got %s", got.HourlyRate)

	_, err = svc.CurrentMachineRate(ctx, 99)
	require.ErrorIs(t, err, ErrNoCurrentRate)
}

func TestAddRatesApplyDefaults(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	machine, err := svc.AddMachineRate(ctx, MachineRate{MachineID: 1, HourlyRate: dec("45")}, 1)
	require.NoError(t, err)
	require.True(t, machine.EnergyRatePerKwh.Equal(dec("0.15")))
	require.False(t, machine.EffectiveFrom.IsZero())

	labour, err := svc.AddLabourRate(ctx, LabourRate{Role: "setter", HourlyRate: dec("18")}, 1)
	require.NoError(t, err)
	require.Equal(t, 1.5, labour.OvertimeMultiplier)

	_, err = svc.AddLabourRate(ctx, LabourRate{}, 1)
	require.ErrorIs(t, err, ErrValidation)
}
