package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	dashboardCalls int
	stockCalls     int
	dashboard      DashboardSummary
	stock          []StockRow
}

func (f *fakeRepo) Dashboard(_ context.Context, _ time.Time) (DashboardSummary, error) {
	f.dashboardCalls++
	return f.dashboard, nil
}

func (f *fakeRepo) ProductionLast7Days(_ context.Context, _ time.Time) ([]SeriesPoint, error) {
	return []SeriesPoint{{Date: "2026-08-30", Value: 4800}}, nil
}

func (f *fakeRepo) StockByCategory(_ context.Context) ([]CategoryCount, error) {
	return []CategoryCount{{Label: "clips", Value: 12000}}, nil
}

func (f *fakeRepo) OrderStatusDistribution(_ context.Context) ([]CategoryCount, error) {
	return []CategoryCount{{Label: "new", Value: 3}}, nil
}

func (f *fakeRepo) StockOnHand(_ context.Context, _ StockFilter) ([]StockRow, error) {
	f.stockCalls++
	return f.stock, nil
}

func (f *fakeRepo) LowStock(_ context.Context) ([]StockRow, error)   { return f.stock, nil }
func (f *fakeRepo) StockValue(_ context.Context) ([]StockRow, error) { return f.stock, nil }

func (f *fakeRepo) MovementHistory(_ context.Context, _ MovementFilter) ([]MovementRow, error) {
	return []MovementRow{}, nil
}

func (f *fakeRepo) ProductionSummary(_ context.Context, _ RangeFilter) ([]ProductionSummaryRow, error) {
	return []ProductionSummaryRow{}, nil
}

func (f *fakeRepo) MachineUtilization(_ context.Context, _ RangeFilter) ([]MachineUtilizationRow, error) {
	return []MachineUtilizationRow{}, nil
}

func (f *fakeRepo) OrderSummary(_ context.Context, _ RangeFilter) (OrderSummaryReport, error) {
	return OrderSummaryReport{}, nil
}

func (f *fakeRepo) MouldMaintenance(_ context.Context, _ time.Time) ([]MouldMaintenanceRow, error) {
	return []MouldMaintenanceRow{}, nil
}

func (f *fakeRepo) NCRReport(_ context.Context, _ RangeFilter) ([]NCRRow, error) {
	return []NCRRow{}, nil
}

func newCachedService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &fakeRepo{
		dashboard: DashboardSummary{
			ItemCount:     42,
			LowStockCount: 3,
			StockValue:    decimal.RequireFromString("1250.50"),
			MachineStatus: map[string]int{"running": 4, "idle": 2},
		},
		stock: []StockRow{{SKU: "CLP-4020", TotalStock: 12000}},
	}
	return NewService(repo, NewCache(client, 10*time.Minute)), repo
}

func TestDashboardCachesSecondRead(t *testing.T) {
	svc, repo := newCachedService(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	first, err := svc.Dashboard(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 42, first.ItemCount)
	require.Equal(t, 1, repo.dashboardCalls)

	second, err := svc.Dashboard(ctx, now)
	require.NoError(t, err)
	require.Equal(t, first.ItemCount, second.ItemCount)
	require.Equal(t, first.StockValue.String(), second.StockValue.String())
	require.Equal(t, 1, repo.dashboardCalls)
}

func TestInvalidateBumpsVersion(t *testing.T) {
	svc, repo := newCachedService(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	_, err := svc.Dashboard(ctx, now)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx))

	// The version moved, so the old key misses and the repo is hit again.
	_, err = svc.Dashboard(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 2, repo.dashboardCalls)
}

func TestStockReportKeysByFilter(t *testing.T) {
	svc, repo := newCachedService(t)
	ctx := context.Background()

	_, err := svc.StockOnHand(ctx, StockFilter{Category: "clips"})
	require.NoError(t, err)
	_, err = svc.StockOnHand(ctx, StockFilter{Category: "brackets"})
	require.NoError(t, err)
	require.Equal(t, 2, repo.stockCalls)

	// Same filter hits the cache.
	_, err = svc.StockOnHand(ctx, StockFilter{Category: "clips"})
	require.NoError(t, err)
	require.Equal(t, 2, repo.stockCalls)
}

func TestServiceWorksWithoutRedis(t *testing.T) {
	repo := &fakeRepo{dashboard: DashboardSummary{ItemCount: 7}}
	svc := NewService(repo, nil)

	d, err := svc.Dashboard(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 7, d.ItemCount)

	// Every read goes to the repo when the cache is absent.
	_, err = svc.Dashboard(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, repo.dashboardCalls)
}

func TestNormalizeRangeDefaults(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	f := normalizeRange(RangeFilter{}, now)
	require.Equal(t, now, f.To)
	require.Equal(t, now.AddDate(0, 0, -30), f.From)

	fixed := RangeFilter{From: now.AddDate(0, 0, -7), To: now}
	require.Equal(t, fixed, normalizeRange(fixed, now))
}

func TestChartsBundleFeeds(t *testing.T) {
	svc, _ := newCachedService(t)
	data, err := svc.Charts(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, data.ProductionLast7Days, 1)
	require.Equal(t, "clips", data.StockByCategory[0].Label)
	require.Equal(t, "new", data.OrderStatuses[0].Label)
}
