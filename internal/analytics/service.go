package analytics

import (
	"context"
	"strconv"
	"time"
)

// RepositoryPort is the read surface the service caches over.
type RepositoryPort interface {
	Dashboard(ctx context.Context, now time.Time) (DashboardSummary, error)
	ProductionLast7Days(ctx context.Context, now time.Time) ([]SeriesPoint, error)
	StockByCategory(ctx context.Context) ([]CategoryCount, error)
	OrderStatusDistribution(ctx context.Context) ([]CategoryCount, error)
	StockOnHand(ctx context.Context, f StockFilter) ([]StockRow, error)
	LowStock(ctx context.Context) ([]StockRow, error)
	StockValue(ctx context.Context) ([]StockRow, error)
	MovementHistory(ctx context.Context, f MovementFilter) ([]MovementRow, error)
	ProductionSummary(ctx context.Context, f RangeFilter) ([]ProductionSummaryRow, error)
	MachineUtilization(ctx context.Context, f RangeFilter) ([]MachineUtilizationRow, error)
	OrderSummary(ctx context.Context, f RangeFilter) (OrderSummaryReport, error)
	MouldMaintenance(ctx context.Context, now time.Time) ([]MouldMaintenanceRow, error)
	NCRReport(ctx context.Context, f RangeFilter) ([]NCRRow, error)
}

// Service serves the dashboard, charts and reports, caching each
// payload in Redis behind a version token.
type Service struct {
	repo  RepositoryPort
	cache *Cache
}

// NewService wires the reporting repository with the cache helper.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Invalidate bumps the cache version after a write elsewhere.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// Dashboard returns the front-page snapshot.
func (s *Service) Dashboard(ctx context.Context, now time.Time) (DashboardSummary, error) {
	key, err := s.cache.BuildKey(ctx, "dashboard", now.Format("2006-01-02"))
	if err != nil {
		return DashboardSummary{}, err
	}
	var out DashboardSummary
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.Dashboard(ctx, now)
	})
	return out, err
}

// Charts returns the dashboard chart feeds.
func (s *Service) Charts(ctx context.Context, now time.Time) (ChartData, error) {
	key, err := s.cache.BuildKey(ctx, "charts", now.Format("2006-01-02"))
	if err != nil {
		return ChartData{}, err
	}
	var out ChartData
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		var data ChartData
		var err error
		if data.ProductionLast7Days, err = s.repo.ProductionLast7Days(ctx, now); err != nil {
			return nil, err
		}
		if data.StockByCategory, err = s.repo.StockByCategory(ctx); err != nil {
			return nil, err
		}
		if data.OrderStatuses, err = s.repo.OrderStatusDistribution(ctx); err != nil {
			return nil, err
		}
		return data, nil
	})
	return out, err
}

// StockOnHand returns the stock position report.
func (s *Service) StockOnHand(ctx context.Context, f StockFilter) ([]StockRow, error) {
	key, err := s.cache.BuildKey(ctx, "stock", f.Category, f.ItemType, strconv.FormatInt(f.LocationID, 10))
	if err != nil {
		return nil, err
	}
	var out []StockRow
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.StockOnHand(ctx, f)
	})
	return out, err
}

// LowStock returns items at or below their minimum.
func (s *Service) LowStock(ctx context.Context) ([]StockRow, error) {
	key, err := s.cache.BuildKey(ctx, "lowstock")
	if err != nil {
		return nil, err
	}
	var out []StockRow
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.LowStock(ctx)
	})
	return out, err
}

// StockValue returns items ranked by value on hand.
func (s *Service) StockValue(ctx context.Context) ([]StockRow, error) {
	key, err := s.cache.BuildKey(ctx, "stockvalue")
	if err != nil {
		return nil, err
	}
	var out []StockRow
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.StockValue(ctx)
	})
	return out, err
}

// MovementHistory returns the filtered movement report. Not cached:
// the filter space is too wide for useful hit rates.
func (s *Service) MovementHistory(ctx context.Context, f MovementFilter) ([]MovementRow, error) {
	return s.repo.MovementHistory(ctx, f)
}

// ProductionSummary aggregates works orders per item over a range.
func (s *Service) ProductionSummary(ctx context.Context, f RangeFilter) ([]ProductionSummaryRow, error) {
	f = normalizeRange(f, time.Now())
	key, err := s.cache.BuildKey(ctx, "prodsummary", rangeToken(f))
	if err != nil {
		return nil, err
	}
	var out []ProductionSummaryRow
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.ProductionSummary(ctx, f)
	})
	return out, err
}

// MachineUtilization summarises press workloads over a range.
func (s *Service) MachineUtilization(ctx context.Context, f RangeFilter) ([]MachineUtilizationRow, error) {
	f = normalizeRange(f, time.Now())
	key, err := s.cache.BuildKey(ctx, "machineutil", rangeToken(f))
	if err != nil {
		return nil, err
	}
	var out []MachineUtilizationRow
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.MachineUtilization(ctx, f)
	})
	return out, err
}

// OrderSummary returns the sales overview for a range.
func (s *Service) OrderSummary(ctx context.Context, f RangeFilter) (OrderSummaryReport, error) {
	f = normalizeRange(f, time.Now())
	key, err := s.cache.BuildKey(ctx, "ordersummary", rangeToken(f))
	if err != nil {
		return OrderSummaryReport{}, err
	}
	var out OrderSummaryReport
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.OrderSummary(ctx, f)
	})
	return out, err
}

// MouldMaintenance lists tools overdue or due within 30 days.
func (s *Service) MouldMaintenance(ctx context.Context, now time.Time) ([]MouldMaintenanceRow, error) {
	key, err := s.cache.BuildKey(ctx, "mouldmaint", now.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	var out []MouldMaintenanceRow
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.MouldMaintenance(ctx, now)
	})
	return out, err
}

// NCRReport lists non-conformances raised over a range.
func (s *Service) NCRReport(ctx context.Context, f RangeFilter) ([]NCRRow, error) {
	return s.repo.NCRReport(ctx, normalizeRange(f, time.Now()))
}

// normalizeRange fills missing bounds with the trailing 30 days.
func normalizeRange(f RangeFilter, now time.Time) RangeFilter {
	if f.To.IsZero() {
		f.To = now
	}
	if f.From.IsZero() {
		f.From = f.To.AddDate(0, 0, -30)
	}
	return f
}

func rangeToken(f RangeFilter) string {
	return f.From.Format("20060102") + "-" + f.To.Format("20060102")
}
