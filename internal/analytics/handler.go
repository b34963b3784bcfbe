package analytics

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mouldworks/mouldworks/internal/analytics/svg"
	"github.com/mouldworks/mouldworks/internal/platform/httpx"
	"github.com/mouldworks/mouldworks/internal/rbac"
	"github.com/mouldworks/mouldworks/internal/shared"
)

// Handler exposes the dashboard, chart and report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers analytics routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermAnalyticsView))
		r.Get("/dashboard", h.dashboard)
		r.Get("/charts", h.charts)
		r.Get("/charts/production.svg", h.productionChartSVG)
		r.Get("/charts/stock.svg", h.stockChartSVG)
		r.Get("/reports/stock", h.stockOnHand)
		r.Get("/reports/low-stock", h.lowStock)
		r.Get("/reports/stock-value", h.stockValue)
		r.Get("/reports/movements", h.movements)
		r.Get("/reports/production-summary", h.productionSummary)
		r.Get("/reports/machine-utilization", h.machineUtilization)
		r.Get("/reports/order-summary", h.orderSummary)
		r.Get("/reports/mould-maintenance", h.mouldMaintenance)
		r.Get("/reports/ncrs", h.ncrs)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAnalyticsExport))
		r.Get("/reports/stock.csv", h.stockCSV)
		r.Get("/reports/movements.csv", h.movementsCSV)
		r.Get("/reports/production-summary.csv", h.productionSummaryCSV)
		r.Get("/reports/ncrs.csv", h.ncrsCSV)
	})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context(), time.Now())
	if err != nil {
		h.fail(w, "analytics dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) charts(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.Charts(r.Context(), time.Now())
	if err != nil {
		h.fail(w, "analytics charts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

// productionChartSVG renders the last-7-days completion chart for the
// HTML dashboard.
func (h *Handler) productionChartSVG(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.Charts(r.Context(), time.Now())
	if err != nil {
		h.fail(w, "production chart", err)
		return
	}
	series := make([]float64, len(data.ProductionLast7Days))
	labels := make([]string, len(data.ProductionLast7Days))
	for i, p := range data.ProductionLast7Days {
		series[i] = p.Value
		labels[i] = p.Date[5:]
	}
	markup, err := svg.Line(svg.DefaultWidth, svg.DefaultHeight, series, labels, svg.LineOpts{
		Title:    "Good parts, last 7 days",
		ShowDots: true,
	})
	if err != nil {
		h.fail(w, "production chart", err)
		return
	}
	serveSVG(w, string(markup))
}

// stockChartSVG renders the stock-by-category bar chart.
func (h *Handler) stockChartSVG(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.Charts(r.Context(), time.Now())
	if err != nil {
		h.fail(w, "stock chart", err)
		return
	}
	series := make([]float64, len(data.StockByCategory))
	labels := make([]string, len(data.StockByCategory))
	for i, c := range data.StockByCategory {
		series[i] = c.Value
		labels[i] = c.Label
	}
	markup, err := svg.Bars(svg.DefaultWidth, svg.DefaultHeight, series, nil, labels, svg.BarOpts{
		Title:        "Stock by category",
		SeriesALabel: "Quantity",
	})
	if err != nil {
		h.fail(w, "stock chart", err)
		return
	}
	serveSVG(w, string(markup))
}

func (h *Handler) stockOnHand(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.StockOnHand(r.Context(), stockFilter(r))
	if err != nil {
		h.fail(w, "stock report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.LowStock(r.Context())
	if err != nil {
		h.fail(w, "low stock report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) stockValue(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.StockValue(r.Context())
	if err != nil {
		h.fail(w, "stock value report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.MovementHistory(r.Context(), movementFilter(r))
	if err != nil {
		h.fail(w, "movement report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) productionSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ProductionSummary(r.Context(), rangeFilter(r))
	if err != nil {
		h.fail(w, "production summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) machineUtilization(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.MachineUtilization(r.Context(), rangeFilter(r))
	if err != nil {
		h.fail(w, "machine utilization", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) orderSummary(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.OrderSummary(r.Context(), rangeFilter(r))
	if err != nil {
		h.fail(w, "order summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) mouldMaintenance(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.MouldMaintenance(r.Context(), time.Now())
	if err != nil {
		h.fail(w, "mould maintenance report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) ncrs(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.NCRReport(r.Context(), rangeFilter(r))
	if err != nil {
		h.fail(w, "ncr report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) stockCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.StockOnHand(r.Context(), stockFilter(r))
	if err != nil {
		h.fail(w, "stock csv", err)
		return
	}
	var buf bytes.Buffer
	if err := WriteStockCSV(&buf, rows); err != nil {
		h.fail(w, "stock csv", err)
		return
	}
	serveCSV(w, "stock", buf.Bytes())
}

func (h *Handler) movementsCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.MovementHistory(r.Context(), movementFilter(r))
	if err != nil {
		h.fail(w, "movements csv", err)
		return
	}
	var buf bytes.Buffer
	if err := WriteMovementsCSV(&buf, rows); err != nil {
		h.fail(w, "movements csv", err)
		return
	}
	serveCSV(w, "movements", buf.Bytes())
}

func (h *Handler) productionSummaryCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ProductionSummary(r.Context(), rangeFilter(r))
	if err != nil {
		h.fail(w, "production summary csv", err)
		return
	}
	var buf bytes.Buffer
	if err := WriteProductionSummaryCSV(&buf, rows); err != nil {
		h.fail(w, "production summary csv", err)
		return
	}
	serveCSV(w, "production-summary", buf.Bytes())
}

func (h *Handler) ncrsCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.NCRReport(r.Context(), rangeFilter(r))
	if err != nil {
		h.fail(w, "ncr csv", err)
		return
	}
	var buf bytes.Buffer
	if err := WriteNCRCSV(&buf, rows); err != nil {
		h.fail(w, "ncr csv", err)
		return
	}
	serveCSV(w, "ncrs", buf.Bytes())
}

func stockFilter(r *http.Request) StockFilter {
	q := r.URL.Query()
	locationID, _ := strconv.ParseInt(q.Get("location_id"), 10, 64)
	return StockFilter{
		Category:   q.Get("category"),
		ItemType:   q.Get("type"),
		LocationID: locationID,
	}
}

func movementFilter(r *http.Request) MovementFilter {
	q := r.URL.Query()
	itemID, _ := strconv.ParseInt(q.Get("item_id"), 10, 64)
	f := MovementFilter{MovementType: q.Get("type"), ItemID: itemID}
	if t, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		f.From = t
	}
	if t, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		f.To = t.AddDate(0, 0, 1)
	}
	return f
}

func rangeFilter(r *http.Request) RangeFilter {
	q := r.URL.Query()
	f := RangeFilter{}
	if t, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		f.From = t
	}
	if t, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		f.To = t.AddDate(0, 0, 1)
	}
	return f
}

func serveCSV(w http.ResponseWriter, name string, data []byte) {
	filename := name + "-" + time.Now().Format("2006-01-02") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func serveSVG(w http.ResponseWriter, markup string) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "max-age=300")
	_, _ = w.Write([]byte(markup))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
