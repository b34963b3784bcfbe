package costing

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mouldworks/mouldworks/internal/platform/httpx"
	"github.com/mouldworks/mouldworks/internal/rbac"
	"github.com/mouldworks/mouldworks/internal/shared"
	"github.com/mouldworks/mouldworks/report"
)

// Handler exposes quoting, job costing and rate card endpoints. Every
// route carries pricing access on top of its own permission, so margin
// figures never leak to the shop floor.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	company report.Company
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, company report.Company) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, company: company}
}

// MountRoutes registers costing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermQuoteView, shared.PermPricingView))
		r.Get("/quotes", h.listQuotes)
		r.Get("/quotes/{id}", h.showQuote)
		r.Get("/quotes/{id}/breakdown", h.breakdown)
		r.Get("/quotes/{id}/quote.pdf", h.quotePDF)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermQuoteCreate, shared.PermPricingView))
		r.Post("/quotes", h.createQuote)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermQuoteEdit, shared.PermPricingView))
		r.Put("/quotes/{id}", h.updateQuote)
		r.Post("/quotes/{id}/status", h.updateQuoteStatus)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermQuoteConvert, shared.PermPricingView))
		r.Post("/quotes/{id}/convert", h.convert)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermJobCostingView, shared.PermPricingView))
		r.Get("/jobs/{orderID}", h.jobCosting)
		r.Get("/jobs/{orderID}/material-usage", h.materialUsage)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermJobCostingRecord, shared.PermPricingView))
		r.Put("/jobs/{orderID}", h.recordActuals)
		r.Post("/jobs/{orderID}/snapshot/{quoteID}", h.snapshotQuote)
		r.Post("/jobs/{orderID}/material-usage", h.addMaterialUsage)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPricingView))
		r.Get("/rates/machines/{machineID}", h.machineRates)
		r.Get("/rates/machines/{machineID}/current", h.currentMachineRate)
		r.Get("/rates/labour", h.labourRates)
		r.Get("/rates/labour/current", h.currentLabourRate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRatesEdit, shared.PermPricingView))
		r.Post("/rates/machines", h.addMachineRate)
		r.Post("/rates/labour", h.addLabourRate)
	})
}

// quoteForm carries quote inputs; money fields travel as decimal
// strings.
type quoteForm struct {
	CustomerID  *int64 `json:"customer_id"`
	ItemID      *int64 `json:"item_id"`
	Description string `json:"description"`

	Quantity     int64 `json:"quantity"`
	AnnualVolume int64 `json:"annual_volume"`

	PartWeightG      float64 `json:"part_weight_g"`
	RunnerWeightG    float64 `json:"runner_weight_g"`
	CycleTimeSeconds float64 `json:"cycle_time_seconds"`
	Cavities         int     `json:"cavities"`

	MaterialType         string  `json:"material_type"`
	MaterialCostPerKg    string  `json:"material_cost_per_kg"`
	MachineRatePerHour   string  `json:"machine_rate_per_hour"`
	LabourRatePerHour    string  `json:"labour_rate_per_hour"`
	SetupHours           float64 `json:"setup_hours"`
	SecondaryOpsCost     string  `json:"secondary_ops_cost"`
	OverheadPercent      float64 `json:"overhead_percent"`
	PackagingCostPerPart string  `json:"packaging_cost_per_part"`
	TargetMarginPercent  float64 `json:"target_margin_percent"`

	ToolingCost            string `json:"tooling_cost"`
	ToolingAmortizationQty int64  `json:"tooling_amortization_qty"`

	ValidUntil    string `json:"valid_until"`
	Notes         string `json:"notes"`
	InternalNotes string `json:"internal_notes"`
}

type actualsForm struct {
	QuoteID            *int64   `json:"quote_id"`
	QuantityProduced   *int64   `json:"quantity_produced"`
	ActualMaterialKg   *float64 `json:"actual_material_kg"`
	MaterialCostPerKg  *string  `json:"material_cost_per_kg"`
	LabourHours        *float64 `json:"labour_hours"`
	LabourRate         *string  `json:"labour_rate"`
	MachineHours       *float64 `json:"machine_hours"`
	MachineRate        *string  `json:"machine_rate"`
	SetupHours         *float64 `json:"setup_hours"`
	SetupRate          *string  `json:"setup_rate"`
	ScrapQuantity      *int64   `json:"scrap_quantity"`
	ScrapCost          *string  `json:"scrap_cost"`
	PackagingCost      *string  `json:"packaging_cost"`
	SecondaryOpsCost   *string  `json:"secondary_ops_cost"`
	OverheadAllocated  *string  `json:"overhead_allocated"`
	ActualSellingPrice *string  `json:"actual_selling_price"`
	Notes              *string  `json:"notes"`
}

type machineRateForm struct {
	MachineID           int64   `json:"machine_id"`
	HourlyRate          string  `json:"hourly_rate"`
	SetupRate           string  `json:"setup_rate"`
	EnergyRatePerKwh    string  `json:"energy_rate_per_kwh"`
	RunningKw           float64 `json:"running_kw"`
	OverheadRatePerHour string  `json:"overhead_rate_per_hour"`
	EffectiveFrom       string  `json:"effective_from"`
}

type labourRateForm struct {
	Role               string  `json:"role"`
	HourlyRate         string  `json:"hourly_rate"`
	OvertimeMultiplier float64 `json:"overtime_multiplier"`
	EffectiveFrom      string  `json:"effective_from"`
}

func (h *Handler) listQuotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := QuoteFilter{Search: q.Get("search"), Status: q.Get("status")}
	filter.CustomerID, _ = strconv.ParseInt(q.Get("customer_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	quotes, total, err := h.service.ListQuotes(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list quotes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"quotes": quotes, "total": total})
}

func (h *Handler) showQuote(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return
	}
	quote, err := h.service.GetQuote(r.Context(), id)
	if err != nil {
		h.respondError(w, "get quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) createQuote(w http.ResponseWriter, r *http.Request) {
	var form quoteForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	quote, err := form.toQuote()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	created, err := h.service.CreateQuote(r.Context(), CreateQuoteRequest{Quote: quote, ActorID: currentUserID(r)})
	if err != nil {
		h.respondError(w, "create quote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateQuote(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return
	}
	var form quoteForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	quote, err := form.toQuote()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	updated, err := h.service.UpdateQuote(r.Context(), id, UpdateQuoteRequest{Quote: quote, ActorID: currentUserID(r)})
	if err != nil {
		h.respondError(w, "update quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) breakdown(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return
	}
	b, err := h.service.Recalculate(r.Context(), id)
	if err != nil {
		h.respondError(w, "recalculate quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) updateQuoteStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return
	}
	var form struct {
		Status string `json:"status"`
	}
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	quote, err := h.service.UpdateQuoteStatus(r.Context(), id, form.Status, currentUserID(r))
	if err != nil {
		h.respondError(w, "update quote status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return
	}
	result, err := h.service.Convert(r.Context(), id, currentUserID(r))
	if err != nil {
		h.respondError(w, "convert quote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) quotePDF(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return
	}
	quote, err := h.service.GetQuote(r.Context(), id)
	if err != nil {
		h.respondError(w, "quote pdf", err)
		return
	}
	doc := report.QuoteDocument{
		Company:      h.company,
		QuoteNumber:  quote.QuoteNumber,
		Date:         quote.CreatedAt.Format("02/01/2006"),
		CustomerName: quote.CustomerName,
		Description:  quote.Description,
		Quantity:     quote.Quantity,
		PartWeightG:  quote.PartWeightG,
		CycleSeconds: quote.CycleTimeSeconds,
		Cavities:     quote.Cavities,
		MaterialType: quote.MaterialType,
		CostLines: []report.QuoteCostLine{
			{Label: "Material", Amount: money(quote.MaterialCostPerPart)},
			{Label: "Machine and labour", Amount: money(quote.CycleCostPerPart)},
			{Label: "Setup (amortised)", Amount: money(quote.SetupCostPerPart)},
			{Label: "Overhead", Amount: money(quote.OverheadCostPerPart)},
		},
		PricePerPart: money(quote.PricePerPart),
		QuotedTotal:  "£" + quote.QuotedTotal.StringFixed(2),
		Notes:        quote.Notes,
	}
	if quote.ValidUntil != nil {
		doc.ValidUntil = quote.ValidUntil.Format("02/01/2006")
	}
	pdf, err := report.RenderQuote(doc)
	if err != nil {
		h.respondError(w, "quote pdf", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", quote.QuoteNumber+".pdf"))
	_, _ = w.Write(pdf)
}

func (h *Handler) jobCosting(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseID(r, "orderID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	j, err := h.service.JobCosting(r.Context(), orderID)
	if err != nil {
		h.respondError(w, "job costing", err)
		return
	}
	httpx.JSON(w, http.StatusOK, jobCostingView(j))
}

func (h *Handler) recordActuals(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseID(r, "orderID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	var form actualsForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	req, err := form.toRequest(currentUserID(r))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	j, err := h.service.RecordActuals(r.Context(), orderID, req)
	if err != nil {
		h.respondError(w, "record actuals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, jobCostingView(j))
}

func (h *Handler) snapshotQuote(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseID(r, "orderID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	quoteID, err := parseID(r, "quoteID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return
	}
	j, err := h.service.SnapshotQuote(r.Context(), orderID, quoteID, currentUserID(r))
	if err != nil {
		h.respondError(w, "snapshot quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, jobCostingView(j))
}

func (h *Handler) materialUsage(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseID(r, "orderID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	usage, err := h.service.MaterialUsage(r.Context(), orderID)
	if err != nil {
		h.respondError(w, "material usage", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"usage": usage})
}

func (h *Handler) addMaterialUsage(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseID(r, "orderID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	var form struct {
		MaterialName string  `json:"material_name"`
		PlannedKg    float64 `json:"planned_kg"`
		ActualKg     float64 `json:"actual_kg"`
		CostPerKg    string  `json:"cost_per_kg"`
		Notes        string  `json:"notes"`
	}
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	usage := MaterialUsage{
		ProductionOrderID: orderID,
		MaterialName:      form.MaterialName,
		PlannedKg:         form.PlannedKg,
		ActualKg:          form.ActualKg,
		Notes:             form.Notes,
	}
	if form.CostPerKg != "" {
		cost, err := decimal.NewFromString(form.CostPerKg)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "cost_per_kg must be a decimal string")
			return
		}
		usage.CostPerKg = cost
	}
	created, err := h.service.RecordMaterialUsage(r.Context(), usage, currentUserID(r))
	if err != nil {
		h.respondError(w, "record material usage", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) addMachineRate(w http.ResponseWriter, r *http.Request) {
	var form machineRateForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	rate := MachineRate{MachineID: form.MachineID, RunningKw: form.RunningKw}
	var err error
	if rate.HourlyRate, err = parseMoney(form.HourlyRate); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "hourly_rate must be a decimal string")
		return
	}
	if rate.SetupRate, err = parseMoney(form.SetupRate); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "setup_rate must be a decimal string")
		return
	}
	if rate.EnergyRatePerKwh, err = parseMoney(form.EnergyRatePerKwh); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "energy_rate_per_kwh must be a decimal string")
		return
	}
	if rate.OverheadRatePerHour, err = parseMoney(form.OverheadRatePerHour); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "overhead_rate_per_hour must be a decimal string")
		return
	}
	if form.EffectiveFrom != "" {
		t, err := time.Parse("2006-01-02", form.EffectiveFrom)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "effective_from must be YYYY-MM-DD")
			return
		}
		rate.EffectiveFrom = t
	}
	created, err := h.service.AddMachineRate(r.Context(), rate, currentUserID(r))
	if err != nil {
		h.respondError(w, "add machine rate", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) addLabourRate(w http.ResponseWriter, r *http.Request) {
	var form labourRateForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	rate := LabourRate{Role: form.Role, OvertimeMultiplier: form.OvertimeMultiplier}
	var err error
	if rate.HourlyRate, err = parseMoney(form.HourlyRate); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "hourly_rate must be a decimal string")
		return
	}
	if form.EffectiveFrom != "" {
		t, err := time.Parse("2006-01-02", form.EffectiveFrom)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "effective_from must be YYYY-MM-DD")
			return
		}
		rate.EffectiveFrom = t
	}
	created, err := h.service.AddLabourRate(r.Context(), rate, currentUserID(r))
	if err != nil {
		h.respondError(w, "add labour rate", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) machineRates(w http.ResponseWriter, r *http.Request) {
	machineID, err := parseID(r, "machineID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid machine id")
		return
	}
	rates, err := h.service.MachineRates(r.Context(), machineID)
	if err != nil {
		h.respondError(w, "list machine rates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rates": rates})
}

func (h *Handler) currentMachineRate(w http.ResponseWriter, r *http.Request) {
	machineID, err := parseID(r, "machineID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid machine id")
		return
	}
	rate, err := h.service.CurrentMachineRate(r.Context(), machineID)
	if err != nil {
		h.respondError(w, "current machine rate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}

func (h *Handler) labourRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.service.LabourRates(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		h.respondError(w, "list labour rates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rates": rates})
}

func (h *Handler) currentLabourRate(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "role query parameter required")
		return
	}
	rate, err := h.service.CurrentLabourRate(r.Context(), role)
	if err != nil {
		h.respondError(w, "current labour rate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}

func (f quoteForm) toQuote() (Quote, error) {
	q := Quote{
		CustomerID:             f.CustomerID,
		ItemID:                 f.ItemID,
		Description:            f.Description,
		Quantity:               f.Quantity,
		AnnualVolume:           f.AnnualVolume,
		PartWeightG:            f.PartWeightG,
		RunnerWeightG:          f.RunnerWeightG,
		CycleTimeSeconds:       f.CycleTimeSeconds,
		Cavities:               f.Cavities,
		MaterialType:           f.MaterialType,
		SetupHours:             f.SetupHours,
		OverheadPercent:        f.OverheadPercent,
		TargetMarginPercent:    f.TargetMarginPercent,
		ToolingAmortizationQty: f.ToolingAmortizationQty,
		Notes:                  f.Notes,
		InternalNotes:          f.InternalNotes,
	}
	var err error
	if q.MaterialCostPerKg, err = parseMoney(f.MaterialCostPerKg); err != nil {
		return Quote{}, errors.New("material_cost_per_kg must be a decimal string")
	}
	if q.MachineRatePerHour, err = parseMoney(f.MachineRatePerHour); err != nil {
		return Quote{}, errors.New("machine_rate_per_hour must be a decimal string")
	}
	if q.LabourRatePerHour, err = parseMoney(f.LabourRatePerHour); err != nil {
		return Quote{}, errors.New("labour_rate_per_hour must be a decimal string")
	}
	if q.SecondaryOpsCost, err = parseMoney(f.SecondaryOpsCost); err != nil {
		return Quote{}, errors.New("secondary_ops_cost must be a decimal string")
	}
	if q.PackagingCostPerPart, err = parseMoney(f.PackagingCostPerPart); err != nil {
		return Quote{}, errors.New("packaging_cost_per_part must be a decimal string")
	}
	if q.ToolingCost, err = parseMoney(f.ToolingCost); err != nil {
		return Quote{}, errors.New("tooling_cost must be a decimal string")
	}
	if f.ValidUntil != "" {
		t, err := time.Parse("2006-01-02", f.ValidUntil)
		if err != nil {
			return Quote{}, errors.New("valid_until must be YYYY-MM-DD")
		}
		q.ValidUntil = &t
	}
	return q, nil
}

func (f actualsForm) toRequest(actorID int64) (RecordActualsRequest, error) {
	req := RecordActualsRequest{
		QuoteID:          f.QuoteID,
		QuantityProduced: f.QuantityProduced,
		ActualMaterialKg: f.ActualMaterialKg,
		LabourHours:      f.LabourHours,
		MachineHours:     f.MachineHours,
		SetupHours:       f.SetupHours,
		ScrapQuantity:    f.ScrapQuantity,
		Notes:            f.Notes,
		ActorID:          actorID,
	}
	assign := func(dst **decimal.Decimal, src *string, name string) error {
		if src == nil {
			return nil
		}
		value, err := decimal.NewFromString(*src)
		if err != nil {
			return errors.New(name + " must be a decimal string")
		}
		*dst = &value
		return nil
	}
	if err := assign(&req.MaterialCostPerKg, f.MaterialCostPerKg, "material_cost_per_kg"); err != nil {
		return RecordActualsRequest{}, err
	}
	if err := assign(&req.LabourRate, f.LabourRate, "labour_rate"); err != nil {
		return RecordActualsRequest{}, err
	}
	if err := assign(&req.MachineRate, f.MachineRate, "machine_rate"); err != nil {
		return RecordActualsRequest{}, err
	}
	if err := assign(&req.SetupRate, f.SetupRate, "setup_rate"); err != nil {
		return RecordActualsRequest{}, err
	}
	if err := assign(&req.ScrapCost, f.ScrapCost, "scrap_cost"); err != nil {
		return RecordActualsRequest{}, err
	}
	if err := assign(&req.PackagingCost, f.PackagingCost, "packaging_cost"); err != nil {
		return RecordActualsRequest{}, err
	}
	if err := assign(&req.SecondaryOpsCost, f.SecondaryOpsCost, "secondary_ops_cost"); err != nil {
		return RecordActualsRequest{}, err
	}
	if err := assign(&req.OverheadAllocated, f.OverheadAllocated, "overhead_allocated"); err != nil {
		return RecordActualsRequest{}, err
	}
	if err := assign(&req.ActualSellingPrice, f.ActualSellingPrice, "actual_selling_price"); err != nil {
		return RecordActualsRequest{}, err
	}
	return req, nil
}

// jobCostingView bundles the stored row with its computed figures.
func jobCostingView(j JobCosting) map[string]any {
	return map[string]any{
		"costing":               j,
		"material_cost":         j.MaterialCost(),
		"labour_cost":           j.LabourCost(),
		"machine_cost":          j.MachineCost(),
		"setup_cost":            j.SetupCost(),
		"actual_total_cost":     j.ActualTotalCost(),
		"gross_profit":          j.GrossProfit(),
		"gross_margin_percent":  j.GrossMarginPercent(),
		"cost_variance":         j.CostVariance(),
		"cost_variance_percent": j.CostVariancePercent(),
	}
}

func parseMoney(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}

func money(d decimal.Decimal) string {
	return "£" + d.StringFixed(4)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoCurrentRate):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotAccepted),
		errors.Is(err, ErrAlreadyConverted):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func currentUserID(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	id, _ := strconv.ParseInt(sess.User(), 10, 64)
	return id
}
