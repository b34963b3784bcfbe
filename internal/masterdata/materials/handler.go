package materials

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
	"github.com/mouldworks/mouldworks/internal/platform/httpx"
	"github.com/mouldworks/mouldworks/internal/rbac"
	internalshared "github.com/mouldworks/mouldworks/internal/shared"
)

// Handler exposes material and masterbatch endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers material routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(internalshared.PermMaterialView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Get("/{id}/price-history", h.priceHistory)
		r.Get("/masterbatches", h.listMasterbatches)
		r.Get("/masterbatches/{id}", h.showMasterbatch)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(internalshared.PermMaterialEdit))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Post("/{id}/price", h.updatePrice)
		r.Delete("/{id}", h.deactivate)
		r.Post("/masterbatches", h.createMasterbatch)
		r.Put("/masterbatches/{id}", h.updateMasterbatch)
	})
}

type materialForm struct {
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	MaterialType   string  `json:"material_type"`
	Grade          string  `json:"grade"`
	Manufacturer   string  `json:"manufacturer"`
	SupplierID     *int64  `json:"supplier_id"`
	SupplierCode   string  `json:"supplier_code"`
	MFI            float64 `json:"mfi"`
	Density        float64 `json:"density"`
	Colour         string  `json:"colour"`
	CostPerKg      string  `json:"cost_per_kg"`
	CurrentStockKg float64 `json:"current_stock_kg"`
	MinStockKg     float64 `json:"min_stock_kg"`
	BarrelTempMinC float64 `json:"barrel_temp_min_c"`
	BarrelTempMaxC float64 `json:"barrel_temp_max_c"`
	MouldTempMinC  float64 `json:"mould_temp_min_c"`
	MouldTempMaxC  float64 `json:"mould_temp_max_c"`
	DryingTempC    float64 `json:"drying_temp_c"`
	DryingTimeH    float64 `json:"drying_time_hours"`
	IsActive       *bool   `json:"is_active"`
	Notes          string  `json:"notes"`
}

type priceForm struct {
	CostPerKg     string `json:"cost_per_kg"`
	EffectiveDate string `json:"effective_date"`
	Reason        string `json:"reason"`
}

type masterbatchForm struct {
	Code                string  `json:"code"`
	Name                string  `json:"name"`
	Colour              string  `json:"colour"`
	ColourCode          string  `json:"colour_code"`
	SupplierID          *int64  `json:"supplier_id"`
	CompatibleMaterials string  `json:"compatible_materials"`
	TypicalRatioPercent float64 `json:"typical_ratio_percent"`
	MinRatioPercent     float64 `json:"min_ratio_percent"`
	MaxRatioPercent     float64 `json:"max_ratio_percent"`
	CostPerKg           string  `json:"cost_per_kg"`
	CurrentStockKg      float64 `json:"current_stock_kg"`
	IsActive            *bool   `json:"is_active"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := shared.ParseListFilters(r)
	if code := r.URL.Query().Get("code"); code != "" {
		m, err := h.service.GetByCode(r.Context(), code)
		if err != nil {
			h.respondError(w, "get material by code", err)
			return
		}
		httpx.JSON(w, http.StatusOK, m)
		return
	}
	list, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.respondError(w, "list materials", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"materials": list,
		"total":     total,
		"page":      filters.Page,
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid material id")
		return
	}
	m, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get material", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) priceHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid material id")
		return
	}
	history, err := h.service.PriceHistory(r.Context(), id)
	if err != nil {
		h.respondError(w, "material price history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"price_history": history})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form materialForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	m, err := form.toMaterial()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), m, currentUserID(r))
	if err != nil {
		h.respondError(w, "create material", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid material id")
		return
	}
	var form materialForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	m, err := form.toMaterial()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if form.IsActive != nil {
		m.IsActive = *form.IsActive
	} else {
		m.IsActive = true
	}
	updated, err := h.service.Update(r.Context(), id, m, currentUserID(r))
	if err != nil {
		h.respondError(w, "update material", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) updatePrice(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid material id")
		return
	}
	var form priceForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	cost, err := decimal.NewFromString(form.CostPerKg)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "cost_per_kg must be a decimal number")
		return
	}
	var effective time.Time
	if form.EffectiveDate != "" {
		effective, err = time.Parse("2006-01-02", form.EffectiveDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "effective_date must be YYYY-MM-DD")
			return
		}
	}
	updated, err := h.service.UpdatePrice(r.Context(), id, cost, effective, form.Reason, currentUserID(r))
	if err != nil {
		h.respondError(w, "update material price", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid material id")
		return
	}
	if err := h.service.Deactivate(r.Context(), id, currentUserID(r)); err != nil {
		h.respondError(w, "deactivate material", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
}

func (h *Handler) listMasterbatches(w http.ResponseWriter, r *http.Request) {
	filters := shared.ParseListFilters(r)
	list, total, err := h.service.ListMasterbatches(r.Context(), filters)
	if err != nil {
		h.respondError(w, "list masterbatches", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"masterbatches": list,
		"total":         total,
		"page":          filters.Page,
	})
}

func (h *Handler) showMasterbatch(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid masterbatch id")
		return
	}
	mb, err := h.service.GetMasterbatch(r.Context(), id)
	if err != nil {
		h.respondError(w, "get masterbatch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, mb)
}

func (h *Handler) createMasterbatch(w http.ResponseWriter, r *http.Request) {
	var form masterbatchForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	mb, err := form.toMasterbatch()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.CreateMasterbatch(r.Context(), mb, currentUserID(r))
	if err != nil {
		h.respondError(w, "create masterbatch", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateMasterbatch(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid masterbatch id")
		return
	}
	var form masterbatchForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	mb, err := form.toMasterbatch()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if form.IsActive != nil {
		mb.IsActive = *form.IsActive
	} else {
		mb.IsActive = true
	}
	updated, err := h.service.UpdateMasterbatch(r.Context(), id, mb, currentUserID(r))
	if err != nil {
		h.respondError(w, "update masterbatch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "material not found")
	case errors.Is(err, shared.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "code already exists")
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrRequiredField):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (f materialForm) toMaterial() (Material, error) {
	cost := decimal.Zero
	if f.CostPerKg != "" {
		var err error
		cost, err = decimal.NewFromString(f.CostPerKg)
		if err != nil {
			return Material{}, errors.New("cost_per_kg must be a decimal number")
		}
	}
	return Material{
		Code:           f.Code,
		Name:           f.Name,
		MaterialType:   f.MaterialType,
		Grade:          f.Grade,
		Manufacturer:   f.Manufacturer,
		SupplierID:     f.SupplierID,
		SupplierCode:   f.SupplierCode,
		MFI:            f.MFI,
		Density:        f.Density,
		Colour:         f.Colour,
		CostPerKg:      cost,
		CurrentStockKg: f.CurrentStockKg,
		MinStockKg:     f.MinStockKg,
		BarrelTempMinC: f.BarrelTempMinC,
		BarrelTempMaxC: f.BarrelTempMaxC,
		MouldTempMinC:  f.MouldTempMinC,
		MouldTempMaxC:  f.MouldTempMaxC,
		DryingTempC:    f.DryingTempC,
		DryingTimeH:    f.DryingTimeH,
		Notes:          f.Notes,
	}, nil
}

func (f masterbatchForm) toMasterbatch() (Masterbatch, error) {
	cost := decimal.Zero
	if f.CostPerKg != "" {
		var err error
		cost, err = decimal.NewFromString(f.CostPerKg)
		if err != nil {
			return Masterbatch{}, errors.New("cost_per_kg must be a decimal number")
		}
	}
	return Masterbatch{
		Code:                f.Code,
		Name:                f.Name,
		Colour:              f.Colour,
		ColourCode:          f.ColourCode,
		SupplierID:          f.SupplierID,
		CompatibleMaterials: f.CompatibleMaterials,
		TypicalRatioPercent: f.TypicalRatioPercent,
		MinRatioPercent:     f.MinRatioPercent,
		MaxRatioPercent:     f.MaxRatioPercent,
		CostPerKg:           cost,
		CurrentStockKg:      f.CurrentStockKg,
	}, nil
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func currentUserID(r *http.Request) int64 {
	sess := internalshared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	id, _ := strconv.ParseInt(sess.User(), 10, 64)
	return id
}
