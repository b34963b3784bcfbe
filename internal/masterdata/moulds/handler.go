package moulds

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
	"github.com/mouldworks/mouldworks/internal/platform/httpx"
	"github.com/mouldworks/mouldworks/internal/rbac"
	internalshared "github.com/mouldworks/mouldworks/internal/shared"
)

// Handler exposes mould and setup sheet endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers mould routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(internalshared.PermMouldView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Get("/{id}/items", h.linkedItems)
		r.Get("/{id}/setup-sheets", h.listSetupSheets)
		r.Get("/{id}/setup-sheets/current", h.currentSetupSheet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(internalshared.PermMouldEdit))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Post("/{id}/status", h.setStatus)
		r.Post("/{id}/record-shots", h.recordShots)
		r.Post("/{id}/maintenance", h.maintenancePerformed)
		r.Put("/{id}/items", h.setLinkedItems)
		r.Post("/{id}/setup-sheets", h.createSetupSheet)
		r.Delete("/{id}", h.deactivate)
	})
}

type mouldForm struct {
	MouldNumber              string  `json:"mould_number"`
	Name                     string  `json:"name"`
	NumCavities              int     `json:"num_cavities"`
	CycleTimeSeconds         float64 `json:"cycle_time_seconds"`
	ShotWeightGrams          float64 `json:"shot_weight_grams"`
	Status                   string  `json:"status"`
	LocationStored           string  `json:"location_stored"`
	NextMaintenanceDate      string  `json:"next_maintenance_date"`
	MaintenanceIntervalShots int64   `json:"maintenance_interval_shots"`
	IsActive                 *bool   `json:"is_active"`
	Notes                    string  `json:"notes"`
}

type shotsForm struct {
	Shots int64 `json:"shots"`
}

type maintenanceForm struct {
	PerformedDate string `json:"performed_date"`
	NextDate      string `json:"next_date"`
}

type itemsForm struct {
	ItemIDs []int64 `json:"item_ids"`
}

type setupSheetForm struct {
	ItemID               int64   `json:"item_id"`
	BarrelTempZone1C     float64 `json:"barrel_temp_zone1_c"`
	BarrelTempZone2C     float64 `json:"barrel_temp_zone2_c"`
	BarrelTempZone3C     float64 `json:"barrel_temp_zone3_c"`
	BarrelTempZone4C     float64 `json:"barrel_temp_zone4_c"`
	NozzleTempC          float64 `json:"nozzle_temp_c"`
	MouldTempC           float64 `json:"mould_temp_c"`
	InjectionPressureBar float64 `json:"injection_pressure_bar"`
	InjectionSpeedMmS    float64 `json:"injection_speed_mm_s"`
	HoldPressureBar      float64 `json:"hold_pressure_bar"`
	HoldTimeSeconds      float64 `json:"hold_time_seconds"`
	CoolingTimeSeconds   float64 `json:"cooling_time_seconds"`
	CycleTimeSeconds     float64 `json:"cycle_time_seconds"`
	ShotWeightGrams      float64 `json:"shot_weight_grams"`
	CushionMm            float64 `json:"cushion_mm"`
	BackPressureBar      float64 `json:"back_pressure_bar"`
	ScrewSpeedRpm        float64 `json:"screw_speed_rpm"`
	Notes                string  `json:"notes"`
	ApprovedBy           string  `json:"approved_by"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := shared.ParseListFilters(r)
	if number := r.URL.Query().Get("number"); number != "" {
		m, err := h.service.GetByNumber(r.Context(), number)
		if err != nil {
			h.respondError(w, "get mould by number", err)
			return
		}
		httpx.JSON(w, http.StatusOK, m)
		return
	}
	moulds, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.respondError(w, "list moulds", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"moulds": moulds,
		"total":  total,
		"page":   filters.Page,
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid mould id")
		return
	}
	m, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get mould", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form mouldForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	m, err := form.toMould()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), m, currentUserID(r))
	if err != nil {
		h.respondError(w, "create mould", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid mould id")
		return
	}
	var form mouldForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	m, err := form.toMould()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if form.IsActive != nil {
		m.IsActive = *form.IsActive
	} else {
		m.IsActive = true
	}
	if err := h.service.Update(r.Context(), id, m, currentUserID(r)); err != nil {
		h.respondError(w, "update mould", err)
		return
	}
	updated, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get mould", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid mould id")
		return
	}
	var form struct {
		Status string `json:"status"`
	}
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	updated, err := h.service.SetStatus(r.Context(), id, form.Status, currentUserID(r))
	if err != nil {
		h.respondError(w, "set mould status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) recordShots(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid mould id")
		return
	}
	var form shotsForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	updated, err := h.service.RecordShots(r.Context(), id, form.Shots, currentUserID(r))
	if err != nil {
		h.respondError(w, "record mould shots", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) maintenancePerformed(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid mould id")
		return
	}
	var form maintenanceForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	var performed time.Time
	if form.PerformedDate != "" {
		performed, err = time.Parse("2006-01-02", form.PerformedDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "performed_date must be YYYY-MM-DD")
			return
		}
	}
	var next *time.Time
	if form.NextDate != "" {
		parsed, err := time.Parse("2006-01-02", form.NextDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "next_date must be YYYY-MM-DD")
			return
		}
		next = &parsed
	}
	updated, err := h.service.MaintenancePerformed(r.Context(), id, performed, next, currentUserID(r))
	if err != nil {
		h.respondError(w, "mould maintenance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) linkedItems(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid mould id")
		return
	}
	items, err := h.service.LinkedItems(r.Context(), id)
	if err != nil {
		h.respondError(w, "mould items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) setLinkedItems(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid mould id")
		return
	}
	var form itemsForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.service.SetLinkedItems(r.Context(), id, form.ItemIDs, currentUserID(r)); err != nil {
		h.respondError(w, "set mould items", err)
		return
	}
	items, err := h.service.LinkedItems(r.Context(), id)
	if err != nil {
		h.respondError(w, "mould items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) listSetupSheets(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid mould id")
		return
	}
	sheets, err := h.service.ListSetupSheets(r.Context(), id)
	if err != nil {
		h.respondError(w, "list setup sheets", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"setup_sheets": sheets})
}

func (h *Handler) currentSetupSheet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid mould id")
		return
	}
	itemID, err := strconv.ParseInt(r.URL.Query().Get("item_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "item_id query parameter is required")
		return
	}
	sheet, err := h.service.CurrentSetupSheet(r.Context(), id, itemID)
	if err != nil {
		h.respondError(w, "current setup sheet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheet)
}

func (h *Handler) createSetupSheet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid mould id")
		return
	}
	var form setupSheetForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	sheet := form.toSetupSheet(id)
	created, err := h.service.CreateSetupSheet(r.Context(), sheet, currentUserID(r))
	if err != nil {
		h.respondError(w, "create setup sheet", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid mould id")
		return
	}
	if err := h.service.Deactivate(r.Context(), id, currentUserID(r)); err != nil {
		h.respondError(w, "deactivate mould", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "mould not found")
	case errors.Is(err, shared.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "mould number already exists")
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrRequiredField):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (f mouldForm) toMould() (Mould, error) {
	m := Mould{
		MouldNumber:              f.MouldNumber,
		Name:                     f.Name,
		NumCavities:              f.NumCavities,
		CycleTimeSeconds:         f.CycleTimeSeconds,
		ShotWeightGrams:          f.ShotWeightGrams,
		Status:                   f.Status,
		LocationStored:           f.LocationStored,
		MaintenanceIntervalShots: f.MaintenanceIntervalShots,
		Notes:                    f.Notes,
	}
	if f.NextMaintenanceDate != "" {
		parsed, err := time.Parse("2006-01-02", f.NextMaintenanceDate)
		if err != nil {
			return Mould{}, errors.New("next_maintenance_date must be YYYY-MM-DD")
		}
		m.NextMaintenanceDate = &parsed
	}
	return m, nil
}

func (f setupSheetForm) toSetupSheet(mouldID int64) SetupSheet {
	return SetupSheet{
		MouldID:              mouldID,
		ItemID:               f.ItemID,
		BarrelTempZone1C:     f.BarrelTempZone1C,
		BarrelTempZone2C:     f.BarrelTempZone2C,
		BarrelTempZone3C:     f.BarrelTempZone3C,
		BarrelTempZone4C:     f.BarrelTempZone4C,
		NozzleTempC:          f.NozzleTempC,
		MouldTempC:           f.MouldTempC,
		InjectionPressureBar: f.InjectionPressureBar,
		InjectionSpeedMmS:    f.InjectionSpeedMmS,
		HoldPressureBar:      f.HoldPressureBar,
		HoldTimeSeconds:      f.HoldTimeSeconds,
		CoolingTimeSeconds:   f.CoolingTimeSeconds,
		CycleTimeSeconds:     f.CycleTimeSeconds,
		ShotWeightGrams:      f.ShotWeightGrams,
		CushionMm:            f.CushionMm,
		BackPressureBar:      f.BackPressureBar,
		ScrewSpeedRpm:        f.ScrewSpeedRpm,
		Notes:                f.Notes,
		ApprovedBy:           f.ApprovedBy,
	}
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
