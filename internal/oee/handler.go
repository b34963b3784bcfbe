package oee

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mouldworks/mouldworks/internal/platform/httpx"
	"github.com/mouldworks/mouldworks/internal/rbac"
	"github.com/mouldworks/mouldworks/internal/shared"
)

// Handler exposes shift logging and OEE reporting endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers OEE routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermShiftLogView))
		r.Get("/dashboard", h.dashboard)
		r.Get("/machines/{machineID}/history", h.history)
		r.Get("/machines/{machineID}/shift-log", h.shiftLog)
		r.Get("/downtime", h.downtimeEvents)
		r.Get("/scrap", h.scrapEvents)
		r.Get("/reasons/downtime", h.downtimeReasons)
		r.Get("/reasons/scrap", h.scrapReasons)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermShiftLogRecord))
		r.Post("/shift-logs", h.upsertShiftLog)
		r.Post("/downtime", h.logDowntime)
		r.Post("/scrap", h.logScrap)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDowntimeReasonEdit))
		r.Post("/reasons/downtime", h.addDowntimeReason)
		r.Post("/reasons/scrap", h.addScrapReason)
	})
}

type shiftLogForm struct {
	MachineID         int64  `json:"machine_id"`
	ShiftDate         string `json:"shift_date"`
	Shift             string `json:"shift"`
	ProductionOrderID *int64 `json:"production_order_id"`
	OperatorID        *int64 `json:"operator_id"`

	PlannedProductionMinutes int `json:"planned_production_minutes"`

	DowntimeBreakdownMinutes        int    `json:"downtime_breakdown_minutes"`
	DowntimeSetupChangeoverMinutes  int    `json:"downtime_setup_changeover_minutes"`
	DowntimeMaterialShortageMinutes int    `json:"downtime_material_shortage_minutes"`
	DowntimeOtherMinutes            int    `json:"downtime_other_minutes"`
	DowntimeNotes                   string `json:"downtime_notes"`

	IdealCycleTimeSeconds float64 `json:"ideal_cycle_time_seconds"`
	PartsPerCycle         int     `json:"parts_per_cycle"`

	TotalPartsProduced int64 `json:"total_parts_produced"`
	GoodParts          int64 `json:"good_parts"`
	ScrapParts         int64 `json:"scrap_parts"`
	ReworkParts        int64 `json:"rework_parts"`

	ScrapStartup   int64  `json:"scrap_startup"`
	ScrapColour    int64  `json:"scrap_colour"`
	ScrapShortShot int64  `json:"scrap_short_shot"`
	ScrapFlash     int64  `json:"scrap_flash"`
	ScrapSinkMarks int64  `json:"scrap_sink_marks"`
	ScrapWarp      int64  `json:"scrap_warp"`
	ScrapOther     int64  `json:"scrap_other"`
	ScrapNotes     string `json:"scrap_notes"`

	Notes string `json:"notes"`
}

func (h *Handler) upsertShiftLog(w http.ResponseWriter, r *http.Request) {
	var form shiftLogForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	log := ShiftLog{
		MachineID:                       form.MachineID,
		Shift:                           form.Shift,
		ProductionOrderID:               form.ProductionOrderID,
		OperatorID:                      form.OperatorID,
		PlannedProductionMinutes:        form.PlannedProductionMinutes,
		DowntimeBreakdownMinutes:        form.DowntimeBreakdownMinutes,
		DowntimeSetupChangeoverMinutes:  form.DowntimeSetupChangeoverMinutes,
		DowntimeMaterialShortageMinutes: form.DowntimeMaterialShortageMinutes,
		DowntimeOtherMinutes:            form.DowntimeOtherMinutes,
		DowntimeNotes:                   form.DowntimeNotes,
		IdealCycleTimeSeconds:           form.IdealCycleTimeSeconds,
		PartsPerCycle:                   form.PartsPerCycle,
		TotalPartsProduced:              form.TotalPartsProduced,
		GoodParts:                       form.GoodParts,
		ScrapParts:                      form.ScrapParts,
		ReworkParts:                     form.ReworkParts,
		ScrapStartup:                    form.ScrapStartup,
		ScrapColour:                     form.ScrapColour,
		ScrapShortShot:                  form.ScrapShortShot,
		ScrapFlash:                      form.ScrapFlash,
		ScrapSinkMarks:                  form.ScrapSinkMarks,
		ScrapWarp:                       form.ScrapWarp,
		ScrapOther:                      form.ScrapOther,
		ScrapNotes:                      form.ScrapNotes,
		Notes:                           form.Notes,
	}
	if form.ShiftDate != "" {
		t, err := time.Parse("2006-01-02", form.ShiftDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "shift_date must be YYYY-MM-DD")
			return
		}
		log.ShiftDate = t
	}
	saved, err := h.service.UpsertShiftLog(r.Context(), UpsertShiftLogRequest{Log: log, ActorID: currentUserID(r)})
	if err != nil {
		h.respondError(w, "upsert shift log", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"log": saved, "metrics": saved.Compute()})
}

func (h *Handler) shiftLog(w http.ResponseWriter, r *http.Request) {
	machineID, err := parseID(r, "machineID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid machine id")
		return
	}
	date := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err = time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
			return
		}
	}
	log, err := h.service.ShiftLog(r.Context(), machineID, date, r.URL.Query().Get("shift"))
	if err != nil {
		h.respondError(w, "get shift log", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"log": log, "metrics": log.Compute()})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context(), time.Now())
	if err != nil {
		h.respondError(w, "oee dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	machineID, err := parseID(r, "machineID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid machine id")
		return
	}
	hist, err := h.service.History(r.Context(), machineID, time.Now())
	if err != nil {
		h.respondError(w, "oee history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, hist)
}

type downtimeForm struct {
	MachineID         int64  `json:"machine_id"`
	ProductionOrderID *int64 `json:"production_order_id"`
	ReasonID          *int64 `json:"reason_id"`
	Reason            string `json:"reason"`
	StartedAt         string `json:"started_at"`
	EndedAt           string `json:"ended_at"`
	DurationMinutes   int    `json:"duration_minutes"`
	Notes             string `json:"notes"`
}

func (h *Handler) logDowntime(w http.ResponseWriter, r *http.Request) {
	var form downtimeForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	e := DowntimeEvent{
		MachineID:         form.MachineID,
		ProductionOrderID: form.ProductionOrderID,
		ReasonID:          form.ReasonID,
		Reason:            form.Reason,
		DurationMinutes:   form.DurationMinutes,
		Notes:             form.Notes,
	}
	if form.StartedAt != "" {
		t, err := time.Parse(time.RFC3339, form.StartedAt)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "started_at must be RFC3339")
			return
		}
		e.StartedAt = t
	}
	if form.EndedAt != "" {
		t, err := time.Parse(time.RFC3339, form.EndedAt)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "ended_at must be RFC3339")
			return
		}
		e.EndedAt = &t
	}
	created, err := h.service.LogDowntime(r.Context(), e, currentUserID(r))
	if err != nil {
		h.respondError(w, "log downtime", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

// logScrap is the quick-log endpoint used straight from the press.
func (h *Handler) logScrap(w http.ResponseWriter, r *http.Request) {
	var form struct {
		MachineID         int64   `json:"machine_id"`
		ProductionOrderID *int64  `json:"production_order_id"`
		ReasonID          *int64  `json:"reason_id"`
		Reason            string  `json:"reason"`
		Quantity          int64   `json:"quantity"`
		WeightKg          float64 `json:"weight_kg"`
		Notes             string  `json:"notes"`
	}
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	created, err := h.service.LogScrap(r.Context(), ScrapEvent{
		MachineID:         form.MachineID,
		ProductionOrderID: form.ProductionOrderID,
		ReasonID:          form.ReasonID,
		Reason:            form.Reason,
		Quantity:          form.Quantity,
		WeightKg:          form.WeightKg,
		Notes:             form.Notes,
	}, currentUserID(r))
	if err != nil {
		h.respondError(w, "log scrap", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) downtimeEvents(w http.ResponseWriter, r *http.Request) {
	machineID, _ := strconv.ParseInt(r.URL.Query().Get("machine_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.service.DowntimeEvents(r.Context(), machineID, limit)
	if err != nil {
		h.respondError(w, "list downtime", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) scrapEvents(w http.ResponseWriter, r *http.Request) {
	machineID, _ := strconv.ParseInt(r.URL.Query().Get("machine_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.service.ScrapEvents(r.Context(), machineID, limit)
	if err != nil {
		h.respondError(w, "list scrap", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) downtimeReasons(w http.ResponseWriter, r *http.Request) {
	reasons, err := h.service.DowntimeReasons(r.Context())
	if err != nil {
		h.respondError(w, "list downtime reasons", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reasons": reasons})
}

func (h *Handler) scrapReasons(w http.ResponseWriter, r *http.Request) {
	reasons, err := h.service.ScrapReasons(r.Context())
	if err != nil {
		h.respondError(w, "list scrap reasons", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reasons": reasons})
}

func (h *Handler) addDowntimeReason(w http.ResponseWriter, r *http.Request) {
	var form DowntimeReason
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	created, err := h.service.AddDowntimeReason(r.Context(), form, currentUserID(r))
	if err != nil {
		h.respondError(w, "add downtime reason", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) addScrapReason(w http.ResponseWriter, r *http.Request) {
	var form ScrapReason
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	created, err := h.service.AddScrapReason(r.Context(), form, currentUserID(r))
	if err != nil {
		h.respondError(w, "add scrap reason", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
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
