package machines

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mouldworks/mouldworks/internal/masterdata/shared"
	"github.com/mouldworks/mouldworks/internal/platform/httpx"
	"github.com/mouldworks/mouldworks/internal/rbac"
	internalshared "github.com/mouldworks/mouldworks/internal/shared"
)

// Handler exposes machine endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers machine routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(internalshared.PermMachineView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(internalshared.PermMachineEdit))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Post("/{id}/status", h.setStatus)
		r.Delete("/{id}", h.deactivate)
	})
}

type machineForm struct {
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	Manufacturer string  `json:"manufacturer"`
	Model        string  `json:"model"`
	Tonnage      float64 `json:"tonnage"`
	Year         int     `json:"year"`
	Status       string  `json:"status"`
	DisplayOrder int     `json:"display_order"`
	IsActive     *bool   `json:"is_active"`
	Notes        string  `json:"notes"`
}

type statusForm struct {
	Status string `json:"status"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := shared.ParseListFilters(r)
	machines, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.respondError(w, "list machines", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"machines": machines,
		"total":    total,
		"page":     filters.Page,
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid machine id")
		return
	}
	m, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get machine", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form machineForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	created, err := h.service.Create(r.Context(), form.toMachine(), currentUserID(r))
	if err != nil {
		h.respondError(w, "create machine", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid machine id")
		return
	}
	var form machineForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	m := form.toMachine()
	if form.IsActive != nil {
		m.IsActive = *form.IsActive
	} else {
		m.IsActive = true
	}
	if err := h.service.Update(r.Context(), id, m, currentUserID(r)); err != nil {
		h.respondError(w, "update machine", err)
		return
	}
	updated, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get machine", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid machine id")
		return
	}
	var form statusForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	updated, err := h.service.SetStatus(r.Context(), id, form.Status, currentUserID(r))
	if err != nil {
		h.respondError(w, "set machine status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid machine id")
		return
	}
	if err := h.service.Deactivate(r.Context(), id, currentUserID(r)); err != nil {
		h.respondError(w, "deactivate machine", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "machine not found")
	case errors.Is(err, shared.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "machine code already exists")
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrRequiredField):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (f machineForm) toMachine() Machine {
	return Machine{
		Code:         f.Code,
		Name:         f.Name,
		Manufacturer: f.Manufacturer,
		Model:        f.Model,
		Tonnage:      f.Tonnage,
		Year:         f.Year,
		Status:       f.Status,
		DisplayOrder: f.DisplayOrder,
		Notes:        f.Notes,
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
