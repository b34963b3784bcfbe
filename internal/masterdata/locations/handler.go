package locations

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

// Handler exposes location endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers location routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(internalshared.PermLocationView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Get("/{id}/contents", h.contents)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(internalshared.PermLocationEdit))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.deactivate)
	})
}

type locationForm struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Zone         string `json:"zone"`
	LocationType string `json:"location_type"`
	MaxCapacity  int    `json:"max_capacity"`
	IsActive     *bool  `json:"is_active"`

	// Generated code fields, used when code is blank.
	Row   int `json:"row"`
	Bay   int `json:"bay"`
	Shelf int `json:"shelf"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := shared.ParseListFilters(r)
	list, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.respondError(w, "list locations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"locations": list,
		"total":     total,
		"page":      filters.Page,
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid location id")
		return
	}
	loc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get location", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loc)
}

func (h *Handler) contents(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid location id")
		return
	}
	contents, err := h.service.Contents(r.Context(), id)
	if err != nil {
		h.respondError(w, "location contents", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"contents": contents})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form locationForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	loc := form.toLocation()
	if loc.Code == "" && form.Zone != "" && form.Row > 0 && form.Bay > 0 {
		loc.Code = GenerateCode(form.Zone, form.Row, form.Bay, form.Shelf)
	}
	created, err := h.service.Create(r.Context(), loc, currentUserID(r))
	if err != nil {
		h.respondError(w, "create location", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid location id")
		return
	}
	var form locationForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	loc := form.toLocation()
	if form.IsActive != nil {
		loc.IsActive = *form.IsActive
	} else {
		loc.IsActive = true
	}
	if err := h.service.Update(r.Context(), id, loc, currentUserID(r)); err != nil {
		h.respondError(w, "update location", err)
		return
	}
	updated, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get location", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid location id")
		return
	}
	if err := h.service.Deactivate(r.Context(), id, currentUserID(r)); err != nil {
		h.respondError(w, "deactivate location", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "location not found")
	case errors.Is(err, shared.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "location code already exists")
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrRequiredField):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (f locationForm) toLocation() Location {
	return Location{
		Code:         f.Code,
		Name:         f.Name,
		Zone:         f.Zone,
		LocationType: f.LocationType,
		MaxCapacity:  f.MaxCapacity,
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
