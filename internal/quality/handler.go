package quality

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mouldworks/mouldworks/internal/platform/httpx"
	"github.com/mouldworks/mouldworks/internal/rbac"
	"github.com/mouldworks/mouldworks/internal/shared"
)

// Handler exposes the non-conformance register.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers NCR routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermNCRView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermNCRCreate))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermNCRResolve))
		r.Post("/{id}/status", h.updateStatus)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	itemID, _ := strconv.ParseInt(q.Get("item_id"), 10, 64)
	customerID, _ := strconv.ParseInt(q.Get("customer_id"), 10, 64)
	ncrs, total, err := h.service.List(r.Context(), ListFilter{
		Status:     q.Get("status"),
		Source:     q.Get("source"),
		ItemID:     itemID,
		CustomerID: customerID,
		Search:     q.Get("search"),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		h.respondError(w, "list ncrs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ncrs": ncrs, "total": total})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid ncr id")
		return
	}
	n, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get ncr", err)
		return
	}
	httpx.JSON(w, http.StatusOK, n)
}

type createForm struct {
	Source            string `json:"source"`
	ItemID            *int64 `json:"item_id"`
	ProductionOrderID *int64 `json:"production_order_id"`
	CustomerID        *int64 `json:"customer_id"`
	QuantityAffected  int64  `json:"quantity_affected"`
	Description       string `json:"description"`
	Disposition       string `json:"disposition"`
	AssignedTo        *int64 `json:"assigned_to"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form createForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	n, err := h.service.Create(r.Context(), CreateRequest{
		Source:            form.Source,
		ItemID:            form.ItemID,
		ProductionOrderID: form.ProductionOrderID,
		CustomerID:        form.CustomerID,
		QuantityAffected:  form.QuantityAffected,
		Description:       form.Description,
		Disposition:       form.Disposition,
		AssignedTo:        form.AssignedTo,
		ActorID:           currentUserID(r),
	})
	if err != nil {
		h.respondError(w, "create ncr", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, n)
}

type updateForm struct {
	QuantityAffected *int64  `json:"quantity_affected"`
	Description      *string `json:"description"`
	RootCause        *string `json:"root_cause"`
	CorrectiveAction *string `json:"corrective_action"`
	Disposition      *string `json:"disposition"`
	AssignedTo       *int64  `json:"assigned_to"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid ncr id")
		return
	}
	var form updateForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	n, err := h.service.Update(r.Context(), id, UpdateRequest{
		QuantityAffected: form.QuantityAffected,
		Description:      form.Description,
		RootCause:        form.RootCause,
		CorrectiveAction: form.CorrectiveAction,
		Disposition:      form.Disposition,
		AssignedTo:       form.AssignedTo,
		ActorID:          currentUserID(r),
	})
	if err != nil {
		h.respondError(w, "update ncr", err)
		return
	}
	httpx.JSON(w, http.StatusOK, n)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid ncr id")
		return
	}
	var form struct {
		Status string `json:"status"`
	}
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	n, err := h.service.UpdateStatus(r.Context(), id, form.Status, currentUserID(r))
	if err != nil {
		h.respondError(w, "ncr status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, n)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrClosed):
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
