package production

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

// Handler exposes works order, schedule board and sorting queue endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermProductionOrderView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Get("/{id}/logs", h.logs)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermProductionOrderCreate))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermProductionOrderEdit))
		r.Put("/{id}", h.update)
		r.Post("/{id}/start", h.start)
		r.Post("/{id}/quantities", h.quantities)
		r.Post("/{id}/issues", h.reportIssue)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermProductionOrderComplete))
		r.Post("/{id}/complete", h.complete)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermProductionOrderCancel))
		r.Post("/{id}/cancel", h.cancel)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermScheduleView))
		r.Get("/schedule", h.schedule)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermScheduleEdit))
		r.Post("/schedule/jobs", h.scheduleJob)
		r.Put("/schedule/jobs/{id}", h.moveJob)
		r.Delete("/schedule/jobs/{id}", h.unscheduleJob)
		r.Post("/schedule/jobs/{id}/start", h.startJob)
		r.Post("/schedule/jobs/{id}/complete", h.completeJob)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSortingView))
		r.Get("/sorting", h.sortingQueue)
		r.Get("/sorting/counts", h.sortingCounts)
		r.Get("/sorting/{id}", h.showTask)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermSortingRecord))
		r.Post("/sorting/{id}/start", h.startSorting)
		r.Post("/sorting/{id}/complete", h.completeSorting)
	})
}

type orderForm struct {
	ItemID           int64  `json:"item_id"`
	MouldID          *int64 `json:"mould_id"`
	OrderType        string `json:"order_type"`
	SalesOrderID     *int64 `json:"sales_order_id"`
	CustomerID       *int64 `json:"customer_id"`
	QuantityRequired int64  `json:"quantity_required"`
	Priority         int    `json:"priority"`
	DueDate          string `json:"due_date"`
	Notes            string `json:"notes"`
}

type startForm struct {
	MachineID int64 `json:"machine_id"`
}

type quantitiesForm struct {
	QuantityGood     int64  `json:"quantity_good"`
	QuantityRejected int64  `json:"quantity_rejected"`
	Notes            string `json:"notes"`
}

type completeForm struct {
	LocationID *int64 `json:"location_id"`
	Notes      string `json:"notes"`
}

type issueForm struct {
	Notes string `json:"notes"`
}

type scheduleJobForm struct {
	OrderID   int64  `json:"order_id"`
	MachineID int64  `json:"machine_id"`
	Date      string `json:"date"`
}

type moveJobForm struct {
	MachineID int64  `json:"machine_id"`
	Date      string `json:"date"`
	Sequence  int    `json:"sequence"`
}

type completeJobForm struct {
	QuantityProduced int64  `json:"quantity_produced"`
	SortingType      string `json:"sorting_type"`
	LocationID       *int64 `json:"location_id"`
}

type completeSortingForm struct {
	ActualQuantity   int64 `json:"actual_quantity"`
	RejectedQuantity int64 `json:"rejected_quantity"`
	LocationID       int64 `json:"location_id"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := OrderFilter{
		Search:    q.Get("search"),
		Status:    q.Get("status"),
		OrderType: q.Get("type"),
	}
	filter.ItemID, _ = strconv.ParseInt(q.Get("item_id"), 10, 64)
	filter.MachineID, _ = strconv.ParseInt(q.Get("machine_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	orders, total, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list orders", err)
		return
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"total":  total,
		"page":   page,
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	logs, err := h.service.Logs(r.Context(), id)
	if err != nil {
		h.respondError(w, "list order logs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form orderForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	due, err := parseDate(form.DueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "due_date must be YYYY-MM-DD")
		return
	}
	order, err := h.service.CreateOrder(r.Context(), CreateOrderRequest{
		ItemID:           form.ItemID,
		MouldID:          form.MouldID,
		OrderType:        form.OrderType,
		SalesOrderID:     form.SalesOrderID,
		CustomerID:       form.CustomerID,
		QuantityRequired: form.QuantityRequired,
		Priority:         form.Priority,
		DueDate:          due,
		Notes:            form.Notes,
		ActorID:          currentUserID(r),
	})
	if err != nil {
		h.respondError(w, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	var form orderForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	due, err := parseDate(form.DueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "due_date must be YYYY-MM-DD")
		return
	}
	order, err := h.service.UpdateOrder(r.Context(), id, UpdateOrderRequest{
		MouldID:          form.MouldID,
		QuantityRequired: form.QuantityRequired,
		Priority:         form.Priority,
		DueDate:          due,
		Notes:            form.Notes,
		ActorID:          currentUserID(r),
	})
	if err != nil {
		h.respondError(w, "update order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	var form startForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	order, err := h.service.Start(r.Context(), id, form.MachineID, currentUserID(r))
	if err != nil {
		h.respondError(w, "start order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) quantities(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	var form quantitiesForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	order, err := h.service.RecordQuantities(r.Context(), RecordQuantitiesRequest{
		OrderID:          id,
		QuantityGood:     form.QuantityGood,
		QuantityRejected: form.QuantityRejected,
		Notes:            form.Notes,
		ActorID:          currentUserID(r),
	})
	if err != nil {
		h.respondError(w, "record quantities", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	var form completeForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	order, err := h.service.Complete(r.Context(), CompleteOrderRequest{
		OrderID:           id,
		ReceiveLocationID: form.LocationID,
		Notes:             form.Notes,
		ActorID:           currentUserID(r),
		IdempotencyKey:    idempotencyKey(r),
	})
	if err != nil {
		h.respondError(w, "complete order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	order, err := h.service.Cancel(r.Context(), id, currentUserID(r))
	if err != nil {
		h.respondError(w, "cancel order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) reportIssue(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	var form issueForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.service.ReportIssue(r.Context(), id, form.Notes, currentUserID(r)); err != nil {
		h.respondError(w, "report issue", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"status": "reported"})
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	week, err := h.service.WeekSchedule(r.Context(), offset)
	if err != nil {
		h.respondError(w, "build schedule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, week)
}

func (h *Handler) scheduleJob(w http.ResponseWriter, r *http.Request) {
	var form scheduleJobForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	date, err := parseDate(form.Date)
	if err != nil || date == nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
		return
	}
	job, err := h.service.ScheduleJob(r.Context(), ScheduleJobRequest{
		OrderID:   form.OrderID,
		MachineID: form.MachineID,
		Date:      *date,
		ActorID:   currentUserID(r),
	})
	if err != nil {
		h.respondError(w, "schedule job", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, job)
}

func (h *Handler) moveJob(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid job id")
		return
	}
	var form moveJobForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	date, err := parseDate(form.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
		return
	}
	req := MoveJobRequest{
		JobID:     id,
		MachineID: form.MachineID,
		Sequence:  form.Sequence,
		ActorID:   currentUserID(r),
	}
	if date != nil {
		req.Date = *date
	}
	job, err := h.service.MoveJob(r.Context(), req)
	if err != nil {
		h.respondError(w, "move job", err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) unscheduleJob(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid job id")
		return
	}
	if err := h.service.UnscheduleJob(r.Context(), id, currentUserID(r)); err != nil {
		h.respondError(w, "unschedule job", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "removed"})
}

func (h *Handler) startJob(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid job id")
		return
	}
	job, err := h.service.StartJob(r.Context(), id, currentUserID(r))
	if err != nil {
		h.respondError(w, "start job", err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) completeJob(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid job id")
		return
	}
	var form completeJobForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	job, err := h.service.CompleteJob(r.Context(), CompleteJobRequest{
		JobID:            id,
		QuantityProduced: form.QuantityProduced,
		SortingType:      form.SortingType,
		LocationID:       form.LocationID,
		ActorID:          currentUserID(r),
		IdempotencyKey:   idempotencyKey(r),
	})
	if err != nil {
		h.respondError(w, "complete job", err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) sortingQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks, err := h.service.SortingQueue(r.Context(), TaskFilter{
		Status:      q.Get("status"),
		SortingType: q.Get("type"),
	})
	if err != nil {
		h.respondError(w, "list sorting queue", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *Handler) sortingCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.SortingCounts(r.Context())
	if err != nil {
		h.respondError(w, "count sorting queue", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"counts": counts})
}

func (h *Handler) showTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid task id")
		return
	}
	task, err := h.service.GetTask(r.Context(), id)
	if err != nil {
		h.respondError(w, "get sorting task", err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) startSorting(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid task id")
		return
	}
	task, err := h.service.StartSorting(r.Context(), id, currentUserID(r))
	if err != nil {
		h.respondError(w, "start sorting", err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) completeSorting(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid task id")
		return
	}
	var form completeSortingForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	task, err := h.service.CompleteSorting(r.Context(), CompleteSortingRequest{
		TaskID:           id,
		ActualQuantity:   form.ActualQuantity,
		RejectedQuantity: form.RejectedQuantity,
		LocationID:       form.LocationID,
		ActorID:          currentUserID(r),
		IdempotencyKey:   idempotencyKey(r),
	})
	if err != nil {
		h.respondError(w, "complete sorting", err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "record not found")
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", "this request was already processed")
	case errors.Is(err, ErrMachineRequired), errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func currentUserID(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	id, _ := strconv.ParseInt(sess.User(), 10, 64)
	return id
}

func idempotencyKey(r *http.Request) string {
	return r.Header.Get("Idempotency-Key")
}
