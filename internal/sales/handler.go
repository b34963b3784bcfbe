package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mouldworks/mouldworks/internal/platform/httpx"
	"github.com/mouldworks/mouldworks/internal/rbac"
	"github.com/mouldworks/mouldworks/internal/shared"
)

// Handler exposes sales order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers sales order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSalesOrderView))
		r.Get("/", h.list)
		r.Get("/search", h.search)
		r.Get("/{id}", h.show)
		r.Get("/{id}/stock-check", h.stockCheck)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermSalesOrderCreate))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermSalesOrderEdit))
		r.Put("/{id}", h.update)
		r.Post("/{id}/lines", h.addLine)
		r.Delete("/{id}/lines/{lineID}", h.removeLine)
		r.Post("/{id}/status", h.updateStatus)
		r.Post("/{id}/archive", h.archive)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermSalesOrderProcess))
		r.Post("/{id}/process", h.process)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermSalesOrderAllocate))
		r.Post("/{id}/allocate", h.allocate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermSalesOrderCancel, shared.PermUsersEdit))
		r.Post("/archive-finished", h.archiveFinished)
		r.Delete("/{id}", h.remove)
	})
}

type orderForm struct {
	CustomerID       int64    `json:"customer_id"`
	CustomerPO       string   `json:"customer_po"`
	RequiredDate     string   `json:"required_date"`
	DeliveryName     string   `json:"delivery_name"`
	DeliveryAddress  string   `json:"delivery_address"`
	DeliveryCity     string   `json:"delivery_city"`
	DeliveryPostcode string   `json:"delivery_postcode"`
	DeliveryMethod   string   `json:"delivery_method"`
	ShippingCost     string   `json:"shipping_cost"`
	TaxRatePercent   *float64 `json:"tax_rate_percent"`
	Notes            string   `json:"notes"`
	InternalNotes    string   `json:"internal_notes"`
}

type lineForm struct {
	ItemID            *int64  `json:"item_id"`
	IsCustomItem      bool    `json:"is_custom_item"`
	CustomSKU         string  `json:"custom_sku"`
	CustomDescription string  `json:"custom_description"`
	Quantity          float64 `json:"quantity"`
	UnitPrice         *string `json:"unit_price"`
	DiscountPercent   float64 `json:"discount_percent"`
}

type statusForm struct {
	Status string `json:"status"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := OrderFilter{
		Search:          q.Get("search"),
		Status:          q.Get("status"),
		IncludeArchived: q.Get("archived") == "true",
	}
	filter.CustomerID, _ = strconv.ParseInt(q.Get("customer_id"), 10, 64)
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

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.respondError(w, "search orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
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

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form orderForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	req, err := form.toCreateRequest(currentUserID(r))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	order, err := h.service.CreateOrder(r.Context(), req)
	if err != nil {
		h.respondError(w, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	var form orderForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	createReq, err := form.toCreateRequest(currentUserID(r))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	order, err := h.service.UpdateOrder(r.Context(), id, UpdateOrderRequest{
		CustomerPO:       createReq.CustomerPO,
		RequiredDate:     createReq.RequiredDate,
		DeliveryName:     createReq.DeliveryName,
		DeliveryAddress:  createReq.DeliveryAddress,
		DeliveryCity:     createReq.DeliveryCity,
		DeliveryPostcode: createReq.DeliveryPostcode,
		DeliveryMethod:   createReq.DeliveryMethod,
		ShippingCost:     createReq.ShippingCost,
		TaxRatePercent:   createReq.TaxRatePercent,
		Notes:            createReq.Notes,
		InternalNotes:    createReq.InternalNotes,
		ActorID:          createReq.ActorID,
	})
	if err != nil {
		h.respondError(w, "update order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	var form lineForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	req := AddLineRequest{
		ItemID:            form.ItemID,
		IsCustomItem:      form.IsCustomItem,
		CustomSKU:         form.CustomSKU,
		CustomDescription: form.CustomDescription,
		Quantity:          form.Quantity,
		DiscountPercent:   form.DiscountPercent,
		ActorID:           currentUserID(r),
	}
	if form.UnitPrice != nil {
		price, err := decimal.NewFromString(*form.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unit_price must be a decimal string")
			return
		}
		req.UnitPrice = &price
	}
	order, err := h.service.AddLine(r.Context(), id, req)
	if err != nil {
		h.respondError(w, "add order line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	lineID, err := parseID(r, "lineID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid line id")
		return
	}
	order, err := h.service.RemoveLine(r.Context(), id, lineID, currentUserID(r))
	if err != nil {
		h.respondError(w, "remove order line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) stockCheck(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	checks, err := h.service.CheckStock(r.Context(), id)
	if err != nil {
		h.respondError(w, "stock check", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lines": checks})
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	result, err := h.service.Process(r.Context(), id, currentUserID(r))
	if err != nil {
		h.respondError(w, "process order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	result, err := h.service.Allocate(r.Context(), id, currentUserID(r))
	if err != nil {
		h.respondError(w, "allocate order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	var form statusForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	order, err := h.service.UpdateStatus(r.Context(), id, form.Status, currentUserID(r))
	if err != nil {
		h.respondError(w, "update order status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	order, err := h.service.Archive(r.Context(), id, currentUserID(r))
	if err != nil {
		h.respondError(w, "archive order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) archiveFinished(w http.ResponseWriter, r *http.Request) {
	archived, err := h.service.ArchiveFinished(r.Context(), currentUserID(r))
	if err != nil {
		h.respondError(w, "archive finished orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"archived": archived})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	if err := h.service.Delete(r.Context(), id, currentUserID(r)); err != nil {
		h.respondError(w, "delete order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f orderForm) toCreateRequest(actorID int64) (CreateOrderRequest, error) {
	req := CreateOrderRequest{
		CustomerID:       f.CustomerID,
		CustomerPO:       f.CustomerPO,
		DeliveryName:     f.DeliveryName,
		DeliveryAddress:  f.DeliveryAddress,
		DeliveryCity:     f.DeliveryCity,
		DeliveryPostcode: f.DeliveryPostcode,
		DeliveryMethod:   f.DeliveryMethod,
		TaxRatePercent:   f.TaxRatePercent,
		Notes:            f.Notes,
		InternalNotes:    f.InternalNotes,
		ActorID:          actorID,
	}
	if f.RequiredDate != "" {
		t, err := time.Parse("2006-01-02", f.RequiredDate)
		if err != nil {
			return CreateOrderRequest{}, errors.New("required_date must be YYYY-MM-DD")
		}
		req.RequiredDate = &t
	}
	if f.ShippingCost != "" {
		cost, err := decimal.NewFromString(f.ShippingCost)
		if err != nil {
			return CreateOrderRequest{}, errors.New("shipping_cost must be a decimal string")
		}
		req.ShippingCost = cost
	}
	return req, nil
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrLinesLocked),
		errors.Is(err, ErrNotDispatchable), errors.Is(err, ErrNothingToShip):
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
