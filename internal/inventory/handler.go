package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mouldworks/mouldworks/internal/platform/httpx"
	"github.com/mouldworks/mouldworks/internal/rbac"
	"github.com/mouldworks/mouldworks/internal/shared"
	"github.com/mouldworks/mouldworks/report"
)

// Handler exposes item and stock endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	company report.Company
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, company report.Company) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, company: company}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermItemView))
		r.Get("/", h.list)
		r.Get("/search", h.search)
		r.Get("/low-stock", h.lowStock)
		r.Get("/barcode/{code}", h.byBarcode)
		r.Post("/labels", h.labels)
		r.Get("/{id}", h.show)
		r.Get("/{id}/stock", h.stockLevels)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermLedgerView))
		r.Get("/movements", h.movements)
		r.Get("/{id}/movements", h.itemMovements)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermItemCreate))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermItemEdit))
		r.Put("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermItemDelete))
		r.Delete("/{id}", h.delete)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermStockReceive))
		r.Post("/{id}/receive", h.receive)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermStockMove))
		r.Post("/{id}/move", h.move)
		r.Post("/{id}/ship", h.ship)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermStockAdjust))
		r.Post("/{id}/adjust", h.adjust)
		r.Post("/{id}/allocate", h.allocate)
		r.Post("/{id}/deallocate", h.deallocate)
	})
}

type itemForm struct {
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Barcode       string `json:"barcode"`
	Category      string `json:"category"`
	ItemType      string `json:"item_type"`
	UnitOfMeasure string `json:"unit_of_measure"`

	UnitCost     string `json:"unit_cost"`
	SellingPrice string `json:"selling_price"`

	ReorderPoint  float64 `json:"reorder_point"`
	MinStockLevel float64 `json:"min_stock_level"`
	MaxStockLevel float64 `json:"max_stock_level"`

	PartWeightGrams   float64 `json:"part_weight_grams"`
	RunnerWeightGrams float64 `json:"runner_weight_grams"`
	Cavities          int     `json:"cavities"`
	IdealCycleTime    float64 `json:"ideal_cycle_time"`
	SetupTimeHours    float64 `json:"setup_time_hours"`

	DefaultMouldID      *int64  `json:"default_mould_id"`
	MaterialID          *int64  `json:"material_id"`
	MasterbatchID       *int64  `json:"masterbatch_id"`
	MasterbatchRatioPct float64 `json:"masterbatch_ratio_percent"`
	RegrindPercent      float64 `json:"regrind_percent"`
	MaterialCostPerKg   string  `json:"material_cost_per_kg"`
	TargetMachineRate   string  `json:"target_machine_rate"`
	TargetMarginPercent float64 `json:"target_margin_percent"`

	IsActive *bool `json:"is_active"`
}

type receiveForm struct {
	LocationID   int64   `json:"location_id"`
	Quantity     float64 `json:"quantity"`
	BatchNumber  string  `json:"batch_number"`
	Reference    string  `json:"reference"`
	Notes        string  `json:"notes"`
	MovementType string  `json:"movement_type"`
}

type moveForm struct {
	FromLocationID int64   `json:"from_location_id"`
	ToLocationID   int64   `json:"to_location_id"`
	Quantity       float64 `json:"quantity"`
	Reference      string  `json:"reference"`
	Notes          string  `json:"notes"`
}

type adjustForm struct {
	LocationID  int64   `json:"location_id"`
	NewQuantity float64 `json:"new_quantity"`
	Reason      string  `json:"reason"`
}

type shipForm struct {
	LocationID int64   `json:"location_id"`
	Quantity   float64 `json:"quantity"`
	Reference  string  `json:"reference"`
	Notes      string  `json:"notes"`
}

type allocationForm struct {
	LocationID int64   `json:"location_id"`
	Quantity   float64 `json:"quantity"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if sku := q.Get("sku"); sku != "" {
		item, err := h.service.GetItemBySKU(r.Context(), sku)
		if err != nil {
			h.respondError(w, "get item by sku", err)
			return
		}
		httpx.JSON(w, http.StatusOK, item)
		return
	}
	filter := ItemFilter{
		Search:   q.Get("search"),
		ItemType: q.Get("type"),
		Category: q.Get("category"),
	}
	if active := q.Get("active"); active != "" {
		isActive := active == "true" || active == "1"
		filter.IsActive = &isActive
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	items, total, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list items", err)
		return
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
		"page":  page,
	})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.SearchItems(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.respondError(w, "search items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.LowStockItems(r.Context())
	if err != nil {
		h.respondError(w, "list low stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) byBarcode(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItemByBarcode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, "barcode lookup", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.respondError(w, "get item", err)
		return
	}
	levels, err := h.service.StockLevels(r.Context(), id)
	if err != nil {
		h.respondError(w, "item stock levels", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"item":         item,
		"stock_levels": levels,
	})
}

func (h *Handler) stockLevels(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	levels, err := h.service.StockLevels(r.Context(), id)
	if err != nil {
		h.respondError(w, "item stock levels", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stock_levels": levels})
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMovementFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	movements, err := h.service.Movements(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) itemMovements(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	filter, err := parseMovementFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	filter.ItemID = id
	movements, err := h.service.Movements(r.Context(), filter)
	if err != nil {
		h.respondError(w, "item movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form itemForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	item, err := form.toItem()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.CreateItem(r.Context(), item, currentUserID(r))
	if err != nil {
		h.respondError(w, "create item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	var form itemForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	item, err := form.toItem()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if form.IsActive != nil {
		item.IsActive = *form.IsActive
	} else {
		item.IsActive = true
	}
	if err := h.service.UpdateItem(r.Context(), id, item, currentUserID(r)); err != nil {
		h.respondError(w, "update item", err)
		return
	}
	updated, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.respondError(w, "get item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	if err := h.service.DeleteItem(r.Context(), id, currentUserID(r)); err != nil {
		h.respondError(w, "delete item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	var form receiveForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	movement, err := h.service.Receive(r.Context(), ReceiveInput{
		ItemID:         id,
		LocationID:     form.LocationID,
		Quantity:       form.Quantity,
		BatchNumber:    form.BatchNumber,
		Reference:      form.Reference,
		Notes:          form.Notes,
		MovementType:   MovementType(form.MovementType),
		ActorID:        currentUserID(r),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		h.respondError(w, "receive stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	var form moveForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	movement, err := h.service.Move(r.Context(), MoveInput{
		ItemID:         id,
		FromLocationID: form.FromLocationID,
		ToLocationID:   form.ToLocationID,
		Quantity:       form.Quantity,
		Reference:      form.Reference,
		Notes:          form.Notes,
		ActorID:        currentUserID(r),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		h.respondError(w, "move stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	var form adjustForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	movement, err := h.service.Adjust(r.Context(), AdjustInput{
		ItemID:         id,
		LocationID:     form.LocationID,
		NewQuantity:    form.NewQuantity,
		Reason:         form.Reason,
		ActorID:        currentUserID(r),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		h.respondError(w, "adjust stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) ship(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	var form shipForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	movement, err := h.service.Ship(r.Context(), ShipInput{
		ItemID:         id,
		LocationID:     form.LocationID,
		Quantity:       form.Quantity,
		Reference:      form.Reference,
		Notes:          form.Notes,
		ActorID:        currentUserID(r),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		h.respondError(w, "ship stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	var form allocationForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.service.Allocate(r.Context(), id, form.LocationID, form.Quantity, currentUserID(r)); err != nil {
		h.respondError(w, "allocate stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "allocated"})
}

func (h *Handler) deallocate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	var form allocationForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.service.Deallocate(r.Context(), id, form.LocationID, form.Quantity, currentUserID(r)); err != nil {
		h.respondError(w, "deallocate stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "deallocated"})
}

type labelForm struct {
	Labels []labelRequest `json:"labels"`
}

type labelRequest struct {
	SKU     string `json:"sku"`
	Code    string `json:"code"`
	Caption string `json:"caption"`
	Copies  int    `json:"copies"`
}

// labels renders a barcode sticker sheet. Rows carrying a sku are
// resolved against the item master so the caption matches the item
// name; rows carrying a bare code print as given, which covers
// location labels.
func (h *Handler) labels(w http.ResponseWriter, r *http.Request) {
	var form labelForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if len(form.Labels) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "at least one label is required")
		return
	}
	labels := make([]report.Label, 0, len(form.Labels))
	for _, req := range form.Labels {
		entry := report.Label{
			Code:    strings.ToUpper(strings.TrimSpace(req.Code)),
			Caption: strings.TrimSpace(req.Caption),
			Copies:  req.Copies,
		}
		if sku := strings.TrimSpace(req.SKU); sku != "" {
			item, err := h.service.GetItemBySKU(r.Context(), sku)
			if err != nil {
				h.respondError(w, "label lookup", err)
				return
			}
			entry.Code = item.SKU
			entry.Caption = item.Name
		}
		if entry.Code == "" {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "each label needs a sku or a code")
			return
		}
		labels = append(labels, entry)
	}
	pdf, err := report.RenderLabelSheet(h.company, labels)
	if err != nil {
		h.respondError(w, "render labels", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "labels.pdf"))
	_, _ = w.Write(pdf)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "item not found")
	case errors.Is(err, ErrDuplicateSKU):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "sku already exists")
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrAllocationExceedsStock):
		httpx.Problem(w, http.StatusConflict, "Allocation Exceeds Stock", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", "this request was already processed")
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (f itemForm) toItem() (Item, error) {
	item := Item{
		SKU:                 f.SKU,
		Name:                f.Name,
		Description:         f.Description,
		Barcode:             f.Barcode,
		Category:            f.Category,
		ItemType:            f.ItemType,
		UnitOfMeasure:       f.UnitOfMeasure,
		ReorderPoint:        f.ReorderPoint,
		MinStockLevel:       f.MinStockLevel,
		MaxStockLevel:       f.MaxStockLevel,
		PartWeightGrams:     f.PartWeightGrams,
		RunnerWeightGrams:   f.RunnerWeightGrams,
		Cavities:            f.Cavities,
		IdealCycleTime:      f.IdealCycleTime,
		SetupTimeHours:      f.SetupTimeHours,
		DefaultMouldID:      f.DefaultMouldID,
		MaterialID:          f.MaterialID,
		MasterbatchID:       f.MasterbatchID,
		MasterbatchRatioPct: f.MasterbatchRatioPct,
		RegrindPercent:      f.RegrindPercent,
		TargetMarginPercent: f.TargetMarginPercent,
	}
	var err error
	if item.UnitCost, err = parseDecimal(f.UnitCost, "unit_cost"); err != nil {
		return Item{}, err
	}
	if item.SellingPrice, err = parseDecimal(f.SellingPrice, "selling_price"); err != nil {
		return Item{}, err
	}
	if item.MaterialCostPerKg, err = parseDecimal(f.MaterialCostPerKg, "material_cost_per_kg"); err != nil {
		return Item{}, err
	}
	if item.TargetMachineRate, err = parseDecimal(f.TargetMachineRate, "target_machine_rate"); err != nil {
		return Item{}, err
	}
	return item, nil
}

func parseDecimal(value, field string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, errors.New(field + " must be a decimal number")
	}
	return d, nil
}

func parseMovementFilter(r *http.Request) (MovementFilter, error) {
	q := r.URL.Query()
	filter := MovementFilter{
		MovementType: MovementType(q.Get("type")),
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return MovementFilter{}, errors.New("from must be YYYY-MM-DD")
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return MovementFilter{}, errors.New("to must be YYYY-MM-DD")
		}
		// Include the whole day.
		filter.To = t.Add(24*time.Hour - time.Second)
	}
	if itemID := q.Get("item_id"); itemID != "" {
		id, err := strconv.ParseInt(itemID, 10, 64)
		if err != nil {
			return MovementFilter{}, errors.New("item_id must be an integer")
		}
		filter.ItemID = id
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	return filter, nil
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
