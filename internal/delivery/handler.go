package delivery

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mouldworks/mouldworks/internal/platform/httpx"
	"github.com/mouldworks/mouldworks/internal/rbac"
	"github.com/mouldworks/mouldworks/internal/shared"
	"github.com/mouldworks/mouldworks/report"
)

const maxSignedNoteBytes = 10 << 20

// Handler exposes despatch endpoints: deliveries, dispatch against an
// order, proof of delivery, and the printed paperwork.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	company   report.Company
	uploadDir string
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, company report.Company, uploadDir string) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, company: company, uploadDir: uploadDir}
}

// MountRoutes registers delivery routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermDeliveryView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Get("/orders/{orderID}", h.order)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDeliveryDispatch))
		r.Post("/orders/{orderID}/dispatch", h.dispatch)
		r.Post("/{id}/delivered", h.markDelivered)
		r.Post("/{id}/signed-note", h.uploadSignedNote)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDeliveryPrint))
		r.Get("/orders/{orderID}/packing-list.pdf", h.packingList)
		r.Get("/{id}/delivery-note.pdf", h.deliveryNote)
	})
}

type dispatchForm struct {
	Lines          []RequestedLine `json:"lines"`
	DeliveryMethod string          `json:"delivery_method"`
	Carrier        string          `json:"carrier"`
	TrackingNumber string          `json:"tracking_number"`
	DriverName     string          `json:"driver_name"`
	NumPackages    int             `json:"num_packages"`
	TotalWeightKg  float64         `json:"total_weight_kg"`
	Notes          string          `json:"notes"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: q.Get("status")}
	filter.SalesOrderID, _ = strconv.ParseInt(q.Get("sales_order_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	deliveries, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list deliveries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"deliveries": deliveries,
		"total":      total,
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid delivery id")
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get delivery", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

// order serves the despatch view of a sales order for building a pick.
func (h *Handler) order(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseID(r, "orderID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	order, err := h.service.Order(r.Context(), orderID)
	if err != nil {
		h.respondError(w, "get despatch order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseID(r, "orderID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	var form dispatchForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	created, err := h.service.Dispatch(r.Context(), DispatchRequest{
		OrderID:        orderID,
		Lines:          form.Lines,
		DeliveryMethod: form.DeliveryMethod,
		Carrier:        form.Carrier,
		TrackingNumber: form.TrackingNumber,
		DriverName:     form.DriverName,
		NumPackages:    form.NumPackages,
		TotalWeightKg:  form.TotalWeightKg,
		Notes:          form.Notes,
		ActorID:        currentUserID(r),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, "dispatch order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) markDelivered(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid delivery id")
		return
	}
	d, err := h.service.MarkDelivered(r.Context(), id, currentUserID(r))
	if err != nil {
		h.respondError(w, "mark delivered", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) uploadSignedNote(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid delivery id")
		return
	}
	if err := r.ParseMultipartForm(maxSignedNoteBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "multipart form required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "file field required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".pdf", ".jpg", ".jpeg", ".png":
	default:
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "signed note must be a pdf or image")
		return
	}
	name := fmt.Sprintf("pod-%d-%d%s", id, time.Now().Unix(), ext)
	dst, err := os.Create(filepath.Join(h.uploadDir, name))
	if err != nil {
		h.respondError(w, "store signed note", err)
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(file, maxSignedNoteBytes)); err != nil {
		h.respondError(w, "store signed note", err)
		return
	}

	d, err := h.service.AttachSignedNote(r.Context(), id, name, currentUserID(r))
	if err != nil {
		h.respondError(w, "attach signed note", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

// packingList prints the warehouse pick sheet for an order's unshipped
// quantities.
func (h *Handler) packingList(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseID(r, "orderID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	order, err := h.service.Order(r.Context(), orderID)
	if err != nil {
		h.respondError(w, "packing list", err)
		return
	}
	data := report.PackingList{
		Company:          h.company,
		OrderNumber:      order.OrderNumber,
		CustomerPO:       order.CustomerPO,
		CustomerName:     order.CustomerName,
		DeliveryName:     order.DeliveryName,
		DeliveryAddress:  order.DeliveryAddress,
		DeliveryCity:     order.DeliveryCity,
		DeliveryPostcode: order.DeliveryPostcode,
		Date:             time.Now().Format("02/01/2006"),
	}
	for i, line := range order.Lines {
		data.Lines = append(data.Lines, report.PackingLine{
			LineNumber: i + 1,
			SKU:        line.SKU,
			Name:       line.Description,
			Ordered:    line.QuantityOrdered,
			ToShip:     line.Remaining(),
		})
	}
	pdf, err := report.RenderPackingList(data)
	if err != nil {
		h.respondError(w, "packing list", err)
		return
	}
	servePDF(w, fmt.Sprintf("packing-list-%s.pdf", order.OrderNumber), pdf)
}

// deliveryNote prints the customer copy for one despatch. Lines show
// the order's shipped quantities to date.
func (h *Handler) deliveryNote(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid delivery id")
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "delivery note", err)
		return
	}
	order, err := h.service.Order(r.Context(), d.SalesOrderID)
	if err != nil {
		h.respondError(w, "delivery note", err)
		return
	}
	date := time.Now()
	if d.DispatchDate != nil {
		date = *d.DispatchDate
	}
	data := report.DeliveryNote{
		Company:          h.company,
		DeliveryNumber:   d.DeliveryNumber,
		OrderNumber:      order.OrderNumber,
		CustomerPO:       order.CustomerPO,
		CustomerName:     order.CustomerName,
		DeliveryName:     order.DeliveryName,
		DeliveryAddress:  order.DeliveryAddress,
		DeliveryCity:     order.DeliveryCity,
		DeliveryPostcode: order.DeliveryPostcode,
		Date:             date.Format("02/01/2006"),
		Carrier:          d.Carrier,
		DriverName:       d.DriverName,
		NumPackages:      d.NumPackages,
	}
	for _, line := range order.Lines {
		if line.QuantityShipped <= 0 {
			continue
		}
		data.Lines = append(data.Lines, report.DeliveryNoteLine{
			SKU:      line.SKU,
			Name:     line.Description,
			Quantity: line.QuantityShipped,
		})
	}
	pdf, err := report.RenderDeliveryNote(data)
	if err != nil {
		h.respondError(w, "delivery note", err)
		return
	}
	servePDF(w, d.DeliveryNumber+".pdf", pdf)
}

func servePDF(w http.ResponseWriter, filename string, pdf []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	_, _ = w.Write(pdf)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ErrNotDispatchable), errors.Is(err, ErrNothingToShip),
		errors.Is(err, ErrInsufficientStock):
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
