package dataio

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

const maxImportBytes = 20 << 20

// Handler exposes CSV import, export and backup endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers dataio routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermDataExport))
		r.Get("/entities", h.entities)
		r.Get("/templates/{entity}", h.template)
		r.Get("/export/{entity}", h.export)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDataImport))
		r.Post("/import/{entity}", h.importCSV)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDataBackup))
		r.Get("/backup", h.backup)
	})
}

func (h *Handler) entities(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"entities": h.service.Entities()})
}

func (h *Handler) template(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	data, err := h.service.Template(entity)
	if err != nil {
		h.respondError(w, "csv template", err)
		return
	}
	serveCSV(w, entity+"-template.csv", data)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	data, err := h.service.Export(r.Context(), entity)
	if err != nil {
		h.respondError(w, "csv export", err)
		return
	}
	serveCSV(w, entity+"-"+time.Now().Format("2006-01-02")+".csv", data)
}

func (h *Handler) importCSV(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "expected multipart upload with a file field")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "file field is required")
		return
	}
	defer file.Close()

	result, err := h.service.Import(r.Context(), entity, file, currentUserID(r))
	if err != nil {
		h.respondError(w, "csv import", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) backup(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.Backup(r.Context(), currentUserID(r))
	if err != nil {
		h.respondError(w, "csv backup", err)
		return
	}
	name := "mouldworks-backup-" + time.Now().Format("2006-01-02") + ".zip"
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func serveCSV(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrUnknownEntity):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func currentUserID(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	id, _ := strconv.ParseInt(sess.User(), 10, 64)
	return id
}
